// Command rpcclient calls a JSON-RPC method and prints the result.
//
//	rpcclient add 2 3
//	rpcclient --named greet name='"John Doe"'
//
// Arguments are parsed as JSON, falling back to plain strings. Without a
// method it runs the demo calls against rpcserver.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/gnuflag"
	"go.uber.org/zap"

	"mini-jsonrpc/client"
	"mini-jsonrpc/config"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rpcclient:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		configPath string
		host       string
		port       int
		named      bool
		notify     bool
	)
	fs := gnuflag.NewFlagSet("rpcclient", gnuflag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&host, "host", "", "server host (overrides config)")
	fs.IntVar(&port, "port", 0, "server port (overrides config)")
	fs.BoolVar(&named, "named", false, "pass arguments as key=value named params")
	fs.BoolVar(&notify, "notify", false, "send a notification and do not wait for a result")
	if err := fs.Parse(false, args); err != nil {
		return err
	}

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	c, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	rest := fs.Args()
	if len(rest) == 0 {
		return demo(ctx, c, out)
	}

	params, err := parseParams(rest[1:], named)
	if err != nil {
		return err
	}
	if notify {
		if params.Shape() == message.ShapeNamed {
			return errors.New("notifications take positional arguments only")
		}
		return c.Notify(ctx, rest[0], rawArgs(params)...)
	}

	var result json.RawMessage
	if err := c.Invoke(ctx, rest[0], params, &result); err != nil {
		return err
	}
	fmt.Fprintln(out, string(result))
	return nil
}

func newClient(ctx context.Context, cfg *config.Client, logger *zap.Logger) (*client.Client, error) {
	opts := []client.Option{
		client.WithLogger(logger),
		client.WithFraming(cfg.Framing),
		client.WithTimeout(cfg.Timeout),
		client.WithMaxMessageSize(cfg.MaxMessageSize),
		client.WithKeepAlive(cfg.KeepAlive),
	}
	if !cfg.Registry.Enabled() {
		return client.Dial(cfg.Addr(), opts...), nil
	}

	reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints,
		registry.WithPrefix(cfg.Registry.Prefix),
		registry.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	bal, err := loadbalance.New(cfg.Registry.Balancer)
	if err != nil {
		reg.Close()
		return nil, err
	}
	c, err := client.Discover(ctx, reg, cfg.Registry.Service, bal, opts...)
	if err != nil {
		reg.Close()
		return nil, err
	}
	return c, nil
}

// parseParams turns command line arguments into params. Each value is read
// as JSON when it parses, otherwise as a string.
func parseParams(args []string, named bool) (message.Params, error) {
	if !named {
		vals := make([]any, len(args))
		for i, a := range args {
			vals[i] = parseValue(a)
		}
		return message.PositionalParams(vals...)
	}

	kwargs := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return message.Params{}, fmt.Errorf("named argument %q is not key=value", a)
		}
		kwargs[k] = parseValue(v)
	}
	return message.NamedParams(kwargs)
}

func parseValue(s string) any {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		return raw
	}
	return s
}

func rawArgs(p message.Params) []any {
	args := make([]any, len(p.Positional))
	for i, r := range p.Positional {
		args[i] = r
	}
	return args
}

// demo runs the calls of the reference client.
func demo(ctx context.Context, c *client.Client, out io.Writer) error {
	calls := []struct {
		method string
		args   []any
	}{
		{"hello", nil},
		{"greet", []any{"John Doe"}},
		{"add", []any{2, 3}},
		{"sub", []any{5, 3}},
		{"mul", []any{3, 4}},
		{"div", []any{10, 2}},
	}
	for _, call := range calls {
		var result any
		if err := c.Call(ctx, call.method, &result, call.args...); err != nil {
			return fmt.Errorf("%s: %w", call.method, err)
		}
		fmt.Fprintln(out, result)
	}
	return nil
}
