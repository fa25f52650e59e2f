// Command rpcserver serves the demo functions over JSON-RPC.
//
//	rpcserver --config server.yaml --port 8000
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/gnuflag"
	"go.uber.org/zap"

	"mini-jsonrpc/config"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rpcserver:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		host       string
		port       int
	)
	fs := gnuflag.NewFlagSet("rpcserver", gnuflag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&host, "host", "", "listen host (overrides config)")
	fs.IntVar(&port, "port", 0, "listen port (overrides config)")
	if err := fs.Parse(true, args); err != nil {
		return err
	}

	cfg, err := config.LoadServer(configPath)
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

	s, closeRegistry, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe(cfg.Addr()) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

// newServer builds the server, its middleware chain and the optional etcd
// announcement from cfg.
func newServer(cfg *config.Server, logger *zap.Logger) (*server.Server, func(), error) {
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithFraming(cfg.Framing),
		server.WithMaxMessageSize(cfg.MaxMessageSize),
		server.WithIOTimeout(cfg.Timeout),
		server.WithConcurrent(cfg.Concurrent),
		server.WithMaxRequestsPerConn(cfg.MaxRequestsPerConn),
	}

	closeRegistry := func() {}
	if cfg.Registry.Enabled() {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints,
			registry.WithPrefix(cfg.Registry.Prefix),
			registry.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		closeRegistry = func() {
			if err := reg.Close(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("closing registry", zap.Error(err))
			}
		}
		opts = append(opts, server.WithRegistry(reg, cfg.Registry.Service, cfg.Registry.Advertise, cfg.Registry.TTL))
	}

	s := server.New(opts...)
	s.Use(middleware.Logging(logger))
	if cfg.Tracing {
		s.Use(middleware.Tracing(middleware.WithServiceName(cfg.Registry.Service)))
	}
	if cfg.RateLimit.RPS > 0 {
		s.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.RequestTimeout > 0 {
		s.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	if err := registerFunctions(s); err != nil {
		closeRegistry()
		return nil, nil, err
	}
	return s, closeRegistry, nil
}
