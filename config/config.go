// Package config loads server and client settings from YAML.
//
// Every field has a default, so an empty or missing file yields a working
// configuration:
//
//	host: 0.0.0.0
//	port: 8000
//	framing: line          # line | length | legacy
//	max_message_size: 1048576
//	timeout: 30s
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/protocol"
)

const (
	DefaultPort    = 8000
	DefaultTimeout = 30 * time.Second
)

// Registry describes the optional etcd service directory.
type Registry struct {
	Endpoints []string      `yaml:"endpoints"` // empty disables the registry
	Prefix    string        `yaml:"prefix"`
	Service   string        `yaml:"service"`
	Advertise string        `yaml:"advertise"` // server only; routable address to publish
	TTL       time.Duration `yaml:"ttl"`       // server only
	Balancer  string        `yaml:"balancer"`  // client only
}

// Enabled reports whether a registry is configured.
func (r Registry) Enabled() bool {
	return len(r.Endpoints) > 0
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Build creates a zap logger for the configured level.
func (l Log) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"` // zero disables rate limiting
	Burst int     `yaml:"burst"`
}

type Server struct {
	Host               string           `yaml:"host"`
	Port               int              `yaml:"port"`
	Framing            protocol.Framing `yaml:"framing"`
	MaxMessageSize     int              `yaml:"max_message_size"`
	Timeout            time.Duration    `yaml:"timeout"`         // per read or write
	RequestTimeout     time.Duration    `yaml:"request_timeout"` // per method call, zero disables
	Concurrent         bool             `yaml:"concurrent"`
	MaxRequestsPerConn int              `yaml:"max_requests_per_conn"`
	RateLimit          RateLimit        `yaml:"rate_limit"`
	Tracing            bool             `yaml:"tracing"`
	Registry           Registry         `yaml:"registry"`
	Log                Log              `yaml:"log"`
}

type Client struct {
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	Framing        protocol.Framing `yaml:"framing"`
	MaxMessageSize int              `yaml:"max_message_size"`
	Timeout        time.Duration    `yaml:"timeout"`
	KeepAlive      bool             `yaml:"keep_alive"` // only for servers with max_requests_per_conn: 0
	Registry       Registry         `yaml:"registry"`
	Log            Log              `yaml:"log"`
}

func defaultLog() Log {
	return Log{Level: "info"}
}

// DefaultServer returns the settings used when no file is given.
func DefaultServer() *Server {
	return &Server{
		Host:               "0.0.0.0",
		Port:               DefaultPort,
		Framing:            protocol.FramingLine,
		MaxMessageSize:     protocol.DefaultMaxMessageSize,
		Timeout:            DefaultTimeout,
		MaxRequestsPerConn: 1,
		RateLimit:          RateLimit{Burst: 1},
		Registry: Registry{
			Prefix:  "/mini-jsonrpc/",
			Service: "jsonrpc",
			TTL:     10 * time.Second,
		},
		Log: defaultLog(),
	}
}

// DefaultClient returns the settings used when no file is given.
func DefaultClient() *Client {
	return &Client{
		Host:           "127.0.0.1",
		Port:           DefaultPort,
		Framing:        protocol.FramingLine,
		MaxMessageSize: protocol.DefaultMaxMessageSize,
		Timeout:        DefaultTimeout,
		Registry: Registry{
			Prefix:   "/mini-jsonrpc/",
			Service:  "jsonrpc",
			Balancer: "round_robin",
		},
		Log: defaultLog(),
	}
}

// LoadServer reads path over the defaults. An empty path returns the defaults.
func LoadServer(path string) (*Server, error) {
	cfg := DefaultServer()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads path over the defaults. An empty path returns the defaults.
func LoadClient(path string) (*Client, error) {
	cfg := DefaultClient()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string, cfg any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *Server) Validate() error {
	var errs []error
	errs = append(errs, validateCommon(s.Port, s.MaxMessageSize, s.Timeout, s.Log)...)
	if s.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if s.MaxRequestsPerConn < 0 {
		errs = append(errs, errors.New("max_requests_per_conn must not be negative"))
	}
	if s.RateLimit.RPS < 0 || (s.RateLimit.RPS > 0 && s.RateLimit.Burst < 1) {
		errs = append(errs, errors.New("rate_limit needs rps >= 0 and burst >= 1"))
	}
	if s.Registry.Enabled() && s.Registry.Service == "" {
		errs = append(errs, errors.New("registry.service is required"))
	}
	return errors.Join(errs...)
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Client) Validate() error {
	errs := validateCommon(c.Port, c.MaxMessageSize, c.Timeout, c.Log)
	if c.Registry.Enabled() {
		if c.Registry.Service == "" {
			errs = append(errs, errors.New("registry.service is required"))
		}
		if _, err := loadbalance.New(c.Registry.Balancer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateCommon(port int, maxSize int, timeout time.Duration, log Log) []error {
	var errs []error
	if port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", port))
	}
	if maxSize <= 0 {
		errs = append(errs, errors.New("max_message_size must be positive"))
	}
	if timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if _, err := zapcore.ParseLevel(log.Level); err != nil {
		errs = append(errs, err)
	}
	return errs
}
