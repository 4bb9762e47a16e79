package bridge

import (
	"context"
	"fmt"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/engine/native"
)

// Option configures how New creates the execution context.
type Option func(*config)

type config struct {
	spawner  Spawner
	loader   engine.Loader
	hostOpts []HostOption
}

func defaultConfig() config {
	return config{loader: native.Loader(0)}
}

// WithSpawner sets the spawner used to create the execution context.
// It takes precedence over WithLoader.
func WithSpawner(s Spawner) Option {
	return func(c *config) {
		c.spawner = s
	}
}

// WithLoader runs the execution context in-process with an engine from l.
// The default is the native engine.
func WithLoader(l engine.Loader) Option {
	return func(c *config) {
		c.loader = l
	}
}

// WithHostOptions passes options to an in-process Host.
func WithHostOptions(opts ...HostOption) Option {
	return func(c *config) {
		c.hostOpts = append(c.hostOpts, opts...)
	}
}

// New creates an execution context and returns a Proxy connected to it.
func New(ctx context.Context, opts ...Option) (*Proxy, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	spawner := cfg.spawner
	if spawner == nil {
		spawner = InProcess(cfg.loader, cfg.hostOpts...)
	}
	return Dial(ctx, spawner)
}

// Dial spawns an execution context with s and wraps it in a Proxy.
func Dial(ctx context.Context, s Spawner) (*Proxy, error) {
	conn, err := s.Spawn(ctx)
	if err != nil {
		return nil, fmt.Errorf("spawn execution context: %w", err)
	}
	return NewProxy(conn), nil
}
