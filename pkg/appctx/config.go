// Package appctx carries process-wide services on a context.Context so
// cobra subcommands can reach what the root command set up.
package appctx

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vulntor/slimjob/pkg/config"
)

type key string

const (
	configKey   key = "slimjob.config.manager"
	registryKey key = "slimjob.metrics.registry"
)

// WithConfig stores the shared config manager on context.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the shared config manager from context.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// WithRegistry stores the Prometheus registry engines register into.
func WithRegistry(ctx context.Context, reg *prometheus.Registry) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, registryKey, reg)
}

// Registry retrieves the Prometheus registry from context.
func Registry(ctx context.Context) (*prometheus.Registry, bool) {
	if ctx == nil {
		return nil, false
	}
	reg, ok := ctx.Value(registryKey).(*prometheus.Registry)
	return reg, ok && reg != nil
}
