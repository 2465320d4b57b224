package kernel

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"otogi-bangmap/pkg/otogi"
)

// ModuleRoute limits which sources reach a module and names the sink its
// replies go to when a request leaves Target.Sink empty.
type ModuleRoute struct {
	Sources []otogi.EventSource
	Sink    *otogi.EventSink
}

// AsyncErrorHandler receives errors raised off the caller's goroutine, tagged
// with the scope that produced them.
type AsyncErrorHandler func(ctx context.Context, scope string, err error)

type config struct {
	hookTimeout     time.Duration
	shutdownTimeout time.Duration
	// subscription fills Buffer, Workers and HandlerTimeout of specs that leave them zero.
	subscription otogi.SubscriptionSpec

	logger       *slog.Logger
	onAsyncError AsyncErrorHandler

	defaultRoute *ModuleRoute
	routes       map[string]ModuleRoute
}

// Option configures New.
type Option func(*config)

func newConfig(options []Option) config {
	cfg := config{
		hookTimeout:     5 * time.Second,
		shutdownTimeout: 10 * time.Second,
		subscription: otogi.SubscriptionSpec{
			Buffer:         256,
			Workers:        1,
			HandlerTimeout: 3 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.onAsyncError == nil {
		logger := cfg.logger
		cfg.onAsyncError = func(ctx context.Context, scope string, err error) {
			logger.ErrorContext(ctx, "otogi async error", "scope", scope, "error", err)
		}
	}

	return cfg
}

// routeFor returns the route configured for moduleName, falling back to the
// default route and then to an unrestricted one.
func (cfg config) routeFor(moduleName string) ModuleRoute {
	if route, ok := cfg.routes[moduleName]; ok {
		return route
	}
	if cfg.defaultRoute != nil {
		return *cfg.defaultRoute
	}

	return ModuleRoute{}
}

// whenPositive applies set only for values above zero, so zero keeps the default.
func whenPositive[T int | time.Duration](value T, set func(*config, T)) Option {
	return func(cfg *config) {
		if value > 0 {
			set(cfg, value)
		}
	}
}

// WithModuleHookTimeout bounds each OnRegister, OnStart and OnShutdown call.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return whenPositive(timeout, func(cfg *config, v time.Duration) { cfg.hookTimeout = v })
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(timeout time.Duration) Option {
	return whenPositive(timeout, func(cfg *config, v time.Duration) { cfg.shutdownTimeout = v })
}

// WithDefaultSubscriptionBuffer is the queue depth of subscriptions that set none.
func WithDefaultSubscriptionBuffer(size int) Option {
	return whenPositive(size, func(cfg *config, v int) { cfg.subscription.Buffer = v })
}

// WithDefaultSubscriptionWorkers is the worker count of subscriptions that set none.
func WithDefaultSubscriptionWorkers(workers int) Option {
	return whenPositive(workers, func(cfg *config, v int) { cfg.subscription.Workers = v })
}

// WithDefaultHandlerTimeout is the per-event deadline of subscriptions that set none.
func WithDefaultHandlerTimeout(timeout time.Duration) Option {
	return whenPositive(timeout, func(cfg *config, v time.Duration) { cfg.subscription.HandlerTimeout = v })
}

// WithLogger sets the kernel logger, which is also registered as
// otogi.ServiceLogger. Without WithAsyncErrorHandler, async errors go to it.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithAsyncErrorHandler replaces logging of errors from subscription workers
// and driver goroutines.
func WithAsyncErrorHandler(handler AsyncErrorHandler) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// WithModuleRouting installs per-module routes keyed by module name, and
// defaultRoute for modules without one. Both are copied.
func WithModuleRouting(defaultRoute *ModuleRoute, routes map[string]ModuleRoute) Option {
	return func(cfg *config) {
		cfg.defaultRoute = nil
		if defaultRoute != nil {
			copied := copyRoute(*defaultRoute)
			cfg.defaultRoute = &copied
		}
		cfg.routes = make(map[string]ModuleRoute, len(routes))
		for name, route := range routes {
			cfg.routes[name] = copyRoute(route)
		}
	}
}

func copyRoute(route ModuleRoute) ModuleRoute {
	return ModuleRoute{
		Sources: slices.Clone(route.Sources),
		Sink:    cloneSinkRef(route.Sink),
	}
}
