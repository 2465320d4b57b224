package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"otogi-bangmap/internal/driver"
	"otogi-bangmap/internal/kernel"
	"otogi-bangmap/modules/bangmap"
	"otogi-bangmap/modules/help"
	"otogi-bangmap/pkg/otogi"
)

// runBot loads config, wires the kernel and blocks until ctx is cancelled.
func runBot(ctx context.Context, configFlag string) error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}
	cfg, err := loadConfig(configFlag, registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.logLevel)
	bot, sinks, err := assemble(ctx, logger, cfg, registry)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "bot starting", "drivers", len(cfg.drivers), "sinks", len(sinks.Sinks()))
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

// runLookup answers one query through the bangmap module without starting
// drivers. A missing config file is not an error here.
func runLookup(ctx context.Context, configFlag string, query string) (string, error) {
	cfg := appConfig{logLevel: slog.LevelInfo}
	if path, err := locateConfigFile(configFlag); err == nil {
		if cfg, err = readConfigFile(path); err != nil {
			return "", err
		}
	}

	logger := newLogger(os.Stderr, cfg.logLevel)

	return newBangmapModule(cfg, logger).Reply(ctx, query)
}

func newLogger(out io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

func newBangmapModule(cfg appConfig, logger *slog.Logger) *bangmap.Module {
	options := append(cfg.bangmap.DirectoryOptions(),
		bangmap.WithDirectoryLogger(logger.With("component", "bangmap_directory")))

	return bangmap.New(bangmap.NewDirectory(options...))
}

// assemble builds the enabled drivers and registers them, the composite sink
// dispatcher and every module on a new kernel.
func assemble(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) (*kernel.Kernel, *driver.CompositeSinkDispatcher, error) {
	bot := kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithModuleRouting(cfg.routingDefault, cfg.moduleRoutes),
	)

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}
	for _, runtime := range runtimes {
		if err := bot.RegisterDriver(runtime.Driver); err != nil {
			return nil, nil, fmt.Errorf("register driver %s: %w", runtime.Source.ID, err)
		}
	}

	sinks, err := driver.NewCompositeSinkDispatcher(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build sink dispatcher: %w", err)
	}
	if err := bot.RegisterService(otogi.ServiceSinkDispatcher, sinks); err != nil {
		return nil, nil, fmt.Errorf("register sink dispatcher service: %w", err)
	}

	modules := []otogi.Module{newBangmapModule(cfg, logger), help.New()}
	for _, module := range modules {
		if err := bot.RegisterModule(ctx, module); err != nil {
			return nil, nil, fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return bot, sinks, nil
}
