package driver

import (
	"context"
	"fmt"
	"log/slog"

	"otogi-bangmap/internal/driver/console"
	"otogi-bangmap/internal/driver/telegram"
	"otogi-bangmap/pkg/otogi"
)

type runtimeBuildFunc func(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (otogi.EventSource, otogi.Driver, otogi.SinkDispatcher, error)

// NewBuiltinRegistry constructs the runtime registry with all built-in drivers.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{
			Type:     telegram.DriverType,
			Platform: telegram.DriverPlatform,
			Builder:  adaptBuilder(telegram.DriverType, telegram.BuildRuntimeFromConfig),
		},
		{
			Type:     console.DriverType,
			Platform: console.DriverPlatform,
			Builder:  adaptBuilder(console.DriverType, console.BuildRuntimeFromConfig),
		},
	})
}

func adaptBuilder(driverType string, build runtimeBuildFunc) BuilderFunc {
	return func(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
		source, runtimeDriver, sinkDispatcher, err := build(definition.Name, logger, definition.Config)
		if err != nil {
			return Runtime{}, fmt.Errorf("build %s runtime from config: %w", driverType, err)
		}

		return Runtime{
			Source:         source,
			Driver:         runtimeDriver,
			SinkDispatcher: sinkDispatcher,
		}, nil
	}
}
