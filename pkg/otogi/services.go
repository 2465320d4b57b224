package otogi

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// Well-known service registry keys.
const (
	// ServiceLogger holds the process *slog.Logger.
	ServiceLogger = "otogi.logger"
	// ServiceSinkDispatcher holds the process SinkDispatcher.
	ServiceSinkDispatcher = "otogi.sink_dispatcher"
	// ServiceCommandCatalog holds the kernel CommandCatalog.
	ServiceCommandCatalog = "otogi.command_catalog"
)

// ServiceRegistry is the name-keyed dependency container shared by modules and drivers.
type ServiceRegistry interface {
	Register(name string, service any) error
	Resolve(name string) (any, error)
}

// ResolveAs looks up name and asserts the value to T.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: registered %T is not %s", name, service, reflect.TypeFor[T]())
	}

	return typed, nil
}

// ResolveLogger returns the registered logger, or slog.Default when none is registered.
func ResolveLogger(registry ServiceRegistry) *slog.Logger {
	if registry == nil {
		return slog.Default()
	}
	logger, err := ResolveAs[*slog.Logger](registry, ServiceLogger)
	if err != nil || logger == nil {
		return slog.Default()
	}

	return logger
}

// RegisteredCommand pairs a command with the module that declared it.
type RegisteredCommand struct {
	ModuleName string
	Command    CommandSpec
}

// CommandCatalog lists the commands declared by registered modules.
//
// ListCommands must be safe for concurrent use and return a slice the caller owns.
type CommandCatalog interface {
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}
