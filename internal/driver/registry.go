package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"otogi-bangmap/pkg/otogi"
)

// Definition is one entry of the drivers config list.
//
// Name doubles as EventSource.ID and EventSink.ID of the built driver. Config
// reaches the builder unparsed.
type Definition struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// Runtime is one built driver instance. SinkDispatcher stays nil for
// receive-only drivers.
type Runtime struct {
	Source         otogi.EventSource
	Driver         otogi.Driver
	SinkDispatcher otogi.SinkDispatcher
}

// BuilderFunc turns one definition into a Runtime.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds a driver type name to its platform and builder.
type Descriptor struct {
	Type     string
	Platform otogi.Platform
	Builder  BuilderFunc
}

// Registry looks up descriptors by type. It is read-only once built.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry rejects incomplete or repeated descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	byType := make(map[string]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if err := checkDescriptor(descriptor, byType); err != nil {
			return nil, fmt.Errorf("new registry type %s: %w", descriptor.Type, err)
		}
		byType[descriptor.Type] = descriptor
	}

	return &Registry{descriptors: byType}, nil
}

func checkDescriptor(descriptor Descriptor, seen map[string]Descriptor) error {
	if _, exists := seen[descriptor.Type]; exists {
		return fmt.Errorf("duplicate")
	}
	if descriptor.Platform == "" {
		return fmt.Errorf("empty platform")
	}
	if descriptor.Builder == nil {
		return fmt.Errorf("nil builder")
	}

	return nil
}

// Types lists the registered driver types, sorted.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(r.descriptors))
}

// PlatformForType reports the platform a driver type serves.
func (r *Registry) PlatformForType(driverType string) (otogi.Platform, error) {
	descriptor, err := r.lookup(driverType)
	if err != nil {
		return "", fmt.Errorf("resolve platform: %w", err)
	}

	return descriptor.Platform, nil
}

func (r *Registry) lookup(driverType string) (Descriptor, error) {
	if r == nil {
		return Descriptor{}, fmt.Errorf("nil registry")
	}
	descriptor, ok := r.descriptors[driverType]
	if !ok {
		return Descriptor{}, fmt.Errorf("unsupported type %q", driverType)
	}

	return descriptor, nil
}

// BuildEnabled builds the enabled definitions in config order. Builders get a
// logger tagged with the driver name, and an empty Source is filled from the
// definition.
func (r *Registry) BuildEnabled(ctx context.Context, definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}

	var runtimes []Runtime
	built := make(map[string]bool, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if built[definition.Name] {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		built[definition.Name] = true

		runtime, err := r.build(ctx, definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s: %w", definition.Name, err)
		}
		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

func (r *Registry) build(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	descriptor, err := r.lookup(definition.Type)
	if err != nil {
		return Runtime{}, err
	}
	runtime, err := descriptor.Builder(ctx, definition, logger.With("driver", definition.Name))
	if err != nil {
		return Runtime{}, fmt.Errorf("type %s: %w", definition.Type, err)
	}
	if runtime.Driver == nil {
		return Runtime{}, fmt.Errorf("type %s: nil driver", definition.Type)
	}
	if runtime.Source.Platform == "" {
		runtime.Source.Platform = descriptor.Platform
	}
	if runtime.Source.ID == "" {
		runtime.Source.ID = definition.Name
	}

	return runtime, nil
}
