package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"otogi-bangmap/pkg/otogi"
)

// Kernel wires modules and drivers around one event bus.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry
	commands *commandTable

	// mu guards modules and drivers, both kept in registration order.
	mu      sync.RWMutex
	modules []*moduleRecord
	drivers []otogi.Driver

	runMu   sync.Mutex
	running bool
}

// New creates a kernel with the supplied options applied over defaults.
func New(options ...Option) *Kernel {
	cfg := newConfig(options)

	k := &Kernel{
		cfg:      cfg,
		bus:      NewEventBus(cfg.subscription.Buffer, cfg.subscription.Workers, cfg.subscription.HandlerTimeout, cfg.onAsyncError),
		services: NewServiceRegistry(),
		commands: newCommandTable(),
	}
	if err := k.services.Register(otogi.ServiceCommandCatalog, k.commands); err != nil {
		cfg.onAsyncError(context.Background(), "register command catalog", err)
	}
	if err := k.services.Register(otogi.ServiceLogger, cfg.logger); err != nil {
		cfg.onAsyncError(context.Background(), "register logger", err)
	}

	return k
}

// EventBus returns the bus drivers publish to.
func (k *Kernel) EventBus() otogi.EventBus {
	return k.bus
}

// Services returns the registry modules resolve dependencies from.
func (k *Kernel) Services() otogi.ServiceRegistry {
	return k.services
}

// RegisterService adds a named service. Register services before the modules that need them.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// RegisterModule validates a module spec, claims its commands, runs OnRegister,
// and subscribes its declared handlers. Any failure rolls the module back out.
func (k *Kernel) RegisterModule(ctx context.Context, module otogi.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	record := &moduleRecord{
		name:         name,
		module:       module,
		capabilities: spec.Capabilities(),
	}
	if err := k.checkRequiredServices(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	duplicate := slices.ContainsFunc(k.modules, func(existing *moduleRecord) bool { return existing.name == name })
	if !duplicate {
		k.modules = append(k.modules, record)
	}
	k.mu.Unlock()
	if duplicate {
		return fmt.Errorf("register module %s: %w", name, otogi.ErrModuleAlreadyRegistered)
	}

	if err := k.attachModule(ctx, record, spec); err != nil {
		k.detachModule(ctx, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	return nil
}

func (k *Kernel) attachModule(ctx context.Context, record *moduleRecord, spec otogi.ModuleSpec) error {
	route := k.cfg.routeFor(record.name)
	runtime := &moduleRuntime{
		moduleName:  record.name,
		services:    k.services,
		bus:         k.bus,
		record:      record,
		defaultSink: route.Sink,
	}

	if err := k.commands.claim(record.name, spec.Commands); err != nil {
		return err
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.hookTimeout)
	defer cancel()

	if registrar, ok := record.module.(otogi.ModuleRegistrar); ok {
		if err := runSafely("module "+record.name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		}); err != nil {
			return err
		}
	}

	for idx, declared := range spec.Handlers {
		subscription := declared.Subscription
		if subscription.Name == "" {
			subscription.Name = fmt.Sprintf("%s-handler-%d", record.name, idx+1)
		}
		interest := declared.Capability.Interest
		if len(route.Sources) > 0 {
			interest.Sources = append([]otogi.EventSource(nil), route.Sources...)
		}
		if _, err := runtime.Subscribe(hookCtx, interest, subscription, declared.Handler); err != nil {
			return fmt.Errorf("register handler %s for capability %s: %w", subscription.Name, declared.Capability.Name, err)
		}
	}

	return nil
}

// detachModule undoes a partial registration.
func (k *Kernel) detachModule(ctx context.Context, record *moduleRecord) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.hookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(cleanupCtx); err != nil {
		k.cfg.onAsyncError(cleanupCtx, "rollback module "+record.name, err)
	}
	k.commands.release(record.name)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.modules = slices.DeleteFunc(k.modules, func(existing *moduleRecord) bool { return existing == record })
}

// RegisterDriver adds a driver to be started by Run. Names must be unique.
func (k *Kernel) RegisterDriver(driver otogi.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if slices.ContainsFunc(k.drivers, func(existing otogi.Driver) bool { return existing.Name() == name }) {
		return fmt.Errorf("register driver %s: %w", name, otogi.ErrDriverAlreadyRegistered)
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

func (k *Kernel) checkRequiredServices(capabilities []otogi.Capability) error {
	for _, capability := range capabilities {
		for _, serviceName := range capability.RequiredServices {
			if _, err := k.services.Resolve(serviceName); err != nil {
				return fmt.Errorf("capability %s requires service %s: %w", capability.Name, serviceName, err)
			}
		}
	}

	return nil
}

func (k *Kernel) snapshotModules() []*moduleRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.modules)
}

func (k *Kernel) snapshotDrivers() []otogi.Driver {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.drivers)
}

func validateModuleSpec(spec otogi.ModuleSpec) error {
	capabilities := make(map[string]struct{}, len(spec.Handlers)+len(spec.AdditionalCapabilities))
	subscriptions := make(map[string]struct{}, len(spec.Handlers))
	claimCapability := func(name string) error {
		if name == "" {
			return fmt.Errorf("empty capability name")
		}
		if _, exists := capabilities[name]; exists {
			return fmt.Errorf("duplicate capability name %s", name)
		}
		capabilities[name] = struct{}{}
		return nil
	}

	for idx, handler := range spec.Handlers {
		if err := claimCapability(handler.Capability.Name); err != nil {
			return fmt.Errorf("module handler %d: %w", idx, err)
		}
		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", handler.Capability.Name)
		}
		if name := handler.Subscription.Name; name != "" {
			if _, exists := subscriptions[name]; exists {
				return fmt.Errorf("module handler %s: duplicate subscription name %s", handler.Capability.Name, name)
			}
			subscriptions[name] = struct{}{}
		}
	}
	for idx, capability := range spec.AdditionalCapabilities {
		if err := claimCapability(capability.Name); err != nil {
			return fmt.Errorf("additional capability %d: %w", idx, err)
		}
	}
	if _, err := normalizeCommandSpecs(spec.Commands); err != nil {
		return err
	}

	return nil
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
