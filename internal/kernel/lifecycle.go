package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"otogi-bangmap/pkg/otogi"
)

// Run starts modules, runs drivers, and blocks until ctx is canceled, a driver
// fails, or every driver returns. Shutdown always runs before Run returns.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.beginRun(); err != nil {
		return err
	}
	defer k.endRun()

	if err := k.startModules(ctx); err != nil {
		return err
	}
	k.cfg.logger.InfoContext(ctx, "kernel running",
		"modules", len(k.snapshotModules()),
		"drivers", len(k.snapshotDrivers()),
		"services", k.services.Names(),
	)

	runCtx, cancelDrivers := context.WithCancel(ctx)
	driversDone := k.runDrivers(runCtx)

	var runErr error
	finished := false
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-driversDone:
		finished = true
	}
	cancelDrivers()
	if !finished {
		select {
		case <-driversDone:
		case <-time.After(k.cfg.shutdownTimeout):
			k.cfg.onAsyncError(ctx, "kernel run", fmt.Errorf("drivers did not stop within %s", k.cfg.shutdownTimeout))
		}
	}

	shutdownErr := k.shutdownAll(ctx)
	if isContextCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, shutdownErr)
}

func (k *Kernel) beginRun() error {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	if k.running {
		return fmt.Errorf("kernel run: already running")
	}
	k.running = true

	return nil
}

func (k *Kernel) endRun() {
	k.runMu.Lock()
	k.running = false
	k.runMu.Unlock()
}

func (k *Kernel) startModules(ctx context.Context) error {
	for _, record := range k.snapshotModules() {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.hookTimeout)
		err := runSafely("module "+record.name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// runDrivers starts every driver in one errgroup. The returned channel yields
// the first fatal driver error, or nil once all drivers have returned.
func (k *Kernel) runDrivers(ctx context.Context) <-chan error {
	group, groupCtx := errgroup.WithContext(ctx)
	dispatcher := k.newDriverDispatcher()

	for _, driver := range k.snapshotDrivers() {
		group.Go(func() error {
			err := runSafely("driver "+driver.Name()+" Start", func() error {
				return driver.Start(groupCtx, dispatcher)
			})
			if err == nil || isContextCancellation(err) {
				return nil
			}
			return fmt.Errorf("run driver %s: %w", driver.Name(), err)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	return done
}

// shutdownAll tears down drivers, modules, and the bus within the shutdown window.
// Cleanup runs detached from ctx cancellation.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	shutdownErr := errors.Join(
		k.shutdownDrivers(shutdownCtx),
		k.shutdownModules(shutdownCtx),
		k.bus.Close(shutdownCtx),
	)
	if shutdownErr != nil {
		return fmt.Errorf("kernel shutdown: %w", shutdownErr)
	}

	return nil
}

func (k *Kernel) shutdownDrivers(ctx context.Context) error {
	drivers := k.snapshotDrivers()

	var shutdownErr error
	for idx := len(drivers) - 1; idx >= 0; idx-- {
		driver := drivers[idx]
		if err := runSafely("driver "+driver.Name()+" Shutdown", func() error {
			return driver.Shutdown(ctx)
		}); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown driver %s: %w", driver.Name(), err))
		}
	}

	return shutdownErr
}

func (k *Kernel) shutdownModules(ctx context.Context) error {
	records := k.snapshotModules()

	var shutdownErr error
	for idx := len(records) - 1; idx >= 0; idx-- {
		record := records[idx]
		if err := record.closeSubscriptions(ctx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s subscriptions: %w", record.name, err))
		}

		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.hookTimeout)
		err := runSafely("module "+record.name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		})
		cancel()
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}

	return shutdownErr
}

var _ otogi.EventDispatcher = (*EventBus)(nil)
