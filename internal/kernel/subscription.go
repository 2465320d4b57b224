package kernel

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"otogi-bangmap/pkg/otogi"
)

// busSubscription owns one queue and its workers. Workers stop on context
// cancellation; the queue channel itself is never closed.
type busSubscription struct {
	id       int64
	interest otogi.InterestSet
	spec     otogi.SubscriptionSpec
	handler  otogi.EventHandler
	queue    chan *otogi.Event
	bus      *EventBus

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func newBusSubscription(
	id int64,
	interest otogi.InterestSet,
	spec otogi.SubscriptionSpec,
	handler otogi.EventHandler,
	bus *EventBus,
) *busSubscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &busSubscription{
		id:       id,
		interest: cloneInterestSet(interest),
		spec:     spec,
		handler:  handler,
		queue:    make(chan *otogi.Event, spec.Buffer),
		bus:      bus,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	var workers sync.WaitGroup
	for workerID := range spec.Workers {
		workers.Go(func() { sub.work(workerID) })
	}
	go func() {
		workers.Wait()
		close(sub.done)
	}()

	return sub
}

func cloneInterestSet(interest otogi.InterestSet) otogi.InterestSet {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.Sources = slices.Clone(interest.Sources)
	interest.CommandNames = slices.Clone(interest.CommandNames)

	return interest
}

// Name returns the subscription name.
func (s *busSubscription) Name() string {
	return s.spec.Name
}

// Close removes the subscription from its bus and waits for workers.
func (s *busSubscription) Close(ctx context.Context) error {
	return s.bus.unsubscribe(ctx, s.id)
}

// enqueue applies the subscription's backpressure policy when the queue is full.
// Only the block policy waits, and only on ctx or on Close.
func (s *busSubscription) enqueue(ctx context.Context, event *otogi.Event) error {
	if s.closed.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, otogi.ErrSubscriptionClosed)
	}
	if s.tryPush(event) {
		return nil
	}

	switch s.spec.Backpressure {
	case otogi.BackpressureDropOldest:
		select {
		case <-s.queue:
		default:
		}
		if s.tryPush(event) {
			return nil
		}
	case otogi.BackpressureBlock:
		select {
		case s.queue <- event:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
		case <-s.ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, otogi.ErrSubscriptionClosed)
		}
	}

	return fmt.Errorf("enqueue %s: %w", s.spec.Name, otogi.ErrEventDropped)
}

func (s *busSubscription) tryPush(event *otogi.Event) bool {
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *busSubscription) work(workerID int) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			if err := s.handle(workerID, event); err != nil {
				s.bus.reportAsyncError(s.ctx, s.spec.Name, err)
			}
		}
	}
}

func (s *busSubscription) handle(workerID int, event *otogi.Event) error {
	ctx := s.ctx
	if s.spec.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.spec.HandlerTimeout)
		defer cancel()
	}

	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, workerID)
	if err := runSafely(scope, func() error { return s.handler(ctx, event) }); err != nil {
		return fmt.Errorf("handle event %s: %w", event.ID, err)
	}

	return nil
}

func (s *busSubscription) signalClose() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

func (s *busSubscription) shutdown(ctx context.Context) error {
	s.signalClose()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
