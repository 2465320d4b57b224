package driver

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"otogi-bangmap/pkg/otogi"
)

// CompositeSinkDispatcher fans SendMessage out to the driver a request's
// target sink names.
//
// A target without a sink is accepted only when exactly one sink exists. A
// sink that names only a platform must match exactly one driver.
type CompositeSinkDispatcher struct {
	sinks       map[string]otogi.EventSink
	dispatchers map[string]otogi.SinkDispatcher
}

// NewCompositeSinkDispatcher indexes the runtimes that carry a SinkDispatcher.
func NewCompositeSinkDispatcher(runtimes []Runtime) (*CompositeSinkDispatcher, error) {
	d := &CompositeSinkDispatcher{
		sinks:       make(map[string]otogi.EventSink),
		dispatchers: make(map[string]otogi.SinkDispatcher),
	}
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		id := runtime.Source.ID
		if id == "" {
			return nil, fmt.Errorf("new composite sink dispatcher: missing sink id")
		}
		if _, exists := d.sinks[id]; exists {
			return nil, fmt.Errorf("new composite sink dispatcher: duplicate sink id %s", id)
		}
		d.sinks[id] = otogi.EventSink{Platform: runtime.Source.Platform, ID: id}
		d.dispatchers[id] = runtime.SinkDispatcher
	}

	return d, nil
}

// SendMessage validates request and forwards it to the chosen sink.
func (d *CompositeSinkDispatcher) SendMessage(ctx context.Context, request otogi.SendMessageRequest) (*otogi.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("route send message: %w", err)
	}
	id, err := d.pick(request.Target.Sink)
	if err != nil {
		return nil, fmt.Errorf("resolve sink for send message: %w", err)
	}

	message, err := d.dispatchers[id].SendMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("route send message via %s: %w", id, err)
	}

	return message, nil
}

// Sinks lists the routable sinks ordered by id.
func (d *CompositeSinkDispatcher) Sinks() []otogi.EventSink {
	if d == nil {
		return nil
	}
	ordered := make([]otogi.EventSink, 0, len(d.sinks))
	for _, id := range slices.Sorted(maps.Keys(d.sinks)) {
		ordered = append(ordered, d.sinks[id])
	}

	return ordered
}

func (d *CompositeSinkDispatcher) pick(ref *otogi.EventSink) (string, error) {
	if d == nil {
		return "", fmt.Errorf("nil dispatcher")
	}
	if len(d.sinks) == 0 {
		return "", fmt.Errorf("%w: no sinks configured", otogi.ErrOutboundUnsupported)
	}

	var candidates []string
	switch {
	case ref == nil:
		candidates = slices.Collect(maps.Keys(d.sinks))
		if len(candidates) > 1 {
			return "", fmt.Errorf("%w: missing target sink", otogi.ErrOutboundUnsupported)
		}
	case ref.ID != "":
		sink, exists := d.sinks[ref.ID]
		if !exists {
			return "", fmt.Errorf("%w: sink %s not found", otogi.ErrOutboundUnsupported, ref.ID)
		}
		if ref.Platform != "" && ref.Platform != sink.Platform {
			return "", fmt.Errorf("%w: sink %s is %s, not %s",
				otogi.ErrOutboundUnsupported, ref.ID, sink.Platform, ref.Platform)
		}
		candidates = []string{ref.ID}
	default:
		for id, sink := range d.sinks {
			if sink.Platform == ref.Platform {
				candidates = append(candidates, id)
			}
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("%w: no sink for platform %s", otogi.ErrOutboundUnsupported, ref.Platform)
	default:
		return "", fmt.Errorf("%w: ambiguous sink for platform %s", otogi.ErrOutboundUnsupported, ref.Platform)
	}
}

var _ otogi.SinkDispatcher = (*CompositeSinkDispatcher)(nil)
