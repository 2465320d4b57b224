package kernel

import (
	"context"
	"fmt"
	"maps"

	"otogi-bangmap/pkg/otogi"
)

// newDriverDispatcher returns the dispatcher handed to drivers: it publishes
// source events to the bus and derives command events from registered commands.
func (k *Kernel) newDriverDispatcher() otogi.EventDispatcher {
	return &commandRouter{
		bus:         k.bus,
		commands:    k.commands,
		services:    k.services,
		reportAsync: k.cfg.onAsyncError,
	}
}

type commandRouter struct {
	bus         otogi.EventDispatcher
	commands    *commandTable
	services    otogi.ServiceRegistry
	reportAsync func(context.Context, string, error)
}

// Publish forwards event and, for registered commands, one derived command event.
func (r *commandRouter) Publish(ctx context.Context, event *otogi.Event) error {
	if event == nil {
		return fmt.Errorf("route event: nil event")
	}
	if err := r.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.ID, err)
	}
	if event.Kind != otogi.EventKindArticleCreated || event.Article == nil {
		return nil
	}

	candidate, matched, parseErr := otogi.ParseCommandCandidate(event.Article.Text)
	if !matched {
		return nil
	}
	spec, registered := r.commands.lookup(candidate.Prefix, candidate.Name)
	if !registered {
		return nil
	}
	if parseErr != nil {
		r.replyUsage(ctx, event, spec, parseErr)
		return nil
	}
	invocation, err := otogi.BindCommand(candidate, spec, event)
	if err != nil {
		r.replyUsage(ctx, event, spec, err)
		return nil
	}

	derived := deriveCommandEvent(event, candidate.Prefix, invocation)
	if err := r.bus.Publish(ctx, derived); err != nil {
		return fmt.Errorf("publish derived command %s: %w", spec.Label(), err)
	}

	return nil
}

func (r *commandRouter) replyUsage(ctx context.Context, source *otogi.Event, spec otogi.CommandSpec, cause error) {
	dispatcher, err := otogi.ResolveAs[otogi.SinkDispatcher](r.services, otogi.ServiceSinkDispatcher)
	if err != nil {
		r.report(ctx, "command usage reply resolve dispatcher", err)
		return
	}
	request, err := otogi.NewReply(source, fmt.Sprintf("%s\nusage: %s", cause, commandUsage(spec)))
	if err != nil {
		r.report(ctx, "command usage reply build", err)
		return
	}
	if _, err := dispatcher.SendMessage(ctx, request); err != nil {
		r.report(ctx, "command usage reply send", err)
	}
}

func (r *commandRouter) report(ctx context.Context, scope string, err error) {
	if r.reportAsync != nil {
		r.reportAsync(ctx, scope, err)
	}
}

func deriveCommandEvent(
	source *otogi.Event,
	prefix otogi.CommandPrefix,
	invocation otogi.CommandInvocation,
) *otogi.Event {
	kind, suffix := otogi.EventKindCommandReceived, "#command"
	if prefix == otogi.CommandPrefixSystem {
		kind, suffix = otogi.EventKindSystemCommandReceived, "#system-command"
	}
	article := *source.Article

	return &otogi.Event{
		ID:           source.ID + suffix,
		Kind:         kind,
		OccurredAt:   source.OccurredAt,
		Platform:     source.Platform,
		Source:       source.Source,
		Conversation: source.Conversation,
		Actor:        source.Actor,
		Article:      &article,
		Command:      &invocation,
		Metadata:     maps.Clone(source.Metadata),
	}
}

func commandUsage(spec otogi.CommandSpec) string {
	if spec.Usage == "" {
		return spec.Label()
	}

	return spec.Label() + " " + spec.Usage
}
