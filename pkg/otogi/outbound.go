package otogi

import (
	"context"
	"fmt"
)

// SinkDispatcher delivers outbound text to the platform a target names.
type SinkDispatcher interface {
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
}

// OutboundTarget is a destination conversation plus an optional sink override.
// A nil Sink leaves the choice to runtime routing.
type OutboundTarget struct {
	Conversation Conversation
	Sink         *EventSink
}

// Validate rejects targets that cannot be routed.
func (t OutboundTarget) Validate() error {
	switch {
	case t.Conversation.ID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	case t.Conversation.Type == "":
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	case t.Sink != nil && *t.Sink == (EventSink{}):
		return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent addresses the conversation and driver event arrived from.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}

	target := OutboundTarget{Conversation: event.Conversation}
	sink := EventSink{Platform: event.Source.Platform, ID: event.Source.ID}
	if sink.Platform == "" {
		sink.Platform = event.Platform
	}
	if sink != (EventSink{}) {
		target.Sink = &sink
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage is a delivered message as reported by the platform.
type OutboundMessage struct {
	ID     string
	Target OutboundTarget
}

// SendMessageRequest is one plain-text message.
type SendMessageRequest struct {
	Target OutboundTarget
	Text   string
	// ReplyToMessageID quotes a platform message id, typically Article.ID.
	ReplyToMessageID string
	// DisableLinkPreview and Silent are hints; sinks without support ignore them.
	DisableLinkPreview bool
	Silent             bool
}

// NewReply builds a request answering event in place, quoting its article when present.
// Link previews are disabled.
func NewReply(event *Event, text string) (SendMessageRequest, error) {
	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		return SendMessageRequest{}, err
	}

	request := SendMessageRequest{
		Target:             target,
		Text:               text,
		DisableLinkPreview: true,
	}
	if event.Article != nil {
		request.ReplyToMessageID = event.Article.ID
	}
	if err := request.Validate(); err != nil {
		return SendMessageRequest{}, err
	}

	return request, nil
}

// Validate checks the request envelope before dispatch.
func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}

	return nil
}
