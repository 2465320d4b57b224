package otogi

import (
	"errors"
	"testing"
	"time"
)

func TestSendMessageRequestValidate(t *testing.T) {
	t.Parallel()

	validTarget := OutboundTarget{
		Conversation: Conversation{ID: "chat-1", Type: ConversationTypeGroup},
	}

	tests := []struct {
		name    string
		request SendMessageRequest
		wantErr bool
	}{
		{
			name:    "valid",
			request: SendMessageRequest{Target: validTarget, Text: "hello"},
		},
		{
			name:    "missing text",
			request: SendMessageRequest{Target: validTarget},
			wantErr: true,
		},
		{
			name: "missing conversation id",
			request: SendMessageRequest{
				Target: OutboundTarget{Conversation: Conversation{Type: ConversationTypePrivate}},
				Text:   "hello",
			},
			wantErr: true,
		},
		{
			name: "missing conversation type",
			request: SendMessageRequest{
				Target: OutboundTarget{Conversation: Conversation{ID: "chat-1"}},
				Text:   "hello",
			},
			wantErr: true,
		},
		{
			name: "empty sink override",
			request: SendMessageRequest{
				Target: OutboundTarget{Conversation: validTarget.Conversation, Sink: &EventSink{}},
				Text:   "hello",
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.request.Validate()
			if (err != nil) != testCase.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, testCase.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOutboundRequest) {
				t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
			}
		})
	}
}

func TestOutboundTargetFromEvent(t *testing.T) {
	t.Parallel()

	event := &Event{
		ID:         "evt-1",
		Kind:       EventKindCommandReceived,
		OccurredAt: time.Unix(1, 0).UTC(),
		Platform:   PlatformTelegram,
		Source:     EventSource{Platform: PlatformTelegram, ID: "tg-main"},
		Conversation: Conversation{
			ID:   "chat-1",
			Type: ConversationTypeGroup,
		},
	}

	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		t.Fatalf("OutboundTargetFromEvent failed: %v", err)
	}
	if target.Conversation.ID != "chat-1" {
		t.Fatalf("conversation id = %q, want chat-1", target.Conversation.ID)
	}
	if target.Sink == nil || *target.Sink != (EventSink{Platform: PlatformTelegram, ID: "tg-main"}) {
		t.Fatalf("sink = %+v, want telegram/tg-main", target.Sink)
	}

	platformOnly := *event
	platformOnly.Source = EventSource{}
	target, err = OutboundTargetFromEvent(&platformOnly)
	if err != nil {
		t.Fatalf("OutboundTargetFromEvent platform fallback failed: %v", err)
	}
	if target.Sink == nil || target.Sink.Platform != PlatformTelegram || target.Sink.ID != "" {
		t.Fatalf("sink = %+v, want platform-only telegram", target.Sink)
	}

	if _, err := OutboundTargetFromEvent(nil); !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("nil event error = %v, want ErrInvalidOutboundRequest", err)
	}
}

func TestNewReply(t *testing.T) {
	t.Parallel()

	event := &Event{
		ID:           "console:local:3",
		Kind:         EventKindCommandReceived,
		Platform:     PlatformConsole,
		Source:       EventSource{Platform: PlatformConsole, ID: "local"},
		Conversation: Conversation{ID: "console", Type: ConversationTypePrivate},
		Article:      &Article{ID: "3", Text: "/bangmap 粤"},
	}

	request, err := NewReply(event, "📍广东省")
	if err != nil {
		t.Fatalf("NewReply failed: %v", err)
	}
	if request.ReplyToMessageID != "3" || !request.DisableLinkPreview {
		t.Fatalf("request = %+v, want reply to 3 without preview", request)
	}
	if request.Target.Sink == nil || request.Target.Sink.ID != "local" {
		t.Fatalf("sink = %+v, want local", request.Target.Sink)
	}

	noArticle := *event
	noArticle.Article = nil
	request, err = NewReply(&noArticle, "hi")
	if err != nil {
		t.Fatalf("NewReply without article failed: %v", err)
	}
	if request.ReplyToMessageID != "" {
		t.Fatalf("reply id = %q, want empty", request.ReplyToMessageID)
	}

	if _, err := NewReply(event, ""); !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("empty text error = %v, want ErrInvalidOutboundRequest", err)
	}
}
