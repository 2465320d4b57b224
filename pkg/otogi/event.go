package otogi

import (
	"fmt"
	"time"
)

// EventKind names the payload an Event carries.
type EventKind string

const (
	EventKindArticleCreated EventKind = "article.created"
	// EventKindCommandReceived and EventKindSystemCommandReceived are never
	// published by drivers. The kernel derives them from article.created events
	// whose text matches a registered command.
	EventKindCommandReceived       EventKind = "command.received"
	EventKindSystemCommandReceived EventKind = "system_command.received"
)

// Platform names a chat network a driver talks to.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	// PlatformConsole is a local stdin/stdout session.
	PlatformConsole Platform = "console"
)

// ConversationType distinguishes one-to-one chats from shared ones.
type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// EventSource names the driver instance an event came from. ID is the
// instance name from the drivers config.
type EventSource struct {
	Platform Platform
	ID       string
}

// EventSink names the driver instance an outbound request should go to.
// Either field may be left empty for the dispatcher to fill in.
type EventSink struct {
	Platform Platform
	ID       string
}

// Event is what drivers publish and module handlers receive.
//
// Kind decides which of Article and Command must be set; see Validate.
// OccurredAt is the platform's timestamp when it has one.
type Event struct {
	ID           string
	Kind         EventKind
	OccurredAt   time.Time
	Platform     Platform
	Source       EventSource
	Conversation Conversation
	Actor        Actor
	Article      *Article
	Command      *CommandInvocation
	Metadata     map[string]string
}

// Conversation is the chat an event happened in. Title is best effort.
type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

// Actor is the account behind an event, when the platform reports one.
type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Article is one text message. ThreadID and ReplyToID are empty unless the
// message sits in a forum topic or replies to another message.
type Article struct {
	ID        string
	ThreadID  string
	ReplyToID string
	Text      string
}

// Validate reports the first missing envelope field or payload as ErrInvalidEvent.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	missing := ""
	switch {
	case e.ID == "":
		missing = "id"
	case e.Kind == "":
		missing = "kind"
	case e.OccurredAt.IsZero():
		missing = "occurred_at"
	case e.Conversation.ID == "":
		missing = "conversation id"
	}
	if missing != "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidEvent, missing)
	}

	switch e.Kind {
	case EventKindArticleCreated:
		if e.Article == nil {
			return fmt.Errorf("%w: article.created requires article payload", ErrInvalidEvent)
		}
	case EventKindCommandReceived, EventKindSystemCommandReceived:
		if e.Command == nil {
			return fmt.Errorf("%w: %s requires command payload", ErrInvalidEvent, e.Kind)
		}
		if err := e.Command.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}
