// Package console runs the bot against a local terminal: stdin lines become
// messages in one private conversation and replies are printed to stdout.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"otogi-bangmap/pkg/otogi"
)

const (
	// DriverType is the config type name of the console driver.
	DriverType = "console"
	// DriverPlatform is the neutral platform emitted by the console driver.
	DriverPlatform = otogi.PlatformConsole

	defaultConversationID = "console"
	defaultActorName      = "local"
	defaultPublishTimeout = 2 * time.Second
)

// Option configures a console Driver.
type Option func(*Driver)

// WithInput replaces stdin.
func WithInput(input io.Reader) Option {
	return func(d *Driver) {
		if input != nil {
			d.input = input
		}
	}
}

// WithConversation sets the conversation id and the local actor name.
func WithConversation(conversationID string, actorName string) Option {
	return func(d *Driver) {
		if conversationID != "" {
			d.conversationID = conversationID
		}
		if actorName != "" {
			d.actorName = actorName
		}
	}
}

// WithLogger sets the logger for per-line failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver publishes each non-blank input line as article.created.
type Driver struct {
	name           string
	input          io.Reader
	conversationID string
	actorName      string
	publishTimeout time.Duration
	logger         *slog.Logger
	clock          func() time.Time

	sequence atomic.Int64
	once     sync.Once
	lines    chan string
	readErr  chan error
}

// NewDriver creates a console driver named name.
func NewDriver(name string, options ...Option) *Driver {
	if name == "" {
		name = DriverType
	}
	d := &Driver{
		name:           name,
		input:          os.Stdin,
		conversationID: defaultConversationID,
		actorName:      defaultActorName,
		publishTimeout: defaultPublishTimeout,
		logger:         slog.Default(),
		clock:          time.Now,
		lines:          make(chan string),
		readErr:        make(chan error, 1),
	}
	for _, option := range options {
		option(d)
	}

	return d
}

// Name returns the driver instance id.
func (d *Driver) Name() string {
	return d.name
}

// Conversation returns the conversation every console message belongs to.
func (d *Driver) Conversation() otogi.Conversation {
	return otogi.Conversation{ID: d.conversationID, Type: otogi.ConversationTypePrivate, Title: d.actorName}
}

// Start reads lines until input ends or ctx is cancelled.
//
// The reader goroutine may stay blocked in Read until input reaches EOF.
func (d *Driver) Start(ctx context.Context, dispatcher otogi.EventDispatcher) error {
	if dispatcher == nil {
		return fmt.Errorf("start console driver: nil dispatcher")
	}
	d.once.Do(func() { go d.readLines(ctx) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-d.readErr:
			if err != nil {
				return fmt.Errorf("start console driver: read input: %w", err)
			}
			return nil
		case line := <-d.lines:
			d.publishLine(ctx, dispatcher, line)
		}
	}
}

// Shutdown is a no-op; Start returns with its context.
func (d *Driver) Shutdown(_ context.Context) error {
	return nil
}

func (d *Driver) readLines(ctx context.Context) {
	scanner := bufio.NewScanner(d.input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case d.lines <- line:
		}
	}
	d.readErr <- scanner.Err()
}

func (d *Driver) publishLine(ctx context.Context, dispatcher otogi.EventDispatcher, line string) {
	id := strconv.FormatInt(d.sequence.Add(1), 10)
	event := &otogi.Event{
		ID:           "console:" + d.name + ":" + id,
		Kind:         otogi.EventKindArticleCreated,
		OccurredAt:   d.clock().UTC(),
		Platform:     DriverPlatform,
		Source:       otogi.EventSource{Platform: DriverPlatform, ID: d.name},
		Conversation: d.Conversation(),
		Actor:        otogi.Actor{ID: d.actorName, Username: d.actorName, DisplayName: d.actorName},
		Article:      &otogi.Article{ID: id, Text: line},
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := dispatcher.Publish(publishCtx, event); err != nil {
		d.logger.ErrorContext(ctx, "console publish failed", "event_id", event.ID, "error", err)
	}
}

var _ otogi.Driver = (*Driver)(nil)
