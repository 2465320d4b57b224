package bangmap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"otogi-bangmap/pkg/otogi"
)

const (
	commandName      = "邦邦地图"
	commandNameASCII = "bangmap"
	keyword          = commandName

	// handlerTimeout leaves room for a full directory request plus the reply.
	handlerTimeout = DefaultRequestTimeout + 5*time.Second
)

// Module answers province lookups from the cached group directory.
type Module struct {
	directory  *Directory
	dispatcher otogi.SinkDispatcher
	logger     *slog.Logger
}

// New creates the module around directory. A nil directory uses NewDirectory defaults.
func New(directory *Directory) *Module {
	if directory == nil {
		directory = NewDirectory()
	}

	return &Module{
		directory: directory,
		logger:    slog.Default(),
	}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "bangmap"
}

// Spec declares the lookup commands and the bare keyword trigger.
func (m *Module) Spec() otogi.ModuleSpec {
	return otogi.ModuleSpec{
		Handlers: []otogi.ModuleHandler{
			{
				Capability: otogi.Capability{
					Name:        "bangmap-command",
					Description: "looks up registered groups for a province",
					Interest: otogi.InterestSet{
						Kinds:          []otogi.EventKind{otogi.EventKindCommandReceived},
						RequireArticle: true,
						RequireCommand: true,
						CommandNames:   []string{commandName, commandNameASCII},
					},
					RequiredServices: []string{otogi.ServiceSinkDispatcher},
				},
				Subscription: otogi.SubscriptionSpec{Name: "bangmap-commands", HandlerTimeout: handlerTimeout},
				Handler:      m.handleCommand,
			},
			{
				Capability: otogi.Capability{
					Name:        "bangmap-keyword",
					Description: "answers messages starting with the bare keyword",
					Interest: otogi.InterestSet{
						Kinds:          []otogi.EventKind{otogi.EventKindArticleCreated},
						RequireArticle: true,
					},
					RequiredServices: []string{otogi.ServiceSinkDispatcher},
				},
				Subscription: otogi.SubscriptionSpec{Name: "bangmap-keyword", HandlerTimeout: handlerTimeout},
				Handler:      m.handleKeyword,
			},
		},
		Commands: []otogi.CommandSpec{
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandName,
				Usage:       "[省份]",
				Description: "查询省份的邦邦群",
			},
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandNameASCII,
				Usage:       "[省份]",
				Description: "查询省份的邦邦群 (/邦邦地图 的别名)",
			},
		},
	}
}

// OnRegister resolves the sink dispatcher and logger.
func (m *Module) OnRegister(_ context.Context, runtime otogi.ModuleRuntime) error {
	dispatcher, err := otogi.ResolveAs[otogi.SinkDispatcher](runtime.Services(), otogi.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("bangmap resolve sink dispatcher: %w", err)
	}
	m.dispatcher = dispatcher
	m.logger = otogi.ResolveLogger(runtime.Services()).With("module", m.Name())

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

// Reply renders the answer for one lookup argument.
//
// User-facing outcomes, including an unavailable directory, are returned as text.
// The error is reserved for faults in the module itself.
func (m *Module) Reply(ctx context.Context, argument string) (string, error) {
	if m == nil || m.directory == nil {
		return "", fmt.Errorf("bangmap reply: directory not configured")
	}

	argument = strings.TrimSpace(argument)
	if argument == "" {
		return helpText, nil
	}
	province := ResolveProvince(argument)
	if province == "" {
		return unresolvedText(argument), nil
	}

	listings, err := m.directory.Get(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "bangmap directory unavailable", "province", province, "error", err)
		return loadFailedText, nil
	}
	if len(listings) == 0 {
		m.logger.WarnContext(ctx, "bangmap directory is empty", "province", province)
		return loadFailedText, nil
	}
	entries := listings[province]
	if len(entries) == 0 {
		return emptyListingText(province), nil
	}

	return renderListings(province, entries), nil
}

func (m *Module) handleCommand(ctx context.Context, event *otogi.Event) error {
	if event == nil || event.Command == nil || event.Article == nil {
		return nil
	}
	if event.Kind != otogi.EventKindCommandReceived {
		return nil
	}
	if event.Command.Name != commandName && event.Command.Name != commandNameASCII {
		return nil
	}

	return m.answer(ctx, event, event.Command.Value)
}

func (m *Module) handleKeyword(ctx context.Context, event *otogi.Event) error {
	if event == nil || event.Article == nil || event.Kind != otogi.EventKindArticleCreated {
		return nil
	}
	argument, ok := keywordArgument(event.Article.Text)
	if !ok {
		return nil
	}

	return m.answer(ctx, event, argument)
}

// keywordArgument reports whether text starts with the bare keyword as its
// first field and returns the rest.
func keywordArgument(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	rest, found := strings.CutPrefix(trimmed, keyword)
	if !found {
		return "", false
	}
	if first, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(first) {
		return "", false
	}

	return strings.TrimSpace(rest), true
}

func (m *Module) answer(ctx context.Context, event *otogi.Event, argument string) error {
	if m.dispatcher == nil {
		return fmt.Errorf("bangmap answer: sink dispatcher not configured")
	}
	text, err := m.Reply(ctx, argument)
	if err != nil {
		return err
	}

	request, err := otogi.NewReply(event, text)
	if err != nil {
		return fmt.Errorf("bangmap build reply: %w", err)
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("bangmap send reply: %w", err)
	}

	return nil
}

var (
	_ otogi.Module          = (*Module)(nil)
	_ otogi.ModuleRegistrar = (*Module)(nil)
)
