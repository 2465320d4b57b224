package help

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"otogi-bangmap/pkg/otogi"
)

const helpCommandName = "help"

// Module lists every registered command in reply to /help.
type Module struct {
	dispatcher     otogi.SinkDispatcher
	commandCatalog otogi.CommandCatalog
}

// New creates a help module with default configuration.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec declares interest in ordinary help command events.
func (m *Module) Spec() otogi.ModuleSpec {
	return otogi.ModuleSpec{
		Handlers: []otogi.ModuleHandler{
			{
				Capability: otogi.Capability{
					Name:        "help-command",
					Description: "replies to /help with the command catalog",
					Interest: otogi.InterestSet{
						Kinds:          []otogi.EventKind{otogi.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{helpCommandName},
						RequireArticle: true,
					},
					RequiredServices: []string{otogi.ServiceSinkDispatcher, otogi.ServiceCommandCatalog},
				},
				Subscription: otogi.NewDefaultSubscriptionSpec("help-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []otogi.CommandSpec{
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        helpCommandName,
				Description: "列出所有可用命令",
			},
		},
	}
}

// OnRegister looks up the sink dispatcher and the kernel command catalog.
func (m *Module) OnRegister(_ context.Context, runtime otogi.ModuleRuntime) error {
	services := runtime.Services()

	var err error
	if m.dispatcher, err = otogi.ResolveAs[otogi.SinkDispatcher](services, otogi.ServiceSinkDispatcher); err != nil {
		return fmt.Errorf("help resolve sink dispatcher: %w", err)
	}
	if m.commandCatalog, err = otogi.ResolveAs[otogi.CommandCatalog](services, otogi.ServiceCommandCatalog); err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}

	return nil
}

// OnStart is a no-op.
func (m *Module) OnStart(context.Context) error { return nil }

// OnShutdown is a no-op.
func (m *Module) OnShutdown(context.Context) error { return nil }

func (m *Module) handleCommand(ctx context.Context, event *otogi.Event) error {
	if event == nil || event.Article == nil || event.Command == nil ||
		event.Kind != otogi.EventKindCommandReceived || event.Command.Name != helpCommandName {
		return nil
	}
	switch {
	case m.dispatcher == nil:
		return fmt.Errorf("help handle command: sink dispatcher not configured")
	case m.commandCatalog == nil:
		return fmt.Errorf("help handle command: command catalog not configured")
	}

	commands, err := m.commandCatalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}
	request, err := otogi.NewReply(event, renderHelp(commands))
	if err != nil {
		return fmt.Errorf("help build reply: %w", err)
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("help send help message: %w", err)
	}

	return nil
}

func renderHelp(commands []otogi.RegisteredCommand) string {
	if len(commands) == 0 {
		return "可用命令：\n（无）"
	}

	sorted := slices.Clone(commands)
	slices.SortStableFunc(sorted, func(left, right otogi.RegisteredCommand) int {
		if order := cmp.Compare(left.Command.Label(), right.Command.Label()); order != 0 {
			return order
		}
		return cmp.Compare(left.ModuleName, right.ModuleName)
	})

	var builder strings.Builder
	builder.WriteString("可用命令：\n")
	for _, command := range sorted {
		builder.WriteString("\n")
		builder.WriteString(command.Command.Label())
		if usage := strings.TrimSpace(command.Command.Usage); usage != "" {
			builder.WriteString(" ")
			builder.WriteString(usage)
		}
		if description := strings.TrimSpace(command.Command.Description); description != "" {
			builder.WriteString("\n  ")
			builder.WriteString(description)
		}
		moduleName := strings.TrimSpace(command.ModuleName)
		if moduleName == "" {
			moduleName = "unknown"
		}
		fmt.Fprintf(&builder, " (%s)\n", moduleName)
	}

	return strings.TrimRight(builder.String(), "\n")
}

var (
	_ otogi.Module          = (*Module)(nil)
	_ otogi.ModuleRegistrar = (*Module)(nil)
)
