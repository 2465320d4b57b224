package driver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"otogi-bangmap/pkg/otogi"
)

func TestNewRegistryRejectsBadDescriptors(t *testing.T) {
	builder := func(context.Context, Definition, *slog.Logger) (Runtime, error) {
		return Runtime{}, nil
	}
	tests := []struct {
		name        string
		descriptors []Descriptor
		wantErrText string
	}{
		{
			name:        "empty type",
			descriptors: []Descriptor{{Platform: otogi.PlatformConsole, Builder: builder}},
			wantErrText: "empty descriptor type",
		},
		{
			name:        "empty platform",
			descriptors: []Descriptor{{Type: "console", Builder: builder}},
			wantErrText: "empty platform",
		},
		{
			name:        "nil builder",
			descriptors: []Descriptor{{Type: "console", Platform: otogi.PlatformConsole}},
			wantErrText: "nil builder",
		},
		{
			name: "duplicate type",
			descriptors: []Descriptor{
				{Type: "console", Platform: otogi.PlatformConsole, Builder: builder},
				{Type: "console", Platform: otogi.PlatformConsole, Builder: builder},
			},
			wantErrText: "duplicate",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegistry(testCase.descriptors)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), testCase.wantErrText) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrText)
			}
		})
	}
}

func TestRegistryBuildEnabled(t *testing.T) {
	registry, err := NewRegistry([]Descriptor{
		{
			Type:     "stub",
			Platform: otogi.PlatformConsole,
			Builder: func(_ context.Context, definition Definition, _ *slog.Logger) (Runtime, error) {
				switch definition.Name {
				case "broken":
					return Runtime{}, errors.New("broken build")
				case "driverless":
					return Runtime{}, nil
				}
				return Runtime{Driver: stubDriver{name: definition.Name}}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	tests := []struct {
		name        string
		definitions []Definition
		wantSources []otogi.EventSource
		wantErrText string
	}{
		{
			name: "builds enabled entries in order",
			definitions: []Definition{
				{Name: "b", Type: "stub", Enabled: true},
				{Name: "off", Type: "stub", Enabled: false},
				{Name: "a", Type: "stub", Enabled: true},
			},
			wantSources: []otogi.EventSource{
				{Platform: otogi.PlatformConsole, ID: "b"},
				{Platform: otogi.PlatformConsole, ID: "a"},
			},
		},
		{
			name:        "builder failure",
			definitions: []Definition{{Name: "broken", Type: "stub", Enabled: true}},
			wantErrText: "broken build",
		},
		{
			name:        "nil driver",
			definitions: []Definition{{Name: "driverless", Type: "stub", Enabled: true}},
			wantErrText: "nil driver",
		},
		{
			name:        "unknown type",
			definitions: []Definition{{Name: "x", Type: "irc", Enabled: true}},
			wantErrText: "unsupported type",
		},
		{
			name: "duplicate name",
			definitions: []Definition{
				{Name: "x", Type: "stub", Enabled: true},
				{Name: "x", Type: "stub", Enabled: true},
			},
			wantErrText: "duplicate name",
		},
		{
			name:        "empty name",
			definitions: []Definition{{Type: "stub", Enabled: true}},
			wantErrText: "empty name",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			runtimes, err := registry.BuildEnabled(context.Background(), testCase.definitions, slog.New(slog.DiscardHandler))
			if testCase.wantErrText != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErrText) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrText)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(runtimes) != len(testCase.wantSources) {
				t.Fatalf("runtime count = %d, want %d", len(runtimes), len(testCase.wantSources))
			}
			for index, runtime := range runtimes {
				if runtime.Source != testCase.wantSources[index] {
					t.Fatalf("runtime[%d] source = %+v, want %+v", index, runtime.Source, testCase.wantSources[index])
				}
			}
		})
	}
}

func TestCompositeSinkDispatcherRouting(t *testing.T) {
	tests := []struct {
		name        string
		sink        *otogi.EventSink
		wantPrimary int
		wantErr     error
	}{
		{name: "by id", sink: &otogi.EventSink{ID: "tg-main"}, wantPrimary: 1},
		{name: "by id and platform", sink: &otogi.EventSink{ID: "tg-main", Platform: otogi.PlatformTelegram}, wantPrimary: 1},
		{name: "unique platform", sink: &otogi.EventSink{Platform: otogi.PlatformConsole}},
		{name: "ambiguous platform", sink: &otogi.EventSink{Platform: otogi.PlatformTelegram}, wantErr: otogi.ErrOutboundUnsupported},
		{name: "unknown id", sink: &otogi.EventSink{ID: "nope"}, wantErr: otogi.ErrOutboundUnsupported},
		{
			name:    "platform mismatch",
			sink:    &otogi.EventSink{ID: "tg-main", Platform: otogi.PlatformConsole},
			wantErr: otogi.ErrOutboundUnsupported,
		},
		{name: "missing sink with several routes", wantErr: otogi.ErrOutboundUnsupported},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			primary := &stubSinkDispatcher{}
			dispatcher, err := NewCompositeSinkDispatcher([]Runtime{
				{Source: otogi.EventSource{Platform: otogi.PlatformTelegram, ID: "tg-main"}, SinkDispatcher: primary},
				{Source: otogi.EventSource{Platform: otogi.PlatformTelegram, ID: "tg-alt"}, SinkDispatcher: &stubSinkDispatcher{}},
				{Source: otogi.EventSource{Platform: otogi.PlatformConsole, ID: "console"}, SinkDispatcher: &stubSinkDispatcher{}},
				{Source: otogi.EventSource{Platform: otogi.PlatformTelegram, ID: "receive-only"}},
			})
			if err != nil {
				t.Fatalf("new composite sink dispatcher failed: %v", err)
			}

			_, err = dispatcher.SendMessage(context.Background(), otogi.SendMessageRequest{
				Target: otogi.OutboundTarget{
					Conversation: otogi.Conversation{ID: "1", Type: otogi.ConversationTypeGroup},
					Sink:         testCase.sink,
				},
				Text: "hello",
			})
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("error = %v, want %v", err, testCase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("send message failed: %v", err)
			}
			if primary.sendCalls != testCase.wantPrimary {
				t.Fatalf("primary calls = %d, want %d", primary.sendCalls, testCase.wantPrimary)
			}
		})
	}
}

func TestCompositeSinkDispatcherSingleSinkDefault(t *testing.T) {
	t.Parallel()

	only := &stubSinkDispatcher{}
	dispatcher, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: otogi.EventSource{Platform: otogi.PlatformConsole, ID: "console"}, SinkDispatcher: only},
	})
	if err != nil {
		t.Fatalf("new composite sink dispatcher failed: %v", err)
	}

	if _, err := dispatcher.SendMessage(context.Background(), otogi.SendMessageRequest{
		Target: otogi.OutboundTarget{Conversation: otogi.Conversation{ID: "1", Type: otogi.ConversationTypePrivate}},
		Text:   "hi",
	}); err != nil {
		t.Fatalf("send message failed: %v", err)
	}
	if only.sendCalls != 1 {
		t.Fatalf("calls = %d, want 1", only.sendCalls)
	}
}

func TestCompositeSinkDispatcherRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	only := &stubSinkDispatcher{}
	dispatcher, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: otogi.EventSource{Platform: otogi.PlatformConsole, ID: "console"}, SinkDispatcher: only},
	})
	if err != nil {
		t.Fatalf("new composite sink dispatcher failed: %v", err)
	}

	_, err = dispatcher.SendMessage(context.Background(), otogi.SendMessageRequest{
		Target: otogi.OutboundTarget{Conversation: otogi.Conversation{ID: "1", Type: otogi.ConversationTypePrivate}},
	})
	if !errors.Is(err, otogi.ErrInvalidOutboundRequest) {
		t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
	}
	if only.sendCalls != 0 {
		t.Fatalf("calls = %d, want 0", only.sendCalls)
	}
}

func TestCompositeSinkDispatcherSinks(t *testing.T) {
	t.Parallel()

	dispatcher, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: otogi.EventSource{Platform: otogi.PlatformTelegram, ID: "tg-main"}, SinkDispatcher: &stubSinkDispatcher{}},
		{Source: otogi.EventSource{Platform: otogi.PlatformConsole, ID: "console"}, SinkDispatcher: &stubSinkDispatcher{}},
	})
	if err != nil {
		t.Fatalf("new composite sink dispatcher failed: %v", err)
	}

	sinks := dispatcher.Sinks()
	if len(sinks) != 2 || sinks[0].ID != "console" || sinks[1].ID != "tg-main" {
		t.Fatalf("sinks = %+v, want console then tg-main", sinks)
	}

	_, err = NewCompositeSinkDispatcher([]Runtime{
		{Source: otogi.EventSource{Platform: otogi.PlatformConsole, ID: "dup"}, SinkDispatcher: &stubSinkDispatcher{}},
		{Source: otogi.EventSource{Platform: otogi.PlatformConsole, ID: "dup"}, SinkDispatcher: &stubSinkDispatcher{}},
	})
	if err == nil {
		t.Fatal("expected duplicate sink id error")
	}
}

type stubDriver struct {
	name string
}

func (d stubDriver) Name() string {
	return d.name
}

func (stubDriver) Start(context.Context, otogi.EventDispatcher) error {
	return nil
}

func (stubDriver) Shutdown(context.Context) error {
	return nil
}

type stubSinkDispatcher struct {
	sendCalls int
}

func (d *stubSinkDispatcher) SendMessage(
	_ context.Context,
	request otogi.SendMessageRequest,
) (*otogi.OutboundMessage, error) {
	d.sendCalls++

	return &otogi.OutboundMessage{ID: "1", Target: request.Target}, nil
}
