package otogi

import (
	"fmt"
	"strings"
	"unicode"
)

// CommandPrefix is the leading character that marks a message as a command.
type CommandPrefix string

const (
	CommandPrefixOrdinary CommandPrefix = "/"
	// CommandPrefixSystem marks commands handled by the kernel itself.
	CommandPrefixSystem CommandPrefix = "~"
)

var commandPrefixes = []CommandPrefix{CommandPrefixOrdinary, CommandPrefixSystem}

// Validate rejects prefixes other than the known ones.
func (p CommandPrefix) Validate() error {
	for _, known := range commandPrefixes {
		if p == known {
			return nil
		}
	}

	return fmt.Errorf("validate command prefix: unsupported prefix %q", p)
}

// CommandCandidate is a message that looks like a command but is not yet bound
// to any CommandSpec.
type CommandCandidate struct {
	Prefix CommandPrefix
	// Name is lower-cased and stripped of the prefix and any @mention.
	Name     string
	Mention  string
	RawInput string
	// Tail is everything after the first whitespace run, trimmed.
	Tail string
}

// CommandInvocation is the Command payload of a command event.
type CommandInvocation struct {
	Name    string
	Mention string
	// Value is the trimmed argument text.
	Value           string
	SourceEventID   string
	SourceEventKind EventKind
	RawInput        string
}

// Validate checks the fields every command event must carry.
func (c *CommandInvocation) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("validate command invocation: nil invocation")
	case normalizeCommandName(c.Name) == "":
		return fmt.Errorf("validate command invocation: missing name")
	case c.SourceEventID == "":
		return fmt.Errorf("validate command invocation: missing source_event_id")
	case c.SourceEventKind == "":
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// CommandSpec is one command a module declares. Usage and Description feed /help.
type CommandSpec struct {
	Prefix      CommandPrefix
	Name        string
	Usage       string
	Description string
}

// Validate checks that the spec has a known prefix and a single-token name.
func (s CommandSpec) Validate() error {
	if err := s.Prefix.Validate(); err != nil {
		return fmt.Errorf("validate command spec %q: %w", s.Name, err)
	}
	name := normalizeCommandName(s.Name)
	if name == "" {
		return fmt.Errorf("validate command spec: missing name")
	}
	if strings.ContainsFunc(name, unicode.IsSpace) || strings.ContainsRune(name, '@') {
		return fmt.Errorf("validate command spec: invalid name %q", s.Name)
	}

	return nil
}

// Label renders the command as users type it, such as "/help".
func (s CommandSpec) Label() string {
	return string(s.Prefix) + normalizeCommandName(s.Name)
}

// ParseCommandCandidate splits text into prefix, name, mention and tail.
//
// matched reports whether text starts with a command prefix at all. A matched
// candidate may still carry err, for example a bare "/".
func ParseCommandCandidate(text string) (candidate CommandCandidate, matched bool, err error) {
	candidate.RawInput = text

	trimmed := strings.TrimSpace(text)
	header, tail := trimmed, ""
	if index := strings.IndexFunc(trimmed, unicode.IsSpace); index >= 0 {
		header, tail = trimmed[:index], trimmed[index:]
	}

	prefix, ok := commandPrefixOf(header)
	if !ok {
		return candidate, false, nil
	}
	name, mention, _ := strings.Cut(header[len(prefix):], "@")

	candidate.Prefix = prefix
	candidate.Name = normalizeCommandName(name)
	candidate.Mention = strings.TrimSpace(mention)
	candidate.Tail = strings.TrimSpace(tail)
	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command candidate: missing command name")
	}

	return candidate, true, nil
}

// BindCommand turns a candidate into an invocation of spec, recording
// sourceEvent as its origin.
func BindCommand(candidate CommandCandidate, spec CommandSpec, sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind command: nil source event")
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}
	if candidate.Prefix != spec.Prefix {
		return CommandInvocation{}, fmt.Errorf("bind command %s: prefix mismatch, got %q want %q",
			spec.Name, candidate.Prefix, spec.Prefix)
	}
	name := normalizeCommandName(spec.Name)
	if normalizeCommandName(candidate.Name) != name {
		return CommandInvocation{}, fmt.Errorf("bind command %s: name mismatch, got %q", spec.Name, candidate.Name)
	}

	invocation := CommandInvocation{
		Name:            name,
		Mention:         candidate.Mention,
		Value:           candidate.Tail,
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
		RawInput:        candidate.RawInput,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	return invocation, nil
}

func commandPrefixOf(header string) (CommandPrefix, bool) {
	for _, prefix := range commandPrefixes {
		if strings.HasPrefix(header, string(prefix)) {
			return prefix, true
		}
	}

	return "", false
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
