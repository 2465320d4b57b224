package kernel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"otogi-bangmap/pkg/otogi"
)

type commandRegistration struct {
	moduleName string
	spec       otogi.CommandSpec
}

// commandTable owns command registrations and serves otogi.ServiceCommandCatalog.
type commandTable struct {
	mu      sync.RWMutex
	entries map[string]commandRegistration
}

func newCommandTable() *commandTable {
	return &commandTable{entries: make(map[string]commandRegistration)}
}

// claim registers every command of one module, or none of them.
func (t *commandTable) claim(moduleName string, commands []otogi.CommandSpec) error {
	normalized, err := normalizeCommandSpecs(commands)
	if err != nil {
		return fmt.Errorf("register commands for module %s: %w", moduleName, err)
	}
	if len(normalized) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, spec := range normalized {
		if existing, exists := t.entries[commandKey(spec.Prefix, spec.Name)]; exists {
			return fmt.Errorf(
				"register command %s for module %s: already registered by module %s",
				spec.Label(),
				moduleName,
				existing.moduleName,
			)
		}
	}
	for _, spec := range normalized {
		t.entries[commandKey(spec.Prefix, spec.Name)] = commandRegistration{moduleName: moduleName, spec: spec}
	}

	return nil
}

// release drops every command owned by moduleName.
func (t *commandTable) release(moduleName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, registration := range t.entries {
		if registration.moduleName == moduleName {
			delete(t.entries, key)
		}
	}
}

func (t *commandTable) lookup(prefix otogi.CommandPrefix, name string) (otogi.CommandSpec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	registration, exists := t.entries[commandKey(prefix, name)]

	return registration.spec, exists
}

// ListCommands returns registered commands sorted by label, then module.
func (t *commandTable) ListCommands(ctx context.Context) ([]otogi.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	t.mu.RLock()
	commands := make([]otogi.RegisteredCommand, 0, len(t.entries))
	for _, registration := range t.entries {
		commands = append(commands, otogi.RegisteredCommand{
			ModuleName: registration.moduleName,
			Command:    registration.spec,
		})
	}
	t.mu.RUnlock()

	sort.Slice(commands, func(i, j int) bool {
		left, right := commands[i].Command.Label(), commands[j].Command.Label()
		if left == right {
			return commands[i].ModuleName < commands[j].ModuleName
		}
		return left < right
	})

	return commands, nil
}

// normalizeCommandSpecs validates specs, lowercases names, and rejects duplicates.
func normalizeCommandSpecs(commands []otogi.CommandSpec) ([]otogi.CommandSpec, error) {
	normalized := make([]otogi.CommandSpec, 0, len(commands))
	seen := make(map[string]struct{}, len(commands))
	for idx, spec := range commands {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("module command %d: %w", idx, err)
		}
		spec.Name = normalizeCommandName(spec.Name)
		key := commandKey(spec.Prefix, spec.Name)
		if _, exists := seen[key]; exists {
			return nil, fmt.Errorf("module command %d: duplicate command %s", idx, spec.Label())
		}
		seen[key] = struct{}{}
		normalized = append(normalized, spec)
	}

	return normalized, nil
}

func commandKey(prefix otogi.CommandPrefix, name string) string {
	return string(prefix) + ":" + normalizeCommandName(name)
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

var _ otogi.CommandCatalog = (*commandTable)(nil)
