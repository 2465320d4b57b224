package console

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"otogi-bangmap/pkg/otogi"
)

type runtimeConfig struct {
	ConversationID string `json:"conversation_id"`
	ActorName      string `json:"actor_name"`
}

// BuildRuntimeFromConfig wires a stdin driver and stdout sink for one configured entry.
// The config blob is optional.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (otogi.EventSource, otogi.Driver, otogi.SinkDispatcher, error) {
	var cfg runtimeConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return otogi.EventSource{}, nil, nil, fmt.Errorf("parse console runtime config: %w", err)
		}
	}

	driver := NewDriver(
		name,
		WithConversation(strings.TrimSpace(cfg.ConversationID), strings.TrimSpace(cfg.ActorName)),
		WithLogger(logger),
	)

	return otogi.EventSource{Platform: DriverPlatform, ID: driver.Name()}, driver, NewSinkDispatcher(nil), nil
}
