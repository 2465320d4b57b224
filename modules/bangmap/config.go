package bangmap

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Config is the JSON shape of the modules.bangmap config section.
type Config struct {
	Endpoint          string `json:"endpoint"`
	RequestTimeout    string `json:"request_timeout"`
	CacheTTL          string `json:"cache_ttl"`
	ServeStaleOnError bool   `json:"serve_stale_on_error"`
}

// ParseConfig decodes and validates a modules.bangmap section. An empty
// section yields defaults.
func ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse bangmap config: %w", err)
		}
	}
	if cfg.Endpoint != "" {
		parsed, err := url.Parse(cfg.Endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return Config{}, fmt.Errorf("parse bangmap config: endpoint %q must be an absolute http(s) url", cfg.Endpoint)
		}
	}
	if _, err := parsePositiveDuration("request_timeout", cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if _, err := parsePositiveDuration("cache_ttl", cfg.CacheTTL); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DirectoryOptions converts the config into Directory options.
func (c Config) DirectoryOptions() []DirectoryOption {
	options := []DirectoryOption{
		WithEndpoint(c.Endpoint),
		WithServeStale(c.ServeStaleOnError),
	}
	if timeout, _ := parsePositiveDuration("request_timeout", c.RequestTimeout); timeout > 0 {
		options = append(options, WithRequestTimeout(timeout))
	}
	if ttl, _ := parsePositiveDuration("cache_ttl", c.CacheTTL); ttl > 0 {
		options = append(options, WithCacheTTL(ttl))
	}

	return options
}

func parsePositiveDuration(field string, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse bangmap config %s: %w", field, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse bangmap config %s: must be > 0", field)
	}

	return parsed, nil
}
