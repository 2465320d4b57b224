package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"otogi-bangmap/internal/driver"
	"otogi-bangmap/internal/kernel"
	"otogi-bangmap/modules/bangmap"
	"otogi-bangmap/pkg/otogi"
)

const envConfigFile = "OTOGI_CONFIG_FILE"

// configSearchPaths are tried in order when neither the flag nor the
// environment names a config file.
var configSearchPaths = []string{"config/bot.json", "bin/config/bot.json"}

// moduleNames lists the modules routing entries may refer to.
var moduleNames = []string{"bangmap", "help"}

// appConfig is the validated process configuration. Zero kernel values keep
// the kernel defaults.
type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	drivers        []driver.Definition
	routingDefault *kernel.ModuleRoute
	moduleRoutes   map[string]kernel.ModuleRoute

	bangmap bangmap.Config
}

type fileConfig struct {
	LogLevel string `json:"log_level"`
	Kernel   struct {
		ModuleHookTimeout   string `json:"module_hook_timeout"`
		ShutdownTimeout     string `json:"shutdown_timeout"`
		HandlerTimeout      string `json:"handler_timeout"`
		SubscriptionBuffer  *int   `json:"subscription_buffer"`
		SubscriptionWorkers *int   `json:"subscription_workers"`
	} `json:"kernel"`
	Drivers []struct {
		Name    string          `json:"name"`
		Type    string          `json:"type"`
		Enabled *bool           `json:"enabled"`
		Config  json.RawMessage `json:"config"`
	} `json:"drivers"`
	Routing struct {
		Default *fileRoute           `json:"default"`
		Modules map[string]fileRoute `json:"modules"`
	} `json:"routing"`
	Modules struct {
		Bangmap json.RawMessage `json:"bangmap"`
	} `json:"modules"`
}

type fileRoute struct {
	Sources []fileEndpoint `json:"sources"`
	Sink    *fileEndpoint  `json:"sink"`
}

type fileEndpoint struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
}

func (e fileEndpoint) platformAndID() (otogi.Platform, string) {
	return otogi.Platform(strings.TrimSpace(e.Platform)), strings.TrimSpace(e.ID)
}

// loadConfig reads the config file the flag, the environment or the search
// paths point at and checks it against the driver registry.
func loadConfig(configFlag string, registry *driver.Registry) (appConfig, error) {
	path, err := locateConfigFile(configFlag)
	if err != nil {
		return appConfig{}, err
	}
	cfg, err := readConfigFile(path)
	if err != nil {
		return appConfig{}, err
	}
	if err := cfg.validate(registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", path, err)
	}

	return cfg, nil
}

func locateConfigFile(configFlag string) (string, error) {
	for _, explicit := range []string{configFlag, os.Getenv(envConfigFile)} {
		if explicit = strings.TrimSpace(explicit); explicit != "" {
			return explicit, nil
		}
	}

	for _, candidate := range configSearchPaths {
		info, err := os.Stat(candidate)
		switch {
		case err == nil && info.IsDir():
			return "", fmt.Errorf("config file %s is a directory", candidate)
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf("config file not found; create one of %s or set %s",
		strings.Join(configSearchPaths, ", "), envConfigFile)
}

func readConfigFile(path string) (appConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return appConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var file fileConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return appConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return file.toAppConfig()
}

func (f fileConfig) toAppConfig() (appConfig, error) {
	cfg := appConfig{
		logLevel:     slog.LevelInfo,
		moduleRoutes: make(map[string]kernel.ModuleRoute, len(f.Routing.Modules)),
	}

	if strings.TrimSpace(f.LogLevel) != "" {
		level, err := parseLogLevel(f.LogLevel)
		if err != nil {
			return appConfig{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	var err error
	if cfg.moduleHookTimeout, err = positiveDuration("kernel.module_hook_timeout", f.Kernel.ModuleHookTimeout); err != nil {
		return appConfig{}, err
	}
	if cfg.shutdownTimeout, err = positiveDuration("kernel.shutdown_timeout", f.Kernel.ShutdownTimeout); err != nil {
		return appConfig{}, err
	}
	if cfg.handlerTimeout, err = positiveDuration("kernel.handler_timeout", f.Kernel.HandlerTimeout); err != nil {
		return appConfig{}, err
	}
	if cfg.subscriptionBuffer, err = positiveInt("kernel.subscription_buffer", f.Kernel.SubscriptionBuffer); err != nil {
		return appConfig{}, err
	}
	if cfg.subscriptionWorkers, err = positiveInt("kernel.subscription_workers", f.Kernel.SubscriptionWorkers); err != nil {
		return appConfig{}, err
	}

	for _, entry := range f.Drivers {
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: entry.Enabled == nil || *entry.Enabled,
			Config:  slices.Clone(entry.Config),
		})
	}

	if f.Routing.Default != nil {
		route, err := f.Routing.Default.toModuleRoute("routing.default")
		if err != nil {
			return appConfig{}, err
		}
		cfg.routingDefault = &route
	}
	for moduleName, raw := range f.Routing.Modules {
		route, err := raw.toModuleRoute("routing.modules." + moduleName)
		if err != nil {
			return appConfig{}, err
		}
		cfg.moduleRoutes[moduleName] = route
	}

	if cfg.bangmap, err = bangmap.ParseConfig(f.Modules.Bangmap); err != nil {
		return appConfig{}, fmt.Errorf("parse modules.bangmap: %w", err)
	}

	return cfg, nil
}

func positiveDuration(field string, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", field)
	}

	return value, nil
}

func positiveInt(field string, raw *int) (int, error) {
	if raw == nil {
		return 0, nil
	}
	if *raw <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", field)
	}

	return *raw, nil
}

func (r fileRoute) toModuleRoute(scope string) (kernel.ModuleRoute, error) {
	if len(r.Sources) == 0 {
		return kernel.ModuleRoute{}, fmt.Errorf("%s.sources is required", scope)
	}
	if r.Sink == nil {
		return kernel.ModuleRoute{}, fmt.Errorf("%s.sink is required", scope)
	}

	route := kernel.ModuleRoute{Sources: make([]otogi.EventSource, 0, len(r.Sources))}
	for index, ref := range r.Sources {
		platform, id := ref.platformAndID()
		if platform == "" && id == "" {
			return kernel.ModuleRoute{}, fmt.Errorf("%s.sources[%d]: empty source reference", scope, index)
		}
		route.Sources = append(route.Sources, otogi.EventSource{Platform: platform, ID: id})
	}
	platform, id := r.Sink.platformAndID()
	if platform == "" && id == "" {
		return kernel.ModuleRoute{}, fmt.Errorf("%s.sink: empty sink reference", scope)
	}
	route.Sink = &otogi.EventSink{Platform: platform, ID: id}

	return route, nil
}

// validate checks driver entries against registry and routing references
// against the enabled drivers and known modules.
func (cfg appConfig) validate(registry *driver.Registry) error {
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabled := make(map[string]bool, len(cfg.drivers))
	enabledCount := 0
	for _, definition := range cfg.drivers {
		switch {
		case definition.Name == "":
			return fmt.Errorf("drivers[].name is required")
		case definition.Type == "":
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, duplicate := enabled[definition.Name]; duplicate {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabled[definition.Name] = definition.Enabled
		if definition.Enabled {
			enabledCount++
		}
	}
	if enabledCount == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	checkRoute := func(scope string, route kernel.ModuleRoute) error {
		for index, source := range route.Sources {
			if source.ID != "" && !enabled[source.ID] {
				return fmt.Errorf("%s.sources[%d]: unknown driver id %s", scope, index, source.ID)
			}
		}
		if route.Sink != nil && route.Sink.ID != "" && !enabled[route.Sink.ID] {
			return fmt.Errorf("%s.sink: unknown driver id %s", scope, route.Sink.ID)
		}
		return nil
	}
	if cfg.routingDefault != nil {
		if err := checkRoute("routing.default", *cfg.routingDefault); err != nil {
			return err
		}
	}
	for moduleName, route := range cfg.moduleRoutes {
		if !slices.Contains(moduleNames, moduleName) {
			return fmt.Errorf("routing.modules.%s: unknown module", moduleName)
		}
		if err := checkRoute("routing.modules."+moduleName, route); err != nil {
			return err
		}
	}

	return nil
}

// parseLogLevel accepts the slog level names plus "warning".
func parseLogLevel(raw string) (slog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "warning" {
		name = "warn"
	}
	var level slog.Level
	switch name {
	case "debug", "info", "warn", "error":
		if err := level.UnmarshalText([]byte(name)); err != nil {
			return 0, err
		}
		return level, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
