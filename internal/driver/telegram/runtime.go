package telegram

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"otogi-bangmap/pkg/otogi"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

const (
	defaultSessionFile    = ".cache/telegram/session.json"
	defaultAuthTimeout    = 3 * time.Minute
	defaultRuntimeTimeout = 3 * time.Second
)

// runtimeConfig is the JSON config blob of one telegram driver entry.
type runtimeConfig struct {
	AppID          int    `json:"app_id"`
	AppHash        string `json:"app_hash"`
	BotToken       string `json:"bot_token"`
	Phone          string `json:"phone"`
	Code           string `json:"code"`
	Password       string `json:"password"`
	SessionFile    string `json:"session_file"`
	PublishTimeout string `json:"publish_timeout"`
	SendTimeout    string `json:"send_timeout"`
	AuthTimeout    string `json:"auth_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
}

type parsedRuntimeConfig struct {
	appID          int
	appHash        string
	botToken       string
	phone          string
	code           string
	password       string
	sessionFile    string
	publishTimeout time.Duration
	sendTimeout    time.Duration
	authTimeout    time.Duration
	updateBuffer   int
}

// BuildRuntimeFromConfig wires a gotd client, update source, driver and sink
// dispatcher for one configured telegram entry.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (otogi.EventSource, otogi.Driver, otogi.SinkDispatcher, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return otogi.EventSource{}, nil, nil, fmt.Errorf("parse telegram runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	sourceRef := otogi.EventSource{Platform: DriverPlatform, ID: name}

	sessionStorage, err := newSessionStorage(cfg.sessionFile)
	if err != nil {
		return otogi.EventSource{}, nil, nil, fmt.Errorf("telegram session storage: %w", err)
	}
	updates := NewGotdUpdateChannel(cfg.updateBuffer)
	client := gotdtelegram.NewClient(cfg.appID, cfg.appHash, gotdtelegram.Options{
		UpdateHandler:  updates,
		SessionStorage: sessionStorage,
	})

	peers := NewPeerCache()
	source, err := newGotdSource(
		authenticatedClient{client: client, logger: logger, cfg: cfg},
		updates,
		&gotdMessageMapper{peers: peers, ignoreOutgoing: true},
	)
	if err != nil {
		return otogi.EventSource{}, nil, nil, err
	}

	driver, err := NewDriver(
		source,
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "telegram driver async error", "error", err)
		}),
	)
	if err != nil {
		return otogi.EventSource{}, nil, nil, err
	}

	sink, err := NewSinkDispatcher(
		client.API(),
		peers,
		WithOutboundTimeout(cfg.sendTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(otogi.EventSink{Platform: DriverPlatform, ID: name}),
	)
	if err != nil {
		return otogi.EventSource{}, nil, nil, err
	}

	return sourceRef, driver, sink, nil
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}

	var decoded runtimeConfig
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := parsedRuntimeConfig{
		appID:        decoded.AppID,
		appHash:      strings.TrimSpace(decoded.AppHash),
		botToken:     strings.TrimSpace(decoded.BotToken),
		phone:        strings.TrimSpace(decoded.Phone),
		code:         strings.TrimSpace(decoded.Code),
		password:     strings.TrimSpace(decoded.Password),
		sessionFile:  strings.TrimSpace(decoded.SessionFile),
		updateBuffer: decoded.UpdateBuffer,
	}
	if cfg.sessionFile == "" {
		cfg.sessionFile = defaultSessionFile
	}
	if cfg.appID <= 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("app_id must be > 0")
	}
	if cfg.appHash == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("app_hash is required")
	}
	if cfg.botToken == "" && cfg.phone == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("either bot_token or phone is required")
	}

	var err error
	if cfg.publishTimeout, err = parseOptionalDuration("publish_timeout", decoded.PublishTimeout, defaultPublishTimeout); err != nil {
		return parsedRuntimeConfig{}, err
	}
	if cfg.sendTimeout, err = parseOptionalDuration("send_timeout", decoded.SendTimeout, defaultRuntimeTimeout); err != nil {
		return parsedRuntimeConfig{}, err
	}
	if cfg.authTimeout, err = parseOptionalDuration("auth_timeout", decoded.AuthTimeout, defaultAuthTimeout); err != nil {
		return parsedRuntimeConfig{}, err
	}

	return cfg, nil
}

func parseOptionalDuration(field string, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", field)
	}

	return parsed, nil
}

func newSessionStorage(path string) (*session.FileStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty session file path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve session file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

// authenticatedClient runs the gotd client and logs in before handing over control.
type authenticatedClient struct {
	client *gotdtelegram.Client
	logger *slog.Logger
	cfg    parsedRuntimeConfig
}

func (c authenticatedClient) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	return c.client.Run(ctx, func(runCtx context.Context) error {
		if err := c.authenticate(runCtx); err != nil {
			return fmt.Errorf("authenticate telegram client: %w", err)
		}
		return fn(runCtx)
	})
}

func (c authenticatedClient) authenticate(ctx context.Context) error {
	authCtx, cancel := context.WithTimeout(ctx, c.cfg.authTimeout)
	defer cancel()

	status, err := c.client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		c.logger.InfoContext(ctx, "telegram session restored", "session_file", c.cfg.sessionFile)
		return nil
	}

	if c.cfg.botToken != "" {
		if _, err := c.client.Auth().Bot(authCtx, c.cfg.botToken); err != nil {
			return fmt.Errorf("bot login: %w", err)
		}
		c.logger.InfoContext(ctx, "telegram authorized as bot", "session_file", c.cfg.sessionFile)
		return nil
	}

	codePrompt := auth.CodeAuthenticatorFunc(func(context.Context, *tg.AuthSentCode) (string, error) {
		return loginCode(c.cfg.code)
	})
	var authenticator auth.UserAuthenticator = auth.CodeOnly(c.cfg.phone, codePrompt)
	if c.cfg.password != "" {
		authenticator = auth.Constant(c.cfg.phone, c.cfg.password, codePrompt)
	}
	if err := c.client.Auth().IfNecessary(authCtx, auth.NewFlow(authenticator, auth.SendCodeOptions{})); err != nil {
		return fmt.Errorf("user login: %w", err)
	}
	c.logger.InfoContext(ctx, "telegram authorized as user", "session_file", c.cfg.sessionFile)

	return nil
}

// loginCode returns the configured code or reads one from an interactive stdin.
func loginCode(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	info, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("stat stdin: %w", err)
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return "", fmt.Errorf("code is empty and stdin is not interactive")
	}

	fmt.Fprint(os.Stdout, "Enter Telegram login code: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read login code: %w", err)
	}
	if code = strings.TrimSpace(code); code == "" {
		return "", fmt.Errorf("empty login code")
	}

	return code, nil
}
