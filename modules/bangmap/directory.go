package bangmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultEndpoint is the public directory document.
	DefaultEndpoint = "https://enldm.cyou/banggroupinfo.json"
	// DefaultRequestTimeout bounds one directory request.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultCacheTTL is how long a fetched directory is served without refetching.
	DefaultCacheTTL = time.Hour

	maxDocumentBytes = 8 << 20
	flightKey        = "directory"
)

var (
	// ErrDirectoryUnavailable wraps every failure to obtain a directory snapshot.
	ErrDirectoryUnavailable = errors.New("bangmap: directory unavailable")
	// ErrUnexpectedStatus indicates a non-200 response from the endpoint.
	ErrUnexpectedStatus = errors.New("bangmap: unexpected status")
	// ErrMalformedDocument indicates a body that is not JSON or not the expected envelope.
	ErrMalformedDocument = errors.New("bangmap: malformed document")
)

const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["success", "data"],
	"properties": {
		"success": {"const": true},
		"data": {"type": "array"}
	}
}`

var directoryEnvelope = jsonschema.MustCompileString("bangmap-directory.schema.json", envelopeSchema)

// Listings maps a canonical province name to its listing texts in document order.
//
// A Listings value returned by Directory is shared and must be treated as read-only.
type Listings map[string][]string

// Directory fetches the remote group directory and caches it for a fixed TTL.
//
// A failed refresh never touches the cached snapshot.
type Directory struct {
	endpoint       string
	client         *http.Client
	requestTimeout time.Duration
	ttl            time.Duration
	clock          func() time.Time
	serveStale     bool
	logger         *slog.Logger

	flight singleflight.Group

	mu        sync.RWMutex
	listings  Listings
	fetchedAt time.Time
	loaded    bool
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithEndpoint overrides the directory URL.
func WithEndpoint(endpoint string) DirectoryOption {
	return func(d *Directory) {
		if endpoint != "" {
			d.endpoint = endpoint
		}
	}
}

// WithHTTPClient overrides the HTTP client. Its own Timeout is left as is.
func WithHTTPClient(client *http.Client) DirectoryOption {
	return func(d *Directory) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRequestTimeout bounds each directory request.
func WithRequestTimeout(timeout time.Duration) DirectoryOption {
	return func(d *Directory) {
		if timeout > 0 {
			d.requestTimeout = timeout
		}
	}
}

// WithCacheTTL sets how long a successful fetch stays fresh.
func WithCacheTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithClock injects the time source used for cache age.
func WithClock(clock func() time.Time) DirectoryOption {
	return func(d *Directory) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithServeStale makes Get return the last good snapshot when a refresh fails.
func WithServeStale(enabled bool) DirectoryOption {
	return func(d *Directory) {
		d.serveStale = enabled
	}
}

// WithDirectoryLogger sets the logger used for refresh diagnostics.
func WithDirectoryLogger(logger *slog.Logger) DirectoryOption {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDirectory creates an empty directory cache.
func NewDirectory(options ...DirectoryOption) *Directory {
	d := &Directory{
		endpoint:       DefaultEndpoint,
		client:         &http.Client{Transport: gzhttp.Transport(http.DefaultTransport)},
		requestTimeout: DefaultRequestTimeout,
		ttl:            DefaultCacheTTL,
		clock:          time.Now,
		logger:         slog.Default(),
	}
	for _, option := range options {
		option(d)
	}

	return d
}

// Get returns cached listings while fresh, and otherwise refreshes them with one
// HTTP request shared by all concurrent callers.
func (d *Directory) Get(ctx context.Context) (Listings, error) {
	if listings, ok := d.fresh(); ok {
		return listings, nil
	}

	results := d.flight.DoChan(flightKey, func() (any, error) {
		if listings, ok := d.fresh(); ok {
			return listings, nil
		}
		// Bounded by requestTimeout only; each caller waits on its own ctx below.
		listings, err := d.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		d.store(listings)

		return listings, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, ctx.Err())
	case result := <-results:
		if result.Err == nil {
			return result.Val.(Listings), nil
		}
		if stale, _, ok := d.Peek(); ok && d.serveStale {
			d.logger.WarnContext(ctx, "bangmap serving stale directory", "endpoint", d.endpoint, "error", result.Err)
			return stale, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, result.Err)
	}
}

// Peek returns the last successfully fetched listings regardless of age.
func (d *Directory) Peek() (Listings, time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.listings, d.fetchedAt, d.loaded
}

func (d *Directory) fresh() (Listings, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.loaded || d.clock().Sub(d.fetchedAt) >= d.ttl {
		return nil, false
	}

	return d.listings, true
}

func (d *Directory) store(listings Listings) {
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.listings = listings
	d.fetchedAt = now
	d.loaded = true
}

func (d *Directory) fetch(ctx context.Context) (Listings, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := d.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch directory: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch directory: %w: %d", ErrUnexpectedStatus, response.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read directory body: %w", err)
	}

	listings, err := parseDirectory(body)
	if err != nil {
		return nil, err
	}
	d.logger.DebugContext(ctx, "bangmap directory refreshed", "endpoint", d.endpoint, "provinces", len(listings))

	return listings, nil
}

// parseDirectory validates the envelope and groups raw_text by province.
// Entries without a non-empty string province and raw_text are skipped.
func parseDirectory(body []byte) (Listings, error) {
	var document any
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if err := directoryEnvelope.Validate(document); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	entries, _ := document.(map[string]any)["data"].([]any)
	listings := make(Listings)
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		province, _ := entry["province"].(string)
		text, _ := entry["raw_text"].(string)
		if province == "" || text == "" {
			continue
		}
		listings[province] = append(listings[province], text)
	}

	return listings, nil
}
