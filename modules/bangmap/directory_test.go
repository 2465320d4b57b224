package bangmap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzhttp"
)

const sampleDocument = `{
	"success": true,
	"data": [
		{"province": "广东省", "raw_text": "广州邦邦群 111"},
		{"province": "上海市", "raw_text": "上海邦邦群 222"},
		{"province": "广东省", "raw_text": "深圳邦邦群 333"}
	]
}`

func TestDirectoryServesFreshCacheWithoutRefetch(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, sampleDocument)
	clock := newFakeClock()
	directory := server.directory(WithClock(clock.Now))

	first, err := directory.Get(context.Background())
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	clock.Advance(59 * time.Minute)
	second, err := directory.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}

	if hits := server.hits.Load(); hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
	want := Listings{
		"广东省": {"广州邦邦群 111", "深圳邦邦群 333"},
		"上海市": {"上海邦邦群 222"},
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("first listings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, second); diff != "" {
		t.Fatalf("second listings mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectoryRefetchesAfterTTL(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, sampleDocument)
	clock := newFakeClock()
	directory := server.directory(WithClock(clock.Now), WithCacheTTL(10*time.Minute))

	if _, err := directory.Get(context.Background()); err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	server.respond(http.StatusOK, `{"success": true, "data": [{"province": "北京市", "raw_text": "北京群"}]}`)
	clock.Advance(10 * time.Minute)

	listings, err := directory.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if hits := server.hits.Load(); hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
	if diff := cmp.Diff(Listings{"北京市": {"北京群"}}, listings); diff != "" {
		t.Fatalf("listings mismatch (-want +got):\n%s", diff)
	}
	_, fetchedAt, _ := directory.Peek()
	if !fetchedAt.Equal(clock.Now()) {
		t.Fatalf("fetchedAt = %v, want %v", fetchedAt, clock.Now())
	}
}

func TestDirectoryFailedRefreshKeepsSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops", wantErr: ErrUnexpectedStatus},
		{name: "not json", status: http.StatusOK, body: "<html>", wantErr: ErrMalformedDocument},
		{name: "success false", status: http.StatusOK, body: `{"success": false, "data": []}`, wantErr: ErrMalformedDocument},
		{name: "missing data", status: http.StatusOK, body: `{"success": true}`, wantErr: ErrMalformedDocument},
		{name: "data not array", status: http.StatusOK, body: `{"success": true, "data": {}}`, wantErr: ErrMalformedDocument},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := newDirectoryServer(t, http.StatusOK, sampleDocument)
			clock := newFakeClock()
			directory := server.directory(WithClock(clock.Now))

			before, err := directory.Get(context.Background())
			if err != nil {
				t.Fatalf("initial Get failed: %v", err)
			}
			_, fetchedBefore, _ := directory.Peek()

			server.respond(testCase.status, testCase.body)
			clock.Advance(2 * time.Hour)

			listings, err := directory.Get(context.Background())
			if !errors.Is(err, ErrDirectoryUnavailable) {
				t.Fatalf("error = %v, want ErrDirectoryUnavailable", err)
			}
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("error = %v, want %v", err, testCase.wantErr)
			}
			if listings != nil {
				t.Fatalf("listings = %v, want nil", listings)
			}

			after, fetchedAfter, loaded := directory.Peek()
			if !loaded {
				t.Fatal("snapshot dropped after failed refresh")
			}
			if !fetchedAfter.Equal(fetchedBefore) {
				t.Fatalf("fetchedAt = %v, want %v", fetchedAfter, fetchedBefore)
			}
			if diff := cmp.Diff(before, after); diff != "" {
				t.Fatalf("snapshot changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestDirectoryFirstFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusBadGateway, "")
	directory := server.directory()

	_, err := directory.Get(context.Background())
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("error = %v, want ErrDirectoryUnavailable", err)
	}
	if _, _, loaded := directory.Peek(); loaded {
		t.Fatal("Peek reported a snapshot after a failed first fetch")
	}

	// A later success fills the cache.
	server.respond(http.StatusOK, sampleDocument)
	if _, err := directory.Get(context.Background()); err != nil {
		t.Fatalf("retry Get failed: %v", err)
	}
	if hits := server.hits.Load(); hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
}

func TestDirectoryServeStale(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, sampleDocument)
	clock := newFakeClock()
	directory := server.directory(WithClock(clock.Now), WithServeStale(true))

	want, err := directory.Get(context.Background())
	if err != nil {
		t.Fatalf("initial Get failed: %v", err)
	}
	server.respond(http.StatusServiceUnavailable, "")
	clock.Advance(2 * time.Hour)

	got, err := directory.Get(context.Background())
	if err != nil {
		t.Fatalf("stale Get failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stale listings mismatch (-want +got):\n%s", diff)
	}

	// The stale snapshot does not count as fresh, so the next call retries.
	if _, err := directory.Get(context.Background()); err != nil {
		t.Fatalf("second stale Get failed: %v", err)
	}
	if hits := server.hits.Load(); hits != 3 {
		t.Fatalf("hits = %d, want 3", hits)
	}
}

func TestDirectoryConcurrentGetsShareOneRequest(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newDirectoryServer(t, http.StatusOK, sampleDocument)
	server.gate = release
	directory := server.directory()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := directory.Get(context.Background())
			errs <- err
		}()
	}

	eventually(t, func() bool { return server.hits.Load() == 1 })
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if hits := server.hits.Load(); hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestDirectoryCallerCancellationDoesNotAbortFetch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newDirectoryServer(t, http.StatusOK, sampleDocument)
	server.gate = release
	directory := server.directory()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := directory.Get(ctx)
		done <- err
	}()

	eventually(t, func() bool { return server.hits.Load() == 1 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) || !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("error = %v, want canceled and unavailable", err)
	}

	close(release)
	eventually(t, func() bool {
		_, _, loaded := directory.Peek()
		return loaded
	})
	if _, err := directory.Get(context.Background()); err != nil {
		t.Fatalf("Get after fetch completed failed: %v", err)
	}
	if hits := server.hits.Load(); hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestDirectoryRequestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newDirectoryServer(t, http.StatusOK, sampleDocument)
	server.gate = release
	t.Cleanup(func() { close(release) })
	directory := server.directory(WithRequestTimeout(50 * time.Millisecond))

	_, err := directory.Get(context.Background())
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("error = %v, want ErrDirectoryUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestDirectoryAcceptsGzipResponses(t *testing.T) {
	t.Parallel()

	payload := `{"success": true, "data": [`
	for i := range 200 {
		if i > 0 {
			payload += ","
		}
		payload += `{"province": "浙江省", "raw_text": "杭州邦邦群 000000 欢迎新人加入"}`
	}
	payload += `]}`

	var sawGzip atomic.Bool
	server := httptest.NewServer(gzhttp.GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawGzip.Store(r.Header.Get("Accept-Encoding") != "")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	})))
	t.Cleanup(server.Close)

	directory := NewDirectory(
		WithEndpoint(server.URL),
		WithHTTPClient(&http.Client{Transport: gzhttp.Transport(server.Client().Transport)}),
	)
	listings, err := directory.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := len(listings["浙江省"]); got != 200 {
		t.Fatalf("listing count = %d, want 200", got)
	}
	if !sawGzip.Load() {
		t.Fatal("request did not advertise gzip")
	}
}

func TestParseDirectory(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Listings
		wantErr bool
	}{
		{
			name: "skips incomplete entries",
			body: `{"success": true, "data": [
				{"province": "广东省", "raw_text": "ok"},
				{"province": "", "raw_text": "no province"},
				{"province": "广东省", "raw_text": ""},
				{"province": "广东省"},
				{"raw_text": "orphan"},
				{"province": 7, "raw_text": "numeric province"},
				"not an object",
				null,
				{"province": "广东省", "raw_text": "ok again", "extra": true}
			]}`,
			want: Listings{"广东省": {"ok", "ok again"}},
		},
		{
			name: "empty data",
			body: `{"success": true, "data": []}`,
			want: Listings{},
		},
		{
			name: "unknown provinces are kept as is",
			body: `{"success": true, "data": [{"province": "火星", "raw_text": "x"}]}`,
			want: Listings{"火星": {"x"}},
		},
		{
			name:    "top level array",
			body:    `[]`,
			wantErr: true,
		},
		{
			name:    "truncated json",
			body:    `{"success": true, "data": [`,
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseDirectory([]byte(testCase.body))
			if testCase.wantErr {
				if !errors.Is(err, ErrMalformedDocument) {
					t.Fatalf("error = %v, want ErrMalformedDocument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Fatalf("listings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type directoryServer struct {
	*httptest.Server

	hits atomic.Int64
	gate chan struct{}

	mu     sync.Mutex
	status int
	body   string
}

func newDirectoryServer(t *testing.T, status int, body string) *directoryServer {
	t.Helper()

	server := &directoryServer{status: status, body: body}
	server.Server = httptest.NewServer(http.HandlerFunc(server.serve))
	t.Cleanup(server.Close)

	return server
}

func (s *directoryServer) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *directoryServer) respond(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func (s *directoryServer) directory(options ...DirectoryOption) *Directory {
	base := []DirectoryOption{WithEndpoint(s.URL), WithHTTPClient(s.Client())}

	return NewDirectory(append(base, options...)...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

func eventually(t *testing.T, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
