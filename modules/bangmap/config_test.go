package bangmap

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Config
		wantErr bool
	}{
		{name: "empty section uses defaults", raw: ""},
		{name: "empty object uses defaults", raw: `{}`},
		{
			name: "all fields",
			raw: `{"endpoint":"http://127.0.0.1:8080/groups.json","request_timeout":"3s",` +
				`"cache_ttl":"15m","serve_stale_on_error":true}`,
			want: Config{
				Endpoint:          "http://127.0.0.1:8080/groups.json",
				RequestTimeout:    "3s",
				CacheTTL:          "15m",
				ServeStaleOnError: true,
			},
		},
		{name: "relative endpoint", raw: `{"endpoint":"/groups.json"}`, wantErr: true},
		{name: "ftp endpoint", raw: `{"endpoint":"ftp://example.com/groups.json"}`, wantErr: true},
		{name: "bad timeout", raw: `{"request_timeout":"soon"}`, wantErr: true},
		{name: "zero ttl", raw: `{"cache_ttl":"0s"}`, wantErr: true},
		{name: "negative timeout", raw: `{"request_timeout":"-1s"}`, wantErr: true},
		{name: "not an object", raw: `[]`, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseConfig(json.RawMessage(testCase.raw))
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("config = %+v, want %+v", got, testCase.want)
			}
		})
	}
}

func TestConfigDirectoryOptions(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(json.RawMessage(
		`{"endpoint":"https://mirror.example/groups.json","request_timeout":"4s","cache_ttl":"30m","serve_stale_on_error":true}`,
	))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	directory := NewDirectory(cfg.DirectoryOptions()...)
	if directory.endpoint != "https://mirror.example/groups.json" {
		t.Fatalf("endpoint = %q", directory.endpoint)
	}
	if directory.requestTimeout != 4*time.Second {
		t.Fatalf("request timeout = %v, want 4s", directory.requestTimeout)
	}
	if directory.ttl != 30*time.Minute {
		t.Fatalf("ttl = %v, want 30m", directory.ttl)
	}
	if !directory.serveStale {
		t.Fatal("serveStale = false, want true")
	}

	defaults := NewDirectory(Config{}.DirectoryOptions()...)
	if defaults.endpoint != DefaultEndpoint {
		t.Fatalf("default endpoint = %q, want %q", defaults.endpoint, DefaultEndpoint)
	}
	if defaults.requestTimeout != DefaultRequestTimeout || defaults.ttl != DefaultCacheTTL {
		t.Fatalf("defaults = (%v, %v), want (%v, %v)",
			defaults.requestTimeout, defaults.ttl, DefaultRequestTimeout, DefaultCacheTTL)
	}
}
