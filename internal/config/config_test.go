package config

import (
	"reflect"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/") // no leading slash + trailing slash -> "/api"

	t.Setenv("GATE_BASE_URL", "http://gate.local/api/") // trailing slash trimmed
	t.Setenv("SEND_TIMEOUT", "12s")
	t.Setenv("RETRY_BACKOFF", "250ms")
	t.Setenv("STATE_PATH", "state.sqlite")

	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("RECEIPT_TTL", "48h")

	// Use invalids for parse to fall back to defaults.
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q; want warn", cfg.LogLevel)
	}
	if !cfg.LogPretty {
		t.Fatalf("LogPretty should parse 'yes' as true")
	}
	if cfg.Server.GinMode != "release" {
		t.Fatalf("GinMode = %q; want release", cfg.Server.GinMode)
	}
	if cfg.Server.APIBasePath != "/api" {
		t.Fatalf("APIBasePath = %q; want /api", cfg.Server.APIBasePath)
	}
	if cfg.Client.BaseURL != "http://gate.local/api" {
		t.Fatalf("BaseURL = %q; want trimmed", cfg.Client.BaseURL)
	}
	if cfg.Client.SendTimeout != 12*time.Second {
		t.Fatalf("SendTimeout = %v; want 12s", cfg.Client.SendTimeout)
	}
	if cfg.Client.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("RetryBackoff = %v; want 250ms", cfg.Client.RetryBackoff)
	}
	if cfg.Server.RateRPS != 5.0 || cfg.Server.RateBurst != 10 {
		t.Fatalf("rate fallback = (%v,%v); want (5,10)", cfg.Server.RateRPS, cfg.Server.RateBurst)
	}
	if cfg.Server.ReceiptTTL != 48*time.Hour {
		t.Fatalf("ReceiptTTL = %v; want 48h", cfg.Server.ReceiptTTL)
	}
	wantOrigins := []string{"https://a.com", "http://b"}
	if !reflect.DeepEqual(cfg.Server.CORS.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins = %v; want %v", cfg.Server.CORS.AllowedOrigins, wantOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "LOG_LEVEL", "chatty"},
		{"zero send timeout", "SEND_TIMEOUT", "0s"},
		{"negative sample ratio", "OTEL_TRACES_SAMPLER_ARG", "-0.5"},
		{"burst below one", "RATE_BURST", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		" /api/ ": "/api",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
