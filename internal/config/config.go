// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for both
// sides of the gate: the client pipeline (endpoints, timeouts, local state
// path) and the reference backend (server timeouts, rate limiting,
// observability).
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the backend.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-chat-gate")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ClientConfig holds the settings consumed by the dispatch pipeline and the
// quota store client.
type ClientConfig struct {
	BaseURL      string        // conversation/quota endpoint base, e.g. "http://localhost:8080/api"
	SendTimeout  time.Duration // bound on one dispatch network call
	RetryBackoff time.Duration // pause before the single transport retry
	StatePath    string        // SQLite path for durable per-device state
}

// ServerConfig holds the reference backend's HTTP server settings.
type ServerConfig struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	DBPath      string        // SQLite path for quota/transcript tables
	APIBasePath string        // base path for API routes
	ReceiptTTL  time.Duration // how long a client_message_id receipt dedups

	// Token-bucket abuse limiter, keyed by user id or fingerprint.
	RateRPS   float64
	RateBurst int

	CORS CORSConfig
}

// Config holds all configuration values for the application.
type Config struct {
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	Client ClientConfig
	Server ServerConfig
	OTEL   OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		Client: ClientConfig{
			BaseURL:      strings.TrimRight(getenv("GATE_BASE_URL", "http://localhost:8080/api"), "/"),
			SendTimeout:  getdur("SEND_TIMEOUT", 30*time.Second),
			RetryBackoff: getdur("RETRY_BACKOFF", 500*time.Millisecond),
			StatePath:    getenv("STATE_PATH", "chatgate.db"),
		},

		Server: ServerConfig{
			Port:              getenv("PORT", "8080"),
			ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      getdur("WRITE_TIMEOUT", 45*time.Second),
			IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
			GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

			DBPath:      getenv("DB_PATH", "gateserver.db"),
			APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api")),
			ReceiptTTL:  getdur("RECEIPT_TTL", 24*time.Hour),

			RateRPS:   getfloat("RATE_RPS", 5.0),
			RateBurst: getint("RATE_BURST", 10),

			CORS: CORSConfig{
				AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
			},
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-chat-gate"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.Server.GinMode {
	case "debug", "release", "test":
	default:
		cfg.Server.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Client.BaseURL) == "" {
		return cfg, errors.New("GATE_BASE_URL must not be empty")
	}
	if cfg.Client.SendTimeout <= 0 {
		return cfg, errors.New("SEND_TIMEOUT must be a positive duration")
	}
	if cfg.Client.RetryBackoff < 0 {
		return cfg, errors.New("RETRY_BACKOFF must be >= 0")
	}
	if strings.TrimSpace(cfg.Client.StatePath) == "" {
		return cfg, errors.New("STATE_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Server.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.ReadHeaderTimeout <= 0 ||
		cfg.Server.WriteTimeout <= 0 || cfg.Server.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.Server.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.Server.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Server.ReceiptTTL <= 0 {
		return cfg, errors.New("RECEIPT_TTL must be > 0")
	}
	if cfg.Server.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.Server.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
