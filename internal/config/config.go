// Package config provides application configuration loaded from environment
// variables with defaults and validation. It covers both binaries: the API
// server (receiver + read APIs) and the edge daemon (poller + uploader).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ServerConfig holds all configuration values for the API server.
type ServerConfig struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath       string        // SQLite path for the samples store
	DeviceTokens string        // comma-separated token:device_id pairs
	MaxBatch     int           // max samples per ingest request
	ClockSkew    time.Duration // future-timestamp tolerance for ingest
	CacheTTL     time.Duration // realtime cache entry lifetime

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// EdgeConfig holds all configuration values for the edge daemon.
type EdgeConfig struct {
	// Meter (local LAN)
	MeterHost  string // METER_HOST: P1 meter IP/hostname
	MeterToken string // METER_TOKEN: local API bearer token

	// VPS ingest
	IngestURL   string // INGEST_URL: base URL, must be https://
	DeviceToken string // DEVICE_TOKEN: bearer token for the ingest API
	DeviceID    string // DEVICE_ID: defaults to MeterHost

	// Loops
	PollInterval   time.Duration // POLL_INTERVAL
	UploadInterval time.Duration // UPLOAD_INTERVAL
	BatchSize      int           // BATCH_SIZE: max samples per upload
	MaxBackoff     time.Duration // MAX_BACKOFF: retry delay cap

	// Local state
	SpoolPath  string // SPOOL_PATH: SQLite spool file
	HealthPath string // HEALTH_PATH: JSON health file ("" disables)

	// Observability
	MetricsAddr string // METRICS_ADDR: Prometheus listen address ("" disables)

	// Logging
	LogLevel  string
	LogPretty bool
}

// MustLoadServer loads the server configuration and panics if validation fails.
func MustLoadServer() ServerConfig {
	cfg, err := LoadServer()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadServer reads the API server configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func LoadServer() (ServerConfig, error) {
	cfg := ServerConfig{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/v1")),

		// App
		DBPath:       getenv("DB_PATH", "p1.db"),
		DeviceTokens: getenv("DEVICE_TOKENS", ""),
		MaxBatch:     getint("MAX_BATCH", 1000),
		ClockSkew:    getdur("CLOCK_SKEW", 5*time.Minute),
		CacheTTL:     getdur("CACHE_TTL", 5*time.Second),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "p1apid"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.DeviceTokens) == "" {
		return cfg, errors.New("DEVICE_TOKENS must not be empty (token:device_id[,token:device_id...])")
	}
	if cfg.MaxBatch < 1 {
		return cfg, errors.New("MAX_BATCH must be >= 1")
	}
	if cfg.ClockSkew < 0 {
		return cfg, errors.New("CLOCK_SKEW must be >= 0")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// MustLoadEdge loads the edge configuration and panics if validation fails.
func MustLoadEdge() EdgeConfig {
	cfg, err := LoadEdge()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadEdge reads the edge daemon configuration from environment variables,
// applies defaults, and validates the result. The ingest URL is checked for
// an https scheme here as well as in the uploader: a misconfigured edge
// should fail at startup, not on the first send.
func LoadEdge() (EdgeConfig, error) {
	cfg := EdgeConfig{
		MeterHost:  getenv("METER_HOST", ""),
		MeterToken: getenv("METER_TOKEN", ""),

		IngestURL:   getenv("INGEST_URL", ""),
		DeviceToken: getenv("DEVICE_TOKEN", ""),
		DeviceID:    getenv("DEVICE_ID", ""),

		PollInterval:   getdur("POLL_INTERVAL", 2*time.Second),
		UploadInterval: getdur("UPLOAD_INTERVAL", 10*time.Second),
		BatchSize:      getint("BATCH_SIZE", 30),
		MaxBackoff:     getdur("MAX_BACKOFF", 5*time.Minute),

		SpoolPath:  getenv("SPOOL_PATH", "spool.db"),
		HealthPath: getenv("HEALTH_PATH", ""),

		MetricsAddr: getenv("METRICS_ADDR", ""),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = cfg.MeterHost
	}

	if strings.TrimSpace(cfg.MeterHost) == "" {
		return cfg, errors.New("METER_HOST must not be empty")
	}
	if strings.TrimSpace(cfg.MeterToken) == "" {
		return cfg, errors.New("METER_TOKEN must not be empty")
	}
	if strings.TrimSpace(cfg.DeviceToken) == "" {
		return cfg, errors.New("DEVICE_TOKEN must not be empty")
	}
	if err := ValidateIngestURL(cfg.IngestURL); err != nil {
		return cfg, err
	}
	if cfg.PollInterval < time.Second {
		return cfg, errors.New("POLL_INTERVAL must be >= 1s")
	}
	if cfg.UploadInterval < time.Second {
		return cfg, errors.New("UPLOAD_INTERVAL must be >= 1s")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > 1000 {
		return cfg, errors.New("BATCH_SIZE must be between 1 and 1000")
	}
	if cfg.MaxBackoff < time.Second {
		return cfg, errors.New("MAX_BACKOFF must be >= 1s")
	}
	if strings.TrimSpace(cfg.SpoolPath) == "" {
		return cfg, errors.New("SPOOL_PATH must not be empty")
	}
	return cfg, nil
}

// ValidateIngestURL enforces the encrypted-transport precondition: the
// ingest base URL must parse and must use the https scheme. Plaintext
// destinations are a configuration error, never a retryable one.
func ValidateIngestURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("INGEST_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("INGEST_URL must use https (got %q)", raw)
	}
	if u.Host == "" {
		return errors.New("INGEST_URL must include a host")
	}
	return nil
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
