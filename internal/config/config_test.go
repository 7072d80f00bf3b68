package config

import (
	"strings"
	"testing"
	"time"
)

func setServerEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DEVICE_TOKENS", "tok:meter-1")
}

func TestLoadServer_Defaults(t *testing.T) {
	setServerEnv(t)

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.APIBasePath != "/v1" {
		t.Fatalf("APIBasePath = %q, want /v1", cfg.APIBasePath)
	}
	if cfg.MaxBatch != 1000 || cfg.ClockSkew != 5*time.Minute || cfg.CacheTTL != 5*time.Second {
		t.Fatalf("unexpected app defaults: %+v", cfg)
	}
}

func TestLoadServer_RequiresDeviceTokens(t *testing.T) {
	t.Setenv("DEVICE_TOKENS", "")
	if _, err := LoadServer(); err == nil || !strings.Contains(err.Error(), "DEVICE_TOKENS") {
		t.Fatalf("expected DEVICE_TOKENS error, got %v", err)
	}
}

func TestLoadServer_NormalizesWarningAndGinMode(t *testing.T) {
	setServerEnv(t)
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.GinMode != "release" {
		t.Fatalf("normalization failed: level=%q mode=%q", cfg.LogLevel, cfg.GinMode)
	}
}

func setEdgeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("METER_HOST", "192.168.1.50")
	t.Setenv("METER_TOKEN", "local-token")
	t.Setenv("INGEST_URL", "https://telemetry.example.com")
	t.Setenv("DEVICE_TOKEN", "device-token")
}

func TestLoadEdge_DefaultsAndDeviceIDFallback(t *testing.T) {
	setEdgeEnv(t)

	cfg, err := LoadEdge()
	if err != nil {
		t.Fatalf("LoadEdge: %v", err)
	}
	if cfg.DeviceID != "192.168.1.50" {
		t.Fatalf("DeviceID = %q, want meter host fallback", cfg.DeviceID)
	}
	if cfg.PollInterval != 2*time.Second || cfg.UploadInterval != 10*time.Second {
		t.Fatalf("unexpected intervals: %+v", cfg)
	}
	if cfg.BatchSize != 30 || cfg.MaxBackoff != 5*time.Minute {
		t.Fatalf("unexpected batch/backoff defaults: %+v", cfg)
	}
	if cfg.MetricsAddr != "" {
		t.Fatalf("MetricsAddr = %q, want disabled by default", cfg.MetricsAddr)
	}
}

func TestLoadEdge_MetricsAddr(t *testing.T) {
	setEdgeEnv(t)
	t.Setenv("METRICS_ADDR", ":9100")

	cfg, err := LoadEdge()
	if err != nil {
		t.Fatalf("LoadEdge: %v", err)
	}
	if cfg.MetricsAddr != ":9100" {
		t.Fatalf("MetricsAddr = %q, want :9100", cfg.MetricsAddr)
	}
}

func TestLoadEdge_RejectsPlainHTTPIngest(t *testing.T) {
	setEdgeEnv(t)
	t.Setenv("INGEST_URL", "http://telemetry.example.com")

	if _, err := LoadEdge(); err == nil || !strings.Contains(err.Error(), "https") {
		t.Fatalf("expected https error, got %v", err)
	}
}

func TestLoadEdge_BatchSizeBounds(t *testing.T) {
	setEdgeEnv(t)
	t.Setenv("BATCH_SIZE", "1001")
	if _, err := LoadEdge(); err == nil {
		t.Fatal("BATCH_SIZE over 1000 must be rejected")
	}

	t.Setenv("BATCH_SIZE", "0")
	if _, err := LoadEdge(); err == nil {
		t.Fatal("BATCH_SIZE of 0 must be rejected")
	}
}

func TestValidateIngestURL(t *testing.T) {
	cases := []struct {
		url string
		ok  bool
	}{
		{"https://example.com", true},
		{"https://example.com/base", true},
		{"http://example.com", false},
		{"ftp://example.com", false},
		{"https://", false},
		{"not a url at all ::", false},
		{"", false},
	}
	for _, tc := range cases {
		err := ValidateIngestURL(tc.url)
		if tc.ok && err != nil {
			t.Errorf("ValidateIngestURL(%q) = %v, want nil", tc.url, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidateIngestURL(%q) = nil, want error", tc.url)
		}
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":      "/",
		"/":     "/",
		"v1":    "/v1",
		"/v1":   "/v1",
		"/v1/":  "/v1",
		" /v1 ": "/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
