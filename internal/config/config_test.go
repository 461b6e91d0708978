package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":5000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":5000")
	}
	if cfg.MaxUploadBytes != 200*1024*1024 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 200*1024*1024)
	}
	if cfg.AllowedOrigin != "http://localhost:3000" {
		t.Fatalf("AllowedOrigin = %q, want localhost:3000", cfg.AllowedOrigin)
	}
	if cfg.DetectorMode != "auto" {
		t.Fatalf("DetectorMode = %q, want %q", cfg.DetectorMode, "auto")
	}
	if cfg.DetectorTimeout != 0 {
		t.Fatalf("DetectorTimeout = %v, want 0 (no timeout)", cfg.DetectorTimeout)
	}
	if cfg.AnalyticsRetention != time.Hour {
		t.Fatalf("AnalyticsRetention = %v, want 1h", cfg.AnalyticsRetention)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("DETECTOR_MAX_CONCURRENCY", "4")
	t.Setenv("DETECTOR_TIMEOUT", "90s")
	t.Setenv("LOG_REPORT_CALLER", "yes")
	t.Setenv("DETECTOR_MODE", "mock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want explicit value", cfg.BindAddr)
	}
	if cfg.DetectorMaxConcurrency != 4 {
		t.Fatalf("DetectorMaxConcurrency = %d, want 4", cfg.DetectorMaxConcurrency)
	}
	if cfg.DetectorTimeout != 90*time.Second {
		t.Fatalf("DetectorTimeout = %v, want 90s", cfg.DetectorTimeout)
	}
	if !cfg.LogReportCaller {
		t.Fatalf("LogReportCaller = false, want true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DETECTOR_MAX_CONCURRENCY": "0",
		"MAX_UPLOAD_BYTES":         "-1",
		"DETECTOR_MODE":            "gpu",
		"ANALYTICS_RETENTION":      "soon",
		"LOG_FORMAT":               "xml",
		"LOG_REPORT_CALLER":        "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%q", key, value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"CORS_ALLOWED_ORIGIN",
		"PROCESSING_DIR",
		"WORKSPACE_ROOT",
		"MAX_UPLOAD_BYTES",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"LOG_REPORT_CALLER",
		"DETECTOR_MODE",
		"DETECTOR_CLI",
		"DETECTOR_MODEL_PATH",
		"DETECTOR_DEVICE",
		"DETECTOR_MAX_CONCURRENCY",
		"DETECTOR_TIMEOUT",
		"ANALYTICS_RETENTION",
		"ANALYTICS_MAX_ENTRIES",
		"ANALYTICS_JANITOR_INTERVAL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
