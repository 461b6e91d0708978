package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxUploadBytes is the largest accepted upload (200 MiB).
const DefaultMaxUploadBytes int64 = 200 * 1024 * 1024

// Config contains all runtime settings for the debris detection service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// AllowedOrigin is the single origin allowed to call the analyze route cross-site.
	AllowedOrigin string

	ProcessingDir  string
	WorkspaceRoot  string
	MaxUploadBytes int64

	LogLevel        string
	LogFormat       string
	LogReportCaller bool

	DetectorMode           string
	DetectorCLI            string
	DetectorModelPath      string
	DetectorDevice         string
	DetectorMaxConcurrency int
	DetectorTimeout        time.Duration

	AnalyticsRetention       time.Duration
	AnalyticsMaxEntries      int
	AnalyticsJanitorInterval time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":5000"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "plastmaid"),
		AllowedOrigin:     envOrDefault("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		ProcessingDir:     envOrDefault("PROCESSING_DIR", "marine_debris_processing"),
		WorkspaceRoot:     stringsTrimSpace("WORKSPACE_ROOT"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("LOG_FORMAT", "text"),
		DetectorMode:      envOrDefault("DETECTOR_MODE", "auto"),
		DetectorCLI:       envOrDefault("DETECTOR_CLI", "yolo"),
		DetectorModelPath: envOrDefault("DETECTOR_MODEL_PATH", "trash_mbari_09072023_640imgsz_50epochs_yolov8.pt"),
		// "auto" probes for a GPU once at startup and falls back to cpu.
		DetectorDevice:           envOrDefault("DETECTOR_DEVICE", "auto"),
		DetectorMaxConcurrency:   2,
		MaxUploadBytes:           DefaultMaxUploadBytes,
		ShutdownTimeout:          15 * time.Second,
		AnalyticsRetention:       time.Hour,
		AnalyticsMaxEntries:      10000,
		AnalyticsJanitorInterval: time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LogReportCaller, err = boolFromEnv("LOG_REPORT_CALLER", cfg.LogReportCaller)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes, err = int64FromEnv("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.DetectorMaxConcurrency, err = intFromEnv("DETECTOR_MAX_CONCURRENCY", cfg.DetectorMaxConcurrency)
	if err != nil {
		return Config{}, err
	}
	cfg.DetectorTimeout, err = durationFromEnv("DETECTOR_TIMEOUT", cfg.DetectorTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalyticsRetention, err = durationFromEnv("ANALYTICS_RETENTION", cfg.AnalyticsRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalyticsMaxEntries, err = intFromEnv("ANALYTICS_MAX_ENTRIES", cfg.AnalyticsMaxEntries)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalyticsJanitorInterval, err = durationFromEnv("ANALYTICS_JANITOR_INTERVAL", cfg.AnalyticsJanitorInterval)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.DetectorMaxConcurrency <= 0 {
		return Config{}, fmt.Errorf("DETECTOR_MAX_CONCURRENCY must be positive")
	}
	if cfg.DetectorTimeout < 0 {
		return Config{}, fmt.Errorf("DETECTOR_TIMEOUT must be >= 0")
	}
	if cfg.AnalyticsRetention < time.Second {
		return Config{}, fmt.Errorf("ANALYTICS_RETENTION must be at least 1s")
	}
	if cfg.AnalyticsMaxEntries <= 0 {
		return Config{}, fmt.Errorf("ANALYTICS_MAX_ENTRIES must be positive")
	}
	if strings.TrimSpace(cfg.ProcessingDir) == "" {
		return Config{}, fmt.Errorf("PROCESSING_DIR must not be empty")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json", "logfmt":
	default:
		return Config{}, fmt.Errorf("invalid LOG_FORMAT: %q (expected text|json|logfmt)", cfg.LogFormat)
	}
	switch strings.ToLower(cfg.DetectorMode) {
	case "auto", "cli", "mock":
	default:
		return Config{}, fmt.Errorf("invalid DETECTOR_MODE: %q (expected auto|cli|mock)", cfg.DetectorMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
