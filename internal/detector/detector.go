package detector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Request describes one prediction run over a video.
type Request struct {
	Source     string
	Confidence float64
	// Save asks the detector to persist the annotated video.
	Save    bool
	Project string
	Name    string
}

// Result is what a run produced. OutputPath is empty when the detector
// could not tell where the annotated video was written.
type Result struct {
	RunDir     string
	OutputPath string
	Detections int
}

// Detector is the object-detection capability the pipeline drives.
type Detector interface {
	Predict(ctx context.Context, req Request) (Result, error)
	Name() string
}

// Config controls detector construction.
type Config struct {
	Mode      string
	CLIPath   string
	ModelPath string
	Device    string
	Logger    *log.Logger
}

func NewDetector(cfg Config) (Detector, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoDetector(cfg)
	case "cli":
		if strings.TrimSpace(cfg.CLIPath) == "" {
			return nil, errors.New("detector CLI path is required for cli mode")
		}
		if strings.TrimSpace(cfg.ModelPath) == "" {
			return nil, errors.New("detector model path is required for cli mode")
		}
		if _, err := exec.LookPath(cfg.CLIPath); err != nil {
			return nil, fmt.Errorf("detector CLI %q not found: %w", cfg.CLIPath, err)
		}
		return NewCLIDetector(cfg.CLIPath, cfg.ModelPath, cfg.Device, cfg.Logger), nil
	case "mock":
		return NewMockDetector(), nil
	default:
		return nil, fmt.Errorf("unsupported detector mode %q", cfg.Mode)
	}
}

func newAutoDetector(cfg Config) (Detector, error) {
	cliPath := strings.TrimSpace(cfg.CLIPath)
	modelPath := strings.TrimSpace(cfg.ModelPath)
	if cliPath != "" && modelPath != "" {
		if _, err := exec.LookPath(cliPath); err == nil {
			if _, err := os.Stat(modelPath); err == nil {
				return NewCLIDetector(cliPath, modelPath, cfg.Device, cfg.Logger), nil
			}
		}
	}
	if cfg.Logger != nil {
		cfg.Logger.Warn("detector CLI or model unavailable, using mock detector", "cli", cliPath, "model", modelPath)
	}
	return NewMockDetector(), nil
}
