package detector

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MockDetector stands in for the model in local development. It "annotates"
// a video by copying it into the run directory.
// MockName is the Name reported by MockDetector.
const MockName = "mock"

type MockDetector struct{}

func NewMockDetector() *MockDetector { return &MockDetector{} }

func (d *MockDetector) Name() string { return MockName }

func (d *MockDetector) Predict(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	runDir := filepath.Join(req.Project, req.Name)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("mock detector: %w", err)
	}
	res := Result{RunDir: runDir}
	if !req.Save {
		return res, nil
	}

	stem := strings.TrimSuffix(filepath.Base(req.Source), filepath.Ext(req.Source))
	out := filepath.Join(runDir, stem+VideoExt)
	if err := copyFile(req.Source, out); err != nil {
		return Result{}, fmt.Errorf("mock detector: %w", err)
	}
	res.OutputPath = out
	return res, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
