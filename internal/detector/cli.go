package detector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// VideoExt is the container the CLI writes annotated videos in.
const VideoExt = ".avi"

// CLIDetector runs `yolo predict` as a subprocess.
type CLIDetector struct {
	binaryPath string
	modelPath  string
	device     string
	logger     *log.Logger
}

// NewCLIDetector resolves the compute device once. device "auto" (or empty)
// probes for a GPU and falls back to cpu.
func NewCLIDetector(binaryPath, modelPath, device string, logger *log.Logger) *CLIDetector {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resolved, gpu, err := resolveDevice(ctx, device, probeGPU)
	if logger != nil {
		switch {
		case gpu != nil:
			logger.Info(fmt.Sprintf("GPU Detected: %s (%dMB)", gpu.Name, gpu.MemoryMB), "device", resolved)
		case err != nil:
			logger.Info("no GPU available, using cpu", "reason", err)
		default:
			logger.Info("detector device selected", "device", resolved)
		}
	}
	return &CLIDetector{
		binaryPath: strings.TrimSpace(binaryPath),
		modelPath:  strings.TrimSpace(modelPath),
		device:     resolved,
		logger:     logger,
	}
}

func (d *CLIDetector) Name() string   { return "yolo-cli" }
func (d *CLIDetector) Device() string { return d.device }

func (d *CLIDetector) Predict(ctx context.Context, req Request) (Result, error) {
	cmd := exec.CommandContext(ctx, d.binaryPath, d.args(req)...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// exec.CommandContext may surface "signal: killed" instead of context cancellation.
			return Result{}, ctx.Err()
		}
		errText := lastLine(stderr.String())
		if errText == "" {
			errText = lastLine(stdout.String())
		}
		if errText != "" {
			return Result{}, fmt.Errorf("yolo predict failed: %w: %s", err, errText)
		}
		return Result{}, fmt.Errorf("yolo predict failed: %w", err)
	}

	runDir := filepath.Join(req.Project, req.Name)
	res := Result{RunDir: runDir}

	stem := strings.TrimSuffix(filepath.Base(req.Source), filepath.Ext(req.Source))
	candidate := filepath.Join(runDir, stem+VideoExt)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		res.OutputPath = candidate
	}

	n, err := countLabelLines(filepath.Join(runDir, "labels"))
	if err != nil && d.logger != nil {
		d.logger.Warn("could not count detections", "run", runDir, "err", err)
	}
	res.Detections = n
	return res, nil
}

func (d *CLIDetector) args(req Request) []string {
	return []string{
		"predict",
		"model=" + d.modelPath,
		"source=" + req.Source,
		"conf=" + strconv.FormatFloat(req.Confidence, 'f', -1, 64),
		"save=" + pyBool(req.Save),
		"save_txt=True",
		"project=" + req.Project,
		"name=" + req.Name,
		"exist_ok=True",
		"device=" + d.device,
	}
}

// countLabelLines sums the lines of every per-frame label file; each line is
// one detected box.
func countLabelLines(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	total := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return total, err
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) != "" {
				total++
			}
		}
		err = sc.Err()
		_ = f.Close()
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func pyBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
