package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ent0n29/plastmaid/internal/logging"
)

const fakeYOLO = `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    source=*) src="${arg#source=}" ;;
    project=*) project="${arg#project=}" ;;
    name=*) name="${arg#name=}" ;;
  esac
done
run="$project/$name"
mkdir -p "$run/labels"
printf '%s\n' "$@" > "$project/args.txt"
base=$(basename "$src")
cp "$src" "$run/${base%.*}.avi"
printf '0 0.5 0.5 0.1 0.1\n0 0.2 0.2 0.1 0.1\n' > "$run/labels/clip_1.txt"
printf '0 0.4 0.4 0.1 0.1\n' > "$run/labels/clip_2.txt"
`

const failingYOLO = `#!/bin/sh
echo "loading model" 
echo "CUDA out of memory" >&2
exit 3
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yolo")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("writing fake yolo: %v", err)
	}
	return path
}

func writeVideo(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(src, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatalf("writing video: %v", err)
	}
	return src
}

func TestCLIDetectorPredict(t *testing.T) {
	bin := writeScript(t, fakeYOLO)
	d := NewCLIDetector(bin, "model.pt", "cpu", logging.Discard())
	project := t.TempDir()
	src := writeVideo(t, t.TempDir())

	res, err := d.Predict(context.Background(), Request{
		Source:     src,
		Confidence: 0.5,
		Save:       true,
		Project:    project,
		Name:       "underwater_scan_deadbeef",
	})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	wantOut := filepath.Join(project, "underwater_scan_deadbeef", "clip.avi")
	if res.OutputPath != wantOut {
		t.Fatalf("OutputPath = %q, want %q", res.OutputPath, wantOut)
	}
	if res.Detections != 3 {
		t.Fatalf("Detections = %d, want 3", res.Detections)
	}

	args, err := os.ReadFile(filepath.Join(project, "args.txt"))
	if err != nil {
		t.Fatalf("reading recorded args: %v", err)
	}
	for _, want := range []string{"predict", "model=model.pt", "conf=0.5", "save=True", "name=underwater_scan_deadbeef", "device=cpu"} {
		if !strings.Contains(string(args), want+"\n") {
			t.Fatalf("args = %q, missing %q", string(args), want)
		}
	}
}

func TestCLIDetectorPredictFailureCarriesStderr(t *testing.T) {
	bin := writeScript(t, failingYOLO)
	d := NewCLIDetector(bin, "model.pt", "cpu", logging.Discard())

	_, err := d.Predict(context.Background(), Request{
		Source:  writeVideo(t, t.TempDir()),
		Project: t.TempDir(),
		Name:    "run",
	})
	if err == nil {
		t.Fatalf("Predict() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("Predict() error = %v, want stderr detail", err)
	}
}

func TestCLIDetectorPredictCanceled(t *testing.T) {
	bin := writeScript(t, fakeYOLO)
	d := NewCLIDetector(bin, "model.pt", "cpu", logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Predict(ctx, Request{Source: writeVideo(t, t.TempDir()), Project: t.TempDir(), Name: "run"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Predict() error = %v, want context.Canceled", err)
	}
}

func TestMockDetectorCopiesSource(t *testing.T) {
	d := NewMockDetector()
	project := t.TempDir()
	src := writeVideo(t, t.TempDir())

	res, err := d.Predict(context.Background(), Request{Source: src, Save: true, Project: project, Name: "run"})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("reading mock output: %v", err)
	}
	if string(data) != "fake video bytes" {
		t.Fatalf("mock output = %q, want copy of source", string(data))
	}
	if filepath.Ext(res.OutputPath) != VideoExt {
		t.Fatalf("OutputPath = %q, want %s container", res.OutputPath, VideoExt)
	}
}

func TestNewDetectorAutoFallsBackToMock(t *testing.T) {
	d, err := NewDetector(Config{
		Mode:      "auto",
		CLIPath:   "/definitely/missing/yolo",
		ModelPath: "missing.pt",
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	if d.Name() != "mock" {
		t.Fatalf("Name() = %q, want mock", d.Name())
	}
}

func TestNewDetectorCLIModeRequiresBinary(t *testing.T) {
	_, err := NewDetector(Config{Mode: "cli", CLIPath: "/definitely/missing/yolo", ModelPath: "m.pt"})
	if err == nil {
		t.Fatalf("NewDetector() error = nil, want missing binary error")
	}
	if _, err := NewDetector(Config{Mode: "onnx"}); err == nil {
		t.Fatalf("NewDetector() error = nil, want unsupported mode error")
	}
}

func TestResolveDevice(t *testing.T) {
	gpuOK := func(context.Context) (*GPUInfo, error) { return &GPUInfo{Name: "Tesla T4", MemoryMB: 15360}, nil }
	gpuMissing := func(context.Context) (*GPUInfo, error) { return nil, errors.New("nvidia-smi: not found") }

	if dev, gpu, _ := resolveDevice(context.Background(), "auto", gpuOK); dev != "0" || gpu == nil {
		t.Fatalf("resolveDevice(auto, gpu) = %q, %v, want 0 with GPU info", dev, gpu)
	}
	if dev, _, err := resolveDevice(context.Background(), "", gpuMissing); dev != "cpu" || err == nil {
		t.Fatalf("resolveDevice(\"\", none) = %q, %v, want cpu with reason", dev, err)
	}
	if dev, _, _ := resolveDevice(context.Background(), "MPS", gpuOK); dev != "mps" {
		t.Fatalf("resolveDevice(MPS) = %q, want explicit override", dev)
	}
}

func TestParseGPUQuery(t *testing.T) {
	gpu, err := parseGPUQuery("Tesla T4, 15360\nTesla T4, 15360\n")
	if err != nil {
		t.Fatalf("parseGPUQuery() error = %v", err)
	}
	if gpu.Name != "Tesla T4" || gpu.MemoryMB != 15360 {
		t.Fatalf("parseGPUQuery() = %+v", gpu)
	}
	if _, err := parseGPUQuery(""); err == nil {
		t.Fatalf("parseGPUQuery(empty) error = nil, want error")
	}
}
