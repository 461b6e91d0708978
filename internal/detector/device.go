package detector

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type GPUInfo struct {
	Name     string
	MemoryMB int
}

type gpuProber func(ctx context.Context) (*GPUInfo, error)

func resolveDevice(ctx context.Context, requested string, probe gpuProber) (string, *GPUInfo, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested != "" && requested != "auto" {
		return requested, nil, nil
	}
	gpu, err := probe(ctx)
	if err != nil {
		return "cpu", nil, err
	}
	return "0", gpu, nil
}

func probeGPU(ctx context.Context) (*GPUInfo, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseGPUQuery(string(out))
}

func parseGPUQuery(raw string) (*GPUInfo, error) {
	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return nil, errors.New("no GPU reported")
	}
	name, mem, ok := strings.Cut(line, ",")
	if !ok {
		return nil, fmt.Errorf("unexpected nvidia-smi output %q", line)
	}
	memMB, err := strconv.Atoi(strings.TrimSpace(mem))
	if err != nil {
		return nil, fmt.Errorf("parse GPU memory %q: %w", mem, err)
	}
	return &GPUInfo{Name: strings.TrimSpace(name), MemoryMB: memMB}, nil
}
