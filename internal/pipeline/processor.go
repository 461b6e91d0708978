package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/ent0n29/plastmaid/internal/detector"
	"github.com/ent0n29/plastmaid/internal/observability"
	"github.com/ent0n29/plastmaid/internal/session"
)

// ConfidenceThreshold is the minimum box score kept by the detector.
const ConfidenceThreshold = 0.5

const runNamePrefix = "underwater_scan_"

// Recorder receives per-session analytics.
type Recorder interface {
	RecordProcessingTime(sessionID string, d time.Duration)
	RecordDetection(sessionID string, count int)
}

type Config struct {
	// WorkDir holds one session_<id> output directory per running session.
	WorkDir         string
	MaxConcurrent   int
	DetectorTimeout time.Duration
	ArtifactExt     string
}

type AdmissionStats struct {
	Capacity int64 `json:"capacity"`
	InFlight int64 `json:"in_flight"`
	Waiting  int64 `json:"waiting"`
}

// Processor runs the detector over one saved upload and finds the annotated video.
type Processor struct {
	detector    detector.Detector
	recorder    Recorder
	metrics     *observability.Metrics
	logger      *log.Logger
	workDir     string
	artifactExt string
	timeout     time.Duration

	sem      *semaphore.Weighted
	capacity int64
	inflight atomic.Int64
	waiting  atomic.Int64
}

func NewProcessor(cfg Config, det detector.Detector, recorder Recorder, metrics *observability.Metrics, logger *log.Logger) *Processor {
	capacity := int64(cfg.MaxConcurrent)
	if capacity <= 0 {
		capacity = 1
	}
	ext := cfg.ArtifactExt
	if ext == "" {
		ext = detector.VideoExt
	}
	return &Processor{
		detector:    det,
		recorder:    recorder,
		metrics:     metrics,
		logger:      logger,
		workDir:     cfg.WorkDir,
		artifactExt: ext,
		timeout:     cfg.DetectorTimeout,
		sem:         semaphore.NewWeighted(capacity),
		capacity:    capacity,
	}
}

// SessionDir is the detector output directory for sessionID.
func (p *Processor) SessionDir(sessionID string) string {
	return filepath.Join(p.workDir, "session_"+sessionID)
}

func RunName(sessionID string) string {
	return runNamePrefix + session.Short(sessionID)
}

func (p *Processor) Admission() AdmissionStats {
	return AdmissionStats{
		Capacity: p.capacity,
		InFlight: p.inflight.Load(),
		Waiting:  p.waiting.Load(),
	}
}

// Process runs detection for one session and returns the absolute path of the
// annotated video. Every failure is a *ProcessingError and is logged here.
func (p *Processor) Process(ctx context.Context, videoPath string, meta session.Metadata) (string, error) {
	logger := p.logger.With("session", meta.SessionID)
	start := time.Now()
	logger.Info("processing session", "video", videoPath, "size", meta.FileSize, "format", meta.Format)

	artifact, err := p.process(ctx, logger, videoPath, meta.SessionID, start)
	if err != nil {
		logger.Error("processing error", "err", err, "cause", errors.Unwrap(err))
		return "", err
	}
	logger.Info("processing complete", "artifact", artifact, "elapsed", time.Since(start).Round(time.Millisecond))
	return artifact, nil
}

func (p *Processor) process(ctx context.Context, logger *log.Logger, videoPath, sessionID string, start time.Time) (string, error) {
	outDir := p.SessionDir(sessionID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", detectorFailure(sessionID, fmt.Errorf("create session output dir: %w", err))
	}

	res, err := p.runDetector(ctx, detector.Request{
		Source:     videoPath,
		Confidence: ConfidenceThreshold,
		Save:       true,
		Project:    outDir,
		Name:       RunName(sessionID),
	})
	if err != nil {
		return "", detectorFailure(sessionID, err)
	}

	elapsed := time.Since(start)
	p.recorder.RecordProcessingTime(sessionID, elapsed)
	p.recorder.RecordDetection(sessionID, res.Detections)
	p.metrics.ObserveProcessing(elapsed, res.Detections)
	logger.Info("detector finished", "detector", p.detector.Name(), "detections", res.Detections, "elapsed", elapsed.Round(time.Millisecond))

	locateStart := time.Now()
	defer func() { p.metrics.ObserveStage(observability.StageLocateArtifact, time.Since(locateStart)) }()

	found, ok := reportedArtifact(outDir, res.OutputPath, p.artifactExt)
	if !ok {
		found, err = findArtifact(outDir, p.artifactExt)
		if err != nil {
			return "", detectorFailure(sessionID, fmt.Errorf("search output: %w", err))
		}
		if found == "" {
			return "", artifactMissing(sessionID, outDir, p.artifactExt)
		}
	}
	abs, err := filepath.Abs(found)
	if err != nil {
		return "", detectorFailure(sessionID, err)
	}
	return abs, nil
}

// runDetector holds an admission slot for the duration of the call. Waiting
// for a slot follows ctx; the detector run itself is not cancelled by the
// caller going away, only by the optional timeout.
func (p *Processor) runDetector(ctx context.Context, req detector.Request) (detector.Result, error) {
	waitStart := time.Now()
	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return detector.Result{}, fmt.Errorf("waiting for detector slot: %w", err)
	}
	defer p.sem.Release(1)
	p.metrics.ObserveAdmissionWait(time.Since(waitStart))

	p.inflight.Add(1)
	p.metrics.DetectorStarted()
	defer func() {
		p.inflight.Add(-1)
		p.metrics.DetectorFinished()
	}()

	dctx := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, p.timeout)
		defer cancel()
	}

	detectStart := time.Now()
	res, err := p.detector.Predict(dctx, req)
	p.metrics.ObserveStage(observability.StageDetect, time.Since(detectStart))
	return res, err
}

// Discard removes the session output directory. Failures are logged only.
func (p *Processor) Discard(sessionID string) {
	dir := p.SessionDir(sessionID)
	if err := os.RemoveAll(dir); err != nil {
		p.logger.Error("session output cleanup failed", "session", sessionID, "dir", dir, "err", err)
	}
}
