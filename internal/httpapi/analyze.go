package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/plastmaid/internal/observability"
	"github.com/ent0n29/plastmaid/internal/pipeline"
	"github.com/ent0n29/plastmaid/internal/session"
	"github.com/ent0n29/plastmaid/internal/upload"
	"github.com/ent0n29/plastmaid/internal/workspace"
)

const (
	uploadField     = "video"
	inputNameFormat = "underwater_footage_%s.mp4"
	outputMediaType = "video/avi"
	genericFailure  = "Processing failed"

	// Room for multipart boundaries and part headers on top of the file itself.
	multipartOverhead = 1 << 20
	formMemory        = 32 << 20
)

type requestState string

const (
	stateReceived       requestState = "RECEIVED"
	stateValidated      requestState = "VALIDATED"
	stateWorkspaceReady requestState = "WORKSPACE_READY"
	stateProcessed      requestState = "PROCESSED"
	stateResponded      requestState = "RESPONDED"
	stateFailed         requestState = "FAILED"
)

type requestTracker struct {
	logger *log.Logger
	state  requestState
}

func (t *requestTracker) to(next requestState) {
	t.logger.Debug("request state", "from", t.state, "to", next)
	t.state = next
}

// trackingWriter remembers whether a response has started so a late panic
// does not try to write a second status line.
type trackingWriter struct {
	http.ResponseWriter
	started bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) ReadFrom(r io.Reader) (int64, error) {
	w.started = true
	return io.Copy(w.ResponseWriter, r)
}

func (w *trackingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (s *Server) handleAnalyze(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sessionID := session.NewID()
	logger := s.logger.With("session", sessionID)
	tracker := &requestTracker{logger: logger, state: stateReceived}
	w := &trackingWriter{ResponseWriter: rw}

	logger.Info("analysis request received", "remote", r.RemoteAddr)

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		tracker.to(stateFailed)
		s.metrics.ObserveRequest("failed")
		logger.Error("request error", "panic", rec)
		if w.started {
			return
		}
		respondError(w, http.StatusInternalServerError, genericFailure, fmt.Sprint(rec))
	}()

	err := s.analyze(w, r, sessionID, start, logger, tracker)
	s.metrics.ObserveStage(observability.StageRequestTotal, time.Since(start))
	if err == nil {
		s.metrics.ObserveRequest("succeeded")
		logger.Info("analysis response sent", "elapsed", time.Since(start).Round(time.Millisecond))
		return
	}

	tracker.to(stateFailed)
	status, body, outcome := classifyError(err)
	s.metrics.ObserveRequest(outcome)
	if outcome == "rejected" {
		logger.Warn("upload rejected", "reason", body.Error)
	} else {
		var pe *pipeline.ProcessingError
		if !errors.As(err, &pe) {
			// Processing errors are already logged by the processor.
			logger.Error("request error", "err", err)
		}
	}
	if w.started {
		return
	}
	respondError(w, status, body.Error, body.Details)
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, sessionID string, start time.Time, logger *log.Logger, tracker *requestTracker) error {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		return uploadParseError(err, s.cfg.MaxUploadBytes)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return uploadParseError(err, s.cfg.MaxUploadBytes)
	}
	defer file.Close()

	if err := upload.Validate(header, s.cfg.MaxUploadBytes); err != nil {
		return err
	}
	tracker.to(stateValidated)

	return s.workspaces.Scope(sessionID, func(ws *workspace.Handle) error {
		defer s.processor.Discard(sessionID)
		tracker.to(stateWorkspaceReady)
		return s.runSession(w, r, ws, file, header.Filename, start, logger, tracker)
	})
}

// runSession saves the upload into ws, runs detection and streams the
// artifact. The caller owns the workspace lifetime.
func (s *Server) runSession(w http.ResponseWriter, r *http.Request, ws *workspace.Handle, file multipart.File, filename string, start time.Time, logger *log.Logger, tracker *requestTracker) error {
	sessionID := ws.SessionID()
	inputPath := ws.Path(fmt.Sprintf(inputNameFormat, sessionID))
	writeStart := time.Now()
	if err := saveUpload(file, inputPath); err != nil {
		return &workspace.Error{Op: "write", Path: inputPath, Err: err}
	}
	s.metrics.ObserveStage(observability.StageUploadWrite, time.Since(writeStart))

	meta, err := session.NewMetadata(sessionID, inputPath, filepath.Ext(filename), start)
	if err != nil {
		return &workspace.Error{Op: "stat", Path: inputPath, Err: err}
	}
	s.metrics.ObserveUpload(meta.FileSize)
	logger.Debug("upload saved", "path", inputPath, "bytes", meta.FileSize, "format", meta.Format)

	artifact, err := s.processor.Process(r.Context(), inputPath, meta)
	if err != nil {
		return err
	}
	tracker.to(stateProcessed)

	out, err := os.Open(artifact)
	if err != nil {
		return pipeline.ArtifactUnavailable(sessionID, err)
	}
	defer out.Close()
	info, err := out.Stat()
	if err != nil {
		return pipeline.ArtifactUnavailable(sessionID, err)
	}

	downloadName := fmt.Sprintf("debris_detection_%s.avi", meta.ShortID())
	h := w.Header()
	h.Set("Content-Type", outputMediaType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	h.Set("X-Session-Id", sessionID)
	if s.analytics != nil {
		if rec, err := s.analytics.Get(sessionID); err == nil {
			h.Set("X-Detection-Count", strconv.Itoa(rec.DetectionCount))
		}
	}
	http.ServeContent(w, r, downloadName, info.ModTime(), out)
	tracker.to(stateResponded)
	return nil
}

func saveUpload(src multipart.File, dst string) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func uploadParseError(err error, maxBytes int64) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		return upload.TooLarge(maxBytes)
	}
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return &upload.ValidationError{Reason: upload.ReasonMissing, Message: "No video file provided"}
	}
	return &upload.ValidationError{Reason: upload.ReasonMissing, Message: "Malformed upload: " + err.Error()}
}

// classifyError maps a failed request to its status code, JSON body and
// metrics outcome label.
func classifyError(err error) (int, errorResponse, string) {
	var ve *upload.ValidationError
	if errors.As(err, &ve) {
		status := http.StatusBadRequest
		if ve.Reason == upload.ReasonTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		return status, errorResponse{Error: ve.Message}, "rejected"
	}
	var pe *pipeline.ProcessingError
	if errors.As(err, &pe) {
		return http.StatusInternalServerError, errorResponse{Error: pe.Message}, "failed"
	}
	return http.StatusInternalServerError, errorResponse{Error: genericFailure, Details: err.Error()}, "failed"
}
