package pipeline

import "fmt"

type Kind string

const (
	KindDetectorFailure Kind = "detector_failure"
	KindArtifactMissing Kind = "artifact_missing"
)

const msgArtifactMissing = "Processing completed but output not found"

// ProcessingError is returned by Processor.Process. Message is safe to show
// to the caller.
type ProcessingError struct {
	Kind      Kind
	SessionID string
	Message   string
	Err       error
}

func (e *ProcessingError) Error() string { return e.Message }

func (e *ProcessingError) Unwrap() error { return e.Err }

func detectorFailure(sessionID string, err error) *ProcessingError {
	return &ProcessingError{
		Kind:      KindDetectorFailure,
		SessionID: sessionID,
		Message:   err.Error(),
		Err:       err,
	}
}

func artifactMissing(sessionID, dir, ext string) *ProcessingError {
	return &ProcessingError{
		Kind:      KindArtifactMissing,
		SessionID: sessionID,
		Message:   msgArtifactMissing,
		Err:       fmt.Errorf("no %s file under %s", ext, dir),
	}
}

// ArtifactUnavailable reports an artifact that was located but could not be
// opened for the response.
func ArtifactUnavailable(sessionID string, err error) *ProcessingError {
	return &ProcessingError{
		Kind:      KindArtifactMissing,
		SessionID: sessionID,
		Message:   msgArtifactMissing,
		Err:       err,
	}
}
