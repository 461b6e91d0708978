package upload

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"sort"
	"strings"
)

type Reason string

const (
	ReasonMissing           Reason = "missing"
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonTooLarge          Reason = "too_large"
)

// ValidationError is returned for uploads that are rejected before any
// processing starts.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var allowedFormats = map[string]struct{}{
	".mp4": {},
	".avi": {},
	".mov": {},
	".mkv": {},
}

// AllowedFormats returns the accepted extensions in sorted order.
func AllowedFormats() []string {
	out := make([]string, 0, len(allowedFormats))
	for ext := range allowedFormats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func IsAllowedFormat(filename string) bool {
	_, ok := allowedFormats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Validate checks the submitted file part. maxBytes <= 0 disables the size check.
func Validate(fh *multipart.FileHeader, maxBytes int64) error {
	if fh == nil {
		return &ValidationError{Reason: ReasonMissing, Message: "No video file provided"}
	}
	if strings.TrimSpace(fh.Filename) == "" {
		return &ValidationError{Reason: ReasonMissing, Message: "Invalid filename"}
	}
	if !IsAllowedFormat(fh.Filename) {
		return &ValidationError{
			Reason:  ReasonUnsupportedFormat,
			Message: fmt.Sprintf("Unsupported format. Allowed: {%s}", strings.Join(AllowedFormats(), ", ")),
		}
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return TooLarge(maxBytes)
	}
	return nil
}

// TooLarge builds the error used when an upload exceeds maxBytes.
func TooLarge(maxBytes int64) *ValidationError {
	return &ValidationError{
		Reason:  ReasonTooLarge,
		Message: fmt.Sprintf("File too large. Maximum size: %dMB", maxBytes/(1024*1024)),
	}
}
