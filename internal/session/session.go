package session

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// IDLength is the length of a session id: 128 random bits as lowercase hex.
const IDLength = 32

// ShortLength is the id prefix used for output run names and download filenames.
const ShortLength = 8

// NewID returns a fresh opaque session id.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Short returns the first ShortLength characters of id.
func Short(id string) string {
	if len(id) <= ShortLength {
		return id
	}
	return id[:ShortLength]
}

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Metadata describes one upload. Duration, FrameCount and Resolution are not
// measured and stay zero.
type Metadata struct {
	SessionID       string        `json:"session_id"`
	FileSize        int64         `json:"file_size"`
	Duration        time.Duration `json:"duration"`
	FrameCount      int           `json:"frame_count"`
	Resolution      Resolution    `json:"resolution"`
	Format          string        `json:"format"`
	ProcessingStart time.Time     `json:"processing_start"`
}

// NewMetadata builds the metadata for the upload saved at savedPath.
// The file size is taken from the saved file, not from the request.
func NewMetadata(sessionID, savedPath, format string, start time.Time) (Metadata, error) {
	info, err := os.Stat(savedPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("stat saved upload: %w", err)
	}
	return Metadata{
		SessionID:       sessionID,
		FileSize:        info.Size(),
		Format:          format,
		ProcessingStart: start,
	}, nil
}

func (m Metadata) ShortID() string {
	return Short(m.SessionID)
}
