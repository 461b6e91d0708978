package upload

import (
	"errors"
	"mime/multipart"
	"strings"
	"testing"
)

func TestValidateAcceptsAllowedFormats(t *testing.T) {
	for _, name := range []string{"clip.mp4", "CLIP.MP4", "dive.avi", "reef.Mov", "trench.mkv", "a.b.mkv"} {
		if err := Validate(&multipart.FileHeader{Filename: name, Size: 10}, 0); err != nil {
			t.Fatalf("Validate(%q) error = %v, want nil", name, err)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		header  *multipart.FileHeader
		reason  Reason
		message string
	}{
		{"missing part", nil, ReasonMissing, "No video file provided"},
		{"empty filename", &multipart.FileHeader{Filename: ""}, ReasonMissing, "Invalid filename"},
		{"image", &multipart.FileHeader{Filename: "image.png"}, ReasonUnsupportedFormat, "Unsupported format. Allowed: {.avi, .mkv, .mov, .mp4}"},
		{"no extension", &multipart.FileHeader{Filename: "video"}, ReasonUnsupportedFormat, "Unsupported format. Allowed: "},
		{"too large", &multipart.FileHeader{Filename: "big.mp4", Size: 300 << 20}, ReasonTooLarge, "File too large. Maximum size: 200MB"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.header, 200<<20)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if vErr.Reason != tc.reason {
				t.Fatalf("Reason = %q, want %q", vErr.Reason, tc.reason)
			}
			if !strings.HasPrefix(vErr.Message, tc.message) {
				t.Fatalf("Message = %q, want prefix %q", vErr.Message, tc.message)
			}
		})
	}
}

func TestAllowedFormatsSorted(t *testing.T) {
	got := strings.Join(AllowedFormats(), ",")
	if got != ".avi,.mkv,.mov,.mp4" {
		t.Fatalf("AllowedFormats() = %q", got)
	}
}
