package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errFound = errors.New("found")

// findArtifact walks root in lexical order and returns the first regular file
// with extension ext. It returns "" when nothing matches.
func findArtifact(root, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ext) {
			found = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", err
	}
	return found, nil
}

// reportedArtifact accepts the detector's own output path only when it is a
// regular file with the right extension inside root.
func reportedArtifact(root, path, ext string) (string, bool) {
	if path == "" || !strings.EqualFold(filepath.Ext(path), ext) {
		return "", false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}
