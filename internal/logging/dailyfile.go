package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DailyFile is an io.Writer appending to <dir>/<prefix>_YYYYMMDD.log.
// It switches to a new file the first time it is written on a new local date.
type DailyFile struct {
	mu     sync.Mutex
	dir    string
	prefix string
	now    func() time.Time
	day    string
	file   *os.File
}

func OpenDailyFile(dir, prefix string) (*DailyFile, error) {
	return openDailyFile(dir, prefix, time.Now)
}

func openDailyFile(dir, prefix string, now func() time.Time) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %q: %w", dir, err)
	}
	d := &DailyFile{dir: dir, prefix: prefix, now: now}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.rotateLocked(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil || d.now().Format("20060102") != d.day {
		if err := d.rotateLocked(); err != nil {
			return 0, err
		}
	}
	return d.file.Write(p)
}

// Path returns the file currently being written.
func (d *DailyFile) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pathFor(d.day)
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *DailyFile) rotateLocked() error {
	day := d.now().Format("20060102")
	f, err := os.OpenFile(d.pathFor(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if d.file != nil {
		_ = d.file.Close()
	}
	d.file = f
	d.day = day
	return nil
}

func (d *DailyFile) pathFor(day string) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s_%s.log", d.prefix, day))
}
