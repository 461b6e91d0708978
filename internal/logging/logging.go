// Package logging builds the process-wide log sink. It is created once in main
// and handed to every component that writes log lines.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	TimeFormat = "2006-01-02 15:04:05"
	FilePrefix = "debris_tracking"
)

type Options struct {
	// Dir receives the daily date-stamped log file. Empty disables the file copy.
	Dir          string
	Level        string
	Format       string
	ReportCaller bool
	// Console defaults to os.Stderr.
	Console io.Writer
}

// New returns a leveled, timestamped logger writing to the console and,
// when Dir is set, duplicated into the daily log file. The returned closer
// releases the file and is never nil.
func New(opts Options) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var (
		out    io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if strings.TrimSpace(opts.Dir) != "" {
		file, err := OpenDailyFile(opts.Dir, FilePrefix)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(console, file)
		closer = file
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		ReportCaller:    opts.ReportCaller,
		Formatter:       formatter(opts.Format),
	})
	return logger, closer, nil
}

// Discard returns a logger that drops everything; handy for tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func formatter(name string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
