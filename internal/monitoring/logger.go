// Package monitoring builds the service logger.
package monitoring

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Options describes where and how verbosely to log
type Options struct {
	// Level name, case insensitive. WARNING and CRITICAL are accepted as well
	Level string
	// Append logs to this file when not empty
	LogFile string
	// Print human readable logs to stdout
	ConsoleOutput bool
}

// ParseLevel converts level name to zerolog level
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	case "":
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "unknown log level %q", name)
	}
	return level, nil
}

// NewZerolog creates timestamped logger writing to w
func NewZerolog(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NewLogger creates logger from options. Returned closer releases the log file (no-op otherwise).
func NewLogger(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	writers := make([]io.Writer, 0, 2)
	var closer io.Closer = nopCloser{}
	if opts.ConsoleOutput {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, errors.Wrapf(err, "can't create log directory for %s", opts.LogFile)
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, errors.Wrapf(err, "can't open log file %s", opts.LogFile)
		}
		writers = append(writers, f)
		closer = f
	}
	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}
	return NewZerolog(zerolog.MultiLevelWriter(writers...), level), closer, nil
}

// ForCamera derives child logger tagged with camera name and tracker id
func ForCamera(logger zerolog.Logger, camera, trackerID string) zerolog.Logger {
	return logger.With().
		Str("camera", camera).
		Str("tracker_id", trackerID).
		Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
