package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// levelOff discards all output.
const levelOff = "off"

// parseLevel maps a configured level name to a logrus level. "off" maps to
// PanicLevel; the logger output is discarded in that case.
func parseLevel(s string) (logrus.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case levelOff, "none":
		return logrus.PanicLevel, true
	case "", "error":
		return logrus.ErrorLevel, true
	case "warn", "warning":
		return logrus.WarnLevel, true
	case "info":
		return logrus.InfoLevel, true
	case "debug":
		return logrus.DebugLevel, true
	default:
		return logrus.ErrorLevel, false
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a logrus logger from cfg. When cfg.File is set the log
// is appended to that file, which the returned Closer closes.
func NewLogger(cfg LoggingConfig) (*logrus.Logger, io.Closer, error) {
	level, ok := parseLevel(cfg.Level)
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if cfg.Format == FormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: cfg.File != ""})
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Level), levelOff) || strings.EqualFold(strings.TrimSpace(cfg.Level), "none") {
		logger.SetOutput(io.Discard)
		return logger, nopCloser{}, nil
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nopCloser{}, nil
	}

	path, err := ExpandPath(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger.SetOutput(f)
	return logger, f, nil
}
