package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for every lumberjack writer created here.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Settings configures the server-wide logger.
// Format is one of "color" (default), "text" or "json".
// When File is set, records are written to stderr and to a rotating file.
type Settings struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds a *slog.Logger from s. The returned closer releases the log file, if any.
func New(s Settings) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	format := strings.ToLower(strings.TrimSpace(s.Format))
	if s.File != "" {
		if err := os.MkdirAll(filepath.Dir(s.File), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		fw := &lj.Logger{
			Filename:   s.File,
			MaxSize:    valOr(s.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(s.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(s.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   s.Compress,
		}
		w = io.MultiWriter(os.Stderr, fw)
		closer = fw
		// escape codes do not belong in files
		if format == "" || format == "color" {
			format = "text"
		}
	}

	var h slog.Handler
	switch format {
	case "", "color":
		h = NewColorTextHandler(w, opts, true)
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", s.Format)
	}
	return slog.New(h), closer, nil
}

// ParseLevel maps a textual level to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// Config describes where a child process's output is persisted in addition to
// the structured log. Files are Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Writers returns rotating writers for stdout and stderr of the named process.
// Both are nil when Dir is empty.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	if c.Dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create process log dir: %w", err)
	}
	return c.rotating(filepath.Join(c.Dir, name+".stdout.log")),
		c.rotating(filepath.Join(c.Dir, name+".stderr.log")), nil
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
