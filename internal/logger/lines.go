package logger

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// maxLine bounds how much unterminated output is buffered before it is emitted anyway.
const maxLine = 64 << 10

// LineWriter turns a byte stream (a child's stdout or stderr) into one slog
// record per line at a fixed level. It is safe for concurrent use.
type LineWriter struct {
	mu    sync.Mutex
	log   *slog.Logger
	level slog.Level
	buf   []byte
}

func NewLineWriter(l *slog.Logger, level slog.Level) *LineWriter {
	if l == nil {
		l = slog.Default()
	}
	return &LineWriter{log: l, level: level}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	w.log.Log(context.Background(), w.level, string(line))
}
