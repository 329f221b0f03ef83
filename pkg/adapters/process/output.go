package process

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// lineWriter logs every complete line written to it.
type lineWriter struct {
	logger *slog.Logger
	level  slog.Level

	mu   sync.Mutex
	buf  bytes.Buffer
	last string
}

func newLineWriter(logger *slog.Logger, stream string, level slog.Level) *lineWriter {
	return &lineWriter{logger: logger.With("stream", stream), level: level}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line, keep it for the next write.
			w.buf.Write(line)
			break
		}
		w.emit(string(bytes.TrimRight(line, "\r\n")))
	}
	return len(p), nil
}

// Flush logs a trailing line without newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// Last returns the last line written, used to explain failures.
func (w *lineWriter) Last() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *lineWriter) emit(line string) {
	if line == "" {
		return
	}
	w.last = line
	w.logger.Log(context.Background(), w.level, line)
}
