// Package activity keeps a human-readable trail of what players and operators did.
package activity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink records friendly-text events. Recording is best-effort: a Sink never
// reports failure to the caller.
type Sink interface {
	Record(ctx context.Context, actorID, description string, extra ...string)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(context.Context, string, string, ...string) {}

// Log writes one text line per event through slog.
type Log struct {
	mu     sync.Mutex
	logger *slog.Logger
	closer io.Closer
}

// NewLog writes events to w.
func NewLog(w io.Writer) *Log {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				return slog.Attr{}
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.DateTime))
				}
			}
			return a
		},
	})
	return &Log{logger: slog.New(h)}
}

// OpenFile appends events to path, creating parent directories as needed.
func OpenFile(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create activity log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	l := NewLog(f)
	l.closer = f
	return l, nil
}

func (l *Log) Record(ctx context.Context, actorID, description string, extra ...string) {
	args := []any{"actor", actorID}
	if len(extra) > 0 {
		args = append(args, "extra", extra)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.InfoContext(ctx, description, args...)
}

// Close releases the underlying file, if any.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
