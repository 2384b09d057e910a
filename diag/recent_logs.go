package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogEntry is one buffered log record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

type logBuffer struct {
	mu         sync.Mutex
	entries    []LogEntry
	maxEntries int
}

// RecentLogs is an slog.Handler that keeps the last N records in memory and
// forwards every record to the next handler.
type RecentLogs struct {
	buf    *logBuffer
	next   slog.Handler
	attrs  []slog.Attr
	prefix string
}

// NewRecentLogs wraps next. maxEntries <= 0 means 100.
func NewRecentLogs(next slog.Handler, maxEntries int) *RecentLogs {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RecentLogs{
		buf:  &logBuffer{entries: make([]LogEntry, 0, maxEntries), maxEntries: maxEntries},
		next: next,
	}
}

func (r *RecentLogs) Enabled(ctx context.Context, level slog.Level) bool {
	return r.next.Enabled(ctx, level)
}

func (r *RecentLogs) Handle(ctx context.Context, record slog.Record) error {
	entry := LogEntry{
		Timestamp: record.Time.UTC(),
		Level:     record.Level.String(),
		Message:   record.Message,
	}
	if len(r.attrs) > 0 || record.NumAttrs() > 0 {
		entry.Context = make(map[string]any, len(r.attrs)+record.NumAttrs())
		for _, a := range r.attrs {
			entry.Context[a.Key] = a.Value.Resolve().Any()
		}
		record.Attrs(func(a slog.Attr) bool {
			entry.Context[r.prefix+a.Key] = a.Value.Resolve().Any()
			return true
		})
	}

	r.buf.mu.Lock()
	r.buf.entries = append(r.buf.entries, entry)
	if len(r.buf.entries) > r.buf.maxEntries {
		r.buf.entries = r.buf.entries[len(r.buf.entries)-r.buf.maxEntries:]
	}
	r.buf.mu.Unlock()

	return r.next.Handle(ctx, record)
}

func (r *RecentLogs) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(r.attrs)+len(attrs))
	merged = append(merged, r.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: r.prefix + a.Key, Value: a.Value})
	}
	return &RecentLogs{buf: r.buf, next: r.next.WithAttrs(attrs), attrs: merged, prefix: r.prefix}
}

func (r *RecentLogs) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	return &RecentLogs{buf: r.buf, next: r.next.WithGroup(name), attrs: r.attrs, prefix: r.prefix + name + "."}
}

// Entries returns a copy of the buffered entries, oldest first.
func (r *RecentLogs) Entries() []LogEntry {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	return append([]LogEntry(nil), r.buf.entries...)
}

// Stats counts buffered entries per level.
func (r *RecentLogs) Stats() map[string]int {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()

	stats := map[string]int{"total_count": len(r.buf.entries), "max_entries": r.buf.maxEntries}
	for _, e := range r.buf.entries {
		stats[e.Level]++
	}
	return stats
}
