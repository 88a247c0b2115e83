// Package slogrecorder provides a test helper that captures slog
// records so tests can assert on what a component logged.
package slogrecorder

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Record is one captured log record.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Recorder is a [slog.Handler] that captures every record at every
// level. It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	recs []Record
}

// New returns a fresh Recorder and a logger that writes to it.
func New() (*Recorder, *slog.Logger) {
	r := &Recorder{}
	return r, slog.New(r)
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }
func (r *Recorder) WithAttrs([]slog.Attr) slog.Handler       { return r }
func (r *Recorder) WithGroup(string) slog.Handler            { return r }

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	captured := Record{
		Level:   rec.Level,
		Message: rec.Message,
		Attrs:   make(map[string]string),
	}
	rec.Attrs(func(a slog.Attr) bool {
		captured.Attrs[a.Key] = a.Value.String()
		return true
	})
	r.mu.Lock()
	r.recs = append(r.recs, captured)
	r.mu.Unlock()
	return nil
}

// Records returns a snapshot of all captured records.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.recs)
}

// Find returns the first captured record with the given message, or
// false if none was logged.
func (r *Recorder) Find(message string) (Record, bool) {
	for _, rec := range r.Records() {
		if rec.Message == message {
			return rec, true
		}
	}
	return Record{}, false
}

// Messages returns the messages of all captured records in order.
func (r *Recorder) Messages() []string {
	recs := r.Records()
	msgs := make([]string, len(recs))
	for i, rec := range recs {
		msgs[i] = rec.Message
	}
	return msgs
}
