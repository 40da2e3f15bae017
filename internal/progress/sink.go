package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink delivers progress events to whoever is listening
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard drops every event
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// MultiSink delivers each event to all of its sinks. Every sink is tried;
// failures are joined.
type MultiSink []Sink

// Emit implements Sink
func (m MultiSink) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriterSink prints tool output line by line, for terminal use. The start
// and end markers are not printed.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink that writes to w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Emit implements Sink
func (s *WriterSink) Emit(_ context.Context, ev Event) error {
	if ev.Kind != KindLine {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.w, ev.Payload); err != nil {
		return fmt.Errorf("failed to write event %s: %w", ev.Name, err)
	}
	return nil
}

// LogSink records every event at debug level
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging to logger
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink
func (s *LogSink) Emit(ctx context.Context, ev Event) error {
	s.logger.DebugContext(ctx, "progress", "event", ev.Name, "payload", ev.Payload)
	return nil
}

// Recording collects events in memory
type Recording struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink
func (r *Recording) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far
func (r *Recording) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Payloads returns the payloads recorded so far, in order
func (r *Recording) Payloads() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Payload
	}
	return out
}
