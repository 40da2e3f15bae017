// Package progress turns the output of external tools into ordered progress
// events addressed to a UI listener.
package progress

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/schaermu/modshell/internal/process"
)

// Markers framing every stream of events
const (
	StartMarker = "start"
	EndMarker   = "end"
)

// ErrorsMarker is the case-insensitive substring rclone prints when a
// transfer had failures
const ErrorsMarker = "errors:"

// Run outcomes reported to a Recorder
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Kind tells framing markers apart from tool output
type Kind int

const (
	KindLine Kind = iota
	KindStart
	KindEnd
)

// Event is a single progress notification. Kind is not part of the wire
// format; listeners see the marker payloads.
type Event struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
	Kind    Kind   `json:"-"`
}

// EventName builds the event name a listener subscribes to
func EventName(topic, listenerID string) string {
	return topic + "_" + listenerID
}

// Recorder observes streamed output. A nil Recorder is allowed.
type Recorder interface {
	ObserveLine(topic string)
	ObserveRun(topic, outcome string, d time.Duration)
}

// Options tune a single Stream call
type Options struct {
	// Prefix is prepended to every emitted output line
	Prefix string
	// Trim strips surrounding whitespace from lines before emitting
	Trim bool
	// OnLine sees every line, without Prefix, before it is emitted
	OnLine func(line string)
}

// Emitter forwards tool output to a Sink
type Emitter struct {
	sink     Sink
	logger   *slog.Logger
	recorder Recorder
}

// NewEmitter creates an emitter writing to sink
func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	return &Emitter{
		sink:   sink,
		logger: logger,
	}
}

// WithRecorder attaches a Recorder and returns the emitter
func (e *Emitter) WithRecorder(r Recorder) *Emitter {
	e.recorder = r
	return e
}

// Stream emits "start", every output line of inv in order, then "end", and
// finally waits for the child to be reaped. The start and end markers are
// sent even when the tool prints nothing. Sink failures are logged and
// never interrupt draining the child's output.
func (e *Emitter) Stream(ctx context.Context, topic, listenerID string, inv *process.Invocation, opts Options) process.ExitStatus {
	name := EventName(topic, listenerID)
	started := time.Now()

	e.emit(ctx, Event{Name: name, Payload: StartMarker, Kind: KindStart})
	for line := range inv.Lines() {
		if opts.Trim {
			line = strings.TrimSpace(line)
		}
		if opts.OnLine != nil {
			opts.OnLine(line)
		}
		e.emit(ctx, Event{Name: name, Payload: opts.Prefix + line})
		if e.recorder != nil {
			e.recorder.ObserveLine(topic)
		}
	}
	if err := inv.Err(); err != nil {
		e.logger.WarnContext(ctx, "output stream ended early", "event", name, "error", err)
	}
	e.emit(ctx, Event{Name: name, Payload: EndMarker, Kind: KindEnd})

	status := inv.Wait()
	if e.recorder != nil {
		outcome := OutcomeSuccess
		if !status.Success() {
			outcome = OutcomeFailure
		}
		e.recorder.ObserveRun(topic, outcome, time.Since(started))
	}
	return status
}

func (e *Emitter) emit(ctx context.Context, ev Event) {
	if err := e.sink.Emit(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "failed to emit progress", "event", ev.Name, "error", err)
	}
}

// Verdict derives success of a tool run from its output text and exit
// status. The exit status is authoritative when it reports failure; the
// text check catches tools that exit zero after printing errors.
type Verdict struct {
	reportedErrors bool
}

// Observe inspects one output line
func (v *Verdict) Observe(line string) {
	if strings.Contains(strings.ToLower(line), ErrorsMarker) {
		v.reportedErrors = true
	}
}

// ReportedErrors is true once any observed line contained ErrorsMarker
func (v *Verdict) ReportedErrors() bool {
	return v.reportedErrors
}

// Success combines the text heuristic with the exit status
func (v *Verdict) Success(status process.ExitStatus) bool {
	return !v.reportedErrors && status.Success()
}
