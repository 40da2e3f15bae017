package progress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/modshell/internal/process"
	"github.com/schaermu/modshell/internal/testutil"
)

type fakeRecorder struct {
	mu       sync.Mutex
	lines    int
	outcomes []string
}

func (r *fakeRecorder) ObserveLine(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines++
}

func (r *fakeRecorder) ObserveRun(_ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func spawn(t *testing.T, body string) *process.Invocation {
	t.Helper()
	tool := testutil.FakeTool(t, t.TempDir(), "tool", body)
	inv, err := process.NewRunner(testutil.Logger()).WithStderr(io.Discard).Spawn(context.Background(), tool)
	require.NoError(t, err)
	return inv
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "rclone_abc-123", EventName("rclone", "abc-123"))
}

func TestStream_FramesOutput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "three lines",
			body: `echo one; echo two; echo three`,
			want: []string{"start", "one", "two", "three", "end"},
		},
		{
			name: "no output",
			body: `exit 0`,
			want: []string{"start", "end"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Recording{}
			emitter := NewEmitter(rec, testutil.Logger())

			status := emitter.Stream(context.Background(), "rclone", "L1", spawn(t, tt.body), Options{})

			assert.True(t, status.Success())
			assert.Equal(t, tt.want, rec.Payloads())
			for _, ev := range rec.Events() {
				assert.Equal(t, "rclone_L1", ev.Name)
			}
		})
	}
}

func TestStream_PrefixAndOnLine(t *testing.T) {
	rec := &Recording{}
	var seen []string

	NewEmitter(rec, testutil.Logger()).Stream(context.Background(), "rclone", "L", spawn(t, `echo a; echo b`), Options{
		Prefix: "\r",
		OnLine: func(line string) { seen = append(seen, line) },
	})

	assert.Equal(t, []string{"start", "\ra", "\rb", "end"}, rec.Payloads())
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestStream_Trim(t *testing.T) {
	rec := &Recording{}

	NewEmitter(rec, testutil.Logger()).Stream(context.Background(), "psarc", "L", spawn(t, `printf '  packing  \n\tdone\n'`), Options{Trim: true})

	assert.Equal(t, []string{"start", "packing", "done", "end"}, rec.Payloads())
}

func TestStream_SinkFailureDoesNotStopDraining(t *testing.T) {
	var calls int
	failing := SinkFunc(func(context.Context, Event) error {
		calls++
		return errors.New("listener gone")
	})

	status := NewEmitter(failing, testutil.Logger()).Stream(context.Background(), "psarc", "L",
		spawn(t, `i=0; while [ $i -lt 5000 ]; do echo "x $i"; i=$((i+1)); done; exit 2`), Options{})

	assert.Equal(t, 5002, calls)
	assert.Equal(t, 2, status.Code)
}

func TestStream_RecordsLinesAndOutcome(t *testing.T) {
	recorder := &fakeRecorder{}
	emitter := NewEmitter(Discard, testutil.Logger()).WithRecorder(recorder)

	emitter.Stream(context.Background(), "rclone", "L", spawn(t, `echo a; echo b`), Options{})
	emitter.Stream(context.Background(), "rclone", "L", spawn(t, `exit 1`), Options{})

	assert.Equal(t, 2, recorder.lines)
	assert.Equal(t, []string{OutcomeSuccess, OutcomeFailure}, recorder.outcomes)
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name   string
		lines  []string
		status process.ExitStatus
		want   bool
	}{
		{name: "clean run", lines: []string{"Transferred: 3 / 3, 100%"}, want: true},
		{name: "errors line", lines: []string{"Transferred: 1", "Errors: 3"}, want: false},
		{name: "lowercase marker", lines: []string{"there were errors: retrying"}, want: false},
		{name: "word without colon", lines: []string{"no errors found"}, want: true},
		{name: "failed exit", lines: []string{"done"}, status: process.ExitStatus{Code: 1}, want: false},
		{name: "no output", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Verdict
			for _, line := range tt.lines {
				v.Observe(line)
			}
			assert.Equal(t, tt.want, v.Success(tt.status))
		})
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &Recording{}, &Recording{}
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("boom") })

	err := MultiSink{a, failing, b}.Emit(context.Background(), Event{Name: "n", Payload: "p"})

	assert.Error(t, err)
	assert.Equal(t, []string{"p"}, a.Payloads())
	assert.Equal(t, []string{"p"}, b.Payloads())
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	for _, ev := range []Event{
		{Name: "x", Payload: StartMarker, Kind: KindStart},
		{Name: "x", Payload: "hello"},
		{Name: "x", Payload: "world"},
		{Name: "x", Payload: EndMarker, Kind: KindEnd},
	} {
		require.NoError(t, sink.Emit(context.Background(), ev))
	}

	assert.Equal(t, "hello\nworld\n", buf.String())
}

func TestWriterSink_EchoesLinesThatLookLikeMarkers(t *testing.T) {
	var buf bytes.Buffer
	rec := &Recording{}

	NewEmitter(MultiSink{NewWriterSink(&buf), rec}, testutil.Logger()).
		Stream(context.Background(), "psarc", "L", spawn(t, `echo "  start  "; echo end; echo done`), Options{Trim: true})

	assert.Equal(t, "start\nend\ndone\n", buf.String())
	assert.Equal(t, []string{"start", "start", "end", "done", "end"}, rec.Payloads())

	kinds := make([]Kind, 0, 5)
	for _, ev := range rec.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []Kind{KindStart, KindLine, KindLine, KindLine, KindEnd}, kinds)
}
