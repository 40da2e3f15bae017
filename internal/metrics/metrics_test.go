package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"

	"github.com/schaermu/modshell/internal/metadata"
	"github.com/schaermu/modshell/internal/progress"
)

// Collector satisfies the recorder hooks of both instrumented packages.
var (
	_ metadata.Recorder = (*Collector)(nil)
	_ progress.Recorder = (*Collector)(nil)
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%q): %v", labels, err)
	}
	var metric io_prometheus_client.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	c.ObserveLookup("hit")
	c.ObserveChecksum(time.Millisecond)
	c.ObserveLine("rclone")
	c.ObserveRun("rclone", "success", time.Second)
}

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveLookup("hit")
	c.ObserveLookup("hit")
	c.ObserveLookup("miss")
	c.ObserveLine("rclone")
	c.ObserveLine("rclone")
	c.ObserveLine("psarc")
	c.ObserveRun("rclone", "success", 2*time.Second)
	c.ObserveRun("rclone", "failure", time.Second)
	c.ObserveRun("rclone", "success", time.Second)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"lookups hit", counterValue(t, c.Lookups, "hit"), 2},
		{"lookups miss", counterValue(t, c.Lookups, "miss"), 1},
		{"lines rclone", counterValue(t, c.Lines, "rclone"), 2},
		{"lines psarc", counterValue(t, c.Lines, "psarc"), 1},
		{"runs rclone success", counterValue(t, c.Runs, "rclone", "success"), 2},
		{"runs rclone failure", counterValue(t, c.Runs, "rclone", "failure"), 1},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s = %f, want %f", ch.name, ch.got, ch.want)
		}
	}
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	c := New(reg)
	c.ObserveLookup("stale")
	c.ObserveChecksum(20 * time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`modshell_cache_lookups_total{result="stale"} 1`,
		"modshell_checksum_duration_seconds_count 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
