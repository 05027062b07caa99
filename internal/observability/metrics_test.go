package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.PollStarted()
	m.PollFinished("succeeded", 3)
	m.IncDelivery("delivered")
	m.ObserveAPIRequest("GET", "/healthcheck", 200, time.Millisecond)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus(nil): %v", err)
	}
}

func TestMetricsWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.PollStarted()
	m.PollFinished("abandoned", 20)
	m.IncDelivery("pruned")
	m.IncDelivery("pruned")
	m.IncChangeEvent("http", "triggered")

	if got := m.pollsInflight.Value(); got != 0 {
		t.Fatalf("inflight: want=0 got=%v", got)
	}
	if got := m.deliveries.Value("pruned"); got != 2 {
		t.Fatalf("pruned deliveries: want=2 got=%v", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`jr_poll_outcomes_total{outcome="abandoned"} 1.000000`,
		`jr_poll_attempts_bucket{outcome="abandoned",le="20"} 1`,
		`jr_poll_attempts_bucket{outcome="abandoned",le="13"} 0`,
		`jr_deliveries_total{result="pruned"} 2.000000`,
		`jr_change_events_total{source="http",decision="triggered"} 1.000000`,
		"# TYPE jr_polls_inflight gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLabelStringEscapes(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`})
	want := `{a="x\"y",b="unknown"}`
	if got != want {
		t.Fatalf("labelString: want=%s got=%s", want, got)
	}
}

func TestParseHeaders(t *testing.T) {
	h := ParseHeaders(" api-key = abc , bad, =x ")
	if len(h) != 1 || h["api-key"] != "abc" {
		t.Fatalf("ParseHeaders: got %v", h)
	}
	if ParseHeaders("") != nil {
		t.Fatalf("ParseHeaders(empty): want nil")
	}
}
