package observability

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics is the relay's in-process Prometheus text registry. All methods are
// nil-safe so callers never check whether metrics are enabled.
type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	pollOutcomes  *CounterVec
	pollAttempts  *HistogramVec
	pollsInflight *Gauge
	deliveries    *CounterVec
	materialized  *CounterVec
	eventsIn      *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Init(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("jr_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"jr_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		pollOutcomes: NewCounterVec("jr_poll_outcomes_total", "Completed poll loops by outcome.", []string{"outcome"}),
		pollAttempts: NewHistogramVec(
			"jr_poll_attempts",
			"Status queries issued per poll loop.",
			[]string{"outcome"},
			[]float64{1, 2, 3, 5, 8, 13, 20, 30},
		),
		pollsInflight: NewGauge("jr_polls_inflight", "Poll loops currently running."),
		deliveries:    NewCounterVec("jr_deliveries_total", "Subscriber deliveries by result.", []string{"result"}),
		materialized:  NewCounterVec("jr_artifacts_total", "Artifact materializations by result.", []string{"result"}),
		eventsIn:      NewCounterVec("jr_change_events_total", "Change events received by source and decision.", []string{"source", "decision"}),
	}
}

func Current() *Metrics {
	return instance
}

func (m *Metrics) ObserveAPIRequest(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) PollStarted() {
	if m == nil {
		return
	}
	m.pollsInflight.Inc()
}

func (m *Metrics) PollFinished(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.pollsInflight.Dec()
	m.pollOutcomes.Inc(outcome)
	m.pollAttempts.Observe(float64(attempts), outcome)
}

// IncDelivery records one subscriber delivery: "delivered", "pruned" or "failed".
func (m *Metrics) IncDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.Inc(result)
}

func (m *Metrics) IncArtifact(result string) {
	if m == nil {
		return
	}
	m.materialized.Inc(result)
}

func (m *Metrics) IncChangeEvent(source, decision string) {
	if m == nil {
		return
	}
	m.eventsIn.Inc(source, decision)
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests,
		m.apiLatency,
		m.pollOutcomes,
		m.pollAttempts,
		m.pollsInflight,
		m.deliveries,
		m.materialized,
		m.eventsIn,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}
