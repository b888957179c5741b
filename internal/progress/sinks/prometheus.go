package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/a11y-tracker/internal/progress"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// PrometheusSink exports run metrics. It owns its collectors so tests can
// register them on a private registry.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsCompleted  *prometheus.CounterVec
	runsRunning    prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	runFailures    *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec

	running *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a11y_runs_started_total",
			Help: "Site runs that acquired the run lock.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11y_runs_completed_total",
			Help: "Site runs finished, by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "a11y_runs_running",
			Help: "Site runs currently holding the lock.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a11y_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a11y_stage_duration_seconds",
			Help:    "Time spent before entering each stage.",
			Buckets: []float64{0.1, 1, 5, 30, 120, 600, 1800, 3600},
		}, []string{"stage"}),
		runFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11y_run_failures_total",
			Help: "Failed runs by failing stage.",
		}, []string{"stage"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11y_records_published_total",
			Help: "Records published per site.",
		}, []string{"site"}),
		running: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.stageDuration,
		s.runFailures,
		s.recordsWritten,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register run collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	if evt.Stage == tracker.StageLocked && !evt.Final() {
		s.runsStarted.Inc()
		if s.running.start(evt.RunID) {
			s.runsRunning.Inc()
		}
		return
	}
	if !evt.Final() {
		if evt.Dur > 0 {
			s.stageDuration.WithLabelValues(string(evt.Stage)).Observe(evt.Dur.Seconds())
		}
		return
	}
	result := string(evt.Status)
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	switch evt.Status {
	case tracker.StatusFailed:
		s.runFailures.WithLabelValues(string(evt.FailedStage)).Inc()
	case tracker.StatusSuccess:
		site := evt.Site
		if site == "" {
			site = "unknown"
		}
		s.recordsWritten.WithLabelValues(site).Add(float64(evt.Records))
	}
	if s.running.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
