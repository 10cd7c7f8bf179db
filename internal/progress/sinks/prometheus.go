package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/progress-poller/internal/progress"
)

// PrometheusSink exports poll session metrics via Prometheus. It owns the
// collectors for ticks, completed and running sessions, reported progress and
// request latency.
type PrometheusSink struct {
	ticks             *prometheus.CounterVec
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	lastProgress      prometheus.Gauge
	requestDuration   *prometheus.HistogramVec
	sessionRuntime    *prometheus.HistogramVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_poller_ticks_total",
			Help: "Poll ticks partitioned by the stage they produced.",
		}, []string{"stage"}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_poller_sessions_completed_total",
			Help: "Poll sessions that stopped, partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_poller_sessions_running",
			Help: "Current number of polling sessions.",
		}),
		lastProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_poller_last_progress_percent",
			Help: "Most recent progress percentage reported by the server.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_poller_request_duration_seconds",
			Help:    "Progress request latency partitioned by tick stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		}, []string{"stage"}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_poller_session_runtime_seconds",
			Help:    "Wall time per finished poll session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.ticks,
		s.sessionsCompleted,
		s.sessionsRunning,
		s.lastProgress,
		s.requestDuration,
		s.sessionRuntime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register poll collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSessionStart:
		if s.tracker.start(evt.SessionID) {
			s.sessionsRunning.Inc()
		}
		return
	case progress.StageTickUpdate, progress.StageTickFailure:
		s.ticks.WithLabelValues(string(evt.Stage)).Inc()
		if evt.Dur > 0 {
			s.requestDuration.WithLabelValues(string(evt.Stage)).Observe(evt.Dur.Seconds())
		}
		if evt.Stage == progress.StageTickUpdate {
			s.lastProgress.Set(evt.Progress)
		}
		return
	case progress.StageSessionReady, progress.StageSessionError:
		// A ready or error response is itself a tick.
		s.ticks.WithLabelValues(string(evt.Stage)).Inc()
		s.lastProgress.Set(evt.Progress)
	}
	if !evt.Stage.Terminal() {
		return
	}
	result := evt.Stage.Result()
	s.sessionsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.SessionID) {
		s.sessionsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[[16]byte]struct{})}
}

func (t *sessionTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
