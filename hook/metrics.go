package hook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHook exports gate activity as prometheus metrics
type MetricsHook struct {
	*Base
	outcomes       *prometheus.CounterVec
	sessionsSynced prometheus.Counter
	pushResults    *prometheus.CounterVec
	timeToReady    prometheus.Histogram
	pending        prometheus.Gauge
}

// NewMetricsHook creates the metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetricsHook(reg prometheus.Registerer) (*MetricsHook, error) {
	h := &MetricsHook{
		Base: NewHookBase("metrics"),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchgate",
			Name:      "outcomes_total",
			Help:      "Terminal gate outcomes by kind.",
		}, []string{"outcome"}),
		sessionsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "launchgate",
			Name:      "sessions_synced_total",
			Help:      "Sessions that completed their initial sync while the gate waited.",
		}),
		pushResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchgate",
			Name:      "push_registrations_total",
			Help:      "Push registration results.",
		}, []string{"result"}),
		timeToReady: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "launchgate",
			Name:      "time_to_ready_seconds",
			Help:      "Time from gate start to its terminal transition.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "launchgate",
			Name:      "pending_sessions",
			Help:      "Sessions still waiting for their initial sync.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{h.outcomes, h.sessionsSynced, h.pushResults, h.timeToReady, h.pending} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return h, nil
}

// Provides reports the events that carry metrics
func (h *MetricsHook) Provides(event Event) bool {
	switch event {
	case OnGateStarted, OnSessionSynced, OnPushRegistered, OnPushFallback, OnNavigated, OnLoggedOut:
		return true
	default:
		return false
	}
}

func (h *MetricsHook) OnGateStarted(info GateInfo) error {
	h.pending.Set(float64(info.Pending))
	return nil
}

func (h *MetricsHook) OnSessionSynced(_ string, pending int) error {
	h.sessionsSynced.Inc()
	h.pending.Set(float64(pending))
	return nil
}

func (h *MetricsHook) OnPushRegistered() error {
	h.pushResults.WithLabelValues("registered").Inc()
	return nil
}

func (h *MetricsHook) OnPushFallback(error) error {
	h.pushResults.WithLabelValues("fallback").Inc()
	return nil
}

func (h *MetricsHook) OnNavigated(elapsed time.Duration) error {
	h.outcomes.WithLabelValues("navigated").Inc()
	h.timeToReady.Observe(elapsed.Seconds())
	return nil
}

func (h *MetricsHook) OnLoggedOut(_ ReadyReport, elapsed time.Duration) error {
	h.outcomes.WithLabelValues("logged_out").Inc()
	h.timeToReady.Observe(elapsed.Seconds())
	return nil
}
