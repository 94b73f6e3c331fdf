package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronwatch_detection_ticks_total",
		Help: "Detection loop ticks by result (ok, error).",
	}, []string{"result"})

	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cronwatch_detection_tick_duration_seconds",
		Help:    "Wall time of one detection tick.",
		Buckets: prometheus.DefBuckets,
	})

	JobsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cronwatch_detection_jobs_skipped_total",
		Help: "Jobs skipped during a tick because their schedule could not be evaluated.",
	})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronwatch_alerts_raised_total",
		Help: "Alerts created, by type.",
	}, []string{"type"})

	AlertsAcknowledged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cronwatch_alerts_acknowledged_total",
		Help: "Alerts acknowledged.",
	})

	RunEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronwatch_run_events_total",
		Help: "Run ledger events (start, end, ping, implicit_close).",
	}, []string{"event"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cronwatch_events_dropped_total",
		Help: "Push events dropped because an observer's buffer was full.",
	})

	Observers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cronwatch_observers",
		Help: "Currently connected push-channel observers.",
	})

	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cronwatch_info",
		Help: "Build information.",
	}, []string{"version"})
)

// Init records static build information. Safe to call more than once.
func Init(version string) {
	BuildInfo.Reset()
	BuildInfo.WithLabelValues(version).Set(1)
}
