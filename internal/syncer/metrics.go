package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the sync counters exposed on /metrics.
type Metrics struct {
	runs         *prometheus.CounterVec
	duration     prometheus.Histogram
	events       *prometheus.GaugeVec
	sourceErrors *prometheus.CounterVec
	lastSuccess  prometheus.Gauge
}

// NewMetrics registers the sync metrics on reg. A nil reg creates them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drivecal",
			Name:      "sync_runs_total",
			Help:      "Week sync runs by result (ok, partial, failed).",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "drivecal",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of a week sync.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		events: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "drivecal",
			Name:      "sync_events",
			Help:      "Events seen in the last sync per source and stage (raw, kept, dropped).",
		}, []string{"source", "stage"}),
		sourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drivecal",
			Name:      "sync_source_errors_total",
			Help:      "Failed fetches per source.",
		}, []string{"source"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "drivecal",
			Name:      "sync_last_success_timestamp_seconds",
			Help:      "Unix time of the last sync with at least one healthy source.",
		}),
	}
}

func (m *Metrics) observe(run *Snapshot, result string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(seconds)
	for _, st := range run.Sources {
		if st.Error != "" {
			m.sourceErrors.WithLabelValues(st.Name).Inc()
			continue
		}
		m.events.WithLabelValues(st.Name, "raw").Set(float64(st.Raw))
		m.events.WithLabelValues(st.Name, "kept").Set(float64(st.Kept))
		m.events.WithLabelValues(st.Name, "dropped").Set(float64(st.Raw - st.Kept))
	}
	if result != resultFailed {
		m.lastSuccess.Set(float64(run.SyncedAt.Unix()))
	}
}
