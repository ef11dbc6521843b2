package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "encounters"
	jobName   = "encounters"
)

// Gate names used as the label of RejectedTotal.
const (
	GateRecency   = "recency"
	GateProximity = "proximity"
	GateCooldown  = "cooldown"
)

// Metrics holds the counters for one run. Each instance owns its registry so
// independent engines do not collide. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	PingsIngested  prometheus.Counter
	UsersTracked   prometheus.Gauge
	Recorded       prometheus.Counter
	RejectedTotal  *prometheus.CounterVec
	IngestDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry:      reg,
		PingsIngested: f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "pings_ingested_total", Help: "Total pings ingested"}),
		UsersTracked:  f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "users_tracked", Help: "Number of users in the population"}),
		Recorded:      f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "recorded_total", Help: "Total encounters recorded"}),
		RejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rejected_total", Help: "Candidate pairs rejected, by failing gate"},
			[]string{"gate"},
		),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent updating state and scanning the population per ping",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
}

func (m *Metrics) ObservePing(users int, took time.Duration) {
	if m == nil {
		return
	}
	m.PingsIngested.Inc()
	m.UsersTracked.Set(float64(users))
	m.IngestDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveEncounter() {
	if m == nil {
		return
	}
	m.Recorded.Inc()
}

func (m *Metrics) ObserveRejected(gate string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(gate).Inc()
}

// Push sends the registry to a Pushgateway, grouped by run id.
func (m *Metrics) Push(ctx context.Context, url, runID string) error {
	if m == nil || url == "" {
		return nil
	}
	return push.New(url, jobName).
		Gatherer(m.Registry).
		Grouping("run_id", runID).
		PushContext(ctx)
}
