package redundancy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
	"github.com/voxalabs/storage-redundancy-engine/metrics"
)

// Collector exports per-provider operation and health metrics on the
// default Prometheus registry.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	health     *prometheus.GaugeVec
}

// NewCollector registers the storage metric families. Registration is
// idempotent so components can be rebuilt without a registry reset.
func NewCollector() *Collector {
	operations := metrics.Register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_operations_total",
		Help: "Count of provider operations by outcome.",
	}, []string{"provider", "operation", "outcome"})).(*prometheus.CounterVec)

	duration := metrics.Register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storage_operation_duration_seconds",
		Help:    "Latency of provider operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})).(*prometheus.HistogramVec)

	health := metrics.Register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storage_provider_health_score",
		Help: "Smoothed provider health score between 0 and 1.",
	}, []string{"provider"})).(*prometheus.GaugeVec)

	return &Collector{operations: operations, duration: duration, health: health}
}

// ObserveOperation records one provider call.
func (c *Collector) ObserveOperation(provider interfaces.ProviderID, operation string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.operations.WithLabelValues(string(provider), operation, outcome).Inc()
	c.duration.WithLabelValues(string(provider), operation).Observe(elapsed.Seconds())
}

// SetHealthScore publishes a provider's current health score.
func (c *Collector) SetHealthScore(provider interfaces.ProviderID, score float64) {
	if c == nil {
		return
	}
	c.health.WithLabelValues(string(provider)).Set(score)
}
