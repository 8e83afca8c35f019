package link

import (
	"context"
	"time"

	"github.com/danz-app/danz/internal/graphql"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "danz_graphql"

// Metrics counts operations and their latency. It is both a Link and a
// prometheus.Collector.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds the collector; register it before serving /metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "GraphQL operations by name, kind and outcome.",
			}, []string{"operation", "kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "GraphQL round trip latency.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			}, []string{"operation", "kind"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.requests.Describe(ch)
	m.duration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.requests.Collect(ch)
	m.duration.Collect(ch)
}

// Execute records one operation.
func (m *Metrics) Execute(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	name := req.Operation.Name
	kind := req.Operation.Kind.String()
	m.duration.WithLabelValues(name, kind).Observe(time.Since(start).Seconds())
	m.requests.WithLabelValues(name, kind, outcome(err)).Inc()
	return resp, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.KindOf(err))
}

var (
	_ Link                 = (*Metrics)(nil)
	_ prometheus.Collector = (*Metrics)(nil)
)
