// Package metrics exposes proxy counters to prometheus. A nil *Metrics is a
// valid receiver that records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediaproxy"

// Stages observed by the request duration histogram.
const (
	StageFetch     = "fetch"
	StageDecode    = "decode"
	StageTransform = "transform"
	StageEncode    = "encode"
	StageTotal     = "total"
)

type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	fetched  prometheus.Counter
	errors   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Proxy requests by preset and outcome.",
		}, []string{"preset", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage"}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Bytes downloaded from upstream.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed requests by error kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.fetched, m.errors} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register collector")
		}
	}
	return m, nil
}

// Request counts a finished request.
func (m *Metrics) Request(preset, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(preset, outcome).Inc()
}

// Observe records how long a stage took.
func (m *Metrics) Observe(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(stage).Observe(d.Seconds())
}

// Fetched adds n downloaded bytes.
func (m *Metrics) Fetched(n int) {
	if m == nil {
		return
	}
	m.fetched.Add(float64(n))
}

// Error counts a failure of the given kind.
func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
