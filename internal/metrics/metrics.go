// Package metrics exposes Prometheus collectors for fetches, batch runs and
// the on-demand API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/referencias-work/curator-cli/internal/model"
)

const namespace = "curator"

// Collectors groups every metric the tool emits.
type Collectors struct {
	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Items         *prometheus.CounterVec
	Batches       *prometheus.CounterVec
	Requests      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Outbound requests by result code.",
		}, []string{"code"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Outbound request latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
		}, []string{"code"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch items by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_batches_total",
			Help:      "Persisted batches by mode.",
		}, []string{"mode"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "On-demand API requests by route and status.",
		}, []string{"route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(c.Fetches, c.FetchDuration, c.Items, c.Batches, c.Requests)
	}
	return c
}

// ObserveFetch matches fetcher.Observer. Host is dropped to bound label
// cardinality; HTTP failures collapse to their status class.
func (c *Collectors) ObserveFetch(_ string, code string, elapsed time.Duration) {
	code = collapse(code)
	c.Fetches.WithLabelValues(code).Inc()
	c.FetchDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}

// ItemDone implements batch.Recorder.
func (c *Collectors) ItemDone(mode model.RunMode, outcome model.Outcome) {
	c.Items.WithLabelValues(string(mode), string(outcome)).Inc()
}

// BatchDone implements batch.Recorder.
func (c *Collectors) BatchDone(mode model.RunMode) {
	c.Batches.WithLabelValues(string(mode)).Inc()
}

// ObserveRequest counts one API response.
func (c *Collectors) ObserveRequest(route string, status int) {
	c.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// collapse turns HTTP_404 into HTTP_4xx.
func collapse(code string) string {
	if len(code) == len("HTTP_000") && code[:5] == "HTTP_" {
		return code[:6] + "xx"
	}
	return code
}
