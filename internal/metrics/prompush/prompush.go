// Package prompush implements metrics.Backend on a private Prometheus
// registry that is pushed to a Pushgateway on Flush. It suits the
// short-lived ingest and report commands, which exit before any scraper
// could see them.
package prompush

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"jobmarket/internal/metrics"
)

type pusher interface {
	Push() error
}

type Backend struct {
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string

	mu     sync.Mutex
	pusher pusher
}

var _ metrics.Flusher = (*Backend)(nil)

// NewBackend registers the jobmarket metric families and prepares a pusher
// for gatewayURL under job.
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: empty gateway url")
	}
	reg := prometheus.NewRegistry()
	b, err := newBackend(reg)
	if err != nil {
		return nil, err
	}
	b.pusher = push.New(gatewayURL, job).Gatherer(reg)
	return b, nil
}

func newBackend(reg prometheus.Registerer) (*Backend, error) {
	b := &Backend{
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		labels:     map[string][]string{},
	}

	counter := func(name, help string, labels ...string) {
		b.counters[name] = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobmarket_" + name, Help: help}, labels)
		b.labels[name] = labels
	}
	histogram := func(name, help string, buckets []float64, labels ...string) {
		b.histograms[name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "jobmarket_" + name, Help: help, Buckets: buckets}, labels)
		b.labels[name] = labels
	}

	counter(metrics.StepTotal, "Pipeline step executions", "step", "status")
	counter(metrics.RecordsTotal, "Records by outcome", "kind")
	counter(metrics.BatchesTotal, "Insert batches written")
	counter(metrics.QueriesTotal, "Catalog query executions", "query", "status")
	counter(metrics.CacheHitsTotal, "Catalog results served from cache", "query")
	histogram(metrics.StepDuration, "Pipeline step duration", prometheus.ExponentialBuckets(0.01, 2, 14), "step", "status")
	histogram(metrics.QueryDuration, "Catalog query duration", prometheus.ExponentialBuckets(0.001, 2, 14), "query", "status")

	for _, c := range b.counters {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}
	for _, h := range b.histograms {
		if err := reg.Register(h); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) values(name string, l metrics.Labels) []string {
	keys := b.labels[name]
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = l[k]
		if out[i] == "" {
			out[i] = "unknown"
		}
	}
	return out
}

func (b *Backend) IncCounter(name string, delta float64, l metrics.Labels) {
	c, ok := b.counters[name]
	if !ok || delta <= 0 {
		return
	}
	c.WithLabelValues(b.values(name, l)...).Add(delta)
}

func (b *Backend) ObserveHistogram(name string, v float64, l metrics.Labels) {
	h, ok := b.histograms[name]
	if !ok || v < 0 {
		return
	}
	h.WithLabelValues(b.values(name, l)...).Observe(v)
}

// Flush pushes the current registry state, replacing the previous push for
// the job.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pusher == nil {
		return nil
	}
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}
