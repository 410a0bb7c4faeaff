package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ztorgb"

// Metrics counts rendered images and cache usage.
type Metrics struct {
	Renders       *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	RenderSeconds *prometheus.HistogramVec
}

// NewMetrics creates service metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "render",
				Name:      "total",
				Help:      "Total number of rendered images.",
			},
			[]string{"kind", "profile"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of images served from cache.",
			},
			[]string{"kind"},
		),
		RenderSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "render",
				Name:      "duration_seconds",
				Help:      "Time spent rendering images.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"kind"},
		),
	}
}

// observe records one render of the given kind. It is safe to call on nil.
func (m *Metrics) observe(kind, profile string, start time.Time) {
	if m == nil {
		return
	}
	m.Renders.WithLabelValues(kind, profile).Inc()
	m.RenderSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) hit(kind string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(kind).Inc()
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Renders.Describe(ch)
	m.CacheHits.Describe(ch)
	m.RenderSeconds.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Renders.Collect(ch)
	m.CacheHits.Collect(ch)
	m.RenderSeconds.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Metrics)(nil)
)
