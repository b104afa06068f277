package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "licenselink"
	Subsystem = "linking"
)

// Metrics holds the linking collectors. A nil *Metrics records nothing.
type Metrics struct {
	RebuildDuration  prometheus.Histogram
	RebuildsTotal    *prometheus.CounterVec
	LastRebuildLinks *prometheus.GaugeVec
	LinkOneTotal     *prometheus.CounterVec
	ExcludedRecords  *prometheus.CounterVec
	EventsReceived   prometheus.Counter
	EventsPublished  *prometheus.CounterVec
}

// New registers the collectors on reg, or on the default registerer when reg
// is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RebuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of full link rebuilds in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		RebuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "rebuilds_total",
			Help:      "Full link rebuilds by result",
		}, []string{"result"}),
		LastRebuildLinks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "last_rebuild_links",
			Help:      "Links written by the last full rebuild, by confidence",
		}, []string{"confidence"}),
		LinkOneTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "link_one_total",
			Help:      "Incremental link requests by result",
		}, []string{"result"}),
		ExcludedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "excluded_records_total",
			Help:      "Records left out of matching, by reason",
		}, []string{"reason"}),
		EventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "events_received_total",
			Help:      "Record-inserted events consumed from the bus",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "events_published_total",
			Help:      "Record-inserted events published, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveRebuild(elapsed time.Duration, err error, high, medium int) {
	if m == nil {
		return
	}
	m.RebuildDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.RebuildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RebuildsTotal.WithLabelValues("ok").Inc()
	m.LastRebuildLinks.WithLabelValues("high").Set(float64(high))
	m.LastRebuildLinks.WithLabelValues("medium").Set(float64(medium))
}

// ObserveLinkOne counts one incremental request. result is one of linked,
// skipped, malformed or error.
func (m *Metrics) ObserveLinkOne(result string) {
	if m == nil {
		return
	}
	m.LinkOneTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExcluded(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExcludedRecords.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) ObserveEventReceived() {
	if m == nil {
		return
	}
	m.EventsReceived.Inc()
}

func (m *Metrics) ObserveEventPublished(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EventsPublished.WithLabelValues("error").Inc()
		return
	}
	m.EventsPublished.WithLabelValues("ok").Inc()
}
