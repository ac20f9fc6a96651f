package messaging

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// busEventsTotal is registered once per process; individual buses are
// distinguished by the bus_id label rather than by re-registering a new
// vector, since client_golang panics on duplicate metric registration.
var (
	busEventsTotal     *prometheus.CounterVec
	busEventsTotalOnce sync.Once
)

func sharedCounterVec() *prometheus.CounterVec {
	busEventsTotalOnce.Do(func() {
		busEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa",
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Count of bus lifecycle events by kind.",
		}, []string{"bus_id", "event"})
	})
	return busEventsTotal
}

// MetricsSnapshot is a point-in-time read of the bus's atomic counters.
type MetricsSnapshot struct {
	Published    uint64
	Delivered    uint64
	Dropped      uint64
	Acked        uint64
	Nacked       uint64
	Retries      uint64
	DeadLettered uint64
}

// metrics holds the bus's counters both as lock-free atomics (for the
// snapshot contract in spec §6.4) and mirrored into Prometheus vectors
// (for scrape-based observability), matching internal/metrics.Collector's
// promauto idiom.
type metrics struct {
	published    atomic.Uint64
	delivered    atomic.Uint64
	dropped      atomic.Uint64
	acked        atomic.Uint64
	nacked       atomic.Uint64
	retries      atomic.Uint64
	deadLettered atomic.Uint64

	busID      string
	counterVec *prometheus.CounterVec
}

func newMetrics(busID string) *metrics {
	return &metrics{busID: busID, counterVec: sharedCounterVec()}
}

func (m *metrics) incPublished() {
	m.published.Add(1)
	m.counterVec.WithLabelValues(m.busID, "published").Inc()
}

func (m *metrics) incDelivered() {
	m.delivered.Add(1)
	m.counterVec.WithLabelValues(m.busID, "delivered").Inc()
}

func (m *metrics) incDropped() {
	m.dropped.Add(1)
	m.counterVec.WithLabelValues(m.busID, "dropped").Inc()
}

func (m *metrics) incAcked() {
	m.acked.Add(1)
	m.counterVec.WithLabelValues(m.busID, "acked").Inc()
}

func (m *metrics) incNacked() {
	m.nacked.Add(1)
	m.counterVec.WithLabelValues(m.busID, "nacked").Inc()
}

func (m *metrics) incRetries() {
	m.retries.Add(1)
	m.counterVec.WithLabelValues(m.busID, "retried").Inc()
}

func (m *metrics) incDeadLettered() {
	m.deadLettered.Add(1)
	m.counterVec.WithLabelValues(m.busID, "dead_lettered").Inc()
}

func (m *metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Published:    m.published.Load(),
		Delivered:    m.delivered.Load(),
		Dropped:      m.dropped.Load(),
		Acked:        m.acked.Load(),
		Nacked:       m.nacked.Load(),
		Retries:      m.retries.Load(),
		DeadLettered: m.deadLettered.Load(),
	}
}
