// Package metrics collects and exposes Prometheus metrics for the realtime core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the gateway, broadcaster,
// presence coordinator and handlers.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	SetOnlineUsers(n int)
	EventReceived(event string)
	BroadcastDelivered(count int)
	BroadcastFailed()
	PersistenceFailed(op string)
	EventDropped(reason string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	activeConnections prometheus.Gauge
	onlineUsers       prometheus.Gauge
	eventsReceived    *prometheus.CounterVec
	deliveries        prometheus.Counter
	deliveryFailures  prometheus.Counter
	persistFailures   *prometheus.CounterVec
	dropped           *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teachat_active_connections",
			Help: "Number of live WebSocket connections",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teachat_online_users",
			Help: "Number of users with at least one live connection",
		}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachat_events_received_total",
			Help: "Inbound events by name",
		}, []string{"event"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teachat_broadcast_deliveries_total",
			Help: "Frames queued to recipients by broadcasts",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teachat_broadcast_failures_total",
			Help: "Broadcast sends that failed and closed the recipient",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachat_persistence_failures_total",
			Help: "Failed persistence calls by operation",
		}, []string{"op"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachat_events_dropped_total",
			Help: "Inbound events dropped by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.activeConnections,
		c.onlineUsers,
		c.eventsReceived,
		c.deliveries,
		c.deliveryFailures,
		c.persistFailures,
		c.dropped,
	)

	return c
}

func (c *Collector) ConnectionOpened() { c.activeConnections.Inc() }
func (c *Collector) ConnectionClosed() { c.activeConnections.Dec() }

func (c *Collector) SetOnlineUsers(n int) { c.onlineUsers.Set(float64(n)) }

func (c *Collector) EventReceived(event string) {
	c.eventsReceived.WithLabelValues(event).Inc()
}

func (c *Collector) BroadcastDelivered(count int) {
	c.deliveries.Add(float64(count))
}

func (c *Collector) BroadcastFailed() { c.deliveryFailures.Inc() }

func (c *Collector) PersistenceFailed(op string) {
	c.persistFailures.WithLabelValues(op).Inc()
}

func (c *Collector) EventDropped(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) ConnectionOpened()        {}
func (Nop) ConnectionClosed()        {}
func (Nop) SetOnlineUsers(int)       {}
func (Nop) EventReceived(string)     {}
func (Nop) BroadcastDelivered(int)   {}
func (Nop) BroadcastFailed()         {}
func (Nop) PersistenceFailed(string) {}
func (Nop) EventDropped(string)      {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
