package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ca"

// Collector holds the head-end client and sync daemon instruments.
// All methods are safe on a nil *Collector so callers can run without metrics.
type Collector struct {
	registry *prometheus.Registry

	// Head-end traffic
	requests      *prometheus.CounterVec
	replies       *prometheus.CounterVec
	errors        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	bytesSent     prometheus.Counter
	bytesReceived prometheus.Counter
	sessionsOpen  prometheus.Gauge
	logins        *prometheus.CounterVec

	// Sync runs
	syncRuns     *prometheus.CounterVec
	syncDuration prometheus.Histogram
	lastSync     prometheus.Gauge
	entities     *prometheus.CounterVec
	cards        prometheus.Counter
}

// NewCollector creates a collector on its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "headend", Name: "requests_total",
			Help: "Requests sent to the head-end by command.",
		}, []string{"command"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "headend", Name: "replies_total",
			Help: "Replies received from the head-end by command and status.",
		}, []string{"command", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "headend", Name: "errors_total",
			Help: "Failed head-end calls by error kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "headend", Name: "request_duration_seconds",
			Help:    "Round-trip time of head-end requests.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"command"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "headend", Name: "bytes_sent_total",
			Help: "Bytes written to the head-end socket.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "headend", Name: "bytes_received_total",
			Help: "Bytes read from the head-end socket.",
		}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "headend", Name: "sessions_open",
			Help: "Currently open head-end sessions.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "headend", Name: "logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "runs_total",
			Help: "Sync runs by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sync", Name: "run_duration_seconds",
			Help:    "Duration of sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync run.",
		}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "entities_total",
			Help: "Access entities processed by result.",
		}, []string{"result"}),
		cards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "cards_written_total",
			Help: "Subscriber records written to the head-end.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests, c.replies, c.errors, c.latency,
		c.bytesSent, c.bytesReceived, c.sessionsOpen, c.logins,
		c.syncRuns, c.syncDuration, c.lastSync, c.entities, c.cards,
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RequestSent records an outgoing frame
func (c *Collector) RequestSent(command string, bytes int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(command).Inc()
	c.bytesSent.Add(float64(bytes))
}

// ReplyReceived records a complete reply and the call round-trip time
func (c *Collector) ReplyReceived(command, status string, bytes int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.replies.WithLabelValues(command, status).Inc()
	c.bytesReceived.Add(float64(bytes))
	c.latency.WithLabelValues(command).Observe(elapsed.Seconds())
}

// CallFailed records a failed call by error kind
func (c *Collector) CallFailed(kind string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(kind).Inc()
}

// SessionOpened records a new connection
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsOpen.Inc()
}

// SessionClosed records a released connection
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsOpen.Dec()
}

// LoginAttempt records a login outcome ("ok", "unknown_user", "wrong_password", "error")
func (c *Collector) LoginAttempt(result string) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(result).Inc()
}

// SyncFinished records a sync run
func (c *Collector) SyncFinished(result string, elapsed time.Duration, at time.Time) {
	if c == nil {
		return
	}
	c.syncRuns.WithLabelValues(result).Inc()
	c.syncDuration.Observe(elapsed.Seconds())
	if result == "ok" {
		c.lastSync.Set(float64(at.Unix()))
	}
}

// EntityProcessed records one access entity update
func (c *Collector) EntityProcessed(result string) {
	if c == nil {
		return
	}
	c.entities.WithLabelValues(result).Inc()
}

// CardWritten records one subscriber record written to the head-end
func (c *Collector) CardWritten() {
	if c == nil {
		return
	}
	c.cards.Inc()
}
