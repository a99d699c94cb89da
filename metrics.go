package phxclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the socket metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "phx").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the socket metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "phx",
		Subsystem: "client",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors a Socket reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	pushesSent     *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	encodeErrors   prometheus.Counter
	writeErrors    prometheus.Counter
	heartbeatsSent prometheus.Counter
	connects       prometheus.Counter
	disconnects    *prometheus.CounterVec
	pending        prometheus.Gauge
	channels       prometheus.Gauge
}

// NewMetrics creates and registers the socket collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		pushesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pushes_sent_total",
			Help:        "Total number of pushes written to the transport",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),

		repliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "replies_total",
			Help:        "Total number of replies matched to a pending push",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "decode_errors_total",
			Help:        "Total number of inbound frames dropped as malformed",
			ConstLabels: config.ConstLabels,
		}),

		encodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "encode_errors_total",
			Help:        "Total number of pushes that could not be encoded",
			ConstLabels: config.ConstLabels,
		}),

		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "write_errors_total",
			Help:        "Total number of transport write failures",
			ConstLabels: config.ConstLabels,
		}),

		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "heartbeats_sent_total",
			Help:        "Total number of heartbeats sent",
			ConstLabels: config.ConstLabels,
		}),

		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connects_total",
			Help:        "Total number of transport connections opened",
			ConstLabels: config.ConstLabels,
		}),

		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "disconnects_total",
			Help:        "Total number of transport disconnections by cause",
			ConstLabels: config.ConstLabels,
		}, []string{"cause"}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pending_pushes",
			Help:        "Number of pushes awaiting a reply",
			ConstLabels: config.ConstLabels,
		}),

		channels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "channels",
			Help:        "Number of channels registered on the socket",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) pushSent(event string) {
	if m == nil {
		return
	}
	m.pushesSent.WithLabelValues(event).Inc()
	if event == EventHeartbeat {
		m.heartbeatsSent.Inc()
	}
}

func (m *Metrics) replyReceived(status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) decodeFailed() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) encodeFailed() {
	if m == nil {
		return
	}
	m.encodeErrors.Inc()
}

func (m *Metrics) writeFailed() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

func (m *Metrics) disconnected(err error) {
	if m == nil {
		return
	}
	cause := "normal"
	if err != nil {
		cause = "error"
	}
	m.disconnects.WithLabelValues(cause).Inc()
}

func (m *Metrics) setTables(pending, channels int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.channels.Set(float64(channels))
}
