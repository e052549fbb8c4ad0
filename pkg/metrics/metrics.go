// Package metrics provides Prometheus metrics for the gateway: HTTP
// requests, remote SSH commands, logins and chat connections.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nanoweb"

var durationBuckets = []float64{0.05, 0.1, 0.3, 0.5, 1.0, 3.0, 5.0, 10.0, 30.0, 60.0, 130.0}

// Metrics holds the gateway collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	SSHCommands  *prometheus.CounterVec
	SSHDuration  prometheus.Histogram
	Logins       *prometheus.CounterVec
	ChatSessions prometheus.Gauge
	ChatMessages prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   durationBuckets,
		}, []string{"route"}),
		SSHCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ssh_commands_total",
			Help:      "Remote commands by outcome (ok, nonzero, error)",
		}, []string{"outcome"}),
		SSHDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ssh_command_duration_seconds",
			Help:      "Remote command duration in seconds",
			Buckets:   durationBuckets,
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		ChatSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_sessions_active",
			Help:      "Authenticated chat WebSocket connections",
		}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages forwarded to nanobot",
		}),
	}

	m.reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.SSHCommands,
		m.SSHDuration,
		m.Logins,
		m.ChatSessions,
		m.ChatMessages,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveCommand records one remote command.
func (m *Metrics) ObserveCommand(outcome string, elapsed time.Duration) {
	m.SSHCommands.WithLabelValues(outcome).Inc()
	m.SSHDuration.Observe(elapsed.Seconds())
}

// ObserveLogin counts a login attempt; result is "ok" or a failure class.
func (m *Metrics) ObserveLogin(result string) {
	m.Logins.WithLabelValues(result).Inc()
}
