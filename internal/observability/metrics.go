package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions       prometheus.Gauge
	SessionEvents        *prometheus.CounterVec
	ProxyRequests        *prometheus.CounterVec
	WebhookNotifications *prometheus.CounterVec
	AvatarEvents         *prometheus.CounterVec
	WSMessages           *prometheus.CounterVec
	SpeakLatency         prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of session slots with a connecting or connected avatar.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		ProxyRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Proxied upstream requests by route and outcome.",
		}, []string{"route", "outcome"}),
		WebhookNotifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_notifications_total",
			Help:      "Fire-and-forget webhook notifications by sender and outcome.",
		}, []string{"sender", "outcome"}),
		AvatarEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "avatar_events_total",
			Help:      "Avatar client events delivered to sessions, by type.",
		}, []string{"type"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		SpeakLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speak_latency_ms",
			Help:      "Latency of avatar speak calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}),
	}
}

func (m *Metrics) ObserveSpeakLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SpeakLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveProxy(route, outcome string) {
	if m == nil {
		return
	}
	m.ProxyRequests.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) ObserveNotification(sender, outcome string) {
	if m == nil {
		return
	}
	m.WebhookNotifications.WithLabelValues(sender, outcome).Inc()
}

func (m *Metrics) ObserveAvatarEvent(eventType string) {
	if m == nil {
		return
	}
	m.AvatarEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
