package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the studio collectors. Services take a *Metrics so tests can
// register against a private registry; a nil *Metrics records nothing.
type Metrics struct {
	SessionsBooked       prometheus.Counter
	BookingConflicts     prometheus.Counter
	SessionTransitions   *prometheus.CounterVec
	PackageSessionsUsed  prometheus.Counter
	NotificationsQueued  *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	WebsocketConnections prometheus.Gauge

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SessionsBooked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_sessions_booked_total",
			Help: "Total sessions booked",
		}),
		BookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_booking_conflicts_total",
			Help: "Booking attempts rejected because the sub-device slot was taken",
		}),
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_session_transitions_total",
				Help: "Session status transitions by target status",
			},
			[]string{"to"},
		),
		PackageSessionsUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_package_sessions_used_total",
			Help: "Session credits debited from packages",
		}),
		NotificationsQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_notifications_queued_total",
				Help: "Notification jobs pushed to the queue by type",
			},
			[]string{"type"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		WebsocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studio_websocket_connections",
			Help: "Open schedule feed connections",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.SessionsBooked,
		m.BookingConflicts,
		m.SessionTransitions,
		m.PackageSessionsUsed,
		m.NotificationsQueued,
		m.HTTPRequestDuration,
		m.WebsocketConnections,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Booked() {
	if m != nil {
		m.SessionsBooked.Inc()
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.BookingConflicts.Inc()
	}
}

func (m *Metrics) Transition(to string) {
	if m != nil {
		m.SessionTransitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) SessionsUsed(n int) {
	if m != nil {
		m.PackageSessionsUsed.Add(float64(n))
	}
}

func (m *Metrics) Queued(jobType string) {
	if m != nil {
		m.NotificationsQueued.WithLabelValues(jobType).Inc()
	}
}
