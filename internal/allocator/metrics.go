package allocator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts allocator transitions. A nil *Metrics records nothing.
type Metrics struct {
	BookingsCreated   *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	BookingsActivated prometheus.Counter
	BookingsCanceled  *prometheus.CounterVec
	BookingsExpired   prometheus.Counter
	Confirmations     *prometheus.CounterVec
	GatewayErrors     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BookingsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adslots",
			Name:      "bookings_created_total",
			Help:      "Bookings created, by tier.",
		}, []string{"tier"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adslots",
			Name:      "booking_rejections_total",
			Help:      "Booking attempts refused, by error code.",
		}, []string{"code"}),
		BookingsActivated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "adslots",
			Name:      "bookings_activated_total",
			Help:      "Bookings that started displaying.",
		}),
		BookingsCanceled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adslots",
			Name:      "bookings_canceled_total",
			Help:      "Bookings canceled, by reason.",
		}, []string{"reason"}),
		BookingsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "adslots",
			Name:      "bookings_expired_total",
			Help:      "Active bookings whose period ended.",
		}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adslots",
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmations, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GatewayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adslots",
			Name:      "payment_gateway_errors_total",
			Help:      "Failed or timed out provider calls.",
		}, []string{"provider", "call"}),
	}
}

func (m *Metrics) created(tier string) {
	if m != nil {
		m.BookingsCreated.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) rejected(err error) {
	if m == nil {
		return
	}
	if e, ok := asError(err); ok {
		m.Rejections.WithLabelValues(e.Code).Inc()
	}
}

func (m *Metrics) activated() {
	if m != nil {
		m.BookingsActivated.Inc()
	}
}

func (m *Metrics) canceled(reason string, n int) {
	if m != nil && n > 0 {
		m.BookingsCanceled.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) expired(n int64) {
	if m != nil && n > 0 {
		m.BookingsExpired.Add(float64(n))
	}
}

func (m *Metrics) confirmation(provider, outcome string) {
	if m != nil {
		m.Confirmations.WithLabelValues(provider, outcome).Inc()
	}
}

func (m *Metrics) gatewayError(provider, call string) {
	if m != nil {
		m.GatewayErrors.WithLabelValues(provider, call).Inc()
	}
}
