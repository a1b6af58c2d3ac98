package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics records the outcomes of delivery state transitions.
type DeliveryMetrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	gateway     *prometheus.HistogramVec
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_transitions_total",
		Help: "Completed delivery state transitions by operation.",
	}, []string{"operation"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_transition_failures_total",
		Help: "Rejected delivery state transitions by operation and error code.",
	}, []string{"operation", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delivery_duration_minutes",
		Help:    "Minutes from assignment to completed delivery.",
		Buckets: []float64{15, 30, 45, 60, 90, 120, 180, 240},
	}, []string{"payment_method"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delivery_gateway_call_seconds",
		Help:    "Duration of OTP and QR gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "call"})
	reg.MustRegister(transitions, failures, duration, gateway)
	return &DeliveryMetrics{
		transitions: transitions,
		failures:    failures,
		duration:    duration,
		gateway:     gateway,
	}
}

// IncTransition increments the success counter for the named operation.
func (m *DeliveryMetrics) IncTransition(operation string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the named operation and code.
func (m *DeliveryMetrics) IncFailure(operation, code string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

// ObserveDeliveryDuration records the assignment-to-completion duration.
func (m *DeliveryMetrics) ObserveDeliveryDuration(paymentMethod string, minutes float64) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(paymentMethod)).Observe(minutes)
}

// ObserveGatewayCall records the duration of one provider round trip.
func (m *DeliveryMetrics) ObserveGatewayCall(gateway, call string, elapsed time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(normalizeLabel(gateway), normalizeLabel(call)).Observe(elapsed.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
