// Package metrics exposes the gas station's prometheus collectors. A Recorder
// is constructed once at process start and passed down; there are no
// package-level collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the payment pipeline collectors. Nil receivers are tolerated
// so components can run unmetered in tests.
type Recorder struct {
	verifications   *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	pumpOperations  *prometheus.CounterVec
	paymentRequired prometheus.Counter
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gas_station_verifications_total",
			Help: "Facilitator verify calls by outcome.",
		}, []string{"outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gas_station_settlements_total",
			Help: "Facilitator settle calls by outcome.",
		}, []string{"outcome"}),
		pumpOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gas_station_pump_operations_total",
			Help: "Pump operations by target network and result.",
		}, []string{"network", "result"}),
		paymentRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_payment_required_total",
			Help: "Requests answered with a 402 challenge (no payment header).",
		}),
	}

	reg.MustRegister(r.verifications, r.settlements, r.pumpOperations, r.paymentRequired)
	return r
}

// Verification records one verify call outcome ("ok", "rejected", "transport_error").
func (r *Recorder) Verification(outcome string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(outcome).Inc()
}

// Settlement records one settle call outcome.
func (r *Recorder) Settlement(outcome string) {
	if r == nil {
		return
	}
	r.settlements.WithLabelValues(outcome).Inc()
}

// PumpOperation records one executed pump by target network.
func (r *Recorder) PumpOperation(network, result string) {
	if r == nil {
		return
	}
	r.pumpOperations.WithLabelValues(network, result).Inc()
}

// PaymentRequired records one 402 challenge for a request without payment.
func (r *Recorder) PaymentRequired() {
	if r == nil {
		return
	}
	r.paymentRequired.Inc()
}
