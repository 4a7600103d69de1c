package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the consumer's only coupling to telemetry: counters for events
// consumed, effects applied, duplicates skipped, retries and dead letters.
type Metrics struct {
	Consumed    *prometheus.CounterVec
	Applied     *prometheus.CounterVec
	Duplicates  *prometheus.CounterVec
	Retries     *prometheus.CounterVec
	DeadLetters *prometheus.CounterVec
}

// NewMetrics registers the consumer counters with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"consumer", "event_type"}

	return &Metrics{
		Consumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Events read from the transport",
		}, labels),
		Applied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "effects_applied_total",
			Help: "Events whose business effect was applied",
		}, labels),
		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duplicates_skipped_total",
			Help: "Redeliveries short-circuited by a consumption record",
		}, labels),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retries_total",
			Help: "Retry attempts after transient failures",
		}, labels),
		DeadLetters: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dead_letters_total",
			Help: "Events parked after processing was given up on",
		}, labels),
	}
}
