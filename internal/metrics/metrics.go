// Package metrics exposes Prometheus collectors for generation, billing and
// payment activity.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	providerAttempts *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	generations      *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
}

// MustNew registers the collectors on reg. Tests should pass a fresh
// prometheus.NewRegistry(). Re-registration reuses the existing collectors.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catportrait",
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Image provider invocations by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catportrait",
			Subsystem: "provider",
			Name:      "duration_seconds",
			Help:      "Latency of image provider invocations.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45},
		}, []string{"provider"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catportrait",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generation requests by route, plan and result.",
		}, []string{"route", "plan", "result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catportrait",
			Subsystem: "ledger",
			Name:      "settlements_total",
			Help:      "Post-generation settlements by caller kind and outcome.",
		}, []string{"caller", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catportrait",
			Subsystem: "payment",
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by event type and outcome.",
		}, []string{"event", "outcome"}),
	}
	m.providerAttempts = register(reg, m.providerAttempts)
	m.providerDuration = register(reg, m.providerDuration)
	m.generations = register(reg, m.generations)
	m.settlements = register(reg, m.settlements)
	m.webhookEvents = register(reg, m.webhookEvents)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ProviderAttempt records one provider call. Safe on a nil receiver.
func (m *Metrics) ProviderAttempt(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, outcome).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) Generation(route, plan, result string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(route, plan, result).Inc()
}

func (m *Metrics) Settlement(caller, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(caller, outcome).Inc()
}

func (m *Metrics) WebhookEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}
