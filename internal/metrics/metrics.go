package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotesTotal counts international quotes by outcome (zero, priced, blocked, error).
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comms",
		Subsystem: "intl",
		Name:      "quotes_total",
		Help:      "International SMS quotes by outcome.",
	}, []string{"outcome"})

	// PricingLookupsTotal counts pricing oracle lookups by result (hit, miss, error).
	PricingLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comms",
		Subsystem: "intl",
		Name:      "pricing_lookups_total",
		Help:      "Pricing lookups by cache result.",
	}, []string{"result"})

	// PricingProviderDuration tracks upstream pricing API latency.
	PricingProviderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "comms",
		Subsystem: "intl",
		Name:      "pricing_provider_duration_seconds",
		Help:      "Pricing provider request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// ChargesTotal counts immediate charges by reason and outcome.
	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comms",
		Subsystem: "intl",
		Name:      "charges_total",
		Help:      "Immediate international pre-charges by reason and outcome.",
	}, []string{"reason", "outcome"})

	// ChargedCentsTotal sums successfully charged cents.
	ChargedCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "comms",
		Subsystem: "intl",
		Name:      "charged_cents_total",
		Help:      "Total cents collected by international pre-charges.",
	})

	// SendAuthorizationsTotal counts send gate decisions.
	SendAuthorizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comms",
		Subsystem: "intl",
		Name:      "send_authorizations_total",
		Help:      "Send gate decisions by outcome.",
	}, []string{"outcome"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comms",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "comms",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})
)
