package quote

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"comms-platform/internal/billing"
	"comms-platform/internal/ledger"
	"comms-platform/internal/metrics"
	"comms-platform/internal/phonecountry"
	"comms-platform/pkg/logger"
)

// ChannelSMS is the only channel that carries international cost.
const ChannelSMS = "sms"

// Quote is the cost preview a client confirms and re-submits at send time.
type Quote struct {
	Blocked                 bool                 `json:"blocked"`
	BlockedReason           string               `json:"blockedReason,omitempty"`
	DomesticCount           int                  `json:"domesticCount"`
	IntlCount               int                  `json:"intlCount"`
	EstimatedIntlCents      int64                `json:"estimatedIntlCents"`
	RequiresConfirm         bool                 `json:"requiresConfirm"`
	RequiresImmediateCharge bool                 `json:"requiresImmediateCharge"`
	Reason                  billing.ChargeReason `json:"reason,omitempty"`

	// Present on priced quotes only.
	EstimatedIntlUSD          string                 `json:"estimatedIntlUsd,omitempty"`
	Caps                      *billing.CapThresholds `json:"caps,omitempty"`
	IntlSpendSinceChargeCents *int64                 `json:"intlSpendSinceChargeCents,omitempty"`
}

// SameDecision reports whether two quotes would lead to the same charge decision.
func (q Quote) SameDecision(o Quote) bool {
	return q.Blocked == o.Blocked &&
		q.EstimatedIntlCents == o.EstimatedIntlCents &&
		q.RequiresImmediateCharge == o.RequiresImmediateCharge &&
		q.Reason == o.Reason
}

// StateReader loads a user's billing state.
type StateReader interface {
	GetState(ctx context.Context, userID string) (ledger.BillingState, error)
}

// Pricer returns the provider unit price of one SMS segment in cents.
type Pricer interface {
	UnitPriceCents(ctx context.Context, countryCode string) (int64, error)
}

// Engine computes international SMS quotes.
type Engine struct {
	states StateReader
	prices Pricer
	policy billing.Policy
}

func NewEngine(states StateReader, prices Pricer, policy billing.Policy) *Engine {
	return &Engine{states: states, prices: prices, policy: policy}
}

// HasSMS reports whether channels requests the sms channel.
func HasSMS(channels []string) bool {
	for _, c := range channels {
		if strings.EqualFold(strings.TrimSpace(c), ChannelSMS) {
			return true
		}
	}
	return false
}

type bucket struct {
	tier  phonecountry.Tier
	count int64
}

// Quote prices an SMS batch for userID.
//
// Account-level blocks are returned before any pricing I/O. Any unparsable recipient or
// missing price fails the whole quote; a single blocked-country recipient blocks it.
func (e *Engine) Quote(ctx context.Context, userID string, recipients []string, channels []string) (Quote, error) {
	if !HasSMS(channels) {
		metrics.QuotesTotal.WithLabelValues("zero").Inc()
		return Quote{}, nil
	}

	st, err := e.states.GetState(ctx, userID)
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("error").Inc()
		return Quote{}, err
	}
	if reason := accountBlock(st); reason != "" {
		return e.blocked(ctx, userID, reason), nil
	}

	// Every recipient is classified before deciding: a blocked country vetoes the
	// batch even when another recipient is unparsable.
	var (
		domestic, intl int
		invalid        error
		blockedCC      string
	)
	buckets := map[string]*bucket{}
	for _, r := range recipients {
		dest, err := phonecountry.Classify(r)
		if err != nil {
			if invalid == nil {
				invalid = err
			}
			continue
		}
		switch dest.Tier {
		case phonecountry.TierDomestic:
			domestic++
			continue
		case phonecountry.TierBlocked:
			if blockedCC == "" {
				blockedCC = dest.CountryCode
			}
			continue
		}
		intl++
		b, ok := buckets[dest.CountryCode]
		if !ok {
			b = &bucket{tier: dest.Tier}
			buckets[dest.CountryCode] = b
		}
		b.count++
	}
	if blockedCC != "" {
		return e.blocked(ctx, userID, billing.BlockedCountry(blockedCC)), nil
	}
	if invalid != nil {
		metrics.QuotesTotal.WithLabelValues("error").Inc()
		return Quote{}, invalid
	}

	if intl == 0 {
		metrics.QuotesTotal.WithLabelValues("zero").Inc()
		return Quote{DomesticCount: domestic}, nil
	}

	countries := make([]string, 0, len(buckets))
	for cc := range buckets {
		countries = append(countries, cc)
	}
	sort.Strings(countries)

	var estimated int64
	for _, cc := range countries {
		b := buckets[cc]
		unit, err := e.prices.UnitPriceCents(ctx, cc)
		if err != nil {
			metrics.QuotesTotal.WithLabelValues("error").Inc()
			return Quote{}, fmt.Errorf("quote %s: %w", cc, err)
		}
		bp, ok := e.policy.MultiplierBP(b.tier)
		if !ok {
			return Quote{}, fmt.Errorf("quote %s: no multiplier for tier %s", cc, b.tier)
		}
		estimated += billing.BilledUnitCents(unit, bp) * b.count
	}

	caps, err := e.policy.CapsFor(st.PlanTier)
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("error").Inc()
		return Quote{}, err
	}
	v := billing.EvaluateCaps(caps, estimated, st.SpendSinceLastChargeCents)
	since := st.SpendSinceLastChargeCents

	q := Quote{
		DomesticCount:             domestic,
		IntlCount:                 intl,
		EstimatedIntlCents:        estimated,
		RequiresConfirm:           true,
		RequiresImmediateCharge:   v.RequiresImmediateCharge,
		Reason:                    v.Reason,
		EstimatedIntlUSD:          FormatUSD(estimated),
		Caps:                      &caps,
		IntlSpendSinceChargeCents: &since,
	}
	metrics.QuotesTotal.WithLabelValues("priced").Inc()
	logger.From(ctx).Debug("intl quote priced",
		"user_id", userID,
		"intl_count", intl,
		"countries", len(countries),
		"estimated_cents", estimated,
		"charge_reason", v.Reason,
	)
	return q, nil
}

func (e *Engine) blocked(ctx context.Context, userID, reason string) Quote {
	metrics.QuotesTotal.WithLabelValues("blocked").Inc()
	logger.From(ctx).Info("intl quote blocked", "user_id", userID, "reason", reason)
	return Quote{Blocked: true, BlockedReason: reason}
}

func accountBlock(st ledger.BillingState) string {
	switch {
	case st.PlanTier == billing.PlanFree || st.PlanTier == "":
		return billing.BlockedFreePlan
	case st.BlockedReason != "":
		return st.BlockedReason
	case !st.PaymentMethodAttached:
		return billing.BlockedNoPaymentMethod
	}
	return ""
}

// FormatUSD renders cents as a two-decimal dollar string.
func FormatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

