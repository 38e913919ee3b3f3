package billing

import (
	"fmt"
	"strings"
)

// PlanTier is the subscription plan that gates international sending.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanPro      PlanTier = "pro"
	PlanBusiness PlanTier = "business"
)

// ParsePlanTier normalises a stored plan value. Unknown values map to free, which blocks.
func ParsePlanTier(v string) PlanTier {
	switch PlanTier(strings.ToLower(strings.TrimSpace(v))) {
	case PlanPro:
		return PlanPro
	case PlanBusiness:
		return PlanBusiness
	default:
		return PlanFree
	}
}

// ChargeReason tells which cap triggered an immediate charge.
type ChargeReason string

const (
	ReasonNone           ChargeReason = ""
	ReasonSoftCapPerSend ChargeReason = "softcap_per_send"
	ReasonHardCapAccum   ChargeReason = "hardcap_accum"
)

// Valid reports whether r is one of the charge-triggering reasons.
func (r ChargeReason) Valid() bool {
	return r == ReasonSoftCapPerSend || r == ReasonHardCapAccum
}

// Blocked reasons surfaced on quotes and stored on the account.
const (
	BlockedFreePlan        = "free_plan_intl_blocked"
	BlockedNoPaymentMethod = "no_payment_method_for_intl"
	BlockedPaymentFailed   = "payment_failed"

	blockedCountryPrefix = "intl_blocked_country_"
)

// BlockedCountry builds the blocked reason for a vetoed destination country.
func BlockedCountry(cc string) string {
	return blockedCountryPrefix + strings.ToUpper(cc)
}

// CapThresholds are the per-plan limits in cents.
type CapThresholds struct {
	SoftPerSendCents int64 `json:"softPerSend"`
	HardAccumCents   int64 `json:"hardAccum"`
}

func (c CapThresholds) String() string {
	return fmt.Sprintf("soft=%d hard=%d", c.SoftPerSendCents, c.HardAccumCents)
}
