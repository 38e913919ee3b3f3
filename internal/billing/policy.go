package billing

import (
	"errors"
	"math"

	"comms-platform/internal/config"
	"comms-platform/internal/phonecountry"
)

var ErrNoCapsForPlan = errors.New("billing: plan has no international caps")

// Verdict is the output of the cap policy for one prospective send.
type Verdict struct {
	BreachesSoft            bool
	BreachesHard            bool
	RequiresImmediateCharge bool
	Reason                  ChargeReason
}

// EvaluateCaps is the pure cap decision.
//
// Both comparisons are strict: an estimate equal to a cap does not breach it.
// When both caps breach, the per-send reason wins.
func EvaluateCaps(caps CapThresholds, estimatedCents, spendSinceLastCharge int64) Verdict {
	v := Verdict{
		BreachesSoft: estimatedCents > caps.SoftPerSendCents,
		BreachesHard: spendSinceLastCharge+estimatedCents > caps.HardAccumCents,
	}
	v.RequiresImmediateCharge = v.BreachesSoft || v.BreachesHard
	switch {
	case v.BreachesSoft:
		v.Reason = ReasonSoftCapPerSend
	case v.BreachesHard:
		v.Reason = ReasonHardCapAccum
	}
	return v
}

// Policy holds the static pricing and cap configuration.
type Policy struct {
	Caps map[PlanTier]CapThresholds

	// Multipliers are in basis points (1.3 == 13000) so the per-unit ceil stays exact.
	Tier1MultiplierBP int64
	Tier2MultiplierBP int64
}

// DefaultPolicy is the production policy.
func DefaultPolicy() Policy {
	return Policy{
		Caps: map[PlanTier]CapThresholds{
			PlanPro:      {SoftPerSendCents: 1000, HardAccumCents: 2000},
			PlanBusiness: {SoftPerSendCents: 3000, HardAccumCents: 5000},
		},
		Tier1MultiplierBP: 13000,
		Tier2MultiplierBP: 16000,
	}
}

// PolicyFromConfig builds a Policy from validated billing config.
func PolicyFromConfig(c config.BillingConfig) Policy {
	return Policy{
		Caps: map[PlanTier]CapThresholds{
			PlanPro:      {SoftPerSendCents: c.ProSoftPerSendCents, HardAccumCents: c.ProHardAccumCents},
			PlanBusiness: {SoftPerSendCents: c.BusinessSoftPerSendCents, HardAccumCents: c.BusinessHardAccumCents},
		},
		Tier1MultiplierBP: toBasisPoints(c.Tier1Multiplier),
		Tier2MultiplierBP: toBasisPoints(c.Tier2Multiplier),
	}
}

// CapsFor returns the thresholds of a paid plan.
func (p Policy) CapsFor(plan PlanTier) (CapThresholds, error) {
	c, ok := p.Caps[plan]
	if !ok {
		return CapThresholds{}, ErrNoCapsForPlan
	}
	return c, nil
}

// Evaluate applies the cap policy of plan.
func (p Policy) Evaluate(plan PlanTier, estimatedCents, spendSinceLastCharge int64) (Verdict, error) {
	caps, err := p.CapsFor(plan)
	if err != nil {
		return Verdict{}, err
	}
	return EvaluateCaps(caps, estimatedCents, spendSinceLastCharge), nil
}

// MultiplierBP returns the markup for an international tier.
func (p Policy) MultiplierBP(t phonecountry.Tier) (int64, bool) {
	switch t {
	case phonecountry.TierOne:
		return p.Tier1MultiplierBP, true
	case phonecountry.TierTwo:
		return p.Tier2MultiplierBP, true
	default:
		return 0, false
	}
}

// BilledUnitCents is ceil(unitCents * multiplier) using integer arithmetic.
func BilledUnitCents(unitCents, multiplierBP int64) int64 {
	if unitCents <= 0 || multiplierBP <= 0 {
		return 0
	}
	return (unitCents*multiplierBP + 9999) / 10000
}

func toBasisPoints(m float64) int64 {
	return int64(math.Round(m * 10000))
}
