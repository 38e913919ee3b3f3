package billing

import (
	"errors"
	"testing"

	"comms-platform/internal/config"
	"comms-platform/internal/phonecountry"
)

func TestEvaluateCaps_SoftBoundaryIsStrict(t *testing.T) {
	caps := CapThresholds{SoftPerSendCents: 1000, HardAccumCents: 2000}

	v := EvaluateCaps(caps, 1000, 0)
	if v.BreachesSoft || v.RequiresImmediateCharge || v.Reason != ReasonNone {
		t.Fatalf("1000 must not breach soft cap: %+v", v)
	}

	v = EvaluateCaps(caps, 1001, 0)
	if !v.BreachesSoft || !v.RequiresImmediateCharge || v.Reason != ReasonSoftCapPerSend {
		t.Fatalf("1001 must breach soft cap: %+v", v)
	}
}

func TestEvaluateCaps_HardAccumulated(t *testing.T) {
	caps := CapThresholds{SoftPerSendCents: 1000, HardAccumCents: 2000}

	v := EvaluateCaps(caps, 500, 1500)
	if v.BreachesHard || v.RequiresImmediateCharge {
		t.Fatalf("2000 total must not breach hard cap: %+v", v)
	}

	v = EvaluateCaps(caps, 501, 1500)
	if !v.BreachesHard || v.Reason != ReasonHardCapAccum {
		t.Fatalf("2001 total must breach hard cap: %+v", v)
	}
}

func TestEvaluateCaps_SoftReasonWinsWhenBoth(t *testing.T) {
	caps := CapThresholds{SoftPerSendCents: 1000, HardAccumCents: 2000}
	v := EvaluateCaps(caps, 1500, 1900)
	if !v.BreachesSoft || !v.BreachesHard {
		t.Fatalf("expected both caps breached: %+v", v)
	}
	if v.Reason != ReasonSoftCapPerSend {
		t.Fatalf("expected soft reason, got %q", v.Reason)
	}
}

func TestPolicy_EvaluateFreePlanHasNoCaps(t *testing.T) {
	_, err := DefaultPolicy().Evaluate(PlanFree, 1, 0)
	if !errors.Is(err, ErrNoCapsForPlan) {
		t.Fatalf("expected ErrNoCapsForPlan, got %v", err)
	}
}

func TestPolicy_BusinessCaps(t *testing.T) {
	v, err := DefaultPolicy().Evaluate(PlanBusiness, 3000, 1999)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if v.RequiresImmediateCharge {
		t.Fatalf("expected no charge at business caps: %+v", v)
	}
	v, _ = DefaultPolicy().Evaluate(PlanBusiness, 3000, 2001)
	if v.Reason != ReasonHardCapAccum {
		t.Fatalf("expected hard cap on business, got %+v", v)
	}
}

func TestBilledUnitCents(t *testing.T) {
	cases := []struct {
		unit, bp, want int64
	}{
		{5, 13000, 7},   // 6.5 -> 7
		{10, 13000, 13}, // exact
		{5, 16000, 8},
		{7, 16000, 12}, // 11.2 -> 12
		{0, 13000, 0},
		{1, 10000, 1},
	}
	for _, tc := range cases {
		if got := BilledUnitCents(tc.unit, tc.bp); got != tc.want {
			t.Fatalf("BilledUnitCents(%d,%d) = %d, want %d", tc.unit, tc.bp, got, tc.want)
		}
	}
}

func TestBilledUnitCents_Monotonic(t *testing.T) {
	for unit := int64(1); unit < 200; unit++ {
		if BilledUnitCents(unit, 13000) > BilledUnitCents(unit, 16000) {
			t.Fatalf("higher multiplier produced lower price at unit=%d", unit)
		}
		if BilledUnitCents(unit, 13000) > BilledUnitCents(unit+1, 13000) {
			t.Fatalf("higher price produced lower bill at unit=%d", unit)
		}
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.BillingConfig{
		Tier1Multiplier:          1.3,
		Tier2Multiplier:          1.6,
		ProSoftPerSendCents:      1000,
		ProHardAccumCents:        2000,
		BusinessSoftPerSendCents: 3000,
		BusinessHardAccumCents:   5000,
	})
	if p.Tier1MultiplierBP != 13000 || p.Tier2MultiplierBP != 16000 {
		t.Fatalf("unexpected basis points: %+v", p)
	}
	if bp, ok := p.MultiplierBP(phonecountry.TierTwo); !ok || bp != 16000 {
		t.Fatalf("expected tier2 multiplier")
	}
	if _, ok := p.MultiplierBP(phonecountry.TierDomestic); ok {
		t.Fatalf("domestic has no multiplier")
	}
}

func TestParsePlanTierAndReasons(t *testing.T) {
	if ParsePlanTier(" Pro ") != PlanPro || ParsePlanTier("enterprise") != PlanFree {
		t.Fatalf("unexpected plan parsing")
	}
	if BlockedCountry("ng") != "intl_blocked_country_NG" {
		t.Fatalf("unexpected country reason %q", BlockedCountry("ng"))
	}
	if ReasonNone.Valid() || !ReasonHardCapAccum.Valid() {
		t.Fatalf("unexpected reason validity")
	}
}
