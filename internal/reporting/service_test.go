package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"comms-platform/internal/billing"
	"comms-platform/internal/ledger"
)

func window(now time.Time) TimeRange {
	return TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
}

func TestReporting_UserIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Add(
		ledger.ChargeRecord{InvoiceID: "in_1", UserID: "u1", Reason: billing.ReasonSoftCapPerSend, AmountCents: 1200, Status: ledger.ChargePaid, CreatedAt: now},
		ledger.ChargeRecord{InvoiceID: "in_2", UserID: "u2", Reason: billing.ReasonSoftCapPerSend, AmountCents: 5000, Status: ledger.ChargePaid, CreatedAt: now},
	)
	svc := NewService(repo)

	out, err := svc.ChargeSummary(context.Background(), ChargeSummaryRequest{UserID: "u1", Range: window(now)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCharges != 1 || out.ChargedCents != 1200 {
		t.Fatalf("expected only u1's charge, got %+v", out)
	}
}

func TestReporting_ChargeSummaryAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	reset := now
	repo.Add(
		ledger.ChargeRecord{InvoiceID: "in_1", UserID: "u", Reason: billing.ReasonSoftCapPerSend, AmountCents: 1500, Status: ledger.ChargePaid, CreatedAt: now},
		ledger.ChargeRecord{InvoiceID: "in_2", UserID: "u", Reason: billing.ReasonHardCapAccum, AmountCents: 300, Status: ledger.ChargePaid, ResetAppliedAt: &reset, CreatedAt: now},
		ledger.ChargeRecord{InvoiceID: "in_3", UserID: "u", Reason: billing.ReasonSoftCapPerSend, AmountCents: 1100, Status: ledger.ChargeCharged, CreatedAt: now},
		ledger.ChargeRecord{InvoiceID: "in_4", UserID: "u", Reason: billing.ReasonHardCapAccum, AmountCents: 900, Status: ledger.ChargePaymentFailed, CreatedAt: now},
		// outside the window
		ledger.ChargeRecord{InvoiceID: "in_5", UserID: "u", Reason: billing.ReasonSoftCapPerSend, AmountCents: 7000, Status: ledger.ChargePaid, CreatedAt: now.Add(-48 * time.Hour)},
	)
	svc := NewService(repo)

	out, err := svc.ChargeSummary(context.Background(), ChargeSummaryRequest{UserID: "u", Range: window(now)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCharges != 4 || out.PaidCharges != 2 || out.PendingCharges != 1 || out.FailedCharges != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.ChargedCents != 2900 {
		t.Fatalf("expected charged 2900, got %d", out.ChargedCents)
	}
	if out.FailedCents != 900 {
		t.Fatalf("expected failed 900, got %d", out.FailedCents)
	}
	if out.SoftCapCents != 2600 || out.HardCapCents != 300 || out.HardCapResets != 1 {
		t.Fatalf("unexpected per-reason totals: %+v", out)
	}
}

func TestReporting_RejectsBadRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()
	_, err := svc.ChargeSummary(context.Background(), ChargeSummaryRequest{UserID: "u", Range: TimeRange{From: now, To: now}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	_, err = svc.ChargeSummary(context.Background(), ChargeSummaryRequest{Range: window(now)})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for missing user, got %v", err)
	}
}
