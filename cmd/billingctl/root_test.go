package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"comms-platform/internal/audit"
	"comms-platform/internal/billing"
	"comms-platform/internal/ledger"
)

func memoryBackend(t *testing.T) (openFunc, *ledger.MemoryStore, *audit.MemoryRepo) {
	t.Helper()
	store := ledger.NewMemoryStore()
	store.PutUser(ledger.BillingState{
		UserID:                    "u1",
		PlanTier:                  billing.PlanBusiness,
		PaymentMethodAttached:     true,
		BlockedReason:             billing.BlockedPaymentFailed,
		SpendSinceLastChargeCents: 400,
		SpendThisCycleCents:       2500,
	})
	repo := audit.NewMemoryRepo()
	svc := ledger.NewService(store, audit.NewService(repo))
	open := func(context.Context) (*backend, error) {
		return &backend{ledger: svc}, nil
	}
	return open, store, repo
}

func run(t *testing.T, open openFunc, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShow(t *testing.T) {
	open, _, _ := memoryBackend(t)

	out, err := run(t, open, "show", "u1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "payment_failed") || !strings.Contains(out, "2500 cents") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, err = run(t, open, "show", "u1", "--json")
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	var st ledger.BillingState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.SpendSinceLastChargeCents != 400 {
		t.Fatalf("expected 400 since-charge cents, got %d", st.SpendSinceLastChargeCents)
	}
}

func TestShow_UnknownUser(t *testing.T) {
	open, _, _ := memoryBackend(t)
	if _, err := run(t, open, "show", "nobody"); !errors.Is(err, ledger.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUnblockRecordsActor(t *testing.T) {
	open, _, repo := memoryBackend(t)

	if _, err := run(t, open, "unblock", "u1", "--actor", "ops-42"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	out, err := run(t, open, "show", "u1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(out, "payment_failed") {
		t.Fatalf("expected unblocked user, got:\n%s", out)
	}

	events := repo.OfType(audit.EventAccountUnblocked)
	if len(events) != 1 || events[0].ActorUserID != "ops-42" {
		t.Fatalf("expected one unblock audit event by ops-42, got %+v", events)
	}
}

func TestResetCycleKeepsSinceChargeCounter(t *testing.T) {
	open, _, _ := memoryBackend(t)

	if _, err := run(t, open, "reset-cycle", "u1"); err != nil {
		t.Fatalf("reset-cycle: %v", err)
	}
	out, err := run(t, open, "show", "u1", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var st ledger.BillingState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.SpendThisCycleCents != 0 || st.SpendSinceLastChargeCents != 400 {
		t.Fatalf("unexpected counters after reset: %+v", st)
	}
}

func TestMigrateWithoutDatabase(t *testing.T) {
	open, _, _ := memoryBackend(t)
	if _, err := run(t, open, "migrate"); err == nil {
		t.Fatalf("expected error without database")
	}

	calls := 0
	withDB := func(context.Context) (*backend, error) {
		return &backend{migrate: func(context.Context) error { calls++; return nil }}, nil
	}
	out, err := run(t, withDB, "migrate")
	if err != nil || calls != 1 || !strings.Contains(out, "schema up to date") {
		t.Fatalf("migrate: calls=%d err=%v out=%q", calls, err, out)
	}
}

func TestArgsValidated(t *testing.T) {
	open, _, _ := memoryBackend(t)
	if _, err := run(t, open, "unblock"); err == nil {
		t.Fatalf("expected missing user_id error")
	}
}
