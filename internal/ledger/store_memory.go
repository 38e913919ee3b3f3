package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and the local profile.
// Transactions are serialized by a single mutex and roll back on error.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]BillingState
	charges map[string]ChargeRecord
	events  map[string]struct{}

	// failures injects errors by operation name, e.g. "IncrementSpend".
	failures map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    map[string]BillingState{},
		charges:  map[string]ChargeRecord{},
		events:   map[string]struct{}{},
		failures: map[string]error{},
	}
}

// PutUser seeds or replaces a user row.
func (s *MemoryStore) PutUser(u BillingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

// ChargeRecord returns the stored record for invoiceID.
func (s *MemoryStore) ChargeRecord(invoiceID string) (ChargeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.charges[invoiceID]
	return r, ok
}

// ListChargeRecords returns a user's charge records created in [from, to), oldest first.
func (s *MemoryStore) ListChargeRecords(_ context.Context, userID string, from, to time.Time) ([]ChargeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["ListChargeRecords"]; err != nil {
		return nil, err
	}
	out := make([]ChargeRecord, 0)
	for _, r := range s.charges {
		if r.UserID != userID || r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].InvoiceID < out[j].InvoiceID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (BillingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["GetUser"]; err != nil {
		return BillingState{}, err
	}
	u, ok := s.users[userID]
	if !ok {
		return BillingState{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make(map[string]BillingState, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	charges := make(map[string]ChargeRecord, len(s.charges))
	for k, v := range s.charges {
		charges[k] = v
	}
	events := make(map[string]struct{}, len(s.events))
	for k := range s.events {
		events[k] = struct{}{}
	}

	if err := fn(ctx, memoryTx{s: s}); err != nil {
		s.users, s.charges, s.events = users, charges, events
		return err
	}
	return nil
}

// memoryTx runs with MemoryStore.mu held.
type memoryTx struct {
	s *MemoryStore
}

func (t memoryTx) fail(op string) error { return t.s.failures[op] }

func (t memoryTx) GetUserForUpdate(_ context.Context, userID string) (BillingState, error) {
	if err := t.fail("GetUserForUpdate"); err != nil {
		return BillingState{}, err
	}
	u, ok := t.s.users[userID]
	if !ok {
		return BillingState{}, ErrUserNotFound
	}
	return u, nil
}

func (t memoryTx) FindUserByCustomerRefForUpdate(_ context.Context, customerRef string) (BillingState, bool, error) {
	if err := t.fail("FindUserByCustomerRefForUpdate"); err != nil {
		return BillingState{}, false, err
	}
	for _, u := range t.s.users {
		if customerRef != "" && u.PaymentCustomerRef == customerRef {
			return u, true, nil
		}
	}
	return BillingState{}, false, nil
}

func (t memoryTx) IncrementSpend(_ context.Context, userID string, sinceDelta, cycleDelta int64, now time.Time) (BillingState, error) {
	if err := t.fail("IncrementSpend"); err != nil {
		return BillingState{}, err
	}
	u, ok := t.s.users[userID]
	if !ok {
		return BillingState{}, ErrUserNotFound
	}
	u.SpendSinceLastChargeCents += sinceDelta
	u.SpendThisCycleCents += cycleDelta
	if u.SpendSinceLastChargeCents < 0 || u.SpendThisCycleCents < 0 {
		return BillingState{}, ErrInvalidArgument
	}
	u.UpdatedAt = now
	t.s.users[userID] = u
	return u, nil
}

func (t memoryTx) SetBlockedReason(_ context.Context, userID, reason string, now time.Time) error {
	if err := t.fail("SetBlockedReason"); err != nil {
		return err
	}
	u, ok := t.s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.BlockedReason = reason
	u.UpdatedAt = now
	t.s.users[userID] = u
	return nil
}

func (t memoryTx) ResetSpendSinceLastCharge(_ context.Context, userID string, now time.Time) error {
	if err := t.fail("ResetSpendSinceLastCharge"); err != nil {
		return err
	}
	u, ok := t.s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.SpendSinceLastChargeCents = 0
	u.UpdatedAt = now
	t.s.users[userID] = u
	return nil
}

func (t memoryTx) ResetSpendThisCycle(_ context.Context, userID string, now time.Time) error {
	if err := t.fail("ResetSpendThisCycle"); err != nil {
		return err
	}
	u, ok := t.s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.SpendThisCycleCents = 0
	u.UpdatedAt = now
	t.s.users[userID] = u
	return nil
}

func (t memoryTx) ChargeRecordOwner(_ context.Context, invoiceID string) (string, bool, error) {
	if err := t.fail("ChargeRecordOwner"); err != nil {
		return "", false, err
	}
	r, ok := t.s.charges[invoiceID]
	return r.UserID, ok, nil
}

func (t memoryTx) GetChargeRecordForUpdate(_ context.Context, invoiceID string) (ChargeRecord, bool, error) {
	if err := t.fail("GetChargeRecordForUpdate"); err != nil {
		return ChargeRecord{}, false, err
	}
	r, ok := t.s.charges[invoiceID]
	return r, ok, nil
}

func (t memoryTx) UpsertChargeRecord(_ context.Context, rec ChargeRecord) error {
	if err := t.fail("UpsertChargeRecord"); err != nil {
		return err
	}
	if prev, ok := t.s.charges[rec.InvoiceID]; ok {
		rec.CreatedAt = prev.CreatedAt
		if rec.SpendRecordedAt == nil {
			rec.SpendRecordedAt = prev.SpendRecordedAt
		}
		if rec.ResetAppliedAt == nil {
			rec.ResetAppliedAt = prev.ResetAppliedAt
		}
		if rec.AmountCents == 0 {
			rec.AmountCents = prev.AmountCents
		}
	}
	t.s.charges[rec.InvoiceID] = rec
	return nil
}

func (t memoryTx) HasOtherFailedCharges(_ context.Context, userID, exceptInvoiceID string) (bool, error) {
	if err := t.fail("HasOtherFailedCharges"); err != nil {
		return false, err
	}
	for id, r := range t.s.charges {
		if id != exceptInvoiceID && r.UserID == userID && r.Status == ChargePaymentFailed {
			return true, nil
		}
	}
	return false, nil
}

func (t memoryTx) MarkEventProcessed(_ context.Context, eventID string, _ InvoiceEventType, _ string, _ time.Time) (bool, error) {
	if err := t.fail("MarkEventProcessed"); err != nil {
		return false, err
	}
	if _, ok := t.s.events[eventID]; ok {
		return false, nil
	}
	t.s.events[eventID] = struct{}{}
	return true, nil
}
