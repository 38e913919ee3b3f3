package ledger

import (
	"context"
	"time"
)

// Store is the billing state persistence contract.
// All mutations go through WithTx so a unit of work commits or rolls back as a whole.
// WithTx may run fn more than once, so fn must reset any state it captures.
type Store interface {
	GetUser(ctx context.Context, userID string) (BillingState, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view of the store.
//
// Implementations must serialize concurrent transactions that touch the same user row
// (SELECT ... FOR UPDATE in Postgres, a mutex in memory).
// Lock order is always the user row, then its charge records.
type Tx interface {
	GetUserForUpdate(ctx context.Context, userID string) (BillingState, error)
	FindUserByCustomerRefForUpdate(ctx context.Context, customerRef string) (BillingState, bool, error)

	// IncrementSpend atomically adds to both counters and returns the new state.
	IncrementSpend(ctx context.Context, userID string, sinceDelta, cycleDelta int64, now time.Time) (BillingState, error)
	SetBlockedReason(ctx context.Context, userID, reason string, now time.Time) error
	ResetSpendSinceLastCharge(ctx context.Context, userID string, now time.Time) error
	ResetSpendThisCycle(ctx context.Context, userID string, now time.Time) error

	// ChargeRecordOwner reads the owning user of an invoice without locking the record.
	// Callers lock the user row first and then re-read the record with GetChargeRecordForUpdate.
	ChargeRecordOwner(ctx context.Context, invoiceID string) (string, bool, error)
	GetChargeRecordForUpdate(ctx context.Context, invoiceID string) (ChargeRecord, bool, error)
	// UpsertChargeRecord never clears a recorded spend or reset timestamp, nor a known amount.
	UpsertChargeRecord(ctx context.Context, rec ChargeRecord) error
	// HasOtherFailedCharges reports unresolved payment failures on invoices other than exceptInvoiceID.
	HasOtherFailedCharges(ctx context.Context, userID, exceptInvoiceID string) (bool, error)

	// MarkEventProcessed records a webhook delivery; false means it was already processed.
	MarkEventProcessed(ctx context.Context, eventID string, typ InvoiceEventType, invoiceID string, now time.Time) (bool, error)
}
