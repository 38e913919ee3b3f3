package audit

import "time"

// Event is an immutable, append-only audit log record of a billing-relevant action.
//
// Invariants:
// - Events are never updated or deleted.
// - user_id is required; it is the account whose billing state changed.
// - Audit is best-effort: callers never fail a send or a webhook because of it.
type Event struct {
	ID     string    `json:"id" db:"id"`
	UserID string    `json:"user_id" db:"user_id"`
	Type   EventType `json:"type" db:"type"`

	// ActorUserID is set for operator actions (admin unblock, cycle reset).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	InvoiceID   string `json:"invoice_id,omitempty" db:"invoice_id"`
	AmountCents int64  `json:"amount_cents,omitempty" db:"amount_cents"`
	Reason      string `json:"reason,omitempty" db:"reason"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventChargeSucceeded  EventType = "charge_succeeded"
	EventChargeFailed     EventType = "charge_failed"
	EventAccountBlocked   EventType = "account_blocked"
	EventAccountUnblocked EventType = "account_unblocked"
	EventHardCapReset     EventType = "hardcap_reset"
	EventCycleReset       EventType = "cycle_reset"
)
