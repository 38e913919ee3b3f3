package ledger

import (
	"time"

	"comms-platform/internal/billing"
)

// BillingState is the per-user international spend state.
//
// Invariants:
// - SpendSinceLastChargeCents and SpendThisCycleCents are never negative.
// - SpendSinceLastChargeCents only decreases through a confirmed hard-cap payment (reset to 0).
type BillingState struct {
	UserID                    string           `json:"userId" db:"id"`
	PlanTier                  billing.PlanTier `json:"planTier" db:"plan_tier"`
	PaymentMethodAttached     bool             `json:"paymentMethodAttached" db:"stripe_payment_method_attached"`
	BlockedReason             string           `json:"blockedReason,omitempty" db:"intl_blocked_reason"`
	SpendSinceLastChargeCents int64            `json:"intlSpendSinceChargeCents" db:"intl_spend_since_charge_cents"`
	SpendThisCycleCents       int64            `json:"intlSpendCycleCents" db:"intl_spend_cycle_cents"`
	PaymentCustomerRef        string           `json:"-" db:"stripe_customer_id"`
	UpdatedAt                 time.Time        `json:"updatedAt" db:"updated_at"`
}

func (s BillingState) Blocked() bool { return s.BlockedReason != "" }

// ChargeStatus tracks one pre-charge invoice through provider confirmation.
type ChargeStatus string

const (
	// ChargeCharged: the synchronous pay call returned paid; no webhook seen yet.
	ChargeCharged ChargeStatus = "charged"
	// ChargePaid: invoice.paid observed.
	ChargePaid ChargeStatus = "paid"
	// ChargePaymentFailed: the pay call or invoice.payment_failed reported failure.
	ChargePaymentFailed ChargeStatus = "payment_failed"
)

// ChargeRecord joins a provider invoice to the cap that triggered it.
// Webhook reconciliation reads Reason from here instead of parsing line item text.
type ChargeRecord struct {
	InvoiceID   string               `db:"invoice_id"`
	UserID      string               `db:"user_id"`
	Reason      billing.ChargeReason `db:"reason"`
	AmountCents int64                `db:"amount_cents"`
	Status      ChargeStatus         `db:"status"`

	// SpendRecordedAt is set once the charged amount was added to the counters.
	SpendRecordedAt *time.Time `db:"spend_recorded_at"`
	// ResetAppliedAt is set once a hard-cap payment zeroed the since-charge counter.
	ResetAppliedAt *time.Time `db:"reset_applied_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// InvoiceEventType is the subset of provider events the ledger reconciles.
type InvoiceEventType string

const (
	InvoicePaid          InvoiceEventType = "invoice.paid"
	InvoicePaymentFailed InvoiceEventType = "invoice.payment_failed"
)

// InvoiceEvent is a provider-agnostic webhook notification.
type InvoiceEvent struct {
	EventID              string
	Type                 InvoiceEventType
	InvoiceID            string
	CustomerRef          string
	LineItemDescriptions []string
}

// Outcome describes what reconciliation did. Used for logs, metrics and tests.
type Outcome struct {
	UserID       string
	Duplicate    bool
	Ignored      bool
	Stale        bool
	ResetApplied bool
	Unblocked    bool
	Blocked      bool
}
