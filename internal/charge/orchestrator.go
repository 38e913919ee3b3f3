package charge

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"comms-platform/internal/billing"
	"comms-platform/internal/ledger"
	"comms-platform/internal/metrics"
	"comms-platform/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrChargeFailed covers every charge that did not end in a synchronously paid invoice.
	ErrChargeFailed    = errors.New("charge: payment failed")
	ErrNoCustomer      = errors.New("charge: user has no payment customer")
	ErrInvalidArgument = errors.New("charge: invalid argument")
)

// Step names the provider call that failed.
type Step string

const (
	StepInvoiceItem Step = "invoice_item"
	StepInvoice     Step = "invoice"
	StepFinalize    Step = "finalize"
	StepPay         Step = "pay"
)

// Error is returned for provider-side failures. It matches ErrChargeFailed.
// InvoiceID is set once the invoice exists so the caller can record it.
type Error struct {
	Step      Step
	InvoiceID string
	Status    string
	Err       error
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("charge: %s: invoice %s status %q", e.Step, e.InvoiceID, e.Status)
	}
	return fmt.Sprintf("charge: %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrChargeFailed }

// CustomerLookup resolves the payment customer of a user.
type CustomerLookup interface {
	GetState(ctx context.Context, userID string) (ledger.BillingState, error)
}

// Orchestrator performs immediate international pre-charges.
//
// The sequence is strictly ordered and every step is checked:
// draft invoice -> invoice item bound to it -> finalize -> pay. Only a "paid" status is success.
// It never touches billing state; recording success or failure is the caller's job.
type Orchestrator struct {
	provider PaymentProvider
	users    CustomerLookup
	currency string
}

func NewOrchestrator(provider PaymentProvider, users CustomerLookup) *Orchestrator {
	return &Orchestrator{provider: provider, users: users, currency: "usd"}
}

// Description is the invoice line text. It keeps the reason readable for operators
// and for reconciling invoices that predate charge records.
func Description(reason billing.ChargeReason) string {
	return fmt.Sprintf("International SMS precharge (%s)", reason)
}

// ChargeNow charges amountCents to the user's default payment method and returns the invoice id.
func (o *Orchestrator) ChargeNow(ctx context.Context, userID string, amountCents int64, reason billing.ChargeReason) (string, error) {
	if userID == "" || amountCents <= 0 || !reason.Valid() {
		return "", ErrInvalidArgument
	}
	st, err := o.users.GetState(ctx, userID)
	if err != nil {
		return "", err
	}
	if st.PaymentCustomerRef == "" {
		return "", ErrNoCustomer
	}

	log := logger.From(ctx).With("user_id", userID, "amount_cents", amountCents, "reason", reason)
	attempt := uuid.NewString()
	meta := map[string]string{
		"user_id":       userID,
		"charge_reason": string(reason),
		"amount_cents":  strconv.FormatInt(amountCents, 10),
		"attempt_id":    attempt,
	}
	desc := Description(reason)

	fail := func(e *Error) (string, error) {
		metrics.ChargesTotal.WithLabelValues(string(reason), "failed").Inc()
		log.Error("intl charge failed", "step", e.Step, "invoice_id", e.InvoiceID, "status", e.Status, "err", e.Err)
		return e.InvoiceID, e
	}

	invoiceID, err := o.provider.CreateInvoice(ctx, InvoiceParams{
		CustomerRef:    st.PaymentCustomerRef,
		Description:    desc,
		Metadata:       meta,
		IdempotencyKey: attempt + ":invoice",
	})
	if err != nil {
		return fail(&Error{Step: StepInvoice, Err: err})
	}
	if invoiceID == "" {
		return fail(&Error{Step: StepInvoice, Err: errors.New("provider returned empty invoice id")})
	}

	// An item failure leaves an empty draft that is never finalized, so nothing is billed.
	if _, err := o.provider.CreateInvoiceItem(ctx, InvoiceItemParams{
		CustomerRef:    st.PaymentCustomerRef,
		InvoiceID:      invoiceID,
		AmountCents:    amountCents,
		Currency:       o.currency,
		Description:    desc,
		Metadata:       meta,
		IdempotencyKey: attempt + ":item",
	}); err != nil {
		log.Warn("draft invoice left without items", "invoice_id", invoiceID)
		return fail(&Error{Step: StepInvoiceItem, Err: err})
	}

	if err := o.provider.FinalizeInvoice(ctx, invoiceID); err != nil {
		return fail(&Error{Step: StepFinalize, InvoiceID: invoiceID, Err: err})
	}

	status, err := o.provider.PayInvoice(ctx, invoiceID)
	if err != nil {
		return fail(&Error{Step: StepPay, InvoiceID: invoiceID, Err: err})
	}
	if status != StatusPaid {
		return fail(&Error{Step: StepPay, InvoiceID: invoiceID, Status: status, Err: ErrChargeFailed})
	}

	metrics.ChargesTotal.WithLabelValues(string(reason), "paid").Inc()
	metrics.ChargedCentsTotal.Add(float64(amountCents))
	log.Info("intl charge paid", "invoice_id", invoiceID)
	return invoiceID, nil
}
