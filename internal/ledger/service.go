package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"comms-platform/internal/audit"
	"comms-platform/internal/billing"
	"comms-platform/pkg/logger"
)

// Service owns every mutation of international spend state.
//
// Money invariants:
// - Counter changes happen inside a store transaction together with the charge record.
// - The since-charge counter is reset only by a confirmed payment of a hard-cap charge,
//   at most once per invoice no matter how often the confirmation is delivered.
// - A payment failure blocks the account until a later payment succeeds or an operator unblocks.
type Service struct {
	store Store
	audit *audit.Service
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, auditSvc *audit.Service) *Service {
	return &Service{store: store, audit: auditSvc, clock: time.Now}
}

var (
	ErrUserNotFound    = errors.New("ledger: user not found")
	ErrStorage         = errors.New("ledger: storage failure")
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// errChargeOwnerChanged rolls back the delivery so the provider retries it.
	errChargeOwnerChanged = errors.New("ledger: charge record owner changed")
)

// ChargeReceipt is a successful immediate charge.
type ChargeReceipt struct {
	UserID      string
	InvoiceID   string
	AmountCents int64
	Reason      billing.ChargeReason
}

// FailedCharge is a charge attempt that did not end in a paid invoice.
// InvoiceID is empty when the failure happened before an invoice existed.
type FailedCharge struct {
	UserID      string
	InvoiceID   string
	AmountCents int64
	Reason      billing.ChargeReason
}

func (s *Service) GetState(ctx context.Context, userID string) (BillingState, error) {
	if userID == "" {
		return BillingState{}, ErrInvalidArgument
	}
	st, err := s.store.GetUser(ctx, userID)
	return st, wrapStoreErr(err)
}

// RecordCharge adds a charged amount to both counters and persists the invoice's cap reason.
// Replaying the same invoice is a no-op.
func (s *Service) RecordCharge(ctx context.Context, r ChargeReceipt) (BillingState, error) {
	if r.UserID == "" || r.InvoiceID == "" || r.AmountCents <= 0 || !r.Reason.Valid() {
		return BillingState{}, ErrInvalidArgument
	}
	now := s.clock().UTC()

	var out BillingState
	var resetApplied bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		resetApplied = false
		u, err := tx.GetUserForUpdate(ctx, r.UserID)
		if err != nil {
			return err
		}

		rec, found, err := tx.GetChargeRecordForUpdate(ctx, r.InvoiceID)
		if err != nil {
			return err
		}
		if found && rec.SpendRecordedAt != nil {
			out = u
			return nil
		}
		if !found {
			rec = ChargeRecord{InvoiceID: r.InvoiceID, Status: ChargeCharged, CreatedAt: now}
		}
		rec.UserID = r.UserID
		rec.Reason = r.Reason
		rec.AmountCents = r.AmountCents
		rec.SpendRecordedAt = &now
		rec.UpdatedAt = now

		// A hard-cap reset that already ran for this invoice covers this charge.
		sinceDelta := r.AmountCents
		if rec.ResetAppliedAt != nil {
			sinceDelta = 0
		}
		u, err = tx.IncrementSpend(ctx, r.UserID, sinceDelta, r.AmountCents, now)
		if err != nil {
			return err
		}

		// invoice.paid arrived before this charge was recorded and could not reset then.
		if rec.Status == ChargePaid && rec.Reason == billing.ReasonHardCapAccum && rec.ResetAppliedAt == nil {
			if err := tx.ResetSpendSinceLastCharge(ctx, r.UserID, now); err != nil {
				return err
			}
			rec.ResetAppliedAt = &now
			u.SpendSinceLastChargeCents = 0
			resetApplied = true
		}

		if err := tx.UpsertChargeRecord(ctx, rec); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return BillingState{}, wrapStoreErr(err)
	}

	logger.From(ctx).Info("intl charge recorded",
		"user_id", r.UserID,
		"invoice_id", r.InvoiceID,
		"amount_cents", r.AmountCents,
		"reason", r.Reason,
		"since_charge_cents", out.SpendSinceLastChargeCents,
	)
	s.audit.Record(ctx, audit.Event{
		UserID:      r.UserID,
		Type:        audit.EventChargeSucceeded,
		InvoiceID:   r.InvoiceID,
		AmountCents: r.AmountCents,
		Reason:      string(r.Reason),
	})
	if resetApplied {
		s.audit.Record(ctx, audit.Event{UserID: r.UserID, Type: audit.EventHardCapReset, InvoiceID: r.InvoiceID})
	}
	return out, nil
}

// RecordSpend accumulates international spend that did not require an immediate charge.
func (s *Service) RecordSpend(ctx context.Context, userID string, cents int64) (BillingState, error) {
	if userID == "" || cents < 0 {
		return BillingState{}, ErrInvalidArgument
	}
	if cents == 0 {
		return s.GetState(ctx, userID)
	}
	now := s.clock().UTC()

	var out BillingState
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.IncrementSpend(ctx, userID, cents, cents, now)
		out = u
		return err
	})
	if err != nil {
		return BillingState{}, wrapStoreErr(err)
	}
	return out, nil
}

// MarkPaymentFailed blocks the account after a failed immediate charge.
func (s *Service) MarkPaymentFailed(ctx context.Context, f FailedCharge) error {
	if f.UserID == "" {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()

	var alreadyPaid bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		alreadyPaid = false
		if _, err := tx.GetUserForUpdate(ctx, f.UserID); err != nil {
			return err
		}
		if f.InvoiceID != "" {
			rec, found, err := tx.GetChargeRecordForUpdate(ctx, f.InvoiceID)
			if err != nil {
				return err
			}
			if found && rec.Status == ChargePaid {
				// The provider already confirmed this invoice; our call lost the answer.
				alreadyPaid = true
				return nil
			}
			if !found {
				rec = ChargeRecord{InvoiceID: f.InvoiceID, UserID: f.UserID, CreatedAt: now}
			}
			rec.Reason = f.Reason
			rec.AmountCents = f.AmountCents
			rec.Status = ChargePaymentFailed
			rec.UpdatedAt = now
			if err := tx.UpsertChargeRecord(ctx, rec); err != nil {
				return err
			}
		}
		return tx.SetBlockedReason(ctx, f.UserID, billing.BlockedPaymentFailed, now)
	})
	if err != nil {
		return wrapStoreErr(err)
	}
	if alreadyPaid {
		logger.From(ctx).Warn("charge failure reported for an invoice already confirmed paid",
			"user_id", f.UserID, "invoice_id", f.InvoiceID)
		return nil
	}

	logger.From(ctx).Info("intl account blocked", "user_id", f.UserID, "invoice_id", f.InvoiceID, "reason", billing.BlockedPaymentFailed)
	s.audit.Record(ctx, audit.Event{
		UserID:      f.UserID,
		Type:        audit.EventChargeFailed,
		InvoiceID:   f.InvoiceID,
		AmountCents: f.AmountCents,
		Reason:      string(f.Reason),
	})
	s.audit.Record(ctx, audit.Event{UserID: f.UserID, Type: audit.EventAccountBlocked, InvoiceID: f.InvoiceID, Reason: billing.BlockedPaymentFailed})
	return nil
}

// Unblock clears the blocked reason on operator request.
func (s *Service) Unblock(ctx context.Context, userID, actorUserID, actorRole string) (BillingState, error) {
	if userID == "" {
		return BillingState{}, ErrInvalidArgument
	}
	now := s.clock().UTC()

	var out BillingState
	var previous string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		previous = u.BlockedReason
		if u.BlockedReason != "" {
			if err := tx.SetBlockedReason(ctx, userID, "", now); err != nil {
				return err
			}
			u.BlockedReason = ""
			u.UpdatedAt = now
		}
		out = u
		return nil
	})
	if err != nil {
		return BillingState{}, wrapStoreErr(err)
	}
	if previous != "" {
		logger.From(ctx).Info("intl account unblocked", "user_id", userID, "previous_reason", previous, "actor_user_id", actorUserID)
		s.audit.Record(ctx, audit.Event{
			UserID:      userID,
			Type:        audit.EventAccountUnblocked,
			ActorUserID: actorUserID,
			ActorRole:   actorRole,
			Reason:      previous,
		})
	}
	return out, nil
}

// ResetCycle zeroes the billing-cycle counter at cycle rollover.
func (s *Service) ResetCycle(ctx context.Context, userID, actorUserID, actorRole string) (BillingState, error) {
	if userID == "" {
		return BillingState{}, ErrInvalidArgument
	}
	now := s.clock().UTC()

	var out BillingState
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.ResetSpendThisCycle(ctx, userID, now); err != nil {
			return err
		}
		u.SpendThisCycleCents = 0
		u.UpdatedAt = now
		out = u
		return nil
	})
	if err != nil {
		return BillingState{}, wrapStoreErr(err)
	}
	s.audit.Record(ctx, audit.Event{UserID: userID, Type: audit.EventCycleReset, ActorUserID: actorUserID, ActorRole: actorRole})
	return out, nil
}

// ApplyInvoiceEvent reconciles a payment provider notification.
//
// Deliveries are at-least-once and unordered:
// - a repeated event id is acknowledged without effect;
// - a hard-cap reset is applied once per invoice, keyed on the charge record;
// - a failure for an invoice already known to be paid is stale and ignored.
func (s *Service) ApplyInvoiceEvent(ctx context.Context, ev InvoiceEvent) (Outcome, error) {
	if ev.EventID == "" || ev.InvoiceID == "" {
		return Outcome{}, ErrInvalidArgument
	}
	if ev.Type != InvoicePaid && ev.Type != InvoicePaymentFailed {
		return Outcome{Ignored: true}, nil
	}
	now := s.clock().UTC()

	var out Outcome
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		out = Outcome{}
		fresh, err := tx.MarkEventProcessed(ctx, ev.EventID, ev.Type, ev.InvoiceID, now)
		if err != nil {
			return err
		}
		if !fresh {
			out.Duplicate = true
			return nil
		}

		// Lock the user row before the charge record, the same order RecordCharge uses.
		owner, owned, err := tx.ChargeRecordOwner(ctx, ev.InvoiceID)
		if err != nil {
			return err
		}
		var u BillingState
		if owned {
			u, err = tx.GetUserForUpdate(ctx, owner)
			if err != nil {
				return err
			}
		} else {
			var ok bool
			u, ok, err = tx.FindUserByCustomerRefForUpdate(ctx, ev.CustomerRef)
			if err != nil {
				return err
			}
			if !ok {
				out.Ignored = true
				return nil
			}
		}

		// Re-read under the user lock: a charge recorded meanwhile is now visible.
		rec, found, err := tx.GetChargeRecordForUpdate(ctx, ev.InvoiceID)
		if err != nil {
			return err
		}
		if found && rec.UserID != u.UserID {
			return fmt.Errorf("%w: invoice %s owned by another user", errChargeOwnerChanged, ev.InvoiceID)
		}
		if !found {
			// Invoices without a charge record fall back to the line item text.
			if reason := reasonFromDescriptions(ev.LineItemDescriptions); reason.Valid() {
				rec = ChargeRecord{InvoiceID: ev.InvoiceID, UserID: u.UserID, Reason: reason, CreatedAt: now}
				found = true
			}
		}
		out.UserID = u.UserID
		rec.InvoiceID = ev.InvoiceID

		switch ev.Type {
		case InvoicePaid:
			return s.applyPaid(ctx, tx, &out, u, rec, found, now)
		default:
			return s.applyFailed(ctx, tx, &out, u, rec, found, now)
		}
	})
	if err != nil {
		return Outcome{}, wrapStoreErr(err)
	}

	log := logger.From(ctx)
	log.Info("invoice event reconciled",
		"event_id", ev.EventID,
		"type", ev.Type,
		"invoice_id", ev.InvoiceID,
		"user_id", out.UserID,
		"duplicate", out.Duplicate,
		"ignored", out.Ignored,
		"stale", out.Stale,
		"reset_applied", out.ResetApplied,
		"unblocked", out.Unblocked,
		"blocked", out.Blocked,
	)
	if out.ResetApplied {
		s.audit.Record(ctx, audit.Event{UserID: out.UserID, Type: audit.EventHardCapReset, InvoiceID: ev.InvoiceID})
	}
	if out.Unblocked {
		s.audit.Record(ctx, audit.Event{UserID: out.UserID, Type: audit.EventAccountUnblocked, InvoiceID: ev.InvoiceID, Reason: billing.BlockedPaymentFailed})
	}
	if out.Blocked {
		s.audit.Record(ctx, audit.Event{UserID: out.UserID, Type: audit.EventAccountBlocked, InvoiceID: ev.InvoiceID, Reason: billing.BlockedPaymentFailed})
	}
	return out, nil
}

func (s *Service) applyPaid(ctx context.Context, tx Tx, out *Outcome, u BillingState, rec ChargeRecord, found bool, now time.Time) error {
	if found {
		rec.Status = ChargePaid
		rec.UpdatedAt = now
		// Reset only once the charged amount is on the counters; RecordCharge finishes it otherwise.
		if rec.Reason == billing.ReasonHardCapAccum && rec.ResetAppliedAt == nil && rec.SpendRecordedAt != nil {
			if err := tx.ResetSpendSinceLastCharge(ctx, u.UserID, now); err != nil {
				return err
			}
			rec.ResetAppliedAt = &now
			out.ResetApplied = true
		}
		if err := tx.UpsertChargeRecord(ctx, rec); err != nil {
			return err
		}
	}

	if u.BlockedReason == billing.BlockedPaymentFailed {
		other, err := tx.HasOtherFailedCharges(ctx, u.UserID, rec.InvoiceID)
		if err != nil {
			return err
		}
		if !other {
			if err := tx.SetBlockedReason(ctx, u.UserID, "", now); err != nil {
				return err
			}
			out.Unblocked = true
		}
	}
	return nil
}

func (s *Service) applyFailed(ctx context.Context, tx Tx, out *Outcome, u BillingState, rec ChargeRecord, found bool, now time.Time) error {
	if found {
		if rec.Status == ChargePaid || rec.Status == ChargeCharged {
			out.Stale = true
			return nil
		}
		rec.Status = ChargePaymentFailed
		rec.UpdatedAt = now
		if err := tx.UpsertChargeRecord(ctx, rec); err != nil {
			return err
		}
	}
	if u.BlockedReason != billing.BlockedPaymentFailed {
		if err := tx.SetBlockedReason(ctx, u.UserID, billing.BlockedPaymentFailed, now); err != nil {
			return err
		}
		out.Blocked = true
	}
	return nil
}

func reasonFromDescriptions(descs []string) billing.ChargeReason {
	reason := billing.ReasonNone
	for _, d := range descs {
		if strings.Contains(d, string(billing.ReasonHardCapAccum)) {
			return billing.ReasonHardCapAccum
		}
		if strings.Contains(d, string(billing.ReasonSoftCapPerSend)) {
			reason = billing.ReasonSoftCapPerSend
		}
	}
	return reason
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
