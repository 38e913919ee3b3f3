package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"comms-platform/internal/billing"
	"comms-platform/pkg/utils"
)

// PostgresStore keeps billing state in the users table and its side tables.
// Counter updates are single UPDATE ... SET x = x + $n statements; rows are locked
// with SELECT ... FOR UPDATE before read-modify-write sequences.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const userColumns = `id, plan_tier, stripe_payment_method_attached, COALESCE(intl_blocked_reason, ''),
       intl_spend_since_charge_cents, intl_spend_cycle_cents, COALESCE(stripe_customer_id, ''), updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (BillingState, error) {
	var u BillingState
	var plan string
	if err := row.Scan(
		&u.UserID,
		&plan,
		&u.PaymentMethodAttached,
		&u.BlockedReason,
		&u.SpendSinceLastChargeCents,
		&u.SpendThisCycleCents,
		&u.PaymentCustomerRef,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BillingState{}, ErrUserNotFound
		}
		return BillingState{}, err
	}
	u.PlanTier = billing.ParsePlanTier(plan)
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (BillingState, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, q, userID))
}

// ListChargeRecords returns a user's charge records created in [from, to), oldest first.
func (s *PostgresStore) ListChargeRecords(ctx context.Context, userID string, from, to time.Time) ([]ChargeRecord, error) {
	q := `SELECT ` + chargeColumns + ` FROM intl_charge_records
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at, invoice_id`
	rows, err := s.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ChargeRecord, 0)
	for rows.Next() {
		r, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, postgresTx{tx: tx})
	})
}

type postgresTx struct {
	tx *sql.Tx
}

func (t postgresTx) GetUserForUpdate(ctx context.Context, userID string) (BillingState, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(t.tx.QueryRowContext(ctx, q, userID))
}

func (t postgresTx) FindUserByCustomerRefForUpdate(ctx context.Context, customerRef string) (BillingState, bool, error) {
	if customerRef == "" {
		return BillingState{}, false, nil
	}
	q := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1 FOR UPDATE`
	u, err := scanUser(t.tx.QueryRowContext(ctx, q, customerRef))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return BillingState{}, false, nil
		}
		return BillingState{}, false, err
	}
	return u, true, nil
}

func (t postgresTx) IncrementSpend(ctx context.Context, userID string, sinceDelta, cycleDelta int64, now time.Time) (BillingState, error) {
	q := `
UPDATE users
SET intl_spend_since_charge_cents = intl_spend_since_charge_cents + $2,
    intl_spend_cycle_cents = intl_spend_cycle_cents + $3,
    updated_at = $4
WHERE id = $1
RETURNING ` + userColumns
	return scanUser(t.tx.QueryRowContext(ctx, q, userID, sinceDelta, cycleDelta, now))
}

func (t postgresTx) SetBlockedReason(ctx context.Context, userID, reason string, now time.Time) error {
	const q = `UPDATE users SET intl_blocked_reason = NULLIF($2, ''), updated_at = $3 WHERE id = $1`
	return execOne(ctx, t.tx, q, userID, reason, now)
}

func (t postgresTx) ResetSpendSinceLastCharge(ctx context.Context, userID string, now time.Time) error {
	const q = `UPDATE users SET intl_spend_since_charge_cents = 0, updated_at = $2 WHERE id = $1`
	return execOne(ctx, t.tx, q, userID, now)
}

func (t postgresTx) ResetSpendThisCycle(ctx context.Context, userID string, now time.Time) error {
	const q = `UPDATE users SET intl_spend_cycle_cents = 0, updated_at = $2 WHERE id = $1`
	return execOne(ctx, t.tx, q, userID, now)
}

const chargeColumns = `invoice_id, user_id, reason, amount_cents, status, spend_recorded_at, reset_applied_at, created_at, updated_at`

func scanCharge(row rowScanner) (ChargeRecord, error) {
	var r ChargeRecord
	var reason, status string
	var spendAt, resetAt sql.NullTime
	if err := row.Scan(
		&r.InvoiceID,
		&r.UserID,
		&reason,
		&r.AmountCents,
		&status,
		&spendAt,
		&resetAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return ChargeRecord{}, err
	}
	r.Reason = billing.ChargeReason(reason)
	r.Status = ChargeStatus(status)
	if spendAt.Valid {
		ts := spendAt.Time
		r.SpendRecordedAt = &ts
	}
	if resetAt.Valid {
		ts := resetAt.Time
		r.ResetAppliedAt = &ts
	}
	return r, nil
}

func (t postgresTx) ChargeRecordOwner(ctx context.Context, invoiceID string) (string, bool, error) {
	const q = `SELECT user_id FROM intl_charge_records WHERE invoice_id = $1`
	var userID string
	if err := t.tx.QueryRowContext(ctx, q, invoiceID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return userID, true, nil
}

func (t postgresTx) GetChargeRecordForUpdate(ctx context.Context, invoiceID string) (ChargeRecord, bool, error) {
	q := `SELECT ` + chargeColumns + ` FROM intl_charge_records WHERE invoice_id = $1 FOR UPDATE`
	r, err := scanCharge(t.tx.QueryRowContext(ctx, q, invoiceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChargeRecord{}, false, nil
		}
		return ChargeRecord{}, false, err
	}
	return r, true, nil
}

func (t postgresTx) UpsertChargeRecord(ctx context.Context, r ChargeRecord) error {
	const q = `
INSERT INTO intl_charge_records (
  invoice_id, user_id, reason, amount_cents, status, spend_recorded_at, reset_applied_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (invoice_id)
DO UPDATE SET user_id = EXCLUDED.user_id,
              reason = EXCLUDED.reason,
              amount_cents = CASE WHEN EXCLUDED.amount_cents > 0
                                  THEN EXCLUDED.amount_cents
                                  ELSE intl_charge_records.amount_cents END,
              status = EXCLUDED.status,
              spend_recorded_at = COALESCE(EXCLUDED.spend_recorded_at, intl_charge_records.spend_recorded_at),
              reset_applied_at = COALESCE(EXCLUDED.reset_applied_at, intl_charge_records.reset_applied_at),
              updated_at = EXCLUDED.updated_at
`
	_, err := t.tx.ExecContext(ctx, q,
		r.InvoiceID,
		r.UserID,
		string(r.Reason),
		r.AmountCents,
		string(r.Status),
		nullTime(r.SpendRecordedAt),
		nullTime(r.ResetAppliedAt),
		r.CreatedAt,
		r.UpdatedAt,
	)
	return err
}

func (t postgresTx) HasOtherFailedCharges(ctx context.Context, userID, exceptInvoiceID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM intl_charge_records
  WHERE user_id = $1 AND invoice_id <> $2 AND status = $3
)
`
	var ok bool
	if err := t.tx.QueryRowContext(ctx, q, userID, exceptInvoiceID, string(ChargePaymentFailed)).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (t postgresTx) MarkEventProcessed(ctx context.Context, eventID string, typ InvoiceEventType, invoiceID string, now time.Time) (bool, error) {
	const q = `
INSERT INTO billing_webhook_events (event_id, type, invoice_id, processed_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (event_id) DO NOTHING
`
	res, err := t.tx.ExecContext(ctx, q, eventID, string(typ), invoiceID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func execOne(ctx context.Context, tx *sql.Tx, q string, args ...any) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
