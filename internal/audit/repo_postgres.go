package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo stores events in audit_events (see ledger migrations).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, user_id, type, actor_user_id, actor_role, invoice_id, amount_cents, reason, message, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.InvoiceID,
		e.AmountCents,
		e.Reason,
		e.Message,
		e.CreatedAt,
	)
	return err
}
