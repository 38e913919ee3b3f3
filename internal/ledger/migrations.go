package ledger

import (
	"context"
	"database/sql"

	"comms-platform/pkg/utils"
)

// schema is applied in order on every start; each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		plan_tier TEXT NOT NULL DEFAULT 'free',
		stripe_customer_id TEXT,
		stripe_payment_method_attached BOOLEAN NOT NULL DEFAULT FALSE,
		intl_spend_since_charge_cents BIGINT NOT NULL DEFAULT 0,
		intl_spend_cycle_cents BIGINT NOT NULL DEFAULT 0,
		intl_blocked_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS plan_tier TEXT NOT NULL DEFAULT 'free'`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS stripe_customer_id TEXT`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS stripe_payment_method_attached BOOLEAN NOT NULL DEFAULT FALSE`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS intl_spend_since_charge_cents BIGINT NOT NULL DEFAULT 0`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS intl_spend_cycle_cents BIGINT NOT NULL DEFAULT 0`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS intl_blocked_reason TEXT`,
	`DO $$ BEGIN
		ALTER TABLE users ADD CONSTRAINT users_intl_spend_nonnegative
			CHECK (intl_spend_since_charge_cents >= 0 AND intl_spend_cycle_cents >= 0);
	EXCEPTION WHEN duplicate_object THEN NULL;
	END $$`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_stripe_customer ON users(stripe_customer_id) WHERE stripe_customer_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS intl_charge_records (
		invoice_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		reason TEXT NOT NULL DEFAULT '',
		amount_cents BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		spend_recorded_at TIMESTAMPTZ,
		reset_applied_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_intl_charge_records_user_status ON intl_charge_records(user_id, status)`,
	`CREATE TABLE IF NOT EXISTS billing_webhook_events (
		event_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		invoice_id TEXT NOT NULL DEFAULT '',
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		actor_user_id TEXT NOT NULL DEFAULT '',
		actor_role TEXT NOT NULL DEFAULT '',
		invoice_id TEXT NOT NULL DEFAULT '',
		amount_cents BIGINT NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		unsubscribed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contact_groups (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contact_group_members (
		group_id TEXT NOT NULL REFERENCES contact_groups(id) ON DELETE CASCADE,
		contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		PRIMARY KEY (group_id, contact_id)
	)`,
}

// Migrate creates or upgrades the billing schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.ApplyMigrations(ctx, db, schema)
}
