package recipients

import (
	"context"
	"database/sql"
	"strings"
)

// PostgresResolver reads contacts and contact_group_members (see ledger migrations).
type PostgresResolver struct {
	db *sql.DB
}

func NewPostgresResolver(db *sql.DB) *PostgresResolver { return &PostgresResolver{db: db} }

func (r *PostgresResolver) Resolve(ctx context.Context, userID string, groupIDs, contactIDs []string) (Set, error) {
	if userID == "" {
		return Set{}, ErrInvalidArgument
	}
	groupIDs = cleanIDs(groupIDs)
	contactIDs = cleanIDs(contactIDs)
	if len(groupIDs) == 0 && len(contactIDs) == 0 {
		return Set{}, nil
	}

	const q = `
SELECT DISTINCT c.id, c.phone, c.email
FROM contacts c
LEFT JOIN contact_group_members m ON m.contact_id = c.id
LEFT JOIN contact_groups g ON g.id = m.group_id AND g.user_id = $1
WHERE c.user_id = $1
  AND c.unsubscribed = FALSE
  AND (c.id = ANY($2) OR g.id = ANY($3))
ORDER BY c.id
`
	rows, err := r.db.QueryContext(ctx, q, userID, contactIDs, groupIDs)
	if err != nil {
		return Set{}, err
	}
	defer rows.Close()

	var out Set
	for rows.Next() {
		var id, phone, email string
		if err := rows.Scan(&id, &phone, &email); err != nil {
			return Set{}, err
		}
		if phone = strings.TrimSpace(phone); phone != "" {
			out.SMS = append(out.SMS, phone)
		}
		if email = strings.TrimSpace(email); email != "" {
			out.Email = append(out.Email, strings.ToLower(email))
		}
	}
	if err := rows.Err(); err != nil {
		return Set{}, err
	}

	out.SMS = Dedupe(out.SMS)
	out.Email = Dedupe(out.Email)
	return out, nil
}
