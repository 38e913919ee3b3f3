package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"comms-platform/internal/ledger"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
// It enforces user isolation on reads.
type MemoryRepo struct {
	mu      sync.Mutex
	Charges []ledger.ChargeRecord
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Add(recs ...ledger.ChargeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Charges = append(r.Charges, recs...)
}

func (r *MemoryRepo) ListChargeRecords(_ context.Context, userID string, from, to time.Time) ([]ledger.ChargeRecord, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.ChargeRecord, 0)
	for _, c := range r.Charges {
		if c.UserID != userID {
			continue
		}
		if !c.CreatedAt.IsZero() {
			if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}
