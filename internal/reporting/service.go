package reporting

import (
	"context"
	"errors"
	"time"

	"comms-platform/internal/billing"
	"comms-platform/internal/ledger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce user filtering.
// - Implementations read the immutable charge records written by the ledger.
type Repository interface {
	ListChargeRecords(ctx context.Context, userID string, from, to time.Time) ([]ledger.ChargeRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// ChargeSummary totals a user's immediate charges created in [From, To).
func (s *Service) ChargeSummary(ctx context.Context, req ChargeSummaryRequest) (ChargeSummary, error) {
	if req.UserID == "" {
		return ChargeSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ChargeSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ChargeSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListChargeRecords(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return ChargeSummary{}, err
	}

	out := ChargeSummary{UserID: req.UserID, Range: req.Range}
	for _, r := range rows {
		out.TotalCharges++
		switch r.Status {
		case ledger.ChargePaid:
			out.PaidCharges++
		case ledger.ChargeCharged:
			out.PendingCharges++
		case ledger.ChargePaymentFailed:
			out.FailedCharges++
			out.FailedCents += r.AmountCents
			continue
		}
		out.ChargedCents += r.AmountCents
		switch r.Reason {
		case billing.ReasonSoftCapPerSend:
			out.SoftCapCents += r.AmountCents
		case billing.ReasonHardCapAccum:
			out.HardCapCents += r.AmountCents
		}
		if r.ResetAppliedAt != nil {
			out.HardCapResets++
		}
	}
	return out, nil
}
