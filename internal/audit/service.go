package audit

import (
	"context"
	"errors"
	"time"

	"comms-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal billing audit events.
// Records are internal-only; they are not exposed to account holders.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends e and only logs a failure. A nil Service is a no-op.
func (s *Service) Record(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "user_id", e.UserID, "err", err)
	}
}

// LogAdminAction records an operator action on an account.
func (s *Service) LogAdminAction(ctx context.Context, typ EventType, userID, actorUserID, actorRole, message string) error {
	return s.Append(ctx, Event{
		UserID:      userID,
		Type:        typ,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		Message:     message,
	})
}
