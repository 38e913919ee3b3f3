package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_AppendRequiresUserAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventChargeFailed}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{UserID: "u"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_AppendFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	if err := svc.LogAdminAction(context.Background(), EventAccountUnblocked, "u1", "admin-1", "admin", "manual unblock"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" || !evs[0].CreatedAt.Equal(fixed) {
		t.Fatalf("expected id and timestamp filled: %+v", evs[0])
	}
	if evs[0].ActorUserID != "admin-1" || evs[0].Type != EventAccountUnblocked {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
}

func TestService_RecordIsBestEffort(t *testing.T) {
	var nilSvc *Service
	nilSvc.Record(context.Background(), Event{UserID: "u", Type: EventChargeFailed})

	svc := NewService(nil)
	svc.Record(context.Background(), Event{UserID: "u", Type: EventChargeFailed})
}
