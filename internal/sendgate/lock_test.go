package sendgate

import (
	"context"
	"testing"
	"time"

	"comms-platform/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_ExclusiveUntilRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release, err := l.Acquire(ctx, lockKey("u1"), time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, lockKey("u1"), time.Minute)
	assert.ErrorIs(t, err, ErrLockBusy)

	other, err := l.Acquire(ctx, lockKey("u2"), time.Minute)
	require.NoError(t, err, "locks are per user")
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := l.Acquire(ctx, lockKey("u1"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemoryLocker_ExpiredLockCanBeTaken(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// the expired holder must not release the new holder's lock
	assert.ErrorIs(t, stale(ctx), utils.ErrLockNotHeld)
	_, err = l.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLockBusy)
	require.NoError(t, fresh(ctx))
}
