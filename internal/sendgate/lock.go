package sendgate

import (
	"context"
	"errors"
	"sync"
	"time"

	"comms-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy means another send for the same user is being authorised.
var ErrLockBusy = errors.New("sendgate: send already in progress for user")

// Locker provides a per-user mutual exclusion around the charge decision.
type Locker interface {
	// Acquire returns a release func, or ErrLockBusy when the key is held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

func lockKey(userID string) string { return "intl:sendlock:" + userID }

// RedisLocker is a token-checked SET NX PX lock shared by every API instance.
type RedisLocker struct {
	rdb redis.Scripter
}

func NewRedisLocker(rdb redis.Scripter) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, key, token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockBusy
	}
	return func(ctx context.Context) error {
		return utils.ReleaseLock(ctx, l.rdb, key, token)
	}, nil
}

// MemoryLocker is a process-local Locker. It does not wait; a held key is ErrLockBusy.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrLockBusy
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; !ok || !cur.Equal(exp) {
			return utils.ErrLockNotHeld
		}
		delete(l.held, key)
		return nil
	}, nil
}
