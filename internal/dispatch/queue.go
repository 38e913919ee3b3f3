package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list consumed by the send workers.
const DefaultQueueKey = "blasts:queue"

var ErrInvalidJob = errors.New("dispatch: invalid job")

// Job is one authorised blast handed to the delivery workers.
type Job struct {
	BlastID    string    `json:"blastId"`
	UserID     string    `json:"userId"`
	Channels   []string  `json:"channels"`
	SMS        []string  `json:"sms"`
	Email      []string  `json:"email"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func (j Job) validate() error {
	if j.BlastID == "" || j.UserID == "" || len(j.Channels) == 0 {
		return ErrInvalidJob
	}
	return nil
}

// Enqueuer accepts authorised blasts.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// RedisQueue LPUSHes JSON jobs onto a list.
type RedisQueue struct {
	rdb redis.Cmdable
	key string
}

func NewRedisQueue(rdb redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, b).Err()
}

// MemoryQueue records jobs in order for tests and the local profile.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

// FailWith makes later Enqueue calls return err.
func (q *MemoryQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.jobs...)
}
