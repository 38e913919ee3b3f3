package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/redis/go-redis/v9"
)

// captureHook answers every command locally and records its arguments.
type captureHook struct {
	args [][]any
}

func (h *captureHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (h *captureHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.args = append(h.args, cmd.Args())
		return nil
	}
}

func (h *captureHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisQueue_LPushesJSON(t *testing.T) {
	hook := &captureHook{}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(hook)
	defer rdb.Close()

	q := NewRedisQueue(rdb, "")
	job := Job{BlastID: "b1", UserID: "u1", Channels: []string{"sms"}, SMS: []string{"+447911123456"}, Body: "hi"}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(hook.args) != 1 {
		t.Fatalf("expected 1 command, got %d", len(hook.args))
	}
	args := hook.args[0]
	if args[0] != "lpush" || args[1] != DefaultQueueKey {
		t.Fatalf("unexpected command: %v", args)
	}
	payload, ok := args[2].([]byte)
	if !ok {
		t.Fatalf("expected []byte payload, got %T", args[2])
	}
	var got Job
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if got.BlastID != "b1" || got.SMS[0] != "+447911123456" || got.Body != "hi" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestEnqueue_RejectsIncompleteJob(t *testing.T) {
	q := NewMemoryQueue()
	if err := q.Enqueue(context.Background(), Job{UserID: "u1"}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
	if len(q.Jobs()) != 0 {
		t.Fatalf("expected no jobs")
	}
}

func TestMemoryQueue_FailWith(t *testing.T) {
	q := NewMemoryQueue()
	boom := errors.New("down")
	q.FailWith(boom)
	err := q.Enqueue(context.Background(), Job{BlastID: "b", UserID: "u", Channels: []string{"sms"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}
