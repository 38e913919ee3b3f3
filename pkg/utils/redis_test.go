package utils

import (
	"context"
	"testing"
	"time"
)

func TestLockScriptsCompile(t *testing.T) {
	if lockAcquireScript == nil || lockReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireLock_RejectsInvalidArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireLock(ctx, nil, "k", "t", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseLock(ctx, nil, "k", "t"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379", MinIdleConns: -1}.withDefaults()
	if c.PoolSize != 20 || c.MinIdleConns != 0 || c.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
