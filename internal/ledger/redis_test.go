package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// liveRedis returns a client for a throwaway key prefix, or skips.
func liveRedis(t *testing.T) (*goredis.Client, string) {
	t.Helper()
	addr := os.Getenv("ACCESSCORE_REDIS_ADDR")
	if os.Getenv("RUN_INTEGRATION") == "" || addr == "" {
		t.Skip("set RUN_INTEGRATION=1 and ACCESSCORE_REDIS_ADDR to run against a live Redis")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	prefix := "accesscore-test:" + t.Name() + ":"
	t.Cleanup(func() {
		client.Del(ctx, prefix+pendingHashKey, prefix+pendingIndexKey)
	})
	return client, prefix
}

func TestRedisStore_Lifecycle(t *testing.T) {
	client, prefix := liveRedis(t)
	ctx := context.Background()
	l := New(NewRedisStore(client, prefix), WithClock(func() time.Time { return base }))

	for id, age := range map[string]time.Duration{"fresh": time.Second, "edge": 300 * time.Second, "stale": 301 * time.Second} {
		if err := l.Register(ctx, command(id, age)); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}

	got, err := l.Resolve(ctx, "fresh")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got == nil || got.DeviceID != "door_lock_001" || got.Parameters["duration"] != float64(5) {
		t.Errorf("Resolve() = %+v, want the stored unlock", got)
	}
	if got, err := l.Resolve(ctx, "fresh"); err != nil || got != nil {
		t.Errorf("second Resolve() = %v, %v, want nil, nil", got, err)
	}

	n, err := l.SweepExpired(ctx, 300*time.Second)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SweepExpired() = %d, want 1", n)
	}

	pending, err := l.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].MessageID != "edge" {
		t.Errorf("Pending() = %v, want [edge]", pending)
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	l := New(NewRedisStore(client, "x:"))
	if err := l.Register(context.Background(), command("m-1", 0)); err == nil {
		t.Error("Register() should fail when Redis is unreachable")
	}
	if _, err := l.Resolve(context.Background(), "m-1"); err == nil {
		t.Error("Resolve() should fail when Redis is unreachable")
	}
}
