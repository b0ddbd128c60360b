package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(string, ...any) {}

func (m *mockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) warnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.warns)
}

var base = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func command(id string, age time.Duration) *protocol.DoorCommand {
	cmd := protocol.NewUnlock("door_lock_001", 5)
	cmd.MessageID = id
	cmd.Timestamp = base.Add(-age)
	return cmd
}

func TestLedger_RegisterAndResolve(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())

	cmd := command("m-1", 0)
	if err := l.Register(ctx, cmd); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if n, _ := l.Len(ctx); n != 1 { //nolint:errcheck // memory store never fails
		t.Fatalf("Len() = %d, want 1", n)
	}

	got, err := l.Resolve(ctx, "m-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != cmd {
		t.Errorf("Resolve() = %v, want the registered command", got)
	}
	if n, _ := l.Len(ctx); n != 0 { //nolint:errcheck // memory store never fails
		t.Errorf("Len() after resolve = %d, want 0", n)
	}

	// Unknown and repeated acknowledgments are not errors.
	got, err = l.Resolve(ctx, "m-1")
	if err != nil || got != nil {
		t.Errorf("second Resolve() = %v, %v, want nil, nil", got, err)
	}
}

func TestLedger_RegisterSkipsFireAndForget(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())

	if err := l.Register(ctx, protocol.NewStatusRequest("door_lock_001")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if n, _ := l.Len(ctx); n != 0 { //nolint:errcheck // memory store never fails
		t.Errorf("Len() = %d, want 0 for a command without requires_ack", n)
	}
}

func TestLedger_RegisterRequiresMessageID(t *testing.T) {
	cmd := command("", 0)
	if err := New(NewMemoryStore()).Register(context.Background(), cmd); !errors.Is(err, ErrMissingMessageID) {
		t.Errorf("Register() error = %v, want ErrMissingMessageID", err)
	}
}

func TestLedger_SweepExpired(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := New(NewMemoryStore(), WithClock(func() time.Time { return base }), WithLogger(logger), WithMetrics(m))

	ages := map[string]time.Duration{
		"fresh":   10 * time.Second,
		"edge":    300 * time.Second,
		"stale":   301 * time.Second,
		"ancient": time.Hour,
	}
	for id, age := range ages {
		if err := l.Register(ctx, command(id, age)); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}

	n, err := l.SweepExpired(ctx, 300*time.Second)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("SweepExpired() = %d, want 2", n)
	}
	if logger.warnCount() != 2 {
		t.Errorf("logged %d expiries, want 2", logger.warnCount())
	}

	pending, err := l.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 || pending[0].MessageID != "edge" || pending[1].MessageID != "fresh" {
		ids := make([]string, len(pending))
		for i, c := range pending {
			ids[i] = c.MessageID
		}
		t.Errorf("Pending() = %v, want [edge fresh]", ids)
	}

	if got := testutil.ToFloat64(m.LedgerPending); got != 2 {
		t.Errorf("pending gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LedgerExpired); got != 2 {
		t.Errorf("expired counter = %v, want 2", got)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%26)) + time.Duration(i).String()
			if err := s.Put(ctx, command(id, 0)); err != nil {
				t.Errorf("Put() error = %v", err)
			}
			if _, err := s.Take(ctx, id); err != nil {
				t.Errorf("Take() error = %v", err)
			}
			if _, err := s.TakeOlderThan(ctx, base); err != nil {
				t.Errorf("TakeOlderThan() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n, _ := s.Len(ctx); n != 0 { //nolint:errcheck // memory store never fails
		t.Errorf("Len() = %d, want 0", n)
	}
}
