package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

func TestSweeper_DisabledWhenMaxAgeZero(t *testing.T) {
	s := NewSweeper(New(NewMemoryStore()), 0, time.Millisecond)
	s.Start(context.Background())
	// Stop returns immediately.
	s.Stop()
}

func TestSweeper_RemovesExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := New(NewMemoryStore())

	old := command("old", 0)
	old.Timestamp = now.Add(-time.Hour)
	fresh := command("fresh", 0)
	fresh.Timestamp = now.Add(time.Hour)
	for _, c := range []*protocol.DoorCommand{old, fresh} {
		if err := l.Register(ctx, c); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	s := NewSweeper(l, time.Minute, 5*time.Millisecond)
	s.Start(ctx)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := l.Len(ctx); n == 1 { //nolint:errcheck // memory store never fails
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	pending, err := l.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].MessageID != "fresh" {
		t.Errorf("Pending() = %v, want only fresh", pending)
	}
}

func TestSweeper_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(New(NewMemoryStore()), time.Minute, time.Millisecond)
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancel")
	}

	// Stop is idempotent.
	s.Stop()
}
