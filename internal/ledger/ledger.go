package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// ErrMissingMessageID is returned when registering a command without an id.
var ErrMissingMessageID = errors.New("ledger: command has no message_id")

// Store holds pending commands keyed by message id.
type Store interface {
	// Put inserts or replaces cmd.
	Put(ctx context.Context, cmd *protocol.DoorCommand) error

	// Take removes and returns the command, or nil if it is not pending.
	Take(ctx context.Context, messageID string) (*protocol.DoorCommand, error)

	// TakeOlderThan removes and returns every command whose timestamp is
	// strictly before cutoff.
	TakeOlderThan(ctx context.Context, cutoff time.Time) ([]*protocol.DoorCommand, error)

	// List returns the pending commands, oldest first.
	List(ctx context.Context) ([]*protocol.DoorCommand, error)

	// Len returns the number of pending commands.
	Len(ctx context.Context) (int, error)
}

// Logger is the logging surface the ledger needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(l Logger) Option {
	return func(lg *Ledger) {
		lg.logger = l
	}
}

// WithMetrics publishes the pending gauge and expiry counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(lg *Ledger) {
		lg.metrics = m
	}
}

// WithClock overrides the time source used for sweeps.
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) {
		lg.now = now
	}
}

// Ledger is the Pending Command Ledger.
type Ledger struct {
	store   Store
	logger  Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: noopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register tracks cmd until it is acknowledged. Commands that do not
// require acknowledgment are ignored.
func (l *Ledger) Register(ctx context.Context, cmd *protocol.DoorCommand) error {
	if !cmd.RequiresAck {
		return nil
	}
	if cmd.MessageID == "" {
		return ErrMissingMessageID
	}
	if err := l.store.Put(ctx, cmd); err != nil {
		return fmt.Errorf("registering command %s: %w", cmd.MessageID, err)
	}
	l.refreshGauge(ctx)
	return nil
}

// Resolve removes the command acknowledged by messageID. It returns nil
// without error when the id is not pending.
func (l *Ledger) Resolve(ctx context.Context, messageID string) (*protocol.DoorCommand, error) {
	cmd, err := l.store.Take(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("resolving command %s: %w", messageID, err)
	}
	if cmd != nil {
		l.refreshGauge(ctx)
	}
	return cmd, nil
}

// SweepExpired removes every command older than maxAge and logs each one.
// A command exactly maxAge old stays.
func (l *Ledger) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := l.now().Add(-maxAge)
	expired, err := l.store.TakeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping commands: %w", err)
	}

	for _, cmd := range expired {
		l.logger.Warn("command expired without acknowledgment",
			"message_id", cmd.MessageID,
			"device_id", cmd.DeviceID,
			"command", string(cmd.Command),
			"age", l.now().Sub(cmd.Timestamp).Round(time.Second).String(),
		)
	}
	if len(expired) > 0 {
		l.metrics.AddExpired(len(expired))
		l.refreshGauge(ctx)
	}
	return len(expired), nil
}

// Pending returns a snapshot of the pending commands, oldest first.
func (l *Ledger) Pending(ctx context.Context) ([]*protocol.DoorCommand, error) {
	cmds, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	return cmds, nil
}

// Len returns the number of pending commands.
func (l *Ledger) Len(ctx context.Context) (int, error) {
	return l.store.Len(ctx)
}

func (l *Ledger) refreshGauge(ctx context.Context) {
	if l.metrics == nil {
		return
	}
	n, err := l.store.Len(ctx)
	if err != nil {
		return
	}
	l.metrics.SetPending(n)
}
