package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// maxBackoffShift bounds the exponent so the delay cannot overflow.
const maxBackoffShift = 30

// Conn is one live broker connection. *Client implements it.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	IsConnected() bool
	Lost() <-chan error
	Close() error
}

// DialFunc opens a new broker connection.
type DialFunc func(cfg config.MQTTConfig) (Conn, error)

// Adapter owns the broker connection for the lifetime of the process.
//
// It dials, subscribes every registered route, and listens until the
// context is cancelled or the connection drops, reconnecting with
// exponential backoff in between.
type Adapter struct {
	cfg    config.MQTTConfig
	dial   DialFunc
	logger Logger

	// onState is notified on every connect (true) and disconnect (false).
	onState func(connected bool)

	mu      sync.RWMutex
	conn    Conn
	routes  []route
	stopped bool
}

type route struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the adapter logger. Dialled Clients share it.
func WithLogger(l Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithDialer replaces the default paho dialer.
func WithDialer(d DialFunc) AdapterOption {
	return func(a *Adapter) {
		a.dial = d
	}
}

// WithStateHook registers a callback for connection state changes.
func WithStateHook(fn func(connected bool)) AdapterOption {
	return func(a *Adapter) {
		a.onState = fn
	}
}

// NewAdapter creates an Adapter. It does not connect until Run is called.
func NewAdapter(cfg config.MQTTConfig, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dial == nil {
		a.dial = a.dialPaho
	}
	return a
}

func (a *Adapter) dialPaho(cfg config.MQTTConfig) (Conn, error) {
	return Connect(cfg, a.logger)
}

// Handle registers a subscription. Routes are applied on every connect;
// if the adapter is already connected the subscription is made immediately.
func (a *Adapter) Handle(topic string, qos byte, handler MessageHandler) error {
	if err := checkRoute(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}

	a.mu.Lock()
	a.routes = append(a.routes, route{topic: topic, qos: qos, handler: handler})
	conn := a.conn
	a.mu.Unlock()

	if conn != nil {
		return conn.Subscribe(topic, qos, handler)
	}
	return nil
}

// Run connects and listens until ctx is cancelled.
//
// Each failed dial or lost connection counts as one attempt; the wait
// before attempt n is base_delay * 2^(n-1). A successful connect resets
// the count. Once more than max_attempts consecutive attempts have failed,
// Run returns ErrRetriesExhausted and the adapter cannot be restarted.
//
// Run returns nil when ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	a.mu.RLock()
	stopped := a.stopped
	a.mu.RUnlock()
	if stopped {
		return ErrAdapterStopped
	}

	attempt := 0
	for {
		conn, err := a.connect()
		if err == nil {
			attempt = 0
			a.logger.Info("mqtt connected",
				"host", a.cfg.Broker.Host,
				"port", a.cfg.Broker.Port,
			)
			lostErr := a.listen(ctx, conn)
			if lostErr == nil {
				return nil
			}
			a.logger.Warn("mqtt connection lost", "error", lostErr)
		} else {
			a.logger.Warn("mqtt connect failed", "error", err, "attempt", attempt+1)
		}

		if ctx.Err() != nil {
			return nil
		}

		attempt++
		if attempt > a.cfg.Reconnect.MaxAttempts {
			a.mu.Lock()
			a.stopped = true
			a.mu.Unlock()
			a.logger.Error("mqtt reconnect attempts exhausted, transport stopped",
				"max_attempts", a.cfg.Reconnect.MaxAttempts,
			)
			return fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, a.cfg.Reconnect.MaxAttempts)
		}

		delay := backoffDelay(a.cfg.Reconnect.BaseDelay(), attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// connect dials and applies every registered route.
func (a *Adapter) connect() (Conn, error) {
	conn, err := a.dial(a.cfg)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	routes := make([]route, len(a.routes))
	copy(routes, a.routes)
	a.mu.RUnlock()

	for _, r := range routes {
		if err := conn.Subscribe(r.topic, r.qos, r.handler); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscribing %s: %w", r.topic, err)
		}
	}

	a.setConn(conn)
	return conn, nil
}

// listen blocks until ctx ends (returns nil) or the connection drops
// (returns the cause).
func (a *Adapter) listen(ctx context.Context, conn Conn) error {
	select {
	case <-ctx.Done():
		a.setConn(nil)
		if err := conn.Close(); err != nil {
			a.logger.Warn("mqtt close failed", "error", err)
		}
		return nil
	case err := <-conn.Lost():
		a.setConn(nil)
		if err == nil {
			err = ErrNotConnected
		}
		return err
	}
}

func (a *Adapter) setConn(conn Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	if a.onState != nil {
		a.onState(conn != nil)
	}
}

// Publish sends a message on the current connection.
// It returns ErrNotConnected while the adapter is between connections.
func (a *Adapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Publish(topic, payload, qos, retained)
}

// IsConnected reports whether a live connection is held.
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	return conn != nil && conn.IsConnected()
}

// HealthCheck reports ErrRetriesExhausted once stopped and ErrNotConnected
// while reconnecting.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	a.mu.RLock()
	stopped := a.stopped
	a.mu.RUnlock()
	if stopped {
		return ErrRetriesExhausted
	}
	if !a.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// backoffDelay returns base * 2^(attempt-1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base * time.Duration(1<<shift)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
