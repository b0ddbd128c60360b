package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-access/internal/ledger"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// Delivery guarantees.
const (
	QoSHighest   byte = 2
	QoSBroadcast byte = 1
)

// Publish kinds used in logs and metrics.
const (
	kindResponse  = "response"
	kindCommand   = "command"
	kindBroadcast = "broadcast"
	kindLockdown  = "lockdown"
)

// ErrInvalidCommand is returned for a command with no device or an unknown type.
var ErrInvalidCommand = errors.New("gateway: invalid command")

// Publisher sends one message to the broker. *mqtt.Adapter implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging surface the gateway needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithMetrics counts publishes by kind and result.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithCommandTimeout sets the advisory timeout (seconds) on outgoing commands.
func WithCommandTimeout(seconds int) Option {
	return func(g *Gateway) {
		if seconds > 0 {
			g.commandTimeout = seconds
		}
	}
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// Gateway is the Device Communication Gateway.
//
// Thread Safety:
//   - All methods are safe for concurrent use when the Publisher and the
//     ledger's store are.
type Gateway struct {
	pub            Publisher
	ledger         *ledger.Ledger
	topics         protocol.Topics
	commandTimeout int
	logger         Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// New creates a gateway publishing through pub and tracking commands in l.
func New(pub Publisher, l *ledger.Ledger, opts ...Option) *Gateway {
	g := &Gateway{
		pub:            pub,
		ledger:         l,
		commandTimeout: protocol.DefaultCommandTimeout,
		logger:         noopLogger{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PublishAccessResponse sends a decision to the reader.
func (g *Gateway) PublishAccessResponse(ctx context.Context, deviceID string, resp *protocol.AccessResponse) error {
	if resp.MessageID == "" {
		resp.MessageID = protocol.NewMessageID()
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = g.timestamp()
	}
	return g.publish(ctx, kindResponse, g.topics.Response(deviceID), resp, QoSHighest)
}

// SendDoorCommand publishes cmd to its device. A command that requires
// acknowledgment is registered in the ledger first, and dropped from it
// again if the publish fails.
func (g *Gateway) SendDoorCommand(ctx context.Context, cmd *protocol.DoorCommand) error {
	if cmd.DeviceID == "" || !cmd.Command.Valid() {
		return fmt.Errorf("%w: device %q command %q", ErrInvalidCommand, cmd.DeviceID, cmd.Command)
	}

	if cmd.RequiresAck {
		if err := g.ledger.Register(ctx, cmd); err != nil {
			g.logger.Warn("registering command", "message_id", cmd.MessageID, "error", err)
			return err
		}
	}

	err := g.publish(ctx, kindCommand, g.topics.Command(cmd.DeviceID), cmd, QoSHighest)
	if err != nil && cmd.RequiresAck {
		if _, rerr := g.ledger.Resolve(ctx, cmd.MessageID); rerr != nil {
			g.logger.Warn("dropping unsent command", "message_id", cmd.MessageID, "error", rerr)
		}
	}
	return err
}

// SendUnlockCommand unlocks the door for duration seconds.
func (g *Gateway) SendUnlockCommand(ctx context.Context, deviceID string, duration int) error {
	return g.SendDoorCommand(ctx, g.CreateUnlock(deviceID, duration))
}

// CreateUnlock builds an unlock command carrying the gateway's timeout.
func (g *Gateway) CreateUnlock(deviceID string, duration int) *protocol.DoorCommand {
	cmd := protocol.NewUnlock(deviceID, duration, protocol.WithTimeout(g.commandTimeout))
	cmd.Timestamp = g.timestamp()
	return cmd
}

// SendLockCommand locks the door.
func (g *Gateway) SendLockCommand(ctx context.Context, deviceID string) error {
	cmd := protocol.NewLock(deviceID, protocol.WithTimeout(g.commandTimeout))
	cmd.Timestamp = g.timestamp()
	return g.SendDoorCommand(ctx, cmd)
}

// SendDenyCommand locks the door after a denied attempt.
func (g *Gateway) SendDenyCommand(ctx context.Context, deviceID string) error {
	cmd := protocol.NewDeny(deviceID, protocol.WithTimeout(g.commandTimeout))
	cmd.Timestamp = g.timestamp()
	return g.SendDoorCommand(ctx, cmd)
}

// RequestDeviceStatus asks the device to publish its status.
func (g *Gateway) RequestDeviceStatus(ctx context.Context, deviceID string) error {
	cmd := protocol.NewStatusRequest(deviceID)
	cmd.Timestamp = g.timestamp()
	return g.SendDoorCommand(ctx, cmd)
}

// BroadcastNotification sends message to every device and panel.
func (g *Gateway) BroadcastNotification(ctx context.Context, message, severity string) error {
	n := &protocol.BroadcastNotification{
		Message:   message,
		Severity:  severity,
		Timestamp: g.timestamp(),
		MessageID: protocol.NewMessageID(),
	}
	return g.publish(ctx, kindBroadcast, g.topics.Broadcast(), n, QoSBroadcast)
}

// HandleEmergencyLockdown orders every device to lock.
func (g *Gateway) HandleEmergencyLockdown(ctx context.Context, reason string) error {
	msg := &protocol.EmergencyLockdown{
		Command:   protocol.EmergencyLockCommand,
		Reason:    reason,
		Timestamp: g.timestamp(),
		MessageID: protocol.NewMessageID(),
	}

	g.logger.Error("emergency lockdown",
		"event", "emergency_lockdown",
		"reason", reason,
		"message_id", msg.MessageID,
	)
	return g.publish(ctx, kindLockdown, g.topics.EmergencyLockdown(), msg, QoSHighest)
}

func (g *Gateway) publish(ctx context.Context, kind, topic string, msg any, qos byte) (err error) {
	defer func() {
		g.metrics.IncPublish(kind, err)
		if err != nil {
			g.logger.Warn("publish failed", "kind", kind, "topic", topic, "error", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", kind, err)
	}
	if err := g.pub.Publish(topic, payload, qos, false); err != nil {
		return fmt.Errorf("publishing %s: %w", kind, err)
	}

	g.logger.Debug("published", "kind", kind, "topic", topic)
	return nil
}

func (g *Gateway) timestamp() time.Time {
	return g.now().UTC()
}
