package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// SystemStatusTopic carries the core's retained online/offline status and LWT.
const SystemStatusTopic = "access/system/status"

const (
	connectTimeout = 10 * time.Second
	tokenTimeout   = 5 * time.Second
	keepAlive      = 60 * time.Second
	quiesceMillis  = 1000
	maxQoS         = 2
	maxPayloadSize = 1 << 20
)

// Logger is the logging surface used for handler failures and connection
// state. *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler receives one inbound message. paho calls handlers from its
// own goroutines, possibly concurrently. A returned error is logged only.
type MessageHandler func(topic string, payload []byte) error

// Client is a single paho connection. It never reconnects: when the broker
// drops it, Lost delivers the cause and the Client is spent.
type Client struct {
	paho      pahomqtt.Client
	clientID  string
	statusQoS byte
	logger    Logger

	up       atomic.Bool
	lost     chan error
	lostOnce sync.Once
}

// Connect makes one connection attempt. A retained offline status is
// registered as the LWT and a retained online status is published on
// connect. logger may be nil.
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		clientID:  cfg.Broker.ClientID,
		statusQoS: byte(cfg.QoS),
		logger:    logger,
		lost:      make(chan error, 1),
	}

	opts := pahoOptions(cfg)
	opts.SetWill(SystemStatusTopic, string(statusPayload(c.clientID, "offline", "unexpected_disconnect")), 1, true)
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		c.up.Store(true)
		pc.Publish(SystemStatusTopic, c.statusQoS, true, statusPayload(c.clientID, "online", ""))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.up.Store(false)
		if err == nil {
			err = ErrNotConnected
		}
		c.lostOnce.Do(func() { c.lost <- err })
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := wait(c.paho.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	// The connect handler runs asynchronously.
	c.up.Store(true)
	return c, nil
}

// pahoOptions leaves reconnection to Adapter.Run and delivers messages
// concurrently with no per-device ordering.
func pahoOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

func statusPayload(clientID, status, reason string) []byte {
	b, _ := json.Marshal(struct { //nolint:errchkjson // fixed string fields
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Reason    string `json:"reason,omitempty"`
		Timestamp string `json:"timestamp"`
	}{status, clientID, reason, time.Now().UTC().Format(time.RFC3339)})
	return b
}

func wait(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return token.Error()
}

// checkRoute validates a topic and QoS pair.
func checkRoute(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Publish sends payload and waits for the broker to acknowledge it at the
// requested QoS.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkRoute(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(c.paho.Publish(topic, qos, retained, payload), tokenTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards. The subscription dies with the connection.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkRoute(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(c.paho.Subscribe(topic, qos, c.deliver(handler)), tokenTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// deliver adapts handler to paho and keeps a panicking handler from taking
// down paho's delivery goroutine.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}

// Lost fires once with the cause when the connection drops. It stays
// silent after Close.
func (c *Client) Lost() <-chan error {
	return c.lost
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(SystemStatusTopic, c.statusQoS, true,
			statusPayload(c.clientID, "offline", "graceful_shutdown")).WaitTimeout(tokenTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.up.Store(false)
	return nil
}

// IsConnected reports whether paho still holds the connection.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// HealthCheck returns ErrNotConnected once the connection is gone.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
