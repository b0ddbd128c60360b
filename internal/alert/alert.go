// Package alert fans security and health alerts out to the audit trail
// and, when configured, to a RabbitMQ exchange for external consumers.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/audit"
)

// Alert kinds. The kind doubles as the AMQP routing key suffix.
const (
	KindAckFailure    = "ack_failure"
	KindDeviceHealth  = "device_health"
	KindSecurityEvent = "security_event"
	KindLockdown      = "emergency_lockdown"
)

// Alert is one notable condition raised while handling device traffic.
type Alert struct {
	Kind     string         `json:"kind"`
	DeviceID string         `json:"device_id,omitempty"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Time     time.Time      `json:"time"`
}

// Sink delivers alerts.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// AuditSink writes alerts to the audit trail as "alert" entries.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates a sink over repo.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Send records a.
func (s *AuditSink) Send(ctx context.Context, a Alert) error {
	details := map[string]any{
		"kind":     a.Kind,
		"severity": a.Severity,
		"message":  a.Message,
	}
	for k, v := range a.Details {
		details[k] = v
	}

	entityType := audit.EntityDevice
	if a.DeviceID == "" {
		entityType = audit.EntitySite
	}
	return s.repo.Create(ctx, &audit.Entry{
		Action:     audit.ActionAlert,
		EntityType: entityType,
		EntityID:   a.DeviceID,
		Source:     audit.SourceMQTT,
		Details:    details,
		CreatedAt:  a.Time,
	})
}

// Publisher publishes a body under a routing key suffix.
// *amqp.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, suffix string, body []byte) error
}

// BrokerSink publishes alerts as JSON, routed by kind.
type BrokerSink struct {
	pub Publisher
}

// NewBrokerSink creates a sink over pub.
func NewBrokerSink(pub Publisher) *BrokerSink {
	return &BrokerSink{pub: pub}
}

// Send publishes a.
func (s *BrokerSink) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	return s.pub.Publish(ctx, a.Kind, body)
}

// Multi sends every alert to each sink in turn. One failing sink does not
// stop the others; their errors are joined.
type Multi []Sink

// Send delivers a to every sink.
func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
