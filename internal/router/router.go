package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/alert"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// Errors returned by HandleMessage. None of them stop the router.
var (
	ErrUnrecognizedTopic = errors.New("router: unrecognized topic")
	ErrMalformedPayload  = errors.New("router: malformed payload")
	ErrHandlerPanic      = errors.New("router: handler panicked")
)

const redacted = "[redacted]"

// Validator is the Access Decision Engine as seen by the router.
type Validator interface {
	Validate(ctx context.Context, req access.Request) (*access.Decision, error)
}

// Gateway parses inbound payloads and sends broadcasts.
type Gateway interface {
	ParseDeviceRequest(topic string, payload []byte) *protocol.AccessRequest
	ParseCommandAcknowledgment(ctx context.Context, topic string, payload []byte) *protocol.CommandAck
	ParseDeviceStatus(topic string, payload []byte) *protocol.DeviceStatus
	ParseDeviceEvent(topic string, payload []byte) *protocol.DeviceEvent
	BroadcastNotification(ctx context.Context, message, severity string) error
}

// Telemetry receives time-series points. *influxdb.Client implements it.
type Telemetry interface {
	WriteDeviceStatus(s influxdb.DeviceStatus)
	WriteAccessDecision(doorID, deviceID, outcome string, at time.Time)
}

// Logger is the logging surface the router needs.
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

// Option configures a Router.
type Option func(*Router)

// WithAudit records raw messages and outcomes in repo.
func WithAudit(repo audit.Repository) Option {
	return func(r *Router) {
		r.audit = repo
	}
}

// WithAlerts raises ack failures, health problems and security events.
func WithAlerts(s alert.Sink) Option {
	return func(r *Router) {
		r.alerts = s
	}
}

// WithTelemetry writes device status and decision points.
func WithTelemetry(t Telemetry) Option {
	return func(r *Router) {
		r.telemetry = t
	}
}

// WithLogger sets the router logger.
func WithLogger(l Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithMetrics counts routed messages and recovered panics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// Router is the Message Router.
type Router struct {
	validator Validator
	gateway   Gateway
	audit     audit.Repository
	alerts    alert.Sink
	telemetry Telemetry
	logger    Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	wg        sync.WaitGroup
}

// New creates a router.
func New(v Validator, g Gateway, opts ...Option) *Router {
	r := &Router{
		validator: v,
		gateway:   g,
		logger:    noopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns a transport callback that dispatches each message and
// returns immediately. ctx bounds the work done for every message.
func (r *Router) Handler(ctx context.Context) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		r.Dispatch(ctx, topic, payload)
		return nil
	}
}

// Dispatch handles the message in its own goroutine.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) {
	body := append([]byte(nil), payload...)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.HandleMessage(ctx, topic, body); err != nil {
			r.logger.Debug("message dropped", "topic", topic, "error", err)
		}
	}()
}

// Wait blocks until every dispatched message has been handled.
func (r *Router) Wait() {
	r.wg.Wait()
}

// HandleMessage handles one message synchronously. The returned error
// explains why a message was dropped; panics are recovered and reported
// as ErrHandlerPanic.
func (r *Router) HandleMessage(ctx context.Context, topic string, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.IncPanic()
			r.logger.Error("message handler panicked", "topic", topic, "panic", p)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()

	route := protocol.Classify(topic)
	r.metrics.IncRoute(route.Kind.String())
	r.recordRaw(ctx, topic, route, payload)

	switch route.Kind {
	case protocol.RouteAccessRequest:
		return r.handleAccessRequest(ctx, topic, payload)
	case protocol.RouteCommandAck:
		return r.handleCommandAck(ctx, topic, payload)
	case protocol.RouteDeviceStatus:
		return r.handleDeviceStatus(ctx, topic, payload)
	case protocol.RouteDeviceEvent:
		return r.handleDeviceEvent(ctx, topic, payload)
	default:
		r.logger.Debug("unrecognized topic", "topic", topic)
		return fmt.Errorf("%w: %s", ErrUnrecognizedTopic, topic)
	}
}

func (r *Router) handleAccessRequest(ctx context.Context, topic string, payload []byte) error {
	req := r.gateway.ParseDeviceRequest(topic, payload)
	if req == nil {
		return malformed(topic)
	}

	dec, err := r.validator.Validate(ctx, access.Request{
		CardID:    req.CardID,
		DoorID:    req.DoorID,
		PIN:       req.PIN,
		DeviceID:  req.DeviceID,
		MessageID: req.MessageID,
	})
	if err != nil {
		// The engine has already told the device.
		r.logger.Info("access validation failed", "device_id", req.DeviceID, "door_id", req.DoorID, "error", err)
	}
	if dec == nil {
		return nil
	}

	r.record(ctx, &audit.Entry{
		Action:     decisionAction(dec.Outcome),
		EntityType: audit.EntityDoor,
		EntityID:   req.DoorID,
		UserID:     dec.UserID,
		Details: map[string]any{
			"device_id":  req.DeviceID,
			"card_id":    req.CardID,
			"outcome":    string(dec.Outcome),
			"reason":     dec.Reason,
			"message_id": req.MessageID,
		},
	})
	if r.telemetry != nil {
		r.telemetry.WriteAccessDecision(req.DoorID, req.DeviceID, string(dec.Outcome), r.now())
	}
	return nil
}

func (r *Router) handleCommandAck(ctx context.Context, topic string, payload []byte) error {
	ack := r.gateway.ParseCommandAcknowledgment(ctx, topic, payload)
	if ack == nil {
		return malformed(topic)
	}

	details := map[string]any{
		"message_id": ack.MessageID,
		"status":     ack.Status,
	}
	if ack.ErrorMessage != "" {
		details["error_message"] = ack.ErrorMessage
	}
	if ack.ExecutionTime != nil {
		details["execution_time"] = *ack.ExecutionTime
	}
	r.record(ctx, &audit.Entry{
		Action:     audit.ActionCommandAck,
		EntityType: audit.EntityDevice,
		EntityID:   ack.DeviceID,
		Details:    details,
	})

	if !ack.Succeeded() {
		reason := ack.Status
		if ack.ErrorMessage != "" {
			reason = ack.ErrorMessage
		}
		r.raise(ctx, alert.Alert{
			Kind:     alert.KindAckFailure,
			DeviceID: ack.DeviceID,
			Severity: protocol.SeverityWarning,
			Message:  fmt.Sprintf("Command %s failed on %s: %s", ack.MessageID, ack.DeviceID, reason),
			Details:  details,
		})
	}
	return nil
}

func (r *Router) handleDeviceStatus(ctx context.Context, topic string, payload []byte) error {
	status := r.gateway.ParseDeviceStatus(topic, payload)
	if status == nil {
		return malformed(topic)
	}

	problems := status.HealthProblems()
	details := map[string]any{
		"online":     status.Online,
		"door_state": status.DoorState,
	}
	if status.BatteryLevel != nil {
		details["battery_level"] = *status.BatteryLevel
	}
	if status.FirmwareVersion != "" {
		details["firmware_version"] = status.FirmwareVersion
	}
	r.record(ctx, &audit.Entry{
		Action:     audit.ActionDeviceStatus,
		EntityType: audit.EntityDevice,
		EntityID:   status.DeviceID,
		Details:    details,
	})

	if r.telemetry != nil {
		r.telemetry.WriteDeviceStatus(influxdb.DeviceStatus{
			DeviceID:        status.DeviceID,
			Online:          status.Online,
			DoorState:       status.DoorState,
			BatteryLevel:    status.BatteryLevel,
			SignalStrength:  status.SignalStrength,
			FirmwareVersion: status.FirmwareVersion,
			Healthy:         len(problems) == 0,
			Time:            status.LastHeartbeat,
		})
	}

	if len(problems) > 0 {
		details["problems"] = problems
		r.raise(ctx, alert.Alert{
			Kind:     alert.KindDeviceHealth,
			DeviceID: status.DeviceID,
			Severity: protocol.SeverityWarning,
			Message:  fmt.Sprintf("Device %s unhealthy: %s", status.DeviceID, strings.Join(problems, ", ")),
			Details:  details,
		})
	}
	return nil
}

func (r *Router) handleDeviceEvent(ctx context.Context, topic string, payload []byte) error {
	ev := r.gateway.ParseDeviceEvent(topic, payload)
	if ev == nil {
		return malformed(topic)
	}

	details := map[string]any{
		"event_type": ev.EventType,
		"severity":   ev.Severity,
		"message_id": ev.MessageID,
	}
	if len(ev.Details) > 0 {
		details["details"] = ev.Details
	}
	r.record(ctx, &audit.Entry{
		Action:     audit.ActionDeviceEvent,
		EntityType: audit.EntityDevice,
		EntityID:   ev.DeviceID,
		Details:    details,
	})

	if !ev.Critical() {
		return nil
	}

	message := SecurityMessage(ev)
	if err := r.gateway.BroadcastNotification(ctx, message, protocol.SeverityCritical); err != nil {
		r.logger.Error("broadcasting security alert", "device_id", ev.DeviceID, "error", err)
	}
	r.raise(ctx, alert.Alert{
		Kind:     alert.KindSecurityEvent,
		DeviceID: ev.DeviceID,
		Severity: protocol.SeverityCritical,
		Message:  message,
		Details:  details,
	})
	return nil
}

// SecurityMessage is the broadcast text for a critical event.
func SecurityMessage(ev *protocol.DeviceEvent) string {
	var what string
	switch ev.EventType {
	case protocol.EventDoorForced:
		what = "door forced open"
	case protocol.EventTamperAlert:
		what = "tamper detected"
	default:
		what = strings.ReplaceAll(ev.EventType, "_", " ")
	}
	return fmt.Sprintf("Security alert: %s at %s", what, ev.DeviceID)
}

func decisionAction(o access.Outcome) string {
	switch o {
	case access.OutcomeGranted:
		return audit.ActionAccessGranted
	case access.OutcomePINRequired:
		return audit.ActionAccessPINRequired
	default:
		return audit.ActionAccessDenied
	}
}

// recordRaw writes the inbound message before anything else is done with it.
func (r *Router) recordRaw(ctx context.Context, topic string, route protocol.Route, payload []byte) {
	r.record(ctx, &audit.Entry{
		Action:     audit.ActionDeviceMessage,
		EntityType: audit.EntityDevice,
		EntityID:   route.DeviceID,
		Details: map[string]any{
			"topic":   topic,
			"route":   route.Kind.String(),
			"payload": redactPayload(payload),
		},
	})
}

// record writes an audit entry, best effort.
func (r *Router) record(ctx context.Context, e *audit.Entry) {
	if r.audit == nil {
		return
	}
	e.Source = audit.SourceMQTT
	e.CreatedAt = r.now().UTC()
	if err := r.audit.Create(ctx, e); err != nil {
		r.logger.Warn("writing audit entry", "action", e.Action, "error", err)
	}
}

// raise sends an alert, best effort.
func (r *Router) raise(ctx context.Context, a alert.Alert) {
	r.logger.Warn(a.Message, "kind", a.Kind, "device_id", a.DeviceID, "severity", a.Severity)
	if r.alerts == nil {
		return
	}
	a.Time = r.now().UTC()
	if err := r.alerts.Send(ctx, a); err != nil {
		r.logger.Warn("sending alert", "kind", a.Kind, "error", err)
	}
}

// redactPayload returns the payload for the audit trail with any PIN
// masked. Non-JSON payloads are kept as text.
func redactPayload(payload []byte) any {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return string(payload)
	}
	if _, ok := obj["pin"]; ok {
		obj["pin"] = redacted
	}
	return obj
}

func malformed(topic string) error {
	return fmt.Errorf("%w on %s", ErrMalformedPayload, topic)
}
