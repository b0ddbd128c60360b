package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// ParseDeviceRequest decodes an access request published on
// access/requests/{device_id}. card_id and door_id are required.
func (g *Gateway) ParseDeviceRequest(topic string, payload []byte) *protocol.AccessRequest {
	route := protocol.Classify(topic)
	if route.Kind != protocol.RouteAccessRequest {
		return nil
	}

	var wire struct {
		protocol.AccessRequest
		Timestamp protocol.WireTime `json:"timestamp"`
	}
	if !g.decode(topic, payload, &wire) {
		return nil
	}
	req := wire.AccessRequest
	if req.CardID == "" || req.DoorID == "" {
		g.logger.Debug("access request missing card_id or door_id", "topic", topic)
		return nil
	}
	req.Timestamp = g.sentAt(wire.Timestamp)
	req.DeviceID = route.DeviceID
	return &req
}

// ParseCommandAcknowledgment decodes an acknowledgment published on
// access/commands/{device_id}/ack and resolves the matching ledger entry.
// Acknowledgments for unknown message ids still parse.
func (g *Gateway) ParseCommandAcknowledgment(ctx context.Context, topic string, payload []byte) *protocol.CommandAck {
	route := protocol.Classify(topic)
	if route.Kind != protocol.RouteCommandAck {
		return nil
	}

	var wire struct {
		protocol.CommandAck
		Timestamp protocol.WireTime `json:"timestamp"`
	}
	if !g.decode(topic, payload, &wire) {
		return nil
	}
	ack := wire.CommandAck
	if ack.MessageID == "" || ack.Status == "" {
		g.logger.Debug("acknowledgment missing message_id or status", "topic", topic)
		return nil
	}
	ack.Timestamp = g.sentAt(wire.Timestamp)
	ack.DeviceID = route.DeviceID

	cmd, err := g.ledger.Resolve(ctx, ack.MessageID)
	switch {
	case err != nil:
		g.logger.Warn("resolving acknowledged command", "message_id", ack.MessageID, "error", err)
	case cmd == nil:
		g.logger.Debug("acknowledgment for untracked command", "message_id", ack.MessageID, "device_id", ack.DeviceID)
	default:
		g.logger.Debug("command acknowledged",
			"message_id", ack.MessageID,
			"device_id", ack.DeviceID,
			"command", string(cmd.Command),
			"status", ack.Status,
		)
	}
	return &ack
}

// ParseDeviceStatus decodes a heartbeat published on
// access/devices/{device_id}/status. online is required.
func (g *Gateway) ParseDeviceStatus(topic string, payload []byte) *protocol.DeviceStatus {
	route := protocol.Classify(topic)
	if route.Kind != protocol.RouteDeviceStatus {
		return nil
	}

	var wire struct {
		protocol.DeviceStatus
		Online        *bool             `json:"online"`
		LastHeartbeat protocol.WireTime `json:"last_heartbeat"`
	}
	if !g.decode(topic, payload, &wire) {
		return nil
	}
	if wire.Online == nil {
		g.logger.Debug("device status missing online", "topic", topic)
		return nil
	}

	status := wire.DeviceStatus
	status.Online = *wire.Online
	status.LastHeartbeat = g.sentAt(wire.LastHeartbeat)
	status.DeviceID = route.DeviceID
	return &status
}

// ParseDeviceEvent decodes an event published on access/events/{device_id}
// (event_type in the payload) or access/events/{event_type}/{device_id}.
// A missing severity is treated as info.
func (g *Gateway) ParseDeviceEvent(topic string, payload []byte) *protocol.DeviceEvent {
	route := protocol.Classify(topic)
	if route.Kind != protocol.RouteDeviceEvent {
		return nil
	}

	var wire struct {
		protocol.DeviceEvent
		Timestamp protocol.WireTime `json:"timestamp"`
	}
	if !g.decode(topic, payload, &wire) {
		return nil
	}
	ev := wire.DeviceEvent
	if route.EventType != "" {
		ev.EventType = route.EventType
	}
	if ev.EventType == "" {
		g.logger.Debug("device event missing event_type", "topic", topic)
		return nil
	}
	if ev.Severity == "" {
		ev.Severity = protocol.SeverityInfo
	}
	ev.Timestamp = g.sentAt(wire.Timestamp)
	ev.DeviceID = route.DeviceID
	return &ev
}

// sentAt is the device's timestamp, or the receive time when the device
// sent none or one that could not be read.
func (g *Gateway) sentAt(t protocol.WireTime) time.Time {
	if t.IsZero() {
		return g.timestamp()
	}
	return t.Time
}

func (g *Gateway) decode(topic string, payload []byte, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		g.logger.Debug("malformed payload", "topic", topic, "error", err)
		return false
	}
	return true
}
