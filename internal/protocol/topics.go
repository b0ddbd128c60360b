package protocol

import "strings"

// Topic segments.
const (
	topicRoot          = "access"
	segRequests        = "requests"
	segResponses       = "responses"
	segCommands        = "commands"
	segDevices         = "devices"
	segEvents          = "events"
	segNotifications   = "notifications"
	segAck             = "ack"
	segStatus          = "status"
	segBroadcast       = "broadcast"
	segEmergency       = "emergency"
	segLockdown        = "lockdown"
	topicSeparator     = "/"
	shortTopicSegments = 3
	longTopicSegments  = 4
)

// Topics provides topic builders. It has no state; use Topics{}.
type Topics struct{}

// Request returns access/requests/{deviceID}.
func (Topics) Request(deviceID string) string {
	return join(segRequests, deviceID)
}

// Response returns access/responses/{deviceID}.
func (Topics) Response(deviceID string) string {
	return join(segResponses, deviceID)
}

// Command returns access/commands/{deviceID}.
func (Topics) Command(deviceID string) string {
	return join(segCommands, deviceID)
}

// CommandAck returns access/commands/{deviceID}/ack.
func (Topics) CommandAck(deviceID string) string {
	return join(segCommands, deviceID, segAck)
}

// DeviceStatus returns access/devices/{deviceID}/status.
func (Topics) DeviceStatus(deviceID string) string {
	return join(segDevices, deviceID, segStatus)
}

// Event returns access/events/{deviceID}.
func (Topics) Event(deviceID string) string {
	return join(segEvents, deviceID)
}

// TypedEvent returns access/events/{eventType}/{deviceID}.
func (Topics) TypedEvent(eventType, deviceID string) string {
	return join(segEvents, eventType, deviceID)
}

// Broadcast returns access/notifications/broadcast.
func (Topics) Broadcast() string {
	return join(segNotifications, segBroadcast)
}

// EmergencyLockdown returns access/commands/emergency/lockdown.
func (Topics) EmergencyLockdown() string {
	return join(segCommands, segEmergency, segLockdown)
}

// AllRequests matches every device's access requests.
func (Topics) AllRequests() string {
	return join(segRequests, "+")
}

// AllCommandAcks matches every device's command acknowledgments.
func (Topics) AllCommandAcks() string {
	return join(segCommands, "+", segAck)
}

// AllDeviceStatus matches every device's status reports.
func (Topics) AllDeviceStatus() string {
	return join(segDevices, "+", segStatus)
}

// AllEvents matches both event topic shapes.
func (Topics) AllEvents() string {
	return join(segEvents, "#")
}

func join(parts ...string) string {
	return topicRoot + topicSeparator + strings.Join(parts, topicSeparator)
}

// RouteKind is the closed set of inbound message kinds.
type RouteKind int

// Route kinds.
const (
	RouteUnrecognized RouteKind = iota
	RouteAccessRequest
	RouteCommandAck
	RouteDeviceStatus
	RouteDeviceEvent
)

// String returns the label used in logs and metrics.
func (k RouteKind) String() string {
	switch k {
	case RouteAccessRequest:
		return "access_request"
	case RouteCommandAck:
		return "command_ack"
	case RouteDeviceStatus:
		return "device_status"
	case RouteDeviceEvent:
		return "device_event"
	default:
		return "unrecognized"
	}
}

// Route is the result of classifying an inbound topic.
// EventType is set only for access/events/{type}/{device_id}.
type Route struct {
	Kind      RouteKind
	DeviceID  string
	EventType string
}

// Classify matches topic against the inbound grammar by exact segment
// count. Anything else, including topics with empty segments, is
// RouteUnrecognized.
func Classify(topic string) Route {
	parts := strings.Split(topic, topicSeparator)
	if parts[0] != topicRoot {
		return Route{}
	}
	for _, p := range parts {
		if p == "" {
			return Route{}
		}
	}

	switch len(parts) {
	case shortTopicSegments:
		switch parts[1] {
		case segRequests:
			return Route{Kind: RouteAccessRequest, DeviceID: parts[2]}
		case segEvents:
			return Route{Kind: RouteDeviceEvent, DeviceID: parts[2]}
		}
	case longTopicSegments:
		switch {
		case parts[1] == segCommands && parts[3] == segAck:
			return Route{Kind: RouteCommandAck, DeviceID: parts[2]}
		case parts[1] == segDevices && parts[3] == segStatus:
			return Route{Kind: RouteDeviceStatus, DeviceID: parts[2]}
		case parts[1] == segEvents:
			return Route{Kind: RouteDeviceEvent, EventType: parts[2], DeviceID: parts[3]}
		}
	}

	return Route{}
}
