package protocol

import (
	"time"

	"github.com/google/uuid"
)

// DoorAction tells the controller what to do with the door.
type DoorAction string

// Door actions carried in access responses.
const (
	DoorActionUnlock     DoorAction = "unlock"
	DoorActionDeny       DoorAction = "deny"
	DoorActionRequirePIN DoorAction = "require_pin"
)

// CommandType is the closed set of controller commands.
type CommandType string

// Controller commands.
const (
	CommandUnlock       CommandType = "unlock"
	CommandLock         CommandType = "lock"
	CommandStatus       CommandType = "status"
	CommandReboot       CommandType = "reboot"
	CommandUpdateConfig CommandType = "update_config"
)

// Valid reports whether c is a known command.
func (c CommandType) Valid() bool {
	switch c {
	case CommandUnlock, CommandLock, CommandStatus, CommandReboot, CommandUpdateConfig:
		return true
	}
	return false
}

// Severity levels for events and notifications.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AckStatusSuccess is the only acknowledgment status that is not a failure.
const AckStatusSuccess = "success"

// EmergencyLockCommand is the command string of a lockdown broadcast.
const EmergencyLockCommand = "emergency_lock"

// NewMessageID returns a fresh message id.
func NewMessageID() string {
	return uuid.NewString()
}

// AccessRequest is published by a reader when a card is presented.
// DeviceID comes from the topic, never the payload.
type AccessRequest struct {
	DeviceID     string         `json:"-"`
	CardID       string         `json:"card_id"`
	DoorID       string         `json:"door_id"`
	PIN          string         `json:"pin,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	MessageID    string         `json:"message_id"`
	LocationData map[string]any `json:"location_data,omitempty"`
}

// AccessResponse is the decision sent back to the reader.
type AccessResponse struct {
	AccessGranted bool       `json:"access_granted"`
	DoorAction    DoorAction `json:"door_action"`
	Reason        string     `json:"reason"`
	Duration      int        `json:"duration"`
	UserName      string     `json:"user_name,omitempty"`
	CardType      string     `json:"card_type,omitempty"`
	RequiresPIN   bool       `json:"requires_pin"`
	MessageID     string     `json:"message_id"`
	Timestamp     time.Time  `json:"timestamp"`
}

// DoorCommand is an instruction to one controller. DeviceID addresses the
// topic and is not part of the payload.
type DoorCommand struct {
	MessageID   string         `json:"message_id"`
	DeviceID    string         `json:"-"`
	Command     CommandType    `json:"command"`
	Parameters  map[string]any `json:"parameters"`
	Timeout     int            `json:"timeout"`
	RequiresAck bool           `json:"requires_ack"`
	Timestamp   time.Time      `json:"timestamp"`
}

// CommandAck is a controller's reply to a DoorCommand.
type CommandAck struct {
	DeviceID      string         `json:"-"`
	MessageID     string         `json:"message_id"`
	Status        string         `json:"status"`
	Result        map[string]any `json:"result,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ExecutionTime *float64       `json:"execution_time,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Succeeded reports whether the device executed the command.
func (a *CommandAck) Succeeded() bool {
	return a.Status == AckStatusSuccess
}

// DeviceStatus is a controller heartbeat.
type DeviceStatus struct {
	DeviceID        string    `json:"-"`
	Online          bool      `json:"online"`
	DoorState       string    `json:"door_state"`
	BatteryLevel    *float64  `json:"battery_level,omitempty"`
	SignalStrength  *float64  `json:"signal_strength,omitempty"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
}

// LowBatteryThreshold is the battery percentage below which a device is unhealthy.
const LowBatteryThreshold = 20

// HealthProblems lists why the device is unhealthy; empty means healthy.
func (s *DeviceStatus) HealthProblems() []string {
	var problems []string
	if !s.Online {
		problems = append(problems, "offline")
	}
	if s.BatteryLevel != nil && *s.BatteryLevel < LowBatteryThreshold {
		problems = append(problems, "low battery")
	}
	if s.ErrorMessage != "" {
		problems = append(problems, "error: "+s.ErrorMessage)
	}
	return problems
}

// Healthy reports whether the device reported no problems.
func (s *DeviceStatus) Healthy() bool {
	return len(s.HealthProblems()) == 0
}

// DeviceEvent is a security or operational event raised by a controller.
type DeviceEvent struct {
	DeviceID  string         `json:"-"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	MessageID string         `json:"message_id"`
	Details   map[string]any `json:"details,omitempty"`
	Severity  string         `json:"severity"`
}

// Critical reports whether the event demands a security broadcast.
func (e *DeviceEvent) Critical() bool {
	return e.Severity == SeverityCritical
}

// Well-known event types.
const (
	EventDoorForced  = "door_forced"
	EventTamperAlert = "tamper_alert"
)

// BroadcastNotification is sent to every controller and operator panel.
type BroadcastNotification struct {
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
}

// EmergencyLockdown orders every controller to lock.
type EmergencyLockdown struct {
	Command   string    `json:"command"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
}
