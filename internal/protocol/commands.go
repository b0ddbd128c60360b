package protocol

import "time"

// DefaultCommandTimeout is the advisory timeout sent with commands (seconds).
const DefaultCommandTimeout = 30

// DenyReason is the lock parameter sent after a denied access attempt.
const DenyReason = "access_denied"

// CommandOption adjusts a command before it is sent.
type CommandOption func(*DoorCommand)

// WithTimeout overrides the advisory timeout (seconds).
func WithTimeout(seconds int) CommandOption {
	return func(c *DoorCommand) {
		c.Timeout = seconds
	}
}

// WithoutAck marks the command fire-and-forget; it is never tracked.
func WithoutAck() CommandOption {
	return func(c *DoorCommand) {
		c.RequiresAck = false
	}
}

// NewCommand builds a command with a fresh message id. Commands require
// acknowledgment unless WithoutAck is given.
func NewCommand(deviceID string, command CommandType, params map[string]any, opts ...CommandOption) *DoorCommand {
	if params == nil {
		params = map[string]any{}
	}
	c := &DoorCommand{
		MessageID:   NewMessageID(),
		DeviceID:    deviceID,
		Command:     command,
		Parameters:  params,
		Timeout:     DefaultCommandTimeout,
		RequiresAck: true,
		Timestamp:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewUnlock builds an unlock command holding the door open for duration seconds.
func NewUnlock(deviceID string, duration int, opts ...CommandOption) *DoorCommand {
	return NewCommand(deviceID, CommandUnlock, map[string]any{"duration": duration}, opts...)
}

// NewLock builds a plain lock command.
func NewLock(deviceID string, opts ...CommandOption) *DoorCommand {
	return NewCommand(deviceID, CommandLock, nil, opts...)
}

// NewDeny builds the lock command sent after a denied attempt.
func NewDeny(deviceID string, opts ...CommandOption) *DoorCommand {
	return NewCommand(deviceID, CommandLock, map[string]any{"reason": DenyReason}, opts...)
}

// NewStatusRequest asks a controller to report status. Replies arrive on
// the status topic, so the command is not tracked.
func NewStatusRequest(deviceID string) *DoorCommand {
	return NewCommand(deviceID, CommandStatus, nil, WithoutAck())
}
