package access

import (
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// Outcome is the result of a validation.
type Outcome string

// Validation outcomes. PIN-required is a declared response, not a
// failure: the reader may re-issue the request with a PIN.
const (
	OutcomeGranted     Outcome = "granted"
	OutcomePINRequired Outcome = "pin_required"
	OutcomeDenied      Outcome = "denied"
)

// Reasons attached to non-denial decisions.
const (
	ReasonGranted     = "access granted"
	ReasonPINRequired = "PIN required"
)

// Decision is the single result type of Engine.Validate.
type Decision struct {
	Outcome    Outcome    `json:"outcome"`
	Reason     string     `json:"reason"`
	DoorID     string     `json:"door_id,omitempty"`
	DoorName   string     `json:"door_name,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	UserName   string     `json:"user_name,omitempty"`
	CardID     string     `json:"card_id,omitempty"`
	CardType   CardType   `json:"card_type,omitempty"`
	Duration   int        `json:"duration"` // seconds the door stays unlocked
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// DeniedDecision maps an error to a denial. Errors that are not
// *DenialError are reported to devices as an internal error.
func DeniedDecision(err error) *Decision {
	reason := ReasonInternalError
	var denial *DenialError
	if errors.As(err, &denial) {
		reason = denial.Reason
	}
	return &Decision{Outcome: OutcomeDenied, Reason: reason}
}

// Granted reports whether the door may be opened.
func (d *Decision) Granted() bool {
	return d.Outcome == OutcomeGranted
}

// RequiresPIN reports whether the reader should prompt for a PIN.
func (d *Decision) RequiresPIN() bool {
	return d.Outcome == OutcomePINRequired
}

// DoorAction is the action the reader should take.
func (d *Decision) DoorAction() protocol.DoorAction {
	switch d.Outcome {
	case OutcomeGranted:
		return protocol.DoorActionUnlock
	case OutcomePINRequired:
		return protocol.DoorActionRequirePIN
	default:
		return protocol.DoorActionDeny
	}
}

// Response builds the wire response for the reader.
func (d *Decision) Response(messageID string, now time.Time) *protocol.AccessResponse {
	resp := &protocol.AccessResponse{
		AccessGranted: d.Granted(),
		DoorAction:    d.DoorAction(),
		Reason:        d.Reason,
		UserName:      d.UserName,
		CardType:      string(d.CardType),
		RequiresPIN:   d.RequiresPIN(),
		MessageID:     messageID,
		Timestamp:     now,
	}
	if d.Granted() {
		resp.Duration = d.Duration
	}
	return resp
}
