package access

import (
	"errors"
	"fmt"
)

// Denial kinds. A *DenialError wraps exactly one of these.
var (
	// ErrCardNotFound is returned when no card has the presented physical id.
	ErrCardNotFound = errors.New("access: card not found")

	// ErrDoorNotFound is returned when the door id is unknown.
	ErrDoorNotFound = errors.New("access: door not found")

	// ErrUserNotFound is returned when the card's owner does not exist.
	ErrUserNotFound = errors.New("access: user not found")

	// ErrInvalidCard covers an inactive or expired card and an inactive owner.
	ErrInvalidCard = errors.New("access: invalid card")

	// ErrInvalidDoor is returned when the door is not accessible right now.
	ErrInvalidDoor = errors.New("access: invalid door")

	// ErrAccessDenied covers a missing permission and a wrong PIN.
	ErrAccessDenied = errors.New("access: denied")
)

// Validation errors for stored entities.
var (
	// ErrInvalidValidity is returned when valid_from is after valid_until.
	ErrInvalidValidity = errors.New("access: valid_from after valid_until")

	// ErrInvalidTransition is returned for a door status change that is not allowed.
	ErrInvalidTransition = errors.New("access: invalid door status transition")

	// ErrInvalidSchedule is returned when a schedule cannot be parsed.
	ErrInvalidSchedule = errors.New("access: invalid schedule")

	// ErrCardExists is returned when a physical card id is registered twice.
	ErrCardExists = errors.New("access: card already registered")
)

// DenialError is a typed access denial. Error returns the human reason
// sent to the device; errors.Is matches the Kind.
type DenialError struct {
	Kind   error
	Reason string
}

func (e *DenialError) Error() string {
	return e.Reason
}

func (e *DenialError) Unwrap() error {
	return e.Kind
}

func deny(kind error, format string, args ...any) *DenialError {
	return &DenialError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Denial reasons sent to devices.
const (
	ReasonCardNotFound  = "card not found"
	ReasonCardInactive  = "card is inactive"
	ReasonDoorNotFound  = "door not found"
	ReasonUserNotFound  = "user not found"
	ReasonUserInactive  = "user is inactive"
	ReasonNoPermission  = "user does not have permission for this door"
	ReasonInvalidPIN    = "Invalid PIN"
	ReasonInternalError = "internal error"
)
