package access

import (
	"fmt"
	"time"
)

// CardType classifies a credential.
type CardType string

// Card types.
const (
	CardEmployee   CardType = "employee"
	CardVisitor    CardType = "visitor"
	CardContractor CardType = "contractor"
	CardMaster     CardType = "master"
	CardTemporary  CardType = "temporary"
)

// CardStatus is the lifecycle state of a card.
type CardStatus string

// Card statuses.
const (
	CardActive    CardStatus = "active"
	CardInactive  CardStatus = "inactive"
	CardSuspended CardStatus = "suspended"
	CardLost      CardStatus = "lost"
	CardExpired   CardStatus = "expired"
)

// Card is a physical credential owned by one user.
type Card struct {
	ID         string     `json:"id"`
	PhysicalID string     `json:"physical_id"`
	UserID     string     `json:"user_id"`
	Type       CardType   `json:"card_type"`
	Status     CardStatus `json:"status"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	UsageCount int        `json:"usage_count"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks the validity window.
func (c *Card) Validate() error {
	if c.ValidUntil != nil && c.ValidFrom.After(*c.ValidUntil) {
		return ErrInvalidValidity
	}
	return nil
}

// IsActive reports whether the card is active and now lies inside
// [ValidFrom, ValidUntil].
func (c *Card) IsActive(now time.Time) bool {
	if c.Status != CardActive {
		return false
	}
	if now.Before(c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}

// IsMaster reports whether the card bypasses permission checks.
func (c *Card) IsMaster() bool {
	return c.Type == CardMaster
}

// RecordUse increments the usage counter and stamps the last use.
func (c *Card) RecordUse(now time.Time) {
	c.UsageCount++
	t := now
	c.LastUsed = &t
}

// UserStatus is the lifecycle state of a user.
type UserStatus string

// User statuses.
const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

// User owns cards and permissions. PINHash is an argon2id PHC string and
// never leaves the process.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Roles     []string   `json:"roles"`
	Status    UserStatus `json:"status"`
	PINHash   string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsActive reports whether the user may be granted access.
func (u *User) IsActive() bool {
	return u.Status == UserActive
}

// SecurityLevel ranks doors.
type SecurityLevel string

// Security levels, lowest first.
const (
	SecurityLow      SecurityLevel = "low"
	SecurityMedium   SecurityLevel = "medium"
	SecurityHigh     SecurityLevel = "high"
	SecurityCritical SecurityLevel = "critical"
)

func (l SecurityLevel) rank() int {
	switch l {
	case SecurityLow:
		return 1
	case SecurityMedium:
		return 2
	case SecurityHigh:
		return 3
	case SecurityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l is min or higher. Unknown levels rank lowest.
func (l SecurityLevel) AtLeast(min SecurityLevel) bool {
	return min.rank() > 0 && l.rank() >= min.rank()
}

// ParseSecurityLevel validates a configured level.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	l := SecurityLevel(s)
	if l.rank() == 0 {
		return "", fmt.Errorf("unknown security level %q", s)
	}
	return l, nil
}

// DoorStatus is the operating state of a door.
type DoorStatus string

// Door statuses.
const (
	DoorActive          DoorStatus = "active"
	DoorInactive        DoorStatus = "inactive"
	DoorMaintenance     DoorStatus = "maintenance"
	DoorEmergencyOpen   DoorStatus = "emergency_open"
	DoorEmergencyLocked DoorStatus = "emergency_locked"
)

// DoorTransition is an operator request to change a door's status.
type DoorTransition string

// Door transitions.
const (
	TransitionActivate         DoorTransition = "activate"
	TransitionDeactivate       DoorTransition = "deactivate"
	TransitionEnterMaintenance DoorTransition = "enter_maintenance"
	TransitionEmergencyOpen    DoorTransition = "emergency_open"
	TransitionEmergencyLock    DoorTransition = "emergency_lock"
)

// Transition returns the status reached by applying t to s.
//
//	activate           inactive, maintenance, emergency_*  -> active
//	deactivate         active, maintenance                 -> inactive
//	enter_maintenance  active, inactive                    -> maintenance
//	emergency_open     anything but emergency_open         -> emergency_open
//	emergency_lock     anything but emergency_locked       -> emergency_locked
func (s DoorStatus) Transition(t DoorTransition) (DoorStatus, error) {
	var next DoorStatus
	var allowed bool

	switch t {
	case TransitionActivate:
		next = DoorActive
		allowed = s == DoorInactive || s == DoorMaintenance || s == DoorEmergencyOpen || s == DoorEmergencyLocked
	case TransitionDeactivate:
		next = DoorInactive
		allowed = s == DoorActive || s == DoorMaintenance
	case TransitionEnterMaintenance:
		next = DoorMaintenance
		allowed = s == DoorActive || s == DoorInactive
	case TransitionEmergencyOpen:
		next = DoorEmergencyOpen
		allowed = s.known() && s != DoorEmergencyOpen
	case TransitionEmergencyLock:
		next = DoorEmergencyLocked
		allowed = s.known() && s != DoorEmergencyLocked
	default:
		return s, fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, t)
	}

	if !allowed {
		return s, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, s)
	}
	return next, nil
}

func (s DoorStatus) known() bool {
	switch s {
	case DoorActive, DoorInactive, DoorMaintenance, DoorEmergencyOpen, DoorEmergencyLocked:
		return true
	}
	return false
}

// Door is a controlled opening.
type Door struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Location        string        `json:"location"`
	DoorType        string        `json:"door_type"`
	SecurityLevel   SecurityLevel `json:"security_level"`
	Status          DoorStatus    `json:"status"`
	Schedule        *Schedule     `json:"schedule,omitempty"`
	RequiresPIN     bool          `json:"requires_pin"`
	MaxAttempts     int           `json:"max_attempts"`
	LockoutDuration int           `json:"lockout_duration"` // seconds
	FailedAttempts  int           `json:"failed_attempts"`
	LockedUntil     *time.Time    `json:"locked_until,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsLockedOut reports whether a lockout is in force at now.
func (d *Door) IsLockedOut(now time.Time) bool {
	return d.LockedUntil != nil && now.Before(*d.LockedUntil)
}

// IsAccessible reports whether the door is active, not locked out and
// open per its schedule. now must already be in the site time zone.
func (d *Door) IsAccessible(now time.Time) bool {
	if d.Status != DoorActive {
		return false
	}
	if d.IsLockedOut(now) {
		return false
	}
	return d.Schedule.Allows(now)
}

// inaccessibleReason explains why IsAccessible returned false.
func (d *Door) inaccessibleReason(now time.Time) string {
	switch {
	case d.Status == DoorMaintenance:
		return "door is not accessible: under maintenance"
	case d.Status != DoorActive:
		return fmt.Sprintf("door is not accessible: %s", d.Status)
	case d.IsLockedOut(now):
		return "door is not accessible: locked out after failed attempts"
	default:
		return "door is not accessible: outside schedule"
	}
}

// Apply moves the door to the status reached by t.
func (d *Door) Apply(t DoorTransition) error {
	next, err := d.Status.Transition(t)
	if err != nil {
		return err
	}
	d.Status = next
	return nil
}

// RecordFailure counts a failed attempt. Once the count reaches
// MaxAttempts the door is locked out, unless a lockout is already running.
// A MaxAttempts of zero or less disables lockout.
func (d *Door) RecordFailure(now time.Time) {
	d.FailedAttempts++
	if d.MaxAttempts > 0 && d.FailedAttempts >= d.MaxAttempts && !d.IsLockedOut(now) {
		d.Lock(now)
	}
}

// Lock starts a lockout of LockoutDuration seconds from now.
func (d *Door) Lock(now time.Time) {
	until := now.Add(time.Duration(d.LockoutDuration) * time.Second)
	d.LockedUntil = &until
}

// ResetFailures clears the counter and any lockout.
func (d *Door) ResetFailures() {
	d.FailedAttempts = 0
	d.LockedUntil = nil
}

// PermissionStatus is the lifecycle state of a permission.
type PermissionStatus string

// Permission statuses.
const (
	PermissionActive    PermissionStatus = "active"
	PermissionInactive  PermissionStatus = "inactive"
	PermissionSuspended PermissionStatus = "suspended"
	PermissionExpired   PermissionStatus = "expired"
)

// Permission lets one user through one door, optionally bound to a card
// and restricted by a schedule.
type Permission struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	DoorID      string           `json:"door_id"`
	CardID      *string          `json:"card_id,omitempty"`
	Status      PermissionStatus `json:"status"`
	ValidFrom   time.Time        `json:"valid_from"`
	ValidUntil  *time.Time       `json:"valid_until,omitempty"`
	Schedule    *Schedule        `json:"schedule,omitempty"`
	PINRequired bool             `json:"pin_required"`
	CreatedBy   string           `json:"created_by"`
	LastUsed    *time.Time       `json:"last_used,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Allows reports whether the permission is active, inside its validity
// window and open per its schedule at now (site time zone).
func (p *Permission) Allows(now time.Time) bool {
	if p.Status != PermissionActive {
		return false
	}
	if now.Before(p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return p.Schedule.Allows(now)
}

// BoundTo reports whether the permission may be used with card. An
// unbound permission accepts any of the user's cards.
func (p *Permission) BoundTo(cardID string) bool {
	return p.CardID == nil || *p.CardID == cardID
}
