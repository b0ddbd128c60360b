package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// Notifier delivers decisions to the reader that asked for them.
// The Device Communication Gateway implements it.
type Notifier interface {
	PublishAccessResponse(ctx context.Context, deviceID string, resp *protocol.AccessResponse) error
	SendUnlockCommand(ctx context.Context, deviceID string, duration int) error
	SendDenyCommand(ctx context.Context, deviceID string) error
}

// Logger is the logging surface the engine needs.
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

// EngineConfig holds the engine's settings.
type EngineConfig struct {
	// UnlockDuration is how long (seconds) a granted door stays unlocked.
	UnlockDuration int

	// PINSecurityLevel is the lowest door security level that requires a PIN.
	// Empty means only doors and permissions that ask for one explicitly.
	PINSecurityLevel SecurityLevel

	// Location is the site time zone used for schedules. Nil means UTC.
	Location *time.Location
}

// Request is one card presentation.
type Request struct {
	CardID    string // physical card id as read by the device
	DoorID    string
	PIN       string
	DeviceID  string // optional; when set the device is notified
	MessageID string // echoed in the response when set
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records decision outcomes and latency.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the time source. Tests use it.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine is the Access Decision Engine.
//
// Validate may be called from many goroutines. Door counters are read,
// modified and written without a lock, so concurrent attempts at the same
// door can lose increments.
type Engine struct {
	repos    Repositories
	notifier Notifier
	cfg      EngineConfig
	logger   Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewEngine creates an engine. notifier may be nil when no device is ever
// notified.
func NewEngine(repos Repositories, notifier Notifier, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	e := &Engine{
		repos:    repos,
		notifier: notifier,
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate decides whether req may open the door.
//
// The returned decision is never nil. A denial also returns the error
// behind it: a *DenialError for domain denials, a wrapped repository
// error otherwise. When req.DeviceID is set the device is always told the
// outcome; failures doing so are logged and never change the result.
func (e *Engine) Validate(ctx context.Context, req Request) (dec *Decision, err error) {
	began := time.Now()
	now := e.now().In(e.cfg.Location)

	var door *Door
	defer func() {
		if err != nil {
			dec = DeniedDecision(err)
			dec.DoorID = req.DoorID
			e.recordFailure(ctx, door, req.DoorID, err, now)
		}
		e.metrics.ObserveDecision(string(dec.Outcome), time.Since(began))
		e.notifyDevice(ctx, req, dec)
	}()

	dec, door, err = e.evaluate(ctx, req, now)
	return dec, err
}

// evaluate runs the decision steps. door is returned whenever it was loaded
// so a denial can be counted against it.
func (e *Engine) evaluate(ctx context.Context, req Request, now time.Time) (*Decision, *Door, error) {
	card, err := e.repos.Cards.GetByPhysicalID(ctx, req.CardID)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return nil, nil, deny(ErrCardNotFound, ReasonCardNotFound)
		}
		return nil, nil, fmt.Errorf("looking up card: %w", err)
	}
	if !card.IsActive(now) {
		return nil, nil, deny(ErrInvalidCard, ReasonCardInactive)
	}

	door, err := e.repos.Doors.GetByID(ctx, req.DoorID)
	if err != nil {
		if errors.Is(err, ErrDoorNotFound) {
			return nil, nil, deny(ErrDoorNotFound, ReasonDoorNotFound)
		}
		return nil, nil, fmt.Errorf("looking up door: %w", err)
	}
	if !door.IsAccessible(now) {
		return nil, door, deny(ErrInvalidDoor, "%s", door.inaccessibleReason(now))
	}

	user, err := e.repos.Users.GetByID(ctx, card.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, door, deny(ErrUserNotFound, ReasonUserNotFound)
		}
		return nil, door, fmt.Errorf("looking up user: %w", err)
	}
	if !user.IsActive() {
		return nil, door, deny(ErrInvalidCard, ReasonUserInactive)
	}

	// Master cards skip permission and PIN checks; door accessibility above
	// still applies.
	if !card.IsMaster() {
		perm, err := e.repos.Permissions.CheckAccess(ctx, user.ID, door.ID, now)
		if err != nil {
			return nil, door, fmt.Errorf("checking permission: %w", err)
		}
		if perm == nil || !perm.Allows(now) || !perm.BoundTo(card.ID) {
			return nil, door, deny(ErrAccessDenied, ReasonNoPermission)
		}

		if e.pinRequired(door, perm) {
			if req.PIN == "" {
				return e.decision(OutcomePINRequired, ReasonPINRequired, card, door, user), door, nil
			}
			ok, err := VerifyPIN(req.PIN, user.PINHash)
			if err != nil {
				e.logger.Warn("unreadable PIN hash", "user_id", user.ID, "error", err)
			}
			if !ok {
				return nil, door, deny(ErrAccessDenied, ReasonInvalidPIN)
			}
		}
	}

	return e.grant(ctx, card, door, user, now), door, nil
}

func (e *Engine) pinRequired(door *Door, perm *Permission) bool {
	if door.RequiresPIN || perm.PINRequired {
		return true
	}
	return e.cfg.PINSecurityLevel != "" && door.SecurityLevel.AtLeast(e.cfg.PINSecurityLevel)
}

// grant clears the door's failure state and records the card use. Failing
// to persist either is logged; the grant stands.
func (e *Engine) grant(ctx context.Context, card *Card, door *Door, user *User, now time.Time) *Decision {
	door.ResetFailures()
	if err := e.repos.Doors.Update(ctx, door); err != nil {
		e.logger.Error("resetting door failures", "door_id", door.ID, "error", err)
	}

	card.RecordUse(now)
	if err := e.repos.Cards.Update(ctx, card); err != nil {
		e.logger.Error("recording card use", "card_id", card.ID, "error", err)
	}

	dec := e.decision(OutcomeGranted, ReasonGranted, card, door, user)
	dec.Duration = e.cfg.UnlockDuration
	dec.ValidUntil = card.ValidUntil

	e.logger.Info("access granted",
		"door_id", door.ID,
		"user_id", user.ID,
		"card_type", string(card.Type),
	)
	return dec
}

func (e *Engine) decision(outcome Outcome, reason string, card *Card, door *Door, user *User) *Decision {
	return &Decision{
		Outcome:  outcome,
		Reason:   reason,
		DoorID:   door.ID,
		DoorName: door.Name,
		UserID:   user.ID,
		UserName: user.Name,
		CardID:   card.ID,
		CardType: card.Type,
	}
}

// recordFailure counts a domain denial against the door. Infrastructure
// errors are not the presenter's fault and are not counted.
func (e *Engine) recordFailure(ctx context.Context, door *Door, doorID string, cause error, now time.Time) {
	var denial *DenialError
	if !errors.As(cause, &denial) || errors.Is(cause, ErrDoorNotFound) {
		return
	}

	if door == nil {
		if doorID == "" {
			return
		}
		d, err := e.repos.Doors.GetByID(ctx, doorID)
		if err != nil {
			if !errors.Is(err, ErrDoorNotFound) {
				e.logger.Warn("loading door to count failure", "door_id", doorID, "error", err)
			}
			return
		}
		door = d
	}

	wasLocked := door.IsLockedOut(now)
	door.RecordFailure(now)
	if err := e.repos.Doors.Update(ctx, door); err != nil {
		e.logger.Error("recording failed attempt", "door_id", door.ID, "error", err)
		return
	}

	e.logger.Info("access denied",
		"door_id", door.ID,
		"reason", denial.Reason,
		"failed_attempts", door.FailedAttempts,
	)
	if !wasLocked && door.IsLockedOut(now) {
		e.logger.Warn("door locked out",
			"door_id", door.ID,
			"failed_attempts", door.FailedAttempts,
			"locked_until", door.LockedUntil.UTC().Format(time.RFC3339),
		)
	}
}

// notifyDevice publishes the response and the matching command. It never
// fails the validation.
func (e *Engine) notifyDevice(ctx context.Context, req Request, dec *Decision) {
	if req.DeviceID == "" || e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("device notification panicked", "device_id", req.DeviceID, "panic", r)
		}
	}()

	messageID := req.MessageID
	if messageID == "" {
		messageID = protocol.NewMessageID()
	}

	if err := e.notifier.PublishAccessResponse(ctx, req.DeviceID, dec.Response(messageID, e.now().UTC())); err != nil {
		e.logger.Warn("publishing access response", "device_id", req.DeviceID, "error", err)
	}

	var err error
	switch dec.Outcome {
	case OutcomeGranted:
		err = e.notifier.SendUnlockCommand(ctx, req.DeviceID, dec.Duration)
	case OutcomeDenied:
		err = e.notifier.SendDenyCommand(ctx, req.DeviceID)
	case OutcomePINRequired:
		// The reader prompts for a PIN; the door stays as it is.
	}
	if err != nil {
		e.logger.Warn("sending door command", "device_id", req.DeviceID, "outcome", string(dec.Outcome), "error", err)
	}
}
