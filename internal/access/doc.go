// Package access decides whether a presented card may open a door.
//
// The Engine evaluates, in order: card state and validity window, door
// accessibility (status, lockout, schedule), the owning user, the user's
// permission for the door (skipped for master cards), and finally the PIN
// when the door or permission demands one.
//
// Every evaluation produces a Decision with one of three outcomes:
// granted, pin_required, or denied. Denials also carry a *DenialError so
// callers can branch with errors.Is on ErrCardNotFound, ErrInvalidDoor and
// friends.
//
// Failed attempts (every denial except pin_required) count against the
// door; reaching max_attempts locks the door out for lockout_duration. A
// grant resets the counter. Concurrent validations against the same door
// are not serialised, so the counter is best effort under contention.
//
// When the request names a device, the Engine always tells it the outcome
// through a Notifier, plus an unlock or deny command. Notification
// failures are logged and never change the decision.
package access
