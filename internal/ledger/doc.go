// Package ledger tracks door commands that are waiting for a device
// acknowledgment.
//
// A command enters the ledger when it is sent with requires_ack and
// leaves it when the matching acknowledgment arrives or when a sweep finds
// it older than the cleanup age. The command's own timeout field is only
// advisory for the device; expiry is driven by the sweep.
//
// Two stores back the same Ledger: an in-process map (the default, lost on
// restart) and Redis (a hash of encoded commands plus a sorted set indexed
// by command timestamp, surviving restarts).
package ledger
