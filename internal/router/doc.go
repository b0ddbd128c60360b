// Package router is the Message Router. It classifies every inbound topic
// into a closed set of routes before any payload is parsed, writes the raw
// message to the audit trail, and dispatches:
//
//	access/requests/{device_id}            -> access validation
//	access/commands/{device_id}/ack        -> ledger resolution, failure alert
//	access/devices/{device_id}/status      -> telemetry, health alert
//	access/events/{device_id}              -> security broadcast when critical
//	access/events/{event_type}/{device_id} -> same
//
// Each message runs in its own goroutine under a recover, so one bad
// message never stops the others. There is no ordering between messages,
// not even for the same device.
package router
