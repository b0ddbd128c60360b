// Package gateway is the Device Communication Gateway: it turns decisions,
// commands and notifications into protocol messages for the broker, and
// turns inbound device payloads back into typed messages.
//
// Outbound delivery:
//
//	access/responses/{device_id}         QoS 2
//	access/commands/{device_id}          QoS 2, tracked in the ledger when requires_ack
//	access/commands/emergency/lockdown   QoS 2, logged as a critical event
//	access/notifications/broadcast       QoS 1
//
// Parsers never fail loudly. A payload that does not match its topic, is
// not valid JSON or lacks a required field yields nil.
package gateway
