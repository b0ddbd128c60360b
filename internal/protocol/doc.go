// Package protocol defines the MQTT wire contract between the access core
// and door controllers: topic names, JSON payloads, and the topic grammar
// used to route inbound messages.
//
// # Topic Structure
//
//	access/requests/{device_id}            in   card presented at a reader
//	access/responses/{device_id}           out  access decision
//	access/commands/{device_id}            out  unlock, lock, status, ...
//	access/commands/{device_id}/ack        in   command acknowledgment
//	access/devices/{device_id}/status      in   heartbeat and health
//	access/events/{type}/{device_id}       in   security event
//	access/events/{device_id}              in   security event, type in payload
//	access/notifications/broadcast         out  operator notification
//	access/commands/emergency/lockdown     out  site-wide lock
//
// Classify maps a topic to exactly one Route before any payload is parsed.
package protocol
