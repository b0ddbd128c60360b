// Package api implements the small operational HTTP surface of the access
// core.
//
// Endpoints:
//   - GET  /api/v1/health               component health (database, transport, ledger store)
//   - GET  /metrics                     Prometheus exposition
//   - GET  /api/v1/commands/pending     commands still awaiting acknowledgment
//   - GET  /api/v1/audit                paginated audit trail
//   - POST /api/v1/emergency/lockdown   lock every door (X-API-Key)
//   - POST /api/v1/doors/{id}/transition change a door's status (X-API-Key)
//
// Devices never talk to this API; they use MQTT. The API is for operators
// and monitoring.
package api
