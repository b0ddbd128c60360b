// Package mqtt is the transport adapter between the access core and door
// controllers.
//
// This package manages:
//   - A single connection to the broker (paho, auto-reconnect disabled)
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on access/system/status
//   - A connect-and-listen loop with bounded exponential backoff
//
// # Reconnect Policy
//
// Adapter.Run owns the connection. When a dial fails or an established
// connection is lost, it waits base_delay * 2^(attempt-1) before the next
// attempt. After max_attempts consecutive failures Run returns
// ErrRetriesExhausted and the adapter stops for good; an external
// supervisor (systemd, Kubernetes) is expected to restart the process.
//
// Subscriptions registered with Adapter.Handle are re-applied on every
// successful connect.
//
// # Usage
//
//	adapter := mqtt.NewAdapter(cfg.MQTT, mqtt.WithLogger(log))
//	adapter.Handle("access/requests/+", 1, router.HandleMessage)
//	go func() {
//	    if err := adapter.Run(ctx); err != nil {
//	        log.Error("transport stopped", "error", err)
//	    }
//	}()
//
//	adapter.Publish("access/responses/door_lock_001", payload, 2, false)
package mqtt
