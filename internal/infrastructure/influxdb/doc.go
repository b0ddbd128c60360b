// Package influxdb writes access core telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library and records two
// measurements:
//   - device_status: one point per controller status report (online,
//     battery, signal strength, door state)
//   - access_decision: one point per validation, tagged by outcome
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteDeviceStatus(influxdb.DeviceStatus{DeviceID: "door_lock_001", Online: true})
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async
// write failures are delivered to the SetOnError callback. A nil *Client
// drops every write.
package influxdb
