package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the access core.
const (
	measurementDeviceStatus   = "device_status"
	measurementAccessDecision = "access_decision"
)

// DeviceStatus is one controller heartbeat as stored in InfluxDB.
// Optional readings are nil when the device did not report them.
type DeviceStatus struct {
	DeviceID        string
	Online          bool
	DoorState       string
	BatteryLevel    *float64
	SignalStrength  *float64
	FirmwareVersion string
	Healthy         bool
	Time            time.Time
}

// WriteDeviceStatus records a controller status report.
//
// device_id, door_state and firmware_version are tags; online, healthy and
// the optional battery/signal readings are fields.
func (c *Client) WriteDeviceStatus(s DeviceStatus) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":  s.DeviceID,
		"door_state": s.DoorState,
	}
	if s.FirmwareVersion != "" {
		tags["firmware_version"] = s.FirmwareVersion
	}

	fields := map[string]interface{}{
		"online":  s.Online,
		"healthy": s.Healthy,
	}
	if s.BatteryLevel != nil {
		fields["battery_level"] = *s.BatteryLevel
	}
	if s.SignalStrength != nil {
		fields["signal_strength"] = *s.SignalStrength
	}

	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writes.WritePoint(write.NewPoint(measurementDeviceStatus, tags, fields, ts))
}

// WriteAccessDecision records the outcome of one access validation.
//
// Example:
//
//	client.WriteAccessDecision("door-lobby", "door_lock_001", "granted", time.Now())
func (c *Client) WriteAccessDecision(doorID, deviceID, outcome string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writes.WritePoint(write.NewPoint(measurementAccessDecision,
		map[string]string{
			"door_id":   doorID,
			"device_id": deviceID,
			"outcome":   outcome,
		},
		map[string]interface{}{"count": 1},
		at,
	))
}
