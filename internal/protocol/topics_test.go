package protocol

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Request", topics.Request("door_lock_001"), "access/requests/door_lock_001"},
		{"Response", topics.Response("door_lock_001"), "access/responses/door_lock_001"},
		{"Command", topics.Command("door_lock_001"), "access/commands/door_lock_001"},
		{"CommandAck", topics.CommandAck("door_lock_001"), "access/commands/door_lock_001/ack"},
		{"DeviceStatus", topics.DeviceStatus("door_lock_001"), "access/devices/door_lock_001/status"},
		{"Event", topics.Event("door_lock_001"), "access/events/door_lock_001"},
		{"TypedEvent", topics.TypedEvent("door_forced", "door_lock_001"), "access/events/door_forced/door_lock_001"},
		{"Broadcast", topics.Broadcast(), "access/notifications/broadcast"},
		{"EmergencyLockdown", topics.EmergencyLockdown(), "access/commands/emergency/lockdown"},
		{"AllRequests", topics.AllRequests(), "access/requests/+"},
		{"AllCommandAcks", topics.AllCommandAcks(), "access/commands/+/ack"},
		{"AllDeviceStatus", topics.AllDeviceStatus(), "access/devices/+/status"},
		{"AllEvents", topics.AllEvents(), "access/events/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		topic string
		want  Route
	}{
		{"access/requests/door_lock_001", Route{Kind: RouteAccessRequest, DeviceID: "door_lock_001"}},
		{"access/commands/door_lock_001/ack", Route{Kind: RouteCommandAck, DeviceID: "door_lock_001"}},
		{"access/devices/door_lock_001/status", Route{Kind: RouteDeviceStatus, DeviceID: "door_lock_001"}},
		{"access/events/door_forced/door_lock_001", Route{Kind: RouteDeviceEvent, EventType: "door_forced", DeviceID: "door_lock_001"}},
		{"access/events/door_lock_001", Route{Kind: RouteDeviceEvent, DeviceID: "door_lock_001"}},

		// Unrecognized shapes.
		{"access/requests", Route{}},
		{"access/requests/door_lock_001/extra", Route{}},
		{"access/commands/door_lock_001", Route{}},
		{"access/commands/emergency/lockdown", Route{}},
		{"access/devices/door_lock_001/config", Route{}},
		{"access/responses/door_lock_001", Route{}},
		{"access/requests/", Route{}},
		{"other/requests/door_lock_001", Route{}},
		{"access/events/a/b/c", Route{}},
		{"", Route{}},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := Classify(tt.topic); got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestRouteKindString(t *testing.T) {
	tests := map[RouteKind]string{
		RouteUnrecognized:  "unrecognized",
		RouteAccessRequest: "access_request",
		RouteCommandAck:    "command_ack",
		RouteDeviceStatus:  "device_status",
		RouteDeviceEvent:   "device_event",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("RouteKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
