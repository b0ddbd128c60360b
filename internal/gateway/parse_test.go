package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

func TestParseDeviceRequest(t *testing.T) {
	g, _, _, _ := newGateway(t)

	tests := []struct {
		name    string
		topic   string
		payload string
		wantNil bool
	}{
		{"minimal", "access/requests/door_lock_001", `{"card_id":"ABC123","door_id":"d-1"}`, false},
		{"full", "access/requests/door_lock_001",
			`{"card_id":"ABC123","door_id":"d-1","pin":"1234","timestamp":"2026-03-02T12:00:00Z","message_id":"m-1","location_data":{"floor":2}}`, false},
		{"missing card", "access/requests/door_lock_001", `{"door_id":"d-1"}`, true},
		{"missing door", "access/requests/door_lock_001", `{"card_id":"ABC123"}`, true},
		{"not json", "access/requests/door_lock_001", `card=ABC123`, true},
		{"null", "access/requests/door_lock_001", `null`, true},
		{"unreadable timestamp", "access/requests/door_lock_001", `{"card_id":"A","door_id":"d","timestamp":"yesterday"}`, false},
		{"wrong field type", "access/requests/door_lock_001", `{"card_id":42,"door_id":"d"}`, true},
		{"wrong topic", "access/responses/door_lock_001", `{"card_id":"ABC123","door_id":"d-1"}`, true},
		{"short topic", "access/requests", `{"card_id":"ABC123","door_id":"d-1"}`, true},
		{"long topic", "access/requests/door_lock_001/extra", `{"card_id":"ABC123","door_id":"d-1"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.ParseDeviceRequest(tt.topic, []byte(tt.payload))
			if (got == nil) != tt.wantNil {
				t.Fatalf("ParseDeviceRequest() = %+v, wantNil %v", got, tt.wantNil)
			}
			if got != nil && got.DeviceID != "door_lock_001" {
				t.Errorf("DeviceID = %q, want door_lock_001", got.DeviceID)
			}
		})
	}

	full := g.ParseDeviceRequest("access/requests/door_lock_001",
		[]byte(`{"card_id":"ABC123","door_id":"d-1","pin":"1234","timestamp":"2026-03-02T12:00:00Z","message_id":"m-1"}`))
	if full.PIN != "1234" || full.MessageID != "m-1" || !full.Timestamp.Equal(fixedNow) {
		t.Errorf("ParseDeviceRequest() = %+v", full)
	}
}

func TestParseDeviceRequest_TimestampFormats(t *testing.T) {
	g, _, _, _ := newGateway(t)
	sent := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		timestamp string
		want      time.Time
	}{
		{"rfc3339", `"2024-01-15T10:30:00Z"`, sent},
		{"naive iso with micros", `"2024-01-15T10:30:00.123456"`, sent.Add(123456 * time.Microsecond)},
		{"naive iso", `"2024-01-15T10:30:00"`, sent},
		{"epoch seconds", `1705314600`, sent},
		{"unreadable", `"soon"`, fixedNow},
		{"null", `null`, fixedNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"card_id":"ABC123","door_id":"d1","message_id":"m-1","timestamp":` + tt.timestamp + `}`
			got := g.ParseDeviceRequest("access/requests/door_lock_001", []byte(payload))
			if got == nil {
				t.Fatal("ParseDeviceRequest() = nil, want a request")
			}
			if !got.Timestamp.Equal(tt.want) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.want)
			}
			if got.CardID != "ABC123" || got.MessageID != "m-1" {
				t.Errorf("request = %+v", got)
			}
		})
	}

	noStamp := g.ParseDeviceRequest("access/requests/door_lock_001", []byte(`{"card_id":"ABC123","door_id":"d1"}`))
	if noStamp == nil || !noStamp.Timestamp.Equal(fixedNow) {
		t.Errorf("missing timestamp should default to now, got %+v", noStamp)
	}
}

func TestParseTimestamps_OtherMessages(t *testing.T) {
	g, _, _, _ := newGateway(t)
	ctx := context.Background()
	sent := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	ack := g.ParseCommandAcknowledgment(ctx, "access/commands/d1/ack",
		[]byte(`{"message_id":"m-1","status":"success","timestamp":1705314600}`))
	if ack == nil || !ack.Timestamp.Equal(sent) {
		t.Errorf("ack = %+v, want timestamp %v", ack, sent)
	}

	status := g.ParseDeviceStatus("access/devices/d1/status",
		[]byte(`{"online":true,"door_state":"closed","last_heartbeat":"2024-01-15T10:30:00"}`))
	if status == nil || !status.LastHeartbeat.Equal(sent) {
		t.Errorf("status = %+v, want heartbeat %v", status, sent)
	}

	ev := g.ParseDeviceEvent("access/events/d1",
		[]byte(`{"event_type":"door_forced","severity":"critical","timestamp":"last tuesday"}`))
	if ev == nil || !ev.Timestamp.Equal(fixedNow) {
		t.Errorf("event = %+v, want timestamp %v", ev, fixedNow)
	}
}

func TestParseCommandAcknowledgment_ResolvesLedger(t *testing.T) {
	g, _, l, _ := newGateway(t)
	ctx := context.Background()

	cmd := g.CreateUnlock("door_lock_001", 5)
	if err := g.SendDoorCommand(ctx, cmd); err != nil {
		t.Fatalf("SendDoorCommand() error = %v", err)
	}

	ack := g.ParseCommandAcknowledgment(ctx, "access/commands/door_lock_001/ack",
		[]byte(`{"message_id":"`+cmd.MessageID+`","status":"success","execution_time":0.12,"timestamp":"2026-03-02T12:00:01Z"}`))
	if ack == nil {
		t.Fatal("ParseCommandAcknowledgment() = nil")
	}
	if ack.DeviceID != "door_lock_001" || !ack.Succeeded() || ack.ExecutionTime == nil || *ack.ExecutionTime != 0.12 {
		t.Errorf("ack = %+v", ack)
	}
	if ids := pendingIDs(t, l); len(ids) != 0 {
		t.Errorf("ledger = %v, want empty after ack", ids)
	}
}

func TestParseCommandAcknowledgment_UnknownID(t *testing.T) {
	g, _, l, _ := newGateway(t)
	ctx := context.Background()

	kept := g.CreateUnlock("door_lock_001", 5)
	if err := g.SendDoorCommand(ctx, kept); err != nil {
		t.Fatalf("SendDoorCommand() error = %v", err)
	}

	ack := g.ParseCommandAcknowledgment(ctx, "access/commands/door_lock_001/ack",
		[]byte(`{"message_id":"never-sent","status":"failed","error_message":"jammed"}`))
	if ack == nil {
		t.Fatal("acknowledgment for an unknown id should still parse")
	}
	if ack.Succeeded() || ack.ErrorMessage != "jammed" {
		t.Errorf("ack = %+v", ack)
	}
	if ids := pendingIDs(t, l); len(ids) != 1 || ids[0] != kept.MessageID {
		t.Errorf("ledger = %v, want only %s", ids, kept.MessageID)
	}
}

func TestParseCommandAcknowledgment_Malformed(t *testing.T) {
	g, _, _, _ := newGateway(t)

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"missing message_id", "access/commands/d1/ack", `{"status":"success"}`},
		{"missing status", "access/commands/d1/ack", `{"message_id":"m-1"}`},
		{"not json", "access/commands/d1/ack", `ok`},
		{"command topic", "access/commands/d1", `{"message_id":"m-1","status":"success"}`},
		{"lockdown topic", "access/commands/emergency/lockdown", `{"message_id":"m-1","status":"success"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.ParseCommandAcknowledgment(context.Background(), tt.topic, []byte(tt.payload)); got != nil {
				t.Errorf("ParseCommandAcknowledgment() = %+v, want nil", got)
			}
		})
	}
}

func TestParseDeviceStatus(t *testing.T) {
	g, _, _, _ := newGateway(t)

	tests := []struct {
		name        string
		topic       string
		payload     string
		wantNil     bool
		wantHealthy bool
	}{
		{"healthy", "access/devices/d1/status", `{"online":true,"door_state":"closed","battery_level":88,"last_heartbeat":"2026-03-02T12:00:00Z"}`, false, true},
		{"offline", "access/devices/d1/status", `{"online":false,"door_state":"unknown"}`, false, false},
		{"low battery", "access/devices/d1/status", `{"online":true,"door_state":"closed","battery_level":19.5}`, false, false},
		{"battery at threshold", "access/devices/d1/status", `{"online":true,"door_state":"closed","battery_level":20}`, false, true},
		{"error message", "access/devices/d1/status", `{"online":true,"door_state":"open","error_message":"sensor fault"}`, false, false},
		{"missing online", "access/devices/d1/status", `{"door_state":"closed"}`, true, false},
		{"wrong topic", "access/devices/d1/health", `{"online":true}`, true, false},
		{"not json", "access/devices/d1/status", `{`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.ParseDeviceStatus(tt.topic, []byte(tt.payload))
			if (got == nil) != tt.wantNil {
				t.Fatalf("ParseDeviceStatus() = %+v, wantNil %v", got, tt.wantNil)
			}
			if got == nil {
				return
			}
			if got.DeviceID != "d1" {
				t.Errorf("DeviceID = %q, want d1", got.DeviceID)
			}
			if got.Healthy() != tt.wantHealthy {
				t.Errorf("Healthy() = %v, want %v (problems %v)", got.Healthy(), tt.wantHealthy, got.HealthProblems())
			}
		})
	}
}

func TestParseDeviceEvent(t *testing.T) {
	g, _, _, _ := newGateway(t)

	tests := []struct {
		name         string
		topic        string
		payload      string
		wantNil      bool
		wantType     string
		wantSeverity string
	}{
		{"type in topic", "access/events/door_forced/d1", `{"severity":"critical","message_id":"m-1","details":{"sensor":"reed"}}`, false, "door_forced", "critical"},
		{"type in payload", "access/events/d1", `{"event_type":"tamper_alert","severity":"critical"}`, false, "tamper_alert", "critical"},
		{"topic wins", "access/events/door_held/d1", `{"event_type":"other","severity":"warning"}`, false, "door_held", "warning"},
		{"default severity", "access/events/d1", `{"event_type":"door_opened"}`, false, "door_opened", "info"},
		{"missing type", "access/events/d1", `{"severity":"critical"}`, true, "", ""},
		{"not json", "access/events/d1", `[]`, true, "", ""},
		{"too long", "access/events/a/b/c", `{"event_type":"x"}`, true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.ParseDeviceEvent(tt.topic, []byte(tt.payload))
			if (got == nil) != tt.wantNil {
				t.Fatalf("ParseDeviceEvent() = %+v, wantNil %v", got, tt.wantNil)
			}
			if got == nil {
				return
			}
			if got.DeviceID != "d1" || got.EventType != tt.wantType || got.Severity != tt.wantSeverity {
				t.Errorf("event = %+v", got)
			}
			if got.Timestamp.IsZero() {
				t.Error("Timestamp should default to now")
			}
		})
	}
}

func TestParseDeviceEvent_KeepsTimestamp(t *testing.T) {
	g, _, _, _ := newGateway(t)
	ev := g.ParseDeviceEvent("access/events/d1", []byte(`{"event_type":"x","timestamp":"2026-01-01T00:00:00Z"}`))
	if ev == nil || !ev.Timestamp.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Critical() || ev.Severity != protocol.SeverityInfo {
		t.Error("info event should not be critical")
	}
}
