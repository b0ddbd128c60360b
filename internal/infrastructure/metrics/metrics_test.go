package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDecision("granted", 5*time.Millisecond)
	m.ObserveDecision("denied", time.Millisecond)
	m.ObserveDecision("denied", time.Millisecond)
	m.IncPublish("command", nil)
	m.IncPublish("command", errors.New("boom"))
	m.IncRoute("access_request")
	m.IncPanic()
	m.SetPending(3)
	m.AddExpired(2)
	m.AddExpired(0)
	m.SetTransportUp(true)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"granted", testutil.ToFloat64(m.DecisionOutcome.WithLabelValues("granted")), 1},
		{"denied", testutil.ToFloat64(m.DecisionOutcome.WithLabelValues("denied")), 2},
		{"publish ok", testutil.ToFloat64(m.GatewayPublishes.WithLabelValues("command", "ok")), 1},
		{"publish error", testutil.ToFloat64(m.GatewayPublishes.WithLabelValues("command", "error")), 1},
		{"route", testutil.ToFloat64(m.RouterMessages.WithLabelValues("access_request")), 1},
		{"panics", testutil.ToFloat64(m.RouterPanics), 1},
		{"pending", testutil.ToFloat64(m.LedgerPending), 3},
		{"expired", testutil.ToFloat64(m.LedgerExpired), 2},
		{"transport", testutil.ToFloat64(m.TransportUp), 1},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.ObserveDecision("granted", time.Millisecond)
	m.IncPublish("response", nil)
	m.IncRoute("unrecognized")
	m.IncPanic()
	m.SetPending(1)
	m.AddExpired(1)
	m.SetTransportUp(false)
}
