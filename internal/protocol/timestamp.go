package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// naiveLayouts are ISO-8601 forms without a zone offset, read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// epochMillisCutoff separates epoch seconds from epoch milliseconds.
const epochMillisCutoff = 1e12

// WireTime is a device-supplied timestamp. Controllers send RFC3339,
// naive ISO-8601 or epoch seconds (milliseconds are accepted too). A value
// in none of those forms decodes as the zero time instead of failing the
// whole message; parsers substitute the receive time.
type WireTime struct {
	time.Time
}

// UnmarshalJSON never returns an error.
func (t *WireTime) UnmarshalJSON(b []byte) error {
	t.Time = ParseWireTime(b)
	return nil
}

// ParseWireTime decodes one raw JSON timestamp value. The result is UTC, or
// zero when the value is null or unrecognised.
func ParseWireTime(raw []byte) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	if raw[0] != '"' {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || secs <= 0 {
			return time.Time{}
		}
		return fromEpoch(secs)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC()
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func fromEpoch(secs float64) time.Time {
	if secs >= epochMillisCutoff {
		secs /= 1000
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*float64(time.Second))).UTC()
}
