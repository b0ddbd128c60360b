package access

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const clockLayout = "15:04"

// Schedule restricts access to a set of weekdays and a daily time range.
//
// Days holds lowercase English day names; empty means every day. StartTime
// and EndTime are "HH:MM" in the site time zone, start inclusive and end
// exclusive. When EndTime is earlier than StartTime the range wraps past
// midnight and the day check applies to the day the range started. Both
// empty means all day.
type Schedule struct {
	Days      []string `json:"days,omitempty"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Validate checks day names and clock times.
func (s *Schedule) Validate() error {
	if s == nil {
		return nil
	}
	for _, d := range s.Days {
		if _, ok := weekdayNames[strings.ToLower(d)]; !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidSchedule, d)
		}
	}
	if (s.StartTime == "") != (s.EndTime == "") {
		return fmt.Errorf("%w: start_time and end_time must be set together", ErrInvalidSchedule)
	}
	if s.StartTime != "" {
		if _, err := parseClock(s.StartTime); err != nil {
			return err
		}
		if _, err := parseClock(s.EndTime); err != nil {
			return err
		}
	}
	return nil
}

// Allows reports whether now falls inside the schedule. A nil schedule
// always allows. An invalid schedule never does.
func (s *Schedule) Allows(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.Validate() != nil {
		return false
	}

	if s.StartTime == "" {
		return s.onDay(now.Weekday())
	}

	start, _ := parseClock(s.StartTime) //nolint:errcheck // validated above
	end, _ := parseClock(s.EndTime)     //nolint:errcheck // validated above
	minute := now.Hour()*60 + now.Minute()

	if start <= end {
		return s.onDay(now.Weekday()) && minute >= start && minute < end
	}

	// Overnight: the late part belongs to today, the early part to yesterday.
	if minute >= start {
		return s.onDay(now.Weekday())
	}
	if minute < end {
		return s.onDay((now.Weekday() + 6) % 7)
	}
	return false
}

func (s *Schedule) onDay(d time.Weekday) bool {
	if len(s.Days) == 0 {
		return true
	}
	for _, name := range s.Days {
		if weekdayNames[strings.ToLower(name)] == d {
			return true
		}
	}
	return false
}

// parseClock returns minutes since midnight.
func parseClock(v string) (int, error) {
	t, err := time.Parse(clockLayout, v)
	if err != nil {
		return 0, fmt.Errorf("%w: bad time %q", ErrInvalidSchedule, v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// marshalSchedule encodes a schedule for a nullable TEXT column.
func marshalSchedule(s *Schedule) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshalling schedule: %w", err)
	}
	return string(b), nil
}

// unmarshalSchedule decodes a nullable TEXT column.
func unmarshalSchedule(raw *string) (*Schedule, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var s Schedule
	if err := json.Unmarshal([]byte(*raw), &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	return &s, nil
}
