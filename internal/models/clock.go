package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClockTime is a wall clock time of day with minute precision, stored as
// seconds since midnight.
type ClockTime int

// NewClockTime builds a ClockTime from hour and minute components.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*3600 + minute*60)
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS".
func ParseClockTime(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{"15:04", "15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return ClockTime(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q", raw)
}

// String renders the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/3600, (int(c)%3600)/60)
}

// Before reports whether c is strictly earlier than other.
func (c ClockTime) Before(other ClockTime) bool {
	return c < other
}

// Value implements driver.Valuer.
func (c ClockTime) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, (int(c)%3600)/60, int(c)%60), nil
}

// Scan implements sql.Scanner for TIME columns.
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*c = ClockTime(v.Hour()*3600 + v.Minute()*60 + v.Second())
		return nil
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	case nil:
		*c = 0
		return nil
	}
	return fmt.Errorf("unsupported clock time source %T", src)
}

func (c *ClockTime) scanString(raw string) error {
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalJSON renders "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses "HH:MM" or "HH:MM:SS".
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return c.scanString(raw)
}
