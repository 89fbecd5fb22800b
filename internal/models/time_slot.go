package models

import "time"

// TimeSlot is a named period of the school day.
type TimeSlot struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartTime ClockTime `db:"start_time" json:"start_time"`
	EndTime   ClockTime `db:"end_time" json:"end_time"`
	IsBreak   bool      `db:"is_break" json:"is_break"`
	Order     int       `db:"slot_order" json:"order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the half open ranges [start, end) intersect.
func (t TimeSlot) Overlaps(other TimeSlot) bool {
	return t.StartTime < other.EndTime && other.StartTime < t.EndTime
}
