package models

import "time"

// Timetable publishes a set of class schedules for a term. At most one
// timetable is active at a time.
type Timetable struct {
	ID           string                `db:"id" json:"id"`
	Name         string                `db:"name" json:"name"`
	AcademicYear string                `db:"academic_year" json:"academic_year"`
	Term         string                `db:"term" json:"term"`
	StartDate    time.Time             `db:"start_date" json:"start_date"`
	EndDate      time.Time             `db:"end_date" json:"end_date"`
	IsActive     bool                  `db:"is_active" json:"is_active"`
	CreatedAt    time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time             `db:"updated_at" json:"updated_at"`
	Schedules    []ClassScheduleDetail `db:"-" json:"schedules"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	ActiveOnly   bool
	AcademicYear string
	Term         string
	Page         int
	PageSize     int
}
