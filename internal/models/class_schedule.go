package models

import "time"

// ClassSchedule assigns a subject and teacher to a class for one period of one day.
type ClassSchedule struct {
	ID            string        `db:"id" json:"id"`
	AcademicClass AcademicClass `db:"academic_class" json:"academic_class"`
	DayOfWeek     DayOfWeek     `db:"day_of_week" json:"day_of_week"`
	TimeSlotID    string        `db:"time_slot_id" json:"time_slot_id"`
	SubjectID     *string       `db:"subject_id" json:"subject_id,omitempty"`
	TeacherID     *string       `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomNumber    string        `db:"room_number" json:"room_number"`
	IsActive      bool          `db:"is_active" json:"is_active"`
	Notes         string        `db:"notes" json:"notes"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// ClassScheduleDetail is a schedule joined with its slot, subject and teacher.
type ClassScheduleDetail struct {
	ClassSchedule
	SlotName    string    `db:"slot_name" json:"slot_name"`
	StartTime   ClockTime `db:"start_time" json:"start_time"`
	EndTime     ClockTime `db:"end_time" json:"end_time"`
	IsBreak     bool      `db:"is_break" json:"is_break"`
	SlotOrder   int       `db:"slot_order" json:"slot_order"`
	SubjectName *string   `db:"subject_name" json:"subject_name,omitempty"`
	SubjectCode *string   `db:"subject_code" json:"subject_code,omitempty"`
	TeacherName *string   `db:"teacher_name" json:"teacher_name,omitempty"`
}

// ClassScheduleFilter narrows schedule listings.
type ClassScheduleFilter struct {
	AcademicClass *AcademicClass
	DayOfWeek     *DayOfWeek
	TeacherID     string
	TimetableID   string
	IncludeAll    bool
}

// ClassDay is one class on one weekday, the unit schedule writers lock on.
type ClassDay struct {
	AcademicClass AcademicClass `db:"academic_class"`
	DayOfWeek     DayOfWeek     `db:"day_of_week"`
}
