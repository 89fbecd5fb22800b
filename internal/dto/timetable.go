package dto

import "github.com/noah-isme/learnxy-api/internal/models"

// SubjectRequest creates or updates a subject.
type SubjectRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Code        string `json:"code" validate:"required,max=20"`
	Description string `json:"description"`
}

// TimeSlotRequest creates or updates a period of the day. Times are HH:MM.
type TimeSlotRequest struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartTime string `json:"start_time" validate:"required,clock_time"`
	EndTime   string `json:"end_time" validate:"required,clock_time"`
	IsBreak   bool   `json:"is_break"`
	Order     int    `json:"order" validate:"min=0"`
}

// ClassScheduleRequest assigns a subject and teacher to a class period.
type ClassScheduleRequest struct {
	AcademicClass models.AcademicClass `json:"academic_class" validate:"required,academic_class"`
	DayOfWeek     models.DayOfWeek     `json:"day_of_week" validate:"required,day_of_week"`
	TimeSlotID    string               `json:"time_slot_id" validate:"required"`
	SubjectID     *string              `json:"subject_id"`
	TeacherID     *string              `json:"teacher_id"`
	RoomNumber    string               `json:"room_number" validate:"omitempty,max=20"`
	Notes         string               `json:"notes"`
	IsActive      *bool                `json:"is_active"`
}

// TimetableRequest creates or updates a timetable. Dates are YYYY-MM-DD.
type TimetableRequest struct {
	Name         string   `json:"name" validate:"required,max=100"`
	AcademicYear string   `json:"academic_year" validate:"required,max=20"`
	Term         string   `json:"term" validate:"required,max=20"`
	StartDate    string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	IsActive     *bool    `json:"is_active"`
	ScheduleIDs  []string `json:"schedule_ids" validate:"omitempty,dive,required"`
}
