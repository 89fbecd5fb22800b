package service

import (
	"github.com/noah-isme/learnxy-api/internal/models"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

// ScheduleCandidate is a class schedule with its references resolved.
type ScheduleCandidate struct {
	AcademicClass models.AcademicClass
	DayOfWeek     models.DayOfWeek
	TimeSlot      *models.TimeSlot
	Subject       *models.Subject
	Teacher       *models.User
}

// ValidateSchedule applies the per-entry consistency rules. Checks run in a
// fixed order and the first failure wins: teacher role, then break periods,
// then the subject requirement.
func ValidateSchedule(c ScheduleCandidate) error {
	if c.TimeSlot == nil {
		return appErrors.Clone(appErrors.ErrValidation, "time slot is required")
	}
	if c.Teacher != nil && c.Teacher.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrInvalidTeacherRole, "")
	}
	if c.TimeSlot.IsBreak && (c.Subject != nil || c.Teacher != nil) {
		return appErrors.Clone(appErrors.ErrBreakPeriodConflict, "")
	}
	if !c.TimeSlot.IsBreak && c.Subject == nil {
		return appErrors.Clone(appErrors.ErrMissingSubject, "")
	}
	return nil
}

// findOverlap returns the first occupied slot that intersects slot. The exact
// same slot is left to the unique constraint.
func findOverlap(slot models.TimeSlot, occupied []models.TimeSlot) *models.TimeSlot {
	for i := range occupied {
		if occupied[i].ID == slot.ID {
			continue
		}
		if slot.Overlaps(occupied[i]) {
			return &occupied[i]
		}
	}
	return nil
}
