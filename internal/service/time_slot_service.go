package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

type timeSlotRepository interface {
	List(ctx context.Context) ([]models.TimeSlot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error)
	Create(ctx context.Context, slot *models.TimeSlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error
	Delete(ctx context.Context, id string) error
	CountBreakConflicts(ctx context.Context, exec sqlx.ExtContext, id string) (int, error)
	CountSubjectlessSchedules(ctx context.Context, exec sqlx.ExtContext, id string) (int, error)
	ClassDaysUsing(ctx context.Context, exec sqlx.ExtContext, id string) ([]models.ClassDay, error)
}

// classDayGuard is the part of the schedule store a slot change must
// coordinate with.
type classDayGuard interface {
	LockClassDay(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek) error
	OccupiedSlots(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek, excludeID string) ([]models.TimeSlot, error)
}

// TimeSlotService manages the periods of the school day.
type TimeSlotService struct {
	repo      timeSlotRepository
	schedules classDayGuard
	tx        txProvider
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimeSlotService constructs a TimeSlotService.
func NewTimeSlotService(repo timeSlotRepository, schedules classDayGuard, tx txProvider, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *TimeSlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSlotService{
		repo:      repo,
		schedules: schedules,
		tx:        tx,
		cache:     cache,
		validator: orDefaultValidator(validate),
		logger:    logger,
	}
}

// List returns every slot ordered by position in the day.
func (s *TimeSlotService) List(ctx context.Context) ([]models.TimeSlot, error) {
	slots, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time slots")
	}
	return slots, nil
}

// Get returns one slot.
func (s *TimeSlotService) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	return slot, nil
}

// Create adds a slot.
func (s *TimeSlotService) Create(ctx context.Context, req dto.TimeSlotRequest) (*models.TimeSlot, error) {
	parsed, err := s.parse(req)
	if err != nil {
		return nil, err
	}
	slot := &parsed
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time slot")
	}
	invalidateTimetables(ctx, s.cache, s.logger)
	return slot, nil
}

// Update modifies a slot. The slot row is locked for the whole check-then-write
// so that the schedules on it still satisfy the break rules and do not overlap
// other periods of their class once the change lands.
func (s *TimeSlotService) Update(ctx context.Context, id string, req dto.TimeSlotRequest) (*models.TimeSlot, error) {
	changes, err := s.parse(req)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var slot *models.TimeSlot
	if slot, err = s.repo.FindForUpdate(ctx, tx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	before := *slot
	changes.ID = slot.ID
	changes.CreatedAt = slot.CreatedAt

	if err = s.checkTransition(ctx, tx, before, changes); err != nil {
		return nil, err
	}
	if err = s.repo.Update(ctx, tx, &changes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update time slot")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit time slot")
	}

	invalidateTimetables(ctx, s.cache, s.logger)
	return &changes, nil
}

// checkTransition rejects slot changes that would leave existing schedules
// breaking the schedule rules.
func (s *TimeSlotService) checkTransition(ctx context.Context, tx sqlx.ExtContext, before, after models.TimeSlot) error {
	switch {
	case after.IsBreak && !before.IsBreak:
		count, err := s.repo.CountBreakConflicts(ctx, tx, after.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot usage")
		}
		if count > 0 {
			return appErrors.Clone(appErrors.ErrBreakPeriodConflict, "slot has scheduled subjects or teachers and cannot become a break")
		}
	case !after.IsBreak && before.IsBreak:
		count, err := s.repo.CountSubjectlessSchedules(ctx, tx, after.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot usage")
		}
		if count > 0 {
			return appErrors.Clone(appErrors.ErrMissingSubject, "slot has schedules without a subject and cannot become a teaching period")
		}
	}

	if after.StartTime == before.StartTime && after.EndTime == before.EndTime {
		return nil
	}
	days, err := s.repo.ClassDaysUsing(ctx, tx, after.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot usage")
	}
	for _, day := range days {
		if err := s.schedules.LockClassDay(ctx, tx, day.AcademicClass, day.DayOfWeek); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock class schedule")
		}
		occupied, err := s.schedules.OccupiedSlots(ctx, tx, day.AcademicClass, day.DayOfWeek, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping slots")
		}
		if clash := findOverlap(after, occupied); clash != nil {
			return appErrors.Clone(appErrors.ErrScheduleOverlap, fmt.Sprintf("%s %s: time slot would overlap %s (%s-%s)",
				day.AcademicClass, day.DayOfWeek, clash.Name, clash.StartTime, clash.EndTime))
		}
	}
	return nil
}

// Delete removes a slot. Schedules using it are removed by the store.
func (s *TimeSlotService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete time slot")
	}
	invalidateTimetables(ctx, s.cache, s.logger)
	return nil
}

func (s *TimeSlotService) parse(req dto.TimeSlotRequest) (models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.TimeSlot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	start, err := models.ParseClockTime(req.StartTime)
	if err != nil {
		return models.TimeSlot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start_time")
	}
	end, err := models.ParseClockTime(req.EndTime)
	if err != nil {
		return models.TimeSlot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end_time")
	}
	if !start.Before(end) {
		return models.TimeSlot{}, appErrors.Clone(appErrors.ErrInvalidTimeRange, "")
	}
	return models.TimeSlot{
		Name:      strings.TrimSpace(req.Name),
		StartTime: start,
		EndTime:   end,
		IsBreak:   req.IsBreak,
		Order:     req.Order,
	}, nil
}
