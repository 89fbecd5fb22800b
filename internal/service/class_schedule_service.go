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
	"github.com/noah-isme/learnxy-api/pkg/database"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

type classScheduleRepository interface {
	List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSchedule, error)
	LockClassDay(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek) error
	OccupiedSlots(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek, excludeID string) ([]models.TimeSlot, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSchedule) error
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSchedule) error
	Delete(ctx context.Context, id string) error
}

type slotLookup interface {
	FindForShare(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error)
}

type subjectLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error)
}

type userLookup interface {
	FindByIDTx(ctx context.Context, exec sqlx.ExtContext, id string) (*models.User, error)
}

type profileLookup interface {
	FindByUser(ctx context.Context, userID string, role models.UserRole) (models.Profile, error)
}

// ClassScheduleService manages class schedule entries and enforces the
// timetable consistency rules on every write.
type ClassScheduleService struct {
	repo      classScheduleRepository
	slots     slotLookup
	subjects  subjectLookup
	users     userLookup
	profiles  profileLookup
	tx        txProvider
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// ClassScheduleDeps groups the collaborators of ClassScheduleService.
type ClassScheduleDeps struct {
	Repo      classScheduleRepository
	Slots     slotLookup
	Subjects  subjectLookup
	Users     userLookup
	Profiles  profileLookup
	Tx        txProvider
	Cache     cacheInvalidator
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewClassScheduleService constructs a ClassScheduleService.
func NewClassScheduleService(deps ClassScheduleDeps) *ClassScheduleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassScheduleService{
		repo:      deps.Repo,
		slots:     deps.Slots,
		subjects:  deps.Subjects,
		users:     deps.Users,
		profiles:  deps.Profiles,
		tx:        deps.Tx,
		cache:     deps.Cache,
		validator: orDefaultValidator(deps.Validator),
		logger:    logger,
	}
}

// List returns active schedules. Students only ever see their own class and
// get an empty list while they have no class assigned.
func (s *ClassScheduleService) List(ctx context.Context, viewer Viewer, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	filter.IncludeAll = false
	if viewer.isStudent() {
		class, err := s.studentClass(ctx, viewer)
		if err != nil {
			return nil, err
		}
		if class == nil {
			return []models.ClassScheduleDetail{}, nil
		}
		filter.AcademicClass = class
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class schedules")
	}
	if items == nil {
		items = []models.ClassScheduleDetail{}
	}
	return items, nil
}

// ByDay lists schedules for one weekday.
func (s *ClassScheduleService) ByDay(ctx context.Context, viewer Viewer, rawDay string) ([]models.ClassScheduleDetail, error) {
	day := models.DayOfWeek(strings.ToUpper(strings.TrimSpace(rawDay)))
	if rawDay == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "day parameter is required")
	}
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid day %q", rawDay))
	}
	return s.List(ctx, viewer, models.ClassScheduleFilter{DayOfWeek: &day})
}

// ByClass lists schedules for one class. Students may only ask for their own.
func (s *ClassScheduleService) ByClass(ctx context.Context, viewer Viewer, rawClass string) ([]models.ClassScheduleDetail, error) {
	if strings.TrimSpace(rawClass) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class parameter is required")
	}
	class := models.AcademicClass(strings.TrimSpace(rawClass))
	if !class.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid class %q", rawClass))
	}
	if viewer.isStudent() {
		own, err := s.studentClass(ctx, viewer)
		if err != nil {
			return nil, err
		}
		if own == nil || *own != class {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own class schedule")
		}
	}
	return s.List(ctx, viewer, models.ClassScheduleFilter{AcademicClass: &class})
}

// Get returns one schedule.
func (s *ClassScheduleService) Get(ctx context.Context, viewer Viewer, id string) (*models.ClassScheduleDetail, error) {
	item, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class schedule")
	}
	if viewer.isStudent() {
		own, err := s.studentClass(ctx, viewer)
		if err != nil {
			return nil, err
		}
		if own == nil || *own != item.AcademicClass {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own class schedule")
		}
	}
	return item, nil
}

// Create validates and stores a new schedule.
func (s *ClassScheduleService) Create(ctx context.Context, req dto.ClassScheduleRequest) (*models.ClassScheduleDetail, error) {
	return s.save(ctx, "", req)
}

// Update validates and stores changes to a schedule.
func (s *ClassScheduleService) Update(ctx context.Context, id string, req dto.ClassScheduleRequest) (*models.ClassScheduleDetail, error) {
	return s.save(ctx, id, req)
}

// Delete removes a schedule.
func (s *ClassScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class schedule")
	}
	invalidateTimetables(ctx, s.cache, s.logger)
	return nil
}

// save runs validate-then-write in one transaction so a failed rule leaves
// nothing behind.
func (s *ClassScheduleService) save(ctx context.Context, id string, req dto.ClassScheduleRequest) (*models.ClassScheduleDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class schedule payload")
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

	item := &models.ClassSchedule{IsActive: true}
	if id != "" {
		if item, err = s.repo.FindByID(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class schedule not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class schedule")
		}
	}
	item.AcademicClass = req.AcademicClass
	item.DayOfWeek = req.DayOfWeek
	item.TimeSlotID = req.TimeSlotID
	item.SubjectID = blankToNil(req.SubjectID)
	item.TeacherID = blankToNil(req.TeacherID)
	item.RoomNumber = req.RoomNumber
	item.Notes = req.Notes
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}

	// The slot row lock comes before the class/day lock, in the same order
	// slot updates take them.
	var candidate ScheduleCandidate
	if candidate, err = s.resolve(ctx, tx, item); err != nil {
		return nil, err
	}
	if err = s.repo.LockClassDay(ctx, tx, item.AcademicClass, item.DayOfWeek); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock class schedule")
	}
	if err = ValidateSchedule(candidate); err != nil {
		return nil, err
	}

	if item.IsActive {
		var occupied []models.TimeSlot
		if occupied, err = s.repo.OccupiedSlots(ctx, tx, item.AcademicClass, item.DayOfWeek, item.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping slots")
		}
		if clash := findOverlap(*candidate.TimeSlot, occupied); clash != nil {
			err = appErrors.Clone(appErrors.ErrScheduleOverlap, fmt.Sprintf("time slot overlaps %s (%s-%s)", clash.Name, clash.StartTime, clash.EndTime))
			return nil, err
		}
	}

	if id == "" {
		err = s.repo.Create(ctx, tx, item)
	} else {
		err = s.repo.Update(ctx, tx, item)
	}
	if err != nil {
		if _, dup := database.UniqueViolation(err); dup {
			return nil, appErrors.Clone(appErrors.ErrDuplicateScheduleSlot, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save class schedule")
	}
	if err = tx.Commit(); err != nil {
		if _, dup := database.UniqueViolation(err); dup {
			return nil, appErrors.Clone(appErrors.ErrDuplicateScheduleSlot, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit class schedule")
	}

	invalidateTimetables(ctx, s.cache, s.logger)

	detail, ferr := s.repo.FindDetailByID(ctx, item.ID)
	if ferr != nil {
		s.logger.Warn("failed to reload class schedule", zap.String("id", item.ID), zap.Error(ferr))
		return &models.ClassScheduleDetail{ClassSchedule: *item}, nil
	}
	return detail, nil
}

// resolve loads the slot, subject and teacher an entry points at.
func (s *ClassScheduleService) resolve(ctx context.Context, tx sqlx.ExtContext, item *models.ClassSchedule) (ScheduleCandidate, error) {
	candidate := ScheduleCandidate{AcademicClass: item.AcademicClass, DayOfWeek: item.DayOfWeek}

	slot, err := s.slots.FindForShare(ctx, tx, item.TimeSlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return candidate, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return candidate, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	candidate.TimeSlot = slot

	if item.SubjectID != nil {
		subject, err := s.subjects.FindByID(ctx, tx, *item.SubjectID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return candidate, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
			}
			return candidate, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		if !subject.IsActive {
			return candidate, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		candidate.Subject = subject
	}

	if item.TeacherID != nil {
		teacher, err := s.users.FindByIDTx(ctx, tx, *item.TeacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return candidate, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return candidate, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
		candidate.Teacher = teacher
	}
	return candidate, nil
}

// studentClass returns the viewer's current class, or nil when the student
// has no profile or no class yet.
func (s *ClassScheduleService) studentClass(ctx context.Context, viewer Viewer) (*models.AcademicClass, error) {
	return lookupStudentClass(ctx, s.profiles, viewer)
}

func lookupStudentClass(ctx context.Context, profiles profileLookup, viewer Viewer) (*models.AcademicClass, error) {
	profile, err := profiles.FindByUser(ctx, viewer.UserID, models.RoleStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	student, ok := profile.(*models.StudentProfile)
	if !ok || student == nil {
		return nil, nil
	}
	return student.CurrentClass, nil
}

func blankToNil(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}
