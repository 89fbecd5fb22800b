package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/pkg/database"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
	"github.com/noah-isme/learnxy-api/pkg/export"
)

const dateLayout = "2006-01-02"

var newTimetableID = uuid.NewString

type timetableRepository interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error)
	FindActive(ctx context.Context) (*models.Timetable, error)
	DeactivateOthers(ctx context.Context, exec sqlx.ExtContext, keepID string) error
	SetActive(ctx context.Context, exec sqlx.ExtContext, id string) error
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.Timetable) error
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.Timetable) error
	ReplaceSchedules(ctx context.Context, exec sqlx.ExtContext, timetableID string, ids []string) error
	Delete(ctx context.Context, id string) error
}

type timetableScheduleReader interface {
	List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error)
	ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]string, error)
}

type timetableCache interface {
	cacheInvalidator
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ExportResult is a rendered timetable document.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// TimetableService publishes timetables and keeps exactly one of them active.
type TimetableService struct {
	repo      timetableRepository
	schedules timetableScheduleReader
	profiles  profileLookup
	tx        txProvider
	cache     timetableCache
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// TimetableDeps groups the collaborators of TimetableService.
type TimetableDeps struct {
	Repo      timetableRepository
	Schedules timetableScheduleReader
	Profiles  profileLookup
	Tx        txProvider
	Cache     timetableCache
	CacheTTL  time.Duration
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(deps TimetableDeps) *TimetableService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		repo:      deps.Repo,
		schedules: deps.Schedules,
		profiles:  deps.Profiles,
		tx:        deps.Tx,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		metrics:   deps.Metrics,
		validator: orDefaultValidator(deps.Validator),
		logger:    logger,
	}
}

// List returns timetables with their active schedules. Students only see
// active timetables.
func (s *TimetableService) List(ctx context.Context, viewer Viewer, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error) {
	if viewer.isStudent() {
		filter.ActiveOnly = true
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	for i := range items {
		if err := s.attachSchedules(ctx, &items[i]); err != nil {
			return nil, nil, err
		}
	}
	if items == nil {
		items = []models.Timetable{}
	}
	return items, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns one timetable with its active schedules.
func (s *TimetableService) Get(ctx context.Context, viewer Viewer, id string) (*models.Timetable, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.isStudent() && !item.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	if err := s.attachSchedules(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Create stores a timetable. New timetables are active unless told otherwise,
// in which case every other timetable is deactivated in the same transaction.
func (s *TimetableService) Create(ctx context.Context, req dto.TimetableRequest) (*models.Timetable, error) {
	item := &models.Timetable{IsActive: true}
	if err := s.apply(item, req); err != nil {
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

	if err = s.checkScheduleIDs(ctx, tx, req.ScheduleIDs); err != nil {
		return nil, err
	}
	item.ID = newTimetableID()
	if item.IsActive {
		if err = s.repo.DeactivateOthers(ctx, tx, item.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate timetables")
		}
	}
	if err = s.repo.Create(ctx, tx, item); err != nil {
		return nil, s.mapWriteError(err, "failed to create timetable")
	}
	if err = s.repo.ReplaceSchedules(ctx, tx, item.ID, req.ScheduleIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link schedules")
	}
	if err = tx.Commit(); err != nil {
		return nil, s.mapWriteError(err, "failed to commit timetable")
	}

	if item.IsActive {
		s.metrics.ObserveTimetableActivation()
	}
	invalidateTimetables(ctx, s.cache, s.logger)
	if err := s.attachSchedules(ctx, item); err != nil {
		s.logger.Warn("failed to load timetable schedules", zap.String("id", item.ID), zap.Error(err))
	}
	return item, nil
}

// Update changes a timetable. Schedule membership is replaced only when
// schedule_ids is present in the request.
func (s *TimetableService) Update(ctx context.Context, id string, req dto.TimetableRequest) (*models.Timetable, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var item *models.Timetable
	if item, err = s.repo.FindByID(ctx, tx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	wasActive := item.IsActive
	if err = s.apply(item, req); err != nil {
		return nil, err
	}
	if req.ScheduleIDs != nil {
		if err = s.checkScheduleIDs(ctx, tx, req.ScheduleIDs); err != nil {
			return nil, err
		}
	}
	if item.IsActive && !wasActive {
		if err = s.repo.DeactivateOthers(ctx, tx, item.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate timetables")
		}
	}
	if err = s.repo.Update(ctx, tx, item); err != nil {
		return nil, s.mapWriteError(err, "failed to update timetable")
	}
	if req.ScheduleIDs != nil {
		if err = s.repo.ReplaceSchedules(ctx, tx, item.ID, req.ScheduleIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link schedules")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, s.mapWriteError(err, "failed to commit timetable")
	}

	if item.IsActive && !wasActive {
		s.metrics.ObserveTimetableActivation()
	}
	invalidateTimetables(ctx, s.cache, s.logger)
	if err := s.attachSchedules(ctx, item); err != nil {
		s.logger.Warn("failed to load timetable schedules", zap.String("id", item.ID), zap.Error(err))
	}
	return item, nil
}

// Delete removes a timetable.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	invalidateTimetables(ctx, s.cache, s.logger)
	return nil
}

// Activate makes id the single active timetable.
func (s *TimetableService) Activate(ctx context.Context, id string) (*models.Timetable, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.SetActive(ctx, tx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, s.mapWriteError(err, "failed to activate timetable")
	}
	if err = tx.Commit(); err != nil {
		return nil, s.mapWriteError(err, "failed to commit activation")
	}

	s.metrics.ObserveTimetableActivation()
	invalidateTimetables(ctx, s.cache, s.logger)
	s.logger.Info("timetable activated", zap.String("timetable_id", id))
	return s.Get(ctx, Viewer{}, id)
}

// Active returns the active timetable, served from cache when possible.
func (s *TimetableService) Active(ctx context.Context) (*models.Timetable, error) {
	item, _, err := s.ActiveWithHit(ctx)
	return item, err
}

// ActiveWithHit is Active that also reports whether the cache answered.
func (s *TimetableService) ActiveWithHit(ctx context.Context) (*models.Timetable, bool, error) {
	if s.cache != nil {
		var cached models.Timetable
		if hit, err := s.cache.Get(ctx, cacheKeyActiveTimetable, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	item, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no active timetable")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active timetable")
	}
	if err := s.attachSchedules(ctx, item); err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKeyActiveTimetable, item, s.cacheTTL)
	}
	return item, false, nil
}

// Mine returns the active timetable narrowed to the student's class.
func (s *TimetableService) Mine(ctx context.Context, viewer Viewer) (*models.Timetable, error) {
	if !viewer.isStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have a personal timetable")
	}
	class, err := lookupStudentClass(ctx, s.profiles, viewer)
	if err != nil {
		return nil, err
	}
	if class == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile has no class assigned")
	}
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	mine := *active
	mine.Schedules = make([]models.ClassScheduleDetail, 0, len(active.Schedules))
	for _, item := range active.Schedules {
		if item.AcademicClass == *class {
			mine.Schedules = append(mine.Schedules, item)
		}
	}
	return &mine, nil
}

// Export renders a timetable as csv, pdf or xlsx.
func (s *TimetableService) Export(ctx context.Context, id, rawFormat string) (*ExportResult, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	exporter, err := export.For(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	item, err := s.Get(ctx, Viewer{}, id)
	if err != nil {
		return nil, err
	}
	body, err := exporter.Render(timetableDataset(item))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("timetable-%s.%s", slugify(item.Name), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Body:        body,
	}, nil
}

var timetableHeaders = []string{"Day", "Start", "End", "Period", "Class", "Subject", "Code", "Teacher", "Room"}

func timetableDataset(item *models.Timetable) export.Dataset {
	rows := make([]map[string]string, 0, len(item.Schedules))
	for _, sc := range item.Schedules {
		rows = append(rows, map[string]string{
			"Day":     string(sc.DayOfWeek),
			"Start":   sc.StartTime.String(),
			"End":     sc.EndTime.String(),
			"Period":  sc.SlotName,
			"Class":   string(sc.AcademicClass),
			"Subject": deref(sc.SubjectName),
			"Code":    deref(sc.SubjectCode),
			"Teacher": deref(sc.TeacherName),
			"Room":    sc.RoomNumber,
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s (%s %s)", item.Name, item.AcademicYear, item.Term),
		Headers: timetableHeaders,
		Rows:    rows,
	}
}

func (s *TimetableService) load(ctx context.Context, id string) (*models.Timetable, error) {
	item, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return item, nil
}

func (s *TimetableService) attachSchedules(ctx context.Context, item *models.Timetable) error {
	schedules, err := s.schedules.List(ctx, models.ClassScheduleFilter{TimetableID: item.ID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable schedules")
	}
	if schedules == nil {
		schedules = []models.ClassScheduleDetail{}
	}
	item.Schedules = schedules
	return nil
}

func (s *TimetableService) apply(item *models.Timetable, req dto.TimetableRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start_date")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end_date")
	}
	if end.Before(start) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	item.Name = strings.TrimSpace(req.Name)
	item.AcademicYear = strings.TrimSpace(req.AcademicYear)
	item.Term = strings.TrimSpace(req.Term)
	item.StartDate = start
	item.EndDate = end
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	return nil
}

func (s *TimetableService) checkScheduleIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.schedules.ExistingIDs(ctx, exec, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedules")
	}
	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "unknown schedule ids: "+strings.Join(missing, ", "))
	}
	return nil
}

// mapWriteError turns a lost activation race on the single-active index into
// a conflict.
func (s *TimetableService) mapWriteError(err error, message string) error {
	if _, dup := database.UniqueViolation(err); dup {
		return appErrors.Clone(appErrors.ErrConflict, "another timetable was activated concurrently, retry")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(raw string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(raw), "-"), "-")
	if slug == "" {
		return "export"
	}
	return slug
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
