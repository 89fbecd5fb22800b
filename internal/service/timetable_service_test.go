package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

type fakeTimetableRepo struct {
	items       map[string]*models.Timetable
	deactivated []string
	links       map[string][]string
	setErr      error
	findActive  int
}

func newFakeTimetableRepo(items ...*models.Timetable) *fakeTimetableRepo {
	f := &fakeTimetableRepo{items: map[string]*models.Timetable{}, links: map[string][]string{}}
	for _, item := range items {
		f.items[item.ID] = item
	}
	return f
}

func (f *fakeTimetableRepo) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	var out []models.Timetable
	for _, item := range f.items {
		if filter.ActiveOnly && !item.IsActive {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (f *fakeTimetableRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (f *fakeTimetableRepo) FindActive(ctx context.Context) (*models.Timetable, error) {
	f.findActive++
	for _, item := range f.items {
		if item.IsActive {
			copied := *item
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTimetableRepo) DeactivateOthers(ctx context.Context, exec sqlx.ExtContext, keepID string) error {
	f.deactivated = append(f.deactivated, keepID)
	for id, item := range f.items {
		if id != keepID {
			item.IsActive = false
		}
	}
	return nil
}

func (f *fakeTimetableRepo) SetActive(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if f.setErr != nil {
		return f.setErr
	}
	item, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	if err := f.DeactivateOthers(ctx, exec, id); err != nil {
		return err
	}
	item.IsActive = true
	return nil
}

func (f *fakeTimetableRepo) Create(ctx context.Context, exec sqlx.ExtContext, item *models.Timetable) error {
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeTimetableRepo) Update(ctx context.Context, exec sqlx.ExtContext, item *models.Timetable) error {
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeTimetableRepo) ReplaceSchedules(ctx context.Context, exec sqlx.ExtContext, timetableID string, ids []string) error {
	f.links[timetableID] = ids
	return nil
}

func (f *fakeTimetableRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

type fakeScheduleReader struct {
	byTimetable map[string][]models.ClassScheduleDetail
	known       map[string]bool
}

func (f *fakeScheduleReader) List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	return f.byTimetable[filter.TimetableID], nil
}

func (f *fakeScheduleReader) ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if f.known[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type memoryTimetableCache struct {
	values      map[string][]byte
	invalidated []string
}

func newMemoryTimetableCache() *memoryTimetableCache {
	return &memoryTimetableCache{values: map[string][]byte{}}
}

func (m *memoryTimetableCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryTimetableCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryTimetableCache) Invalidate(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	m.values = map[string][]byte{}
	return nil
}

type timetableFixture struct {
	svc       *TimetableService
	repo      *fakeTimetableRepo
	schedules *fakeScheduleReader
	cache     *memoryTimetableCache
	metrics   *MetricsService
}

func newTimetableFixture(tx txProvider, items ...*models.Timetable) timetableFixture {
	repo := newFakeTimetableRepo(items...)
	subject := "Mathematics"
	code := "MTH"
	teacher := "Grace Hopper"
	schedules := &fakeScheduleReader{
		byTimetable: map[string][]models.ClassScheduleDetail{
			"tt-1": {
				{ClassSchedule: models.ClassSchedule{ID: "cs-1", AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, RoomNumber: "B12"}, SlotName: "Period 1", StartTime: models.NewClockTime(8, 0), EndTime: models.NewClockTime(8, 40), SubjectName: &subject, SubjectCode: &code, TeacherName: &teacher},
				{ClassSchedule: models.ClassSchedule{ID: "cs-2", AcademicClass: models.ClassSS2, DayOfWeek: models.Monday}, SlotName: "Break", StartTime: models.NewClockTime(10, 0), EndTime: models.NewClockTime(10, 20), IsBreak: true},
			},
		},
		known: map[string]bool{"cs-1": true, "cs-2": true},
	}
	class := models.ClassJSS1
	profiles := &fakeProfiles{byUser: map[string]models.Profile{
		"student-1": &models.StudentProfile{UserID: "student-1", CurrentClass: &class},
		"student-2": &models.StudentProfile{UserID: "student-2"},
	}}
	cache := newMemoryTimetableCache()
	metrics := NewMetricsService()
	svc := NewTimetableService(TimetableDeps{
		Repo:      repo,
		Schedules: schedules,
		Profiles:  profiles,
		Tx:        tx,
		Cache:     cache,
		CacheTTL:  time.Minute,
		Metrics:   metrics,
	})
	return timetableFixture{svc: svc, repo: repo, schedules: schedules, cache: cache, metrics: metrics}
}

func firstTerm(active bool) *models.Timetable {
	return &models.Timetable{ID: "tt-1", Name: "First Term", AcademicYear: "2024/2025", Term: "First", IsActive: active}
}

func TestTimetableCreateActivatesAndDeactivatesOthers(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newTimetableFixture(tx, firstTerm(true))

	original := newTimetableID
	newTimetableID = func() string { return "tt-2" }
	t.Cleanup(func() { newTimetableID = original })

	item, err := f.svc.Create(context.Background(), dto.TimetableRequest{
		Name:         "Second Term",
		AcademicYear: "2024/2025",
		Term:         "Second",
		StartDate:    "2025-01-06",
		EndDate:      "2025-04-04",
		ScheduleIDs:  []string{"cs-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tt-2", item.ID)
	assert.True(t, item.IsActive)
	assert.Equal(t, []string{"tt-2"}, f.repo.deactivated)
	assert.False(t, f.repo.items["tt-1"].IsActive)
	assert.Equal(t, []string{"cs-1"}, f.repo.links["tt-2"])
	assert.Equal(t, []string{cachePatternTimetables}, f.cache.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableCreateInactiveLeavesOthers(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newTimetableFixture(tx, firstTerm(true))

	inactive := false
	_, err := f.svc.Create(context.Background(), dto.TimetableRequest{
		Name: "Draft", AcademicYear: "2024/2025", Term: "Second", StartDate: "2025-01-06", EndDate: "2025-04-04", IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Empty(t, f.repo.deactivated)
	assert.True(t, f.repo.items["tt-1"].IsActive)
}

func TestTimetableCreateRejectsUnknownSchedules(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newTimetableFixture(tx)

	_, err := f.svc.Create(context.Background(), dto.TimetableRequest{
		Name: "Draft", AcademicYear: "2024/2025", Term: "Second", StartDate: "2025-01-06", EndDate: "2025-04-04", ScheduleIDs: []string{"cs-1", "cs-404"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "cs-404")
	assert.Empty(t, f.repo.items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableCreateRejectsInvertedDates(t *testing.T) {
	f := newTimetableFixture(nil)

	_, err := f.svc.Create(context.Background(), dto.TimetableRequest{
		Name: "Draft", AcademicYear: "2024/2025", Term: "Second", StartDate: "2025-04-04", EndDate: "2025-01-06",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableActivate(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	second := &models.Timetable{ID: "tt-2", Name: "Second Term", IsActive: true}
	f := newTimetableFixture(tx, firstTerm(false), second)

	item, err := f.svc.Activate(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.True(t, item.IsActive)
	assert.Len(t, item.Schedules, 2)
	assert.False(t, f.repo.items["tt-2"].IsActive)
	assert.Equal(t, []string{cachePatternTimetables}, f.cache.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableActivateNotFound(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newTimetableFixture(tx)

	_, err := f.svc.Activate(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableActivateConcurrentConflict(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newTimetableFixture(tx, firstTerm(false))
	f.repo.setErr = &pq.Error{Code: "23505", Constraint: "timetables_single_active_idx"}

	_, err := f.svc.Activate(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTimetableActiveUsesCache(t *testing.T) {
	f := newTimetableFixture(nil, firstTerm(true))

	first, err := f.svc.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tt-1", first.ID)

	second, hit, err := f.svc.ActiveWithHit(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "tt-1", second.ID)
	assert.Len(t, second.Schedules, 2)
	assert.Equal(t, 1, f.repo.findActive)
}

func TestTimetableActiveMissing(t *testing.T) {
	f := newTimetableFixture(nil, firstTerm(false))

	_, err := f.svc.Active(context.Background())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "no active timetable", appErr.Message)
}

func TestTimetableMine(t *testing.T) {
	f := newTimetableFixture(nil, firstTerm(true))

	_, err := f.svc.Mine(context.Background(), Viewer{UserID: "teacher-1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Mine(context.Background(), Viewer{UserID: "student-2", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	mine, err := f.svc.Mine(context.Background(), Viewer{UserID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, mine.Schedules, 1)
	assert.Equal(t, "cs-1", mine.Schedules[0].ID)
}

func TestTimetableStudentCannotSeeInactive(t *testing.T) {
	f := newTimetableFixture(nil, firstTerm(false))
	student := Viewer{UserID: "student-1", Role: models.RoleStudent}

	_, err := f.svc.Get(context.Background(), student, "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	items, _, err := f.svc.List(context.Background(), student, models.TimetableFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTimetableExportCSV(t *testing.T) {
	f := newTimetableFixture(nil, firstTerm(true))

	result, err := f.svc.Export(context.Background(), "tt-1", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "timetable-first-term.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)

	lines := strings.Split(strings.TrimSpace(string(result.Body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Day,Start,End,Period,Class,Subject,Code,Teacher,Room", lines[0])
	assert.Equal(t, "MONDAY,08:00,08:40,Period 1,JSS1,Mathematics,MTH,Grace Hopper,B12", lines[1])
}

func TestTimetableExportUnknownFormat(t *testing.T) {
	f := newTimetableFixture(nil, firstTerm(true))

	_, err := f.svc.Export(context.Background(), "tt-1", "docx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func termUpdate(active *bool, scheduleIDs []string) dto.TimetableRequest {
	return dto.TimetableRequest{
		Name:         "First Term (revised)",
		AcademicYear: "2024/2025",
		Term:         "First",
		StartDate:    "2024-09-09",
		EndDate:      "2024-12-13",
		IsActive:     active,
		ScheduleIDs:  scheduleIDs,
	}
}

func activeCount(repo *fakeTimetableRepo) int {
	count := 0
	for _, item := range repo.items {
		if item.IsActive {
			count++
		}
	}
	return count
}

func TestTimetableUpdateActivatesAndDeactivatesOthers(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	second := &models.Timetable{ID: "tt-2", Name: "Second Term", IsActive: true}
	f := newTimetableFixture(tx, firstTerm(false), second)

	active := true
	item, err := f.svc.Update(context.Background(), "tt-1", termUpdate(&active, nil))
	require.NoError(t, err)
	assert.True(t, item.IsActive)
	assert.Equal(t, []string{"tt-1"}, f.repo.deactivated)
	assert.True(t, f.repo.items["tt-1"].IsActive)
	assert.False(t, f.repo.items["tt-2"].IsActive)
	assert.Equal(t, 1, activeCount(f.repo))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.activations))
	assert.Equal(t, []string{cachePatternTimetables}, f.cache.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableUpdateAlreadyActiveIsNotReactivated(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newTimetableFixture(tx, firstTerm(true))

	_, err := f.svc.Update(context.Background(), "tt-1", termUpdate(nil, nil))
	require.NoError(t, err)
	assert.Empty(t, f.repo.deactivated)
	assert.Zero(t, testutil.ToFloat64(f.metrics.activations))
}

func TestTimetableUpdateDeactivateLeavesNoneActive(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newTimetableFixture(tx, firstTerm(true))

	inactive := false
	item, err := f.svc.Update(context.Background(), "tt-1", termUpdate(&inactive, nil))
	require.NoError(t, err)
	assert.False(t, item.IsActive)
	assert.Empty(t, f.repo.deactivated)
	assert.Zero(t, activeCount(f.repo))
	assert.Zero(t, testutil.ToFloat64(f.metrics.activations))

	_, err = f.svc.Active(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableUpdateScheduleLinks(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newTimetableFixture(tx, firstTerm(true))
	f.repo.links["tt-1"] = []string{"cs-1", "cs-2"}

	item, err := f.svc.Update(context.Background(), "tt-1", termUpdate(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "First Term (revised)", item.Name)
	assert.Equal(t, []string{"cs-1", "cs-2"}, f.repo.links["tt-1"])

	_, err = f.svc.Update(context.Background(), "tt-1", termUpdate(nil, []string{}))
	require.NoError(t, err)
	assert.Empty(t, f.repo.links["tt-1"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableUpdateUnknownScheduleRollsBack(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	second := &models.Timetable{ID: "tt-2", Name: "Second Term", IsActive: true}
	f := newTimetableFixture(tx, firstTerm(false), second)
	f.repo.links["tt-1"] = []string{"cs-1"}

	active := true
	_, err := f.svc.Update(context.Background(), "tt-1", termUpdate(&active, []string{"cs-1", "cs-404"}))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "cs-404")

	assert.Empty(t, f.repo.deactivated)
	assert.Equal(t, "First Term", f.repo.items["tt-1"].Name)
	assert.False(t, f.repo.items["tt-1"].IsActive)
	assert.True(t, f.repo.items["tt-2"].IsActive)
	assert.Equal(t, []string{"cs-1"}, f.repo.links["tt-1"])
	assert.Empty(t, f.cache.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
