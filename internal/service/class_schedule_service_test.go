package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

type fakeScheduleRepo struct {
	items     map[string]*models.ClassSchedule
	occupied  []models.TimeSlot
	createErr error
	locks     []string
	lastList  models.ClassScheduleFilter
	listed    []models.ClassScheduleDetail
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{items: map[string]*models.ClassSchedule{}}
}

func (f *fakeScheduleRepo) List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	f.lastList = filter
	return f.listed, nil
}

func (f *fakeScheduleRepo) FindDetailByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ClassScheduleDetail{ClassSchedule: *item}, nil
}

func (f *fakeScheduleRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSchedule, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (f *fakeScheduleRepo) LockClassDay(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek) error {
	f.locks = append(f.locks, string(class)+"|"+string(day))
	return nil
}

func (f *fakeScheduleRepo) OccupiedSlots(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek, excludeID string) ([]models.TimeSlot, error) {
	return f.occupied, nil
}

func (f *fakeScheduleRepo) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSchedule) error {
	if f.createErr != nil {
		return f.createErr
	}
	item.ID = "cs-new"
	f.items[item.ID] = item
	return nil
}

func (f *fakeScheduleRepo) Update(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSchedule) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeScheduleRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

type fakeSlotLookup map[string]*models.TimeSlot

func (f fakeSlotLookup) FindForShare(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	if slot, ok := f[id]; ok {
		return slot, nil
	}
	return nil, sql.ErrNoRows
}

type fakeSubjectLookup map[string]*models.Subject

func (f fakeSubjectLookup) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error) {
	if subject, ok := f[id]; ok {
		return subject, nil
	}
	return nil, sql.ErrNoRows
}

type fakeUserLookup map[string]*models.User

func (f fakeUserLookup) FindByIDTx(ctx context.Context, exec sqlx.ExtContext, id string) (*models.User, error) {
	if user, ok := f[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, pattern string) error {
	r.patterns = append(r.patterns, pattern)
	return nil
}

type scheduleFixture struct {
	svc      *ClassScheduleService
	repo     *fakeScheduleRepo
	cache    *recordingInvalidator
	profiles *fakeProfiles
}

func newScheduleFixture(tx txProvider) scheduleFixture {
	repo := newFakeScheduleRepo()
	cache := &recordingInvalidator{}
	class := models.ClassJSS1
	profiles := &fakeProfiles{byUser: map[string]models.Profile{
		"student-1": &models.StudentProfile{UserID: "student-1", CurrentClass: &class},
		"student-2": &models.StudentProfile{UserID: "student-2"},
	}}
	svc := NewClassScheduleService(ClassScheduleDeps{
		Repo: repo,
		Slots: fakeSlotLookup{
			"p1":    slotAt("p1", 8, 0, 8, 40, false),
			"long":  slotAt("long", 8, 20, 9, 0, false),
			"break": slotAt("break", 10, 0, 10, 20, true),
		},
		Subjects: fakeSubjectLookup{
			"maths":   {ID: "maths", Name: "Mathematics", IsActive: true},
			"retired": {ID: "retired", Name: "Latin"},
		},
		Users: fakeUserLookup{
			"teacher-1": {ID: "teacher-1", Role: models.RoleTeacher},
			"student-1": {ID: "student-1", Role: models.RoleStudent},
		},
		Profiles: profiles,
		Tx:       tx,
		Cache:    cache,
	})
	return scheduleFixture{svc: svc, repo: repo, cache: cache, profiles: profiles}
}

func strPtr(v string) *string { return &v }

func TestClassScheduleCreate(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newScheduleFixture(tx)

	detail, err := f.svc.Create(context.Background(), dto.ClassScheduleRequest{
		AcademicClass: models.ClassJSS1,
		DayOfWeek:     models.Monday,
		TimeSlotID:    "p1",
		SubjectID:     strPtr("maths"),
		TeacherID:     strPtr("teacher-1"),
		RoomNumber:    "B12",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs-new", detail.ID)
	assert.True(t, detail.IsActive)
	assert.Equal(t, []string{"JSS1|MONDAY"}, f.repo.locks)
	assert.Equal(t, []string{cachePatternTimetables}, f.cache.patterns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleCreateRuleFailuresRollBack(t *testing.T) {
	tests := []struct {
		name     string
		req      dto.ClassScheduleRequest
		wantCode string
	}{
		{
			name:     "student as teacher",
			req:      dto.ClassScheduleRequest{AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, TimeSlotID: "p1", SubjectID: strPtr("maths"), TeacherID: strPtr("student-1")},
			wantCode: appErrors.ErrInvalidTeacherRole.Code,
		},
		{
			name:     "subject in break",
			req:      dto.ClassScheduleRequest{AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, TimeSlotID: "break", SubjectID: strPtr("maths")},
			wantCode: appErrors.ErrBreakPeriodConflict.Code,
		},
		{
			name:     "period without subject",
			req:      dto.ClassScheduleRequest{AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, TimeSlotID: "p1", SubjectID: strPtr("  ")},
			wantCode: appErrors.ErrMissingSubject.Code,
		},
		{
			name:     "inactive subject",
			req:      dto.ClassScheduleRequest{AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, TimeSlotID: "p1", SubjectID: strPtr("retired")},
			wantCode: appErrors.ErrNotFound.Code,
		},
		{
			name:     "unknown teacher",
			req:      dto.ClassScheduleRequest{AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, TimeSlotID: "p1", SubjectID: strPtr("maths"), TeacherID: strPtr("ghost")},
			wantCode: appErrors.ErrNotFound.Code,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx, mock := newTxProviderMock(t)
			mock.ExpectBegin()
			mock.ExpectRollback()
			f := newScheduleFixture(tx)

			_, err := f.svc.Create(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
			assert.Empty(t, f.repo.items)
			assert.Empty(t, f.cache.patterns)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClassScheduleCreateRejectsInvalidPayload(t *testing.T) {
	f := newScheduleFixture(nil)

	_, err := f.svc.Create(context.Background(), dto.ClassScheduleRequest{AcademicClass: "Grade 9", DayOfWeek: models.Monday, TimeSlotID: "p1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassScheduleCreateOverlap(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newScheduleFixture(tx)
	f.repo.occupied = []models.TimeSlot{*slotAt("p1", 8, 0, 8, 40, false)}

	_, err := f.svc.Create(context.Background(), dto.ClassScheduleRequest{
		AcademicClass: models.ClassJSS1,
		DayOfWeek:     models.Monday,
		TimeSlotID:    "long",
		SubjectID:     strPtr("maths"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScheduleOverlap.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleCreateDuplicateSlot(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newScheduleFixture(tx)
	f.repo.createErr = &pq.Error{Code: "23505", Constraint: "class_schedules_class_day_slot_key"}

	_, err := f.svc.Create(context.Background(), dto.ClassScheduleRequest{
		AcademicClass: models.ClassJSS1,
		DayOfWeek:     models.Monday,
		TimeSlotID:    "p1",
		SubjectID:     strPtr("maths"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateScheduleSlot.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleUpdateMissing(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newScheduleFixture(tx)

	_, err := f.svc.Update(context.Background(), "missing", dto.ClassScheduleRequest{AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, TimeSlotID: "p1", SubjectID: strPtr("maths")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassScheduleUpdateDeactivateSkipsOverlap(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newScheduleFixture(tx)
	f.repo.items["cs-1"] = &models.ClassSchedule{ID: "cs-1", AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday, TimeSlotID: "p1", SubjectID: strPtr("maths"), IsActive: true}
	f.repo.occupied = []models.TimeSlot{*slotAt("p1", 8, 0, 8, 40, false)}

	inactive := false
	detail, err := f.svc.Update(context.Background(), "cs-1", dto.ClassScheduleRequest{
		AcademicClass: models.ClassJSS1,
		DayOfWeek:     models.Monday,
		TimeSlotID:    "long",
		SubjectID:     strPtr("maths"),
		IsActive:      &inactive,
	})
	require.NoError(t, err)
	assert.False(t, detail.IsActive)
	assert.Equal(t, "long", f.repo.items["cs-1"].TimeSlotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleByDay(t *testing.T) {
	f := newScheduleFixture(nil)

	_, err := f.svc.ByDay(context.Background(), Viewer{UserID: "admin", Role: models.RoleAdmin}, "")
	require.Error(t, err)
	assert.Equal(t, "day parameter is required", appErrors.FromError(err).Message)

	_, err = f.svc.ByDay(context.Background(), Viewer{UserID: "admin", Role: models.RoleAdmin}, "someday")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	items, err := f.svc.ByDay(context.Background(), Viewer{UserID: "admin", Role: models.RoleAdmin}, "tuesday")
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NotNil(t, f.repo.lastList.DayOfWeek)
	assert.Equal(t, models.Tuesday, *f.repo.lastList.DayOfWeek)
	assert.Nil(t, f.repo.lastList.AcademicClass)
}

func TestClassScheduleStudentScoping(t *testing.T) {
	f := newScheduleFixture(nil)
	student := Viewer{UserID: "student-1", Role: models.RoleStudent}

	_, err := f.svc.ByClass(context.Background(), student, "SS1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.ByClass(context.Background(), student, "JSS1")
	require.NoError(t, err)
	assert.Equal(t, models.ClassJSS1, *f.repo.lastList.AcademicClass)

	_, err = f.svc.List(context.Background(), student, models.ClassScheduleFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.ClassJSS1, *f.repo.lastList.AcademicClass)

	f.repo.lastList = models.ClassScheduleFilter{}
	items, err := f.svc.List(context.Background(), Viewer{UserID: "student-2", Role: models.RoleStudent}, models.ClassScheduleFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Nil(t, f.repo.lastList.AcademicClass, "repository is not queried without a class")

	f.repo.items["cs-9"] = &models.ClassSchedule{ID: "cs-9", AcademicClass: models.ClassSS3}
	_, err = f.svc.Get(context.Background(), student, "cs-9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestClassScheduleDelete(t *testing.T) {
	f := newScheduleFixture(nil)
	f.repo.items["cs-1"] = &models.ClassSchedule{ID: "cs-1"}

	require.NoError(t, f.svc.Delete(context.Background(), "cs-1"))
	assert.Equal(t, []string{cachePatternTimetables}, f.cache.patterns)

	err := f.svc.Delete(context.Background(), "cs-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
