package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnxy-api/internal/models"
)

func TestTimetableSetActiveDeactivatesOthers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("LOCK TABLE timetables IN SHARE ROW EXCLUSIVE MODE")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2")).
		WithArgs(sqlmock.AnyArg(), "tt-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET is_active = TRUE, updated_at = $2 WHERE id = $1")).
		WithArgs("tt-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetActive(context.Background(), nil, "tt-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSetActiveMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec("LOCK TABLE timetables").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("is_active = FALSE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("is_active = TRUE").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTimetableReplaceSchedules(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_schedules WHERE timetable_id = $1")).WithArgs("tt-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO timetable_schedules").WithArgs("tt-1", "cs-1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO timetable_schedules").WithArgs("tt-1", "cs-2").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.ReplaceSchedules(context.Background(), nil, "tt-1", []string{"cs-1", "cs-2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + timetableColumns + " FROM timetables WHERE is_active = TRUE AND academic_year = $1 ORDER BY start_date DESC, created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("2024/2025").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "academic_year", "term", "start_date", "end_date", "is_active", "created_at", "updated_at"}).
			AddRow("tt-1", "Term 1", "2024/2025", "FIRST", now, now, true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetables WHERE is_active = TRUE AND academic_year = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.TimetableFilter{ActiveOnly: true, AcademicYear: "2024/2025"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.True(t, items[0].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleOccupiedSlots(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassScheduleRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM class_schedules cs JOIN time_slots ts").
		WithArgs(models.ClassJSS1, models.Monday, "cs-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "start_time", "end_time", "is_break", "slot_order", "created_at", "updated_at"}).
			AddRow("slot-1", "Period 1", "08:00:00", "08:40:00", false, 1, now, now))

	slots, err := repo.OccupiedSlots(context.Background(), nil, models.ClassJSS1, models.Monday, "cs-9")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, models.NewClockTime(8, 0), slots[0].StartTime)
	assert.Equal(t, models.NewClockTime(8, 40), slots[0].EndTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleListByClassAndDay(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassScheduleRepository(db)

	now := time.Now()
	cols := []string{"id", "academic_class", "day_of_week", "time_slot_id", "subject_id", "teacher_id", "room_number", "is_active", "notes", "created_at", "updated_at",
		"slot_name", "start_time", "end_time", "is_break", "slot_order", "subject_name", "subject_code", "teacher_name"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cs.is_active = TRUE AND cs.academic_class = $1 AND cs.day_of_week = $2 ORDER BY")).
		WithArgs(models.ClassJSS1, models.Monday).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("cs-1", "JSS1", "MONDAY", "slot-1", "sub-1", "t-1", "A1", true, "", now, now,
				"Period 1", "08:00:00", "08:40:00", false, 1, "Mathematics", "MTH", "Ada"))

	class := models.ClassJSS1
	day := models.Monday
	items, err := repo.List(context.Background(), models.ClassScheduleFilter{AcademicClass: &class, DayOfWeek: &day})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Mathematics", *items[0].SubjectName)
	assert.Equal(t, "08:00", items[0].StartTime.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleExistingIDsEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassScheduleRepository(db)

	ids, err := repo.ExistingIDs(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScheduleDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_schedules WHERE id = $1")).WithArgs("cs-x").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "cs-x"), sql.ErrNoRows)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]string

	assert.False(t, repo.Available())
	assert.Error(t, repo.Get(context.Background(), "k", &dest))
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	count, err := repo.Incr(context.Background(), "k", time.Minute)
	assert.NoError(t, err)
	assert.Zero(t, count)
}
