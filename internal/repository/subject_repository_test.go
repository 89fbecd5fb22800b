package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnxy-api/internal/models"
)

func TestSubjectExistsByCodeUppercasesAndExcludes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM subjects WHERE code = \$1 AND id <> \$2\)`).
		WithArgs("MTH", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByCode(context.Background(), "mth", "sub-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectListSearchAndDefaultSort(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(`SELECT .* FROM subjects WHERE is_active = TRUE AND \(LOWER\(name\) LIKE \$1 OR LOWER\(code\) LIKE \$1\) ORDER BY name ASC LIMIT 20 OFFSET 0`).
		WithArgs("%math%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "description", "is_active", "created_at", "updated_at"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subjects`).
		WithArgs("%math%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	items, total, err := repo.List(context.Background(), models.SubjectFilter{Search: "Math", SortBy: "bogus"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectDeactivateMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectExec(`UPDATE subjects SET is_active = FALSE`).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestTimeSlotCountBreakConflicts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM class_schedules WHERE time_slot_id = \$1`).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountBreakConflicts(context.Background(), nil, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTimeSlotCountSubjectlessSchedules(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM class_schedules WHERE time_slot_id = \$1 AND subject_id IS NULL`).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.CountSubjectlessSchedules(context.Background(), nil, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTimeSlotClassDaysUsingAndLockedRead(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM time_slots WHERE id = \$1 FOR UPDATE`).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "start_time", "end_time", "is_break", "slot_order", "created_at", "updated_at"}).
			AddRow("slot-1", "Period 1", "08:00:00", "08:40:00", false, 1, time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT DISTINCT academic_class, day_of_week FROM class_schedules`).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"academic_class", "day_of_week"}).
			AddRow("JSS1", "MONDAY").
			AddRow("SSS2", "FRIDAY"))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	slot, err := repo.FindForUpdate(context.Background(), tx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, models.NewClockTime(8, 40), slot.EndTime)

	days, err := repo.ClassDaysUsing(context.Background(), tx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, []models.ClassDay{
		{AcademicClass: models.ClassJSS1, DayOfWeek: models.Monday},
		{AcademicClass: "SSS2", DayOfWeek: "FRIDAY"},
	}, days)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSlotDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectExec(`DELETE FROM time_slots WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
}
