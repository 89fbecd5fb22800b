package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnxy-api/internal/models"
)

const timetableColumns = `id, name, academic_year, term, start_date, end_date, is_active, created_at, updated_at`

// TimetableRepository persists timetables and their schedule membership.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs a TimetableRepository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns timetables newest first.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if filter.Term != "" {
		args = append(args, filter.Term)
		conditions = append(conditions, fmt.Sprintf("term = $%d", len(args)))
	}
	base := "FROM timetables"
	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}
	page, size := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_date DESC, created_at DESC LIMIT %d OFFSET %d", timetableColumns, base, size, (page-1)*size)
	var items []models.Timetable
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}
	return items, total, nil
}

// FindByID loads a timetable without its schedules.
func (r *TimetableRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error) {
	var item models.Timetable
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, `SELECT `+timetableColumns+` FROM timetables WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get timetable: %w", err)
	}
	return &item, nil
}

// FindActive returns the active timetable.
func (r *TimetableRepository) FindActive(ctx context.Context) (*models.Timetable, error) {
	var item models.Timetable
	if err := r.db.GetContext(ctx, &item, `SELECT `+timetableColumns+` FROM timetables WHERE is_active = TRUE LIMIT 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get active timetable: %w", err)
	}
	return &item, nil
}

// DeactivateOthers locks the table against concurrent activators and clears
// the active flag on every timetable other than keepID. Must run inside a
// transaction; the lock is held until it ends.
func (r *TimetableRepository) DeactivateOthers(ctx context.Context, exec sqlx.ExtContext, keepID string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `LOCK TABLE timetables IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock timetables: %w", err)
	}
	if _, err := target.ExecContext(ctx, `UPDATE timetables SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2`, time.Now().UTC(), keepID); err != nil {
		return fmt.Errorf("deactivate other timetables: %w", err)
	}
	return nil
}

// SetActive makes id the only active timetable.
func (r *TimetableRepository) SetActive(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if err := r.DeactivateOthers(ctx, exec, id); err != nil {
		return err
	}
	res, err := r.exec(exec).ExecContext(ctx, `UPDATE timetables SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("activate timetable: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Create inserts a timetable row.
func (r *TimetableRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.Timetable) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO timetables (id, name, academic_year, term, start_date, end_date, is_active, created_at, updated_at)
VALUES (:id, :name, :academic_year, :term, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}
	return nil
}

// Update stores the mutable timetable columns.
func (r *TimetableRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.Timetable) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetables SET name = :name, academic_year = :academic_year, term = :term, start_date = :start_date,
end_date = :end_date, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("update timetable: %w", err)
	}
	return nil
}

// ReplaceSchedules swaps the timetable's schedule membership for ids.
func (r *TimetableRepository) ReplaceSchedules(ctx context.Context, exec sqlx.ExtContext, timetableID string, ids []string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM timetable_schedules WHERE timetable_id = $1`, timetableID); err != nil {
		return fmt.Errorf("clear timetable schedules: %w", err)
	}
	for _, id := range ids {
		if _, err := target.ExecContext(ctx, `INSERT INTO timetable_schedules (timetable_id, schedule_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, timetableID, id); err != nil {
			return fmt.Errorf("link timetable schedule: %w", err)
		}
	}
	return nil
}

// Delete removes a timetable.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
