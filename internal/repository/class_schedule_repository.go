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
	"github.com/lib/pq"

	"github.com/noah-isme/learnxy-api/internal/models"
)

const classScheduleColumns = `id, academic_class, day_of_week, time_slot_id, subject_id, teacher_id, room_number, is_active, notes, created_at, updated_at`

const scheduleDetailSelect = `SELECT cs.id, cs.academic_class, cs.day_of_week, cs.time_slot_id, cs.subject_id, cs.teacher_id,
cs.room_number, cs.is_active, cs.notes, cs.created_at, cs.updated_at,
ts.name AS slot_name, ts.start_time, ts.end_time, ts.is_break, ts.slot_order,
s.name AS subject_name, s.code AS subject_code, u.name AS teacher_name
FROM class_schedules cs
JOIN time_slots ts ON ts.id = cs.time_slot_id
LEFT JOIN subjects s ON s.id = cs.subject_id
LEFT JOIN users u ON u.id = cs.teacher_id`

const scheduleDetailOrder = ` ORDER BY array_position(ARRAY['MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY']::text[], cs.day_of_week::text), ts.slot_order, ts.start_time, cs.academic_class`

// ClassScheduleRepository persists per class, per day schedule entries.
type ClassScheduleRepository struct {
	db *sqlx.DB
}

// NewClassScheduleRepository constructs a ClassScheduleRepository.
func NewClassScheduleRepository(db *sqlx.DB) *ClassScheduleRepository {
	return &ClassScheduleRepository{db: db}
}

func (r *ClassScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns schedule details matching the filter.
func (r *ClassScheduleRepository) List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if !filter.IncludeAll {
		conditions = append(conditions, "cs.is_active = TRUE")
	}
	if filter.AcademicClass != nil {
		args = append(args, *filter.AcademicClass)
		conditions = append(conditions, fmt.Sprintf("cs.academic_class = $%d", len(args)))
	}
	if filter.DayOfWeek != nil {
		args = append(args, *filter.DayOfWeek)
		conditions = append(conditions, fmt.Sprintf("cs.day_of_week = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("cs.teacher_id = $%d", len(args)))
	}
	if filter.TimetableID != "" {
		args = append(args, filter.TimetableID)
		conditions = append(conditions, fmt.Sprintf("cs.id IN (SELECT schedule_id FROM timetable_schedules WHERE timetable_id = $%d)", len(args)))
	}

	query := scheduleDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += scheduleDetailOrder

	var items []models.ClassScheduleDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list class schedules: %w", err)
	}
	return items, nil
}

// FindDetailByID returns one schedule with its joined slot, subject and teacher.
func (r *ClassScheduleRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	var item models.ClassScheduleDetail
	if err := r.db.GetContext(ctx, &item, scheduleDetailSelect+` WHERE cs.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get class schedule detail: %w", err)
	}
	return &item, nil
}

// FindByID loads the bare schedule row through the executor, locking it for update.
func (r *ClassScheduleRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSchedule, error) {
	var item models.ClassSchedule
	query := `SELECT ` + classScheduleColumns + ` FROM class_schedules WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get class schedule: %w", err)
	}
	return &item, nil
}

// LockClassDay serialises writers for one class and day until the enclosing
// transaction ends.
func (r *ClassScheduleRepository) LockClassDay(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(class)+"|"+string(day)); err != nil {
		return fmt.Errorf("lock class day: %w", err)
	}
	return nil
}

// OccupiedSlots returns the slots used by other active schedules for the class and day.
func (r *ClassScheduleRepository) OccupiedSlots(ctx context.Context, exec sqlx.ExtContext, class models.AcademicClass, day models.DayOfWeek, excludeID string) ([]models.TimeSlot, error) {
	const query = `SELECT ts.id, ts.name, ts.start_time, ts.end_time, ts.is_break, ts.slot_order, ts.created_at, ts.updated_at
FROM class_schedules cs JOIN time_slots ts ON ts.id = cs.time_slot_id
WHERE cs.academic_class = $1 AND cs.day_of_week = $2 AND cs.is_active = TRUE AND cs.id <> $3`
	if excludeID == "" {
		excludeID = uuid.Nil.String()
	}
	var slots []models.TimeSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, class, day, excludeID); err != nil {
		return nil, fmt.Errorf("list occupied slots: %w", err)
	}
	return slots, nil
}

// Create inserts a schedule through the executor.
func (r *ClassScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSchedule) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO class_schedules (id, academic_class, day_of_week, time_slot_id, subject_id, teacher_id, room_number, is_active, notes, created_at, updated_at)
VALUES (:id, :academic_class, :day_of_week, :time_slot_id, :subject_id, :teacher_id, :room_number, :is_active, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("create class schedule: %w", err)
	}
	return nil
}

// Update stores every mutable column of a schedule.
func (r *ClassScheduleRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSchedule) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_schedules SET academic_class = :academic_class, day_of_week = :day_of_week, time_slot_id = :time_slot_id,
subject_id = :subject_id, teacher_id = :teacher_id, room_number = :room_number, is_active = :is_active, notes = :notes, updated_at = :updated_at
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("update class schedule: %w", err)
	}
	return nil
}

// Delete removes a schedule.
func (r *ClassScheduleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class schedule: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExistingIDs returns the subset of ids that exist.
func (r *ClassScheduleRepository) ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &found, `SELECT id FROM class_schedules WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check class schedule ids: %w", err)
	}
	return found, nil
}
