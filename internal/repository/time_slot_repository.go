package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnxy-api/internal/models"
)

const timeSlotColumns = `id, name, start_time, end_time, is_break, slot_order, created_at, updated_at`

// TimeSlotRepository manages the periods of the school day.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs a TimeSlotRepository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

func (r *TimeSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every slot ordered by (order, start_time).
func (r *TimeSlotRepository) List(ctx context.Context) ([]models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots ORDER BY slot_order ASC, start_time ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// FindByID loads a slot through the provided executor.
func (r *TimeSlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	return r.find(ctx, exec, id, "")
}

// FindForShare loads a slot and holds a share lock on it until the
// transaction ends, so the slot cannot change under a schedule write.
func (r *TimeSlotRepository) FindForShare(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	return r.find(ctx, exec, id, " FOR SHARE")
}

// FindForUpdate loads a slot and locks it for modification.
func (r *TimeSlotRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	return r.find(ctx, exec, id, " FOR UPDATE")
}

func (r *TimeSlotRepository) find(ctx context.Context, exec sqlx.ExtContext, id, lock string) (*models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE id = $1` + lock
	var slot models.TimeSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get time slot: %w", err)
	}
	return &slot, nil
}

// Create inserts a slot.
func (r *TimeSlotRepository) Create(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	const query = `INSERT INTO time_slots (id, name, start_time, end_time, is_break, slot_order, created_at, updated_at)
VALUES (:id, :name, :start_time, :end_time, :is_break, :slot_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

// Update modifies a slot through the provided executor.
func (r *TimeSlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE time_slots SET name = :name, start_time = :start_time, end_time = :end_time, is_break = :is_break, slot_order = :slot_order, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot)
	if err != nil {
		return fmt.Errorf("update time slot: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a slot and, by cascade, the schedules using it.
func (r *TimeSlotRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountBreakConflicts counts schedules on the slot that carry a subject or
// teacher. Used before turning a teaching period into a break.
func (r *TimeSlotRepository) CountBreakConflicts(ctx context.Context, exec sqlx.ExtContext, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_schedules WHERE time_slot_id = $1 AND (subject_id IS NOT NULL OR teacher_id IS NOT NULL)`
	return r.count(ctx, exec, query, id, "count break conflicts")
}

// CountSubjectlessSchedules counts schedules on the slot without a subject.
// Used before turning a break into a teaching period.
func (r *TimeSlotRepository) CountSubjectlessSchedules(ctx context.Context, exec sqlx.ExtContext, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_schedules WHERE time_slot_id = $1 AND subject_id IS NULL`
	return r.count(ctx, exec, query, id, "count subjectless schedules")
}

// ClassDaysUsing lists the class and weekday pairs with an active schedule on the slot.
func (r *TimeSlotRepository) ClassDaysUsing(ctx context.Context, exec sqlx.ExtContext, id string) ([]models.ClassDay, error) {
	const query = `SELECT DISTINCT academic_class, day_of_week FROM class_schedules
WHERE time_slot_id = $1 AND is_active = TRUE ORDER BY academic_class, day_of_week`
	var days []models.ClassDay
	if err := sqlx.SelectContext(ctx, r.exec(exec), &days, query, id); err != nil {
		return nil, fmt.Errorf("list class days using slot: %w", err)
	}
	return days, nil
}

func (r *TimeSlotRepository) count(ctx context.Context, exec sqlx.ExtContext, query, id, op string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
