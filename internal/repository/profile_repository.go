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

// ProfileRepository persists the role specific profile tables.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a profile repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// NewStudentID returns a fresh STD-XXXXXXXX identifier.
func NewStudentID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "STD-" + strings.ToUpper(raw[:8])
}

// Create inserts the profile row matching the concrete profile type.
func (r *ProfileRepository) Create(ctx context.Context, exec sqlx.ExtContext, profile models.Profile) error {
	now := time.Now().UTC()
	var (
		query string
		arg   interface{}
	)
	switch p := profile.(type) {
	case *models.AdminProfile:
		p.CreatedAt, p.UpdatedAt = now, now
		query = `INSERT INTO admin_profiles (user_id, position, school_name, created_at, updated_at)
VALUES (:user_id, :position, :school_name, :created_at, :updated_at)`
		arg = p
	case *models.TeacherProfile:
		p.CreatedAt, p.UpdatedAt = now, now
		query = `INSERT INTO teacher_profiles (user_id, staff_id, qualification, specialization, department, created_at, updated_at)
VALUES (:user_id, :staff_id, :qualification, :specialization, :department, :created_at, :updated_at)`
		arg = p
	case *models.StudentProfile:
		p.CreatedAt, p.UpdatedAt = now, now
		if p.StudentID == "" {
			p.StudentID = NewStudentID()
		}
		if p.Status == "" {
			p.Status = models.AdmissionPending
		}
		query = `INSERT INTO student_profiles (user_id, student_id, gender, current_class, admission_date, guardian_name, guardian_phone, address, status, approved_by, created_at, updated_at)
VALUES (:user_id, :student_id, :gender, :current_class, :admission_date, :guardian_name, :guardian_phone, :address, :status, :approved_by, :created_at, :updated_at)`
		arg = p
	case *models.ParentProfile:
		p.CreatedAt, p.UpdatedAt = now, now
		query = `INSERT INTO parent_profiles (user_id, occupation, address, phone_number, created_at, updated_at)
VALUES (:user_id, :occupation, :address, :phone_number, :created_at, :updated_at)
ON CONFLICT (user_id) DO NOTHING`
		arg = p
	default:
		return fmt.Errorf("unsupported profile type %T", profile)
	}

	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, arg); err != nil {
		return fmt.Errorf("create %s profile: %w", profile.ProfileRole(), err)
	}
	return nil
}

// FindByUser loads the profile for the user's role. It returns nil without an
// error when the user has no profile row.
func (r *ProfileRepository) FindByUser(ctx context.Context, userID string, role models.UserRole) (models.Profile, error) {
	var (
		dest  models.Profile
		query string
	)
	switch role {
	case models.RoleAdmin:
		dest = &models.AdminProfile{}
		query = `SELECT user_id, position, school_name, created_at, updated_at FROM admin_profiles WHERE user_id = $1`
	case models.RoleTeacher:
		dest = &models.TeacherProfile{}
		query = `SELECT user_id, staff_id, qualification, specialization, department, created_at, updated_at FROM teacher_profiles WHERE user_id = $1`
	case models.RoleStudent:
		dest = &models.StudentProfile{}
		query = `SELECT user_id, student_id, gender, current_class, admission_date, guardian_name, guardian_phone, address, status, approved_by, created_at, updated_at FROM student_profiles WHERE user_id = $1`
	case models.RoleParent:
		dest = &models.ParentProfile{}
		query = `SELECT user_id, occupation, address, phone_number, created_at, updated_at FROM parent_profiles WHERE user_id = $1`
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	if err := r.db.GetContext(ctx, dest, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s profile: %w", role, err)
	}
	return dest, nil
}

// UpdateStudent stores editable student fields.
func (r *ProfileRepository) UpdateStudent(ctx context.Context, exec sqlx.ExtContext, profile *models.StudentProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_profiles SET gender = :gender, current_class = :current_class, admission_date = :admission_date,
guardian_name = :guardian_name, guardian_phone = :guardian_phone, address = :address, status = :status, approved_by = :approved_by, updated_at = :updated_at
WHERE user_id = :user_id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, profile)
	if err != nil {
		return fmt.Errorf("update student profile: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
