package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/pkg/database"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type profileRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, profile models.Profile) error
	FindByUser(ctx context.Context, userID string, role models.UserRole) (models.Profile, error)
	UpdateStudent(ctx context.Context, exec sqlx.ExtContext, profile *models.StudentProfile) error
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	profiles  profileRepository
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, profiles profileRepository, tx txProvider, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, profiles: profiles, tx: tx, validator: orDefaultValidator(validate), logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns the account with its role profile.
func (s *UserService) Get(ctx context.Context, id string) (*models.Account, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return s.withProfile(ctx, user)
}

// GetByEmail looks an account up by address.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return s.withProfile(ctx, user)
}

func (s *UserService) withProfile(ctx context.Context, user *models.User) (*models.Account, error) {
	profile, err := s.profiles.FindByUser(ctx, user.ID, user.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return &models.Account{User: *user, Profile: profile}, nil
}

// Create adds a new user together with the empty profile for its role.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actorID string, meta models.ClientMeta) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Name:         req.Name,
		Email:        normalizeEmail(req.Email),
		PhoneNumber:  req.PhoneNumber,
		Role:         req.Role,
		IsActive:     req.IsActive,
		IsVerified:   req.IsActive,
		PasswordHash: string(passwordHash),
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

	if err = s.repo.Create(ctx, tx, user); err != nil {
		if _, dup := database.UniqueViolation(err); dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	profile := models.NewProfileFor(user.ID, user.Role)
	if err = s.profiles.Create(ctx, tx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.audit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserCreate,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})

	return &models.Account{User: *user, Profile: profile}, nil
}

// Update modifies the mutable user attributes.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest, actorID string, meta models.ClientMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"name": user.Name, "is_active": user.IsActive})

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"name": user.Name, "is_active": user.IsActive})
	s.audit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})

	return user, nil
}

// UpdateMe lets signed-in users edit their own name and phone number.
func (s *UserService) UpdateMe(ctx context.Context, id string, req dto.UpdateMeRequest, meta models.ClientMeta) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	oldPayload, _ := json.Marshal(map[string]string{"name": user.Name, "phone_number": user.PhoneNumber})
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
	}
	if user.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name cannot be blank")
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	newPayload, _ := json.Marshal(map[string]string{"name": user.Name, "phone_number": user.PhoneNumber})
	s.audit(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionProfileUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return s.withProfile(ctx, user)
}

// Delete performs a soft delete (inactive) on a user.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.ClientMeta) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"is_active": user.IsActive})
	s.audit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  []byte(`{"is_active":false}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// ReviewAdmission approves or rejects a student's admission. Approval also
// gives the account a parent profile so guardians can sign in with it.
func (s *UserService) ReviewAdmission(ctx context.Context, studentID string, req dto.AdmissionReviewRequest, actorID string) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission payload")
	}

	account, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	profile, ok := account.StudentProfile()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
	}

	before := profile.Status
	profile.Status = req.Status
	if req.CurrentClass != nil {
		profile.CurrentClass = req.CurrentClass
	}
	if req.AdmissionDate != "" {
		date, perr := time.Parse("2006-01-02", req.AdmissionDate)
		if perr != nil {
			return nil, appErrors.Wrap(perr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission_date")
		}
		profile.AdmissionDate = &date
	}
	profile.ApprovedBy = nil
	if req.Status == models.AdmissionApproved {
		profile.ApprovedBy = &actorID
		if profile.AdmissionDate == nil {
			today := time.Now().UTC().Truncate(24 * time.Hour)
			profile.AdmissionDate = &today
		}
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

	if err = s.profiles.UpdateStudent(ctx, tx, profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admission")
	}
	if req.Status == models.AdmissionApproved {
		if err = s.profiles.Create(ctx, tx, &models.ParentProfile{UserID: studentID, Address: profile.Address, PhoneNumber: profile.GuardianPhone}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create parent profile")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit admission")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"status": before})
	newPayload, _ := json.Marshal(map[string]interface{}{"status": profile.Status, "current_class": profile.CurrentClass})
	s.audit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionAdmissionReview,
		Resource:   "student_profiles",
		ResourceID: &studentID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
	})
	return account, nil
}

func (s *UserService) audit(ctx context.Context, entry *models.AuditLog) {
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}
