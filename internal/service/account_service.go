package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/pkg/database"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
	"github.com/noah-isme/learnxy-api/pkg/otp"
)

type accountUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ChangeEmail(ctx context.Context, id, email string, at time.Time) error
	Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
	Activate(ctx context.Context, id string, at time.Time) error
	ResetPassword(ctx context.Context, id, passwordHash string, at time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type accountProfileRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, profile models.Profile) error
}

type tokenGenerator interface {
	MakeToken(id otp.Identity) string
	CheckToken(id *otp.Identity, candidate string) bool
}

type accountMailer interface {
	SendActivation(user *models.User, token string) error
	SendConfirmation(user *models.User) error
	SendPasswordReset(user *models.User, token string) error
	SendPasswordChanged(user *models.User) error
	SendEmailReset(user *models.User, token string) error
	SendEmailChanged(user *models.User) error
}

// AccountService runs the self-service account flows that rely on emailed
// one-time codes, plus the email change flows that sit next to them.
type AccountService struct {
	users     accountUserRepository
	profiles  accountProfileRepository
	tx        txProvider
	tokens    tokenGenerator
	mail      accountMailer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(users accountUserRepository, profiles accountProfileRepository, tx txProvider, tokens tokenGenerator, mail accountMailer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = otp.NewGenerator()
	}
	return &AccountService{
		users:     users,
		profiles:  profiles,
		tx:        tx,
		tokens:    tokens,
		mail:      mail,
		metrics:   metrics,
		validator: orDefaultValidator(validate),
		logger:    logger,
		now:       time.Now,
	}
}

func identityOf(user *models.User) *otp.Identity {
	if user == nil {
		return nil
	}
	return &otp.Identity{ID: user.ID, PasswordHash: user.PasswordHash, LastLogin: user.LastLogin, Email: user.Email}
}

// Register creates an inactive student account and emails its activation code.
func (s *AccountService) Register(ctx context.Context, req dto.RegisterRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Name:         req.Name,
		Email:        normalizeEmail(req.Email),
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
	}
	profile := &models.StudentProfile{
		Gender:        req.Gender,
		CurrentClass:  req.CurrentClass,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		Address:       req.Address,
		Status:        models.AdmissionPending,
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

	if err = s.users.Create(ctx, tx, user); err != nil {
		if _, dup := database.UniqueViolation(err); dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	profile.UserID = user.ID
	if err = s.profiles.Create(ctx, tx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit registration")
	}

	s.audit(ctx, user.ID, models.AuditActionRegister, `{"role":"student"}`)
	s.SendActivation(ctx, user)
	return &models.Account{User: *user, Profile: profile}, nil
}

// SendActivation emails a fresh activation code. Delivery failures are logged.
func (s *AccountService) SendActivation(ctx context.Context, user *models.User) {
	if s.mail == nil || user == nil {
		return
	}
	if err := s.mail.SendActivation(user, s.tokens.MakeToken(*identityOf(user))); err != nil {
		s.logger.Warn("failed to queue activation email", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Activate confirms an account with its activation code.
func (s *AccountService) Activate(ctx context.Context, req dto.ActivationRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return tokenRequestError(err, "invalid activation payload")
	}

	user, err := s.verify(ctx, "activation", req.Email, req.Token)
	if err != nil {
		return err
	}
	if user.IsActive {
		return appErrors.Clone(appErrors.ErrStaleToken, "")
	}

	if err := s.users.Activate(ctx, user.ID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate account")
	}
	user.IsActive = true
	user.IsVerified = true

	s.audit(ctx, user.ID, models.AuditActionActivate, `{"status":"active"}`)
	if s.mail != nil {
		if err := s.mail.SendConfirmation(user); err != nil {
			s.logger.Warn("failed to queue confirmation email", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// ResendActivation emails a new code to an inactive account. Unknown or
// already active addresses are ignored so the response never reveals whether
// an account exists.
func (s *AccountService) ResendActivation(ctx context.Context, req dto.EmailRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email")
	}
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("resend activation lookup failed", zap.Error(err))
		}
		return nil
	}
	if !user.IsActive {
		s.SendActivation(ctx, user)
	}
	return nil
}

// RequestPasswordReset emails a reset code to an active account.
func (s *AccountService) RequestPasswordReset(ctx context.Context, req dto.EmailRequest) error {
	return s.sendCode(ctx, req, "password reset", func(user *models.User, token string) error {
		return s.mail.SendPasswordReset(user, token)
	})
}

// RequestEmailReset emails an active account the code that lets it move to a
// new address. Like the password reset it never reveals whether the account exists.
func (s *AccountService) RequestEmailReset(ctx context.Context, req dto.EmailRequest) error {
	return s.sendCode(ctx, req, "email reset", func(user *models.User, token string) error {
		return s.mail.SendEmailReset(user, token)
	})
}

func (s *AccountService) sendCode(ctx context.Context, req dto.EmailRequest, kind string, send func(*models.User, string) error) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email")
	}
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn(kind+" lookup failed", zap.Error(err))
		}
		return nil
	}
	if !user.IsActive || s.mail == nil {
		return nil
	}
	if err := send(user, s.tokens.MakeToken(*identityOf(user))); err != nil {
		s.logger.Warn("failed to queue "+kind+" email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ConfirmPasswordReset sets a new password when the reset code checks out.
// Recording the reset as a login invalidates the code that was just used.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, req dto.ResetPasswordConfirmRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return tokenRequestError(err, "invalid reset payload")
	}

	user, err := s.verify(ctx, "password_reset", req.Email, req.Token)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.ResetPassword(ctx, user.ID, string(hash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}
	if err := s.users.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after reset", zap.Error(err))
	}

	s.audit(ctx, user.ID, models.AuditActionPasswordReset, `{"status":"reset"}`)
	if s.mail != nil {
		if err := s.mail.SendPasswordChanged(user); err != nil {
			s.logger.Warn("failed to queue password changed email", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// ConfirmEmailReset moves the account behind a valid email reset code to a
// new address. The change bumps last_login, so the code cannot be replayed.
func (s *AccountService) ConfirmEmailReset(ctx context.Context, req dto.ResetEmailConfirmRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return tokenRequestError(err, "invalid email reset payload")
	}

	user, err := s.verify(ctx, "email_reset", req.Email, req.Token)
	if err != nil {
		return err
	}
	_, err = s.changeEmail(ctx, user, req.NewEmail)
	return err
}

// SetEmail changes the signed-in user's address once their current password
// checks out.
func (s *AccountService) SetEmail(ctx context.Context, userID string, req dto.SetEmailRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid set email payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}
	return s.changeEmail(ctx, user, req.NewEmail)
}

func (s *AccountService) changeEmail(ctx context.Context, user *models.User, newEmail string) (*models.User, error) {
	email := normalizeEmail(newEmail)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	at := s.now().UTC()
	if err := s.users.ChangeEmail(ctx, user.ID, email, at); err != nil {
		if _, dup := database.UniqueViolation(err); dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change email")
	}
	previous := user.Email
	user.Email = email
	user.LastLogin = &at
	user.UpdatedAt = at

	values, _ := json.Marshal(map[string]string{"from": previous, "to": email})
	s.audit(ctx, user.ID, models.AuditActionEmailChange, string(values))
	if s.mail != nil {
		if err := s.mail.SendEmailChanged(user); err != nil {
			s.logger.Warn("failed to queue email changed notice", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}

// tokenRequestError reports a payload whose email or code field fails
// validation as the generic token error, so a malformed code reads the same
// as a wrong one. Other field failures stay validation errors.
func tokenRequestError(err error, message string) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}
	for _, field := range fields {
		if field.StructField() == "Email" || field.StructField() == "Token" {
			return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
		}
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// verify resolves the user and checks the code, collapsing every failure into
// the same generic error.
func (s *AccountService) verify(ctx context.Context, purpose, email, token string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("token verification lookup failed", zap.String("purpose", purpose), zap.Error(err))
		}
		s.metrics.ObserveTokenCheck(purpose, false)
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}
	ok := s.tokens.CheckToken(identityOf(user), token)
	s.metrics.ObserveTokenCheck(purpose, ok)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}
	return user, nil
}

func (s *AccountService) audit(ctx context.Context, userID, action, values string) {
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "account",
		ResourceID: &userID,
		NewValues:  []byte(values),
	}); err != nil {
		s.logger.Warn("failed to record account audit log", zap.String("action", action), zap.Error(err))
	}
}
