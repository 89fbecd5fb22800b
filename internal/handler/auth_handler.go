package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
	"github.com/noah-isme/learnxy-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, userID string, meta models.ClientMeta) error
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
}

type accountService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (*models.Account, error)
	Activate(ctx context.Context, req dto.ActivationRequest) error
	ResendActivation(ctx context.Context, req dto.EmailRequest) error
	RequestPasswordReset(ctx context.Context, req dto.EmailRequest) error
	ConfirmPasswordReset(ctx context.Context, req dto.ResetPasswordConfirmRequest) error
	SetEmail(ctx context.Context, userID string, req dto.SetEmailRequest) (*models.User, error)
	RequestEmailReset(ctx context.Context, req dto.EmailRequest) error
	ConfirmEmailReset(ctx context.Context, req dto.ResetEmailConfirmRequest) error
}

type accountReader interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	UpdateMe(ctx context.Context, id string, req dto.UpdateMeRequest, meta models.ClientMeta) (*models.Account, error)
}

// AuthHandler wires HTTP endpoints to the auth and account services.
type AuthHandler struct {
	auth     authService
	accounts accountService
	users    accountReader
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(auth authService, accounts accountService, users accountReader) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts, users: users}
}

// Register godoc
// @Summary Register a student account
// @Description Creates an inactive student and emails an activation code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	account, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, account)
}

// Activate godoc
// @Summary Activate account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.ActivationRequest true "Activation code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/activation [post]
func (h *AuthHandler) Activate(c *gin.Context) {
	var req dto.ActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, ""))
		return
	}
	if err := h.accounts.Activate(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "account activated"}, nil)
}

// ResendActivation godoc
// @Summary Resend activation code
// @Tags Authentication
// @Accept json
// @Param payload body dto.EmailRequest true "Account email"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/resend-activation [post]
func (h *AuthHandler) ResendActivation(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.accounts.ResendActivation(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange refresh token for new access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.auth.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke refresh token
// @Tags Authentication
// @Accept json
// @Param payload body dto.LogoutRequest true "Refresh token"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "refresh token required"))
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken, claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for current user
// @Tags Authentication
// @Accept json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RequestPasswordReset godoc
// @Summary Request a password reset code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.EmailRequest true "Account email"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/reset-password [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, "if the email exists, a reset code will be sent")
}

// ConfirmPasswordReset godoc
// @Summary Reset password with an emailed code
// @Tags Authentication
// @Accept json
// @Param payload body dto.ResetPasswordConfirmRequest true "Reset payload"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/reset-password/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req dto.ResetPasswordConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.accounts.ConfirmPasswordReset(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetEmail godoc
// @Summary Change email address
// @Description Moves the signed-in account to a new address after checking the current password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.SetEmailRequest true "New address"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/set-email [post]
func (h *AuthHandler) SetEmail(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SetEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	user, err := h.accounts.SetEmail(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// RequestEmailReset godoc
// @Summary Request an email change code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.EmailRequest true "Current account email"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/reset-email [post]
func (h *AuthHandler) RequestEmailReset(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.accounts.RequestEmailReset(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, "if the email exists, a code will be sent")
}

// ConfirmEmailReset godoc
// @Summary Change email address with an emailed code
// @Tags Authentication
// @Accept json
// @Param payload body dto.ResetEmailConfirmRequest true "Code and new address"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/reset-email/confirm [post]
func (h *AuthHandler) ConfirmEmailReset(c *gin.Context) {
	var req dto.ResetEmailConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, ""))
		return
	}
	if err := h.accounts.ConfirmEmailReset(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user with their profile
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.users == nil {
		response.JSON(c, http.StatusOK, models.UserInfo{ID: claims.UserID, Email: claims.Email, Name: claims.Name, Role: claims.Role}, nil)
		return
	}
	account, err := h.users.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// UpdateMe godoc
// @Summary Update current user
// @Description Changes the signed-in user's name or phone number
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.UpdateMeRequest true "Contact details"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/me [put]
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.users == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "profile updates are unavailable"))
		return
	}

	var req dto.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	account, err := h.users.UpdateMe(c.Request.Context(), claims.UserID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}
