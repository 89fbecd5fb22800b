package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/middleware"
	"github.com/noah-isme/learnxy-api/internal/models"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

type authServiceMock struct {
	loginResp    *models.LoginResponse
	loginErr     error
	lastLogin    models.LoginRequest
	logoutCalled bool
	logoutToken  string
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastLogin = req
	return m.loginResp, m.loginErr
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	return &models.TokenPair{}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID string, meta models.ClientMeta) error {
	m.logoutCalled = true
	m.logoutToken = refreshToken
	return nil
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	return nil
}

type accountServiceMock struct {
	registered    *dto.RegisterRequest
	registerResp  *models.Account
	registerErr   error
	activateErr   error
	activateCalls int
	resetEmail    string
	setEmailUser  string
	setEmailReq   dto.SetEmailRequest
	setEmailErr   error
	emailReset    string
	confirmCalls  int
}

func (m *accountServiceMock) Register(ctx context.Context, req dto.RegisterRequest) (*models.Account, error) {
	m.registered = &req
	return m.registerResp, m.registerErr
}

func (m *accountServiceMock) Activate(ctx context.Context, req dto.ActivationRequest) error {
	m.activateCalls++
	return m.activateErr
}

func (m *accountServiceMock) ResendActivation(ctx context.Context, req dto.EmailRequest) error {
	return nil
}

func (m *accountServiceMock) RequestPasswordReset(ctx context.Context, req dto.EmailRequest) error {
	m.resetEmail = req.Email
	return nil
}

func (m *accountServiceMock) ConfirmPasswordReset(ctx context.Context, req dto.ResetPasswordConfirmRequest) error {
	return nil
}

func (m *accountServiceMock) SetEmail(ctx context.Context, userID string, req dto.SetEmailRequest) (*models.User, error) {
	m.setEmailUser = userID
	m.setEmailReq = req
	if m.setEmailErr != nil {
		return nil, m.setEmailErr
	}
	return &models.User{ID: userID, Email: req.NewEmail}, nil
}

func (m *accountServiceMock) RequestEmailReset(ctx context.Context, req dto.EmailRequest) error {
	m.emailReset = req.Email
	return nil
}

func (m *accountServiceMock) ConfirmEmailReset(ctx context.Context, req dto.ResetEmailConfirmRequest) error {
	m.confirmCalls++
	return nil
}

type accountReaderMock struct {
	account *models.Account
	lastID  string
	update  *dto.UpdateMeRequest
	meta    models.ClientMeta
}

func (m *accountReaderMock) Get(ctx context.Context, id string) (*models.Account, error) {
	m.lastID = id
	return m.account, nil
}

func (m *accountReaderMock) UpdateMe(ctx context.Context, id string, req dto.UpdateMeRequest, meta models.ClientMeta) (*models.Account, error) {
	m.lastID = id
	m.update = &req
	m.meta = meta
	if req.Name != nil {
		m.account.Name = *req.Name
	}
	return m.account, nil
}

func jsonContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestAuthHandlerRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	accounts := &accountServiceMock{registerResp: &models.Account{User: models.User{ID: "u-1", Role: models.RoleStudent}}}
	handler := NewAuthHandler(&authServiceMock{}, accounts, nil)

	c, w := jsonContext(http.MethodPost, "/auth/register", `{"name":"Ada","email":"ada@example.com","password":"secret123","re_password":"secret123"}`)
	handler.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, accounts.registered)
	assert.Equal(t, "ada@example.com", accounts.registered.Email)
}

func TestAuthHandlerActivateBadBodyIsInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	accounts := &accountServiceMock{}
	handler := NewAuthHandler(&authServiceMock{}, accounts, nil)

	c, w := jsonContext(http.MethodPost, "/auth/activation", `{"email":`)
	handler.Activate(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, errorCode(t, w))
	assert.Zero(t, accounts.activateCalls)
}

func TestAuthHandlerActivateStaleToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	accounts := &accountServiceMock{activateErr: appErrors.Clone(appErrors.ErrStaleToken, "")}
	handler := NewAuthHandler(&authServiceMock{}, accounts, nil)

	c, w := jsonContext(http.MethodPost, "/auth/activation", `{"email":"ada@example.com","token":"123456"}`)
	handler.Activate(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrStaleToken.Code, errorCode(t, w))
}

func TestAuthHandlerLoginRecordsClientMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &authServiceMock{loginResp: &models.LoginResponse{TokenPair: models.TokenPair{AccessToken: "access"}}}
	handler := NewAuthHandler(auth, &accountServiceMock{}, nil)

	c, w := jsonContext(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"secret123"}`)
	c.Request.Header.Set("User-Agent", "tests")
	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", auth.lastLogin.Email)
	assert.Equal(t, "tests", auth.lastLogin.UserAgent)
}

func TestAuthHandlerPasswordResetAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	accounts := &accountServiceMock{}
	handler := NewAuthHandler(&authServiceMock{}, accounts, nil)

	c, w := jsonContext(http.MethodPost, "/auth/reset-password", `{"email":"ada@example.com"}`)
	handler.RequestPasswordReset(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ada@example.com", accounts.resetEmail)
}

func TestAuthHandlerLogout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &authServiceMock{}
	handler := NewAuthHandler(auth, &accountServiceMock{}, nil)

	c, w := jsonContext(http.MethodPost, "/auth/logout", `{"refresh_token":"refresh-1"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	handler.Logout(c)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, auth.logoutCalled)
	assert.Equal(t, "refresh-1", auth.logoutToken)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &accountReaderMock{account: &models.Account{User: models.User{ID: "u-1", Name: "Ada"}}}
	handler := NewAuthHandler(&authServiceMock{}, &accountServiceMock{}, reader)

	c, w := jsonContext(http.MethodGet, "/auth/me", "")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	handler.Me(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", reader.lastID)
	assert.Contains(t, w.Body.String(), `"name":"Ada"`)
}

func TestAuthHandlerMeWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{}, &accountServiceMock{}, nil)

	c, w := jsonContext(http.MethodGet, "/auth/me", "")
	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerSetEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	accounts := &accountServiceMock{}
	handler := NewAuthHandler(&authServiceMock{}, accounts, nil)

	c, w := jsonContext(http.MethodPost, "/auth/set-email", `{"current_password":"secret123","new_email":"ada@school.test","re_new_email":"ada@school.test"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	handler.SetEmail(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", accounts.setEmailUser)
	assert.Equal(t, "secret123", accounts.setEmailReq.CurrentPassword)
	assert.Contains(t, w.Body.String(), `"email":"ada@school.test"`)
}

func TestAuthHandlerSetEmailWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	accounts := &accountServiceMock{setEmailErr: appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")}
	handler := NewAuthHandler(&authServiceMock{}, accounts, nil)

	c, w := jsonContext(http.MethodPost, "/auth/set-email", `{"current_password":"nope","new_email":"ada@school.test","re_new_email":"ada@school.test"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	handler.SetEmail(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errorCode(t, w))
}

func TestAuthHandlerEmailReset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	accounts := &accountServiceMock{}
	handler := NewAuthHandler(&authServiceMock{}, accounts, nil)

	c, w := jsonContext(http.MethodPost, "/auth/reset-email", `{"email":"ada@example.com"}`)
	handler.RequestEmailReset(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ada@example.com", accounts.emailReset)

	c, w = jsonContext(http.MethodPost, "/auth/reset-email/confirm", `{"email":`)
	handler.ConfirmEmailReset(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, errorCode(t, w))
	assert.Zero(t, accounts.confirmCalls)

	c, w = jsonContext(http.MethodPost, "/auth/reset-email/confirm", `{"email":"ada@example.com","token":"123456","new_email":"ada@school.test","re_new_email":"ada@school.test"}`)
	handler.ConfirmEmailReset(c)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, accounts.confirmCalls)
}

func TestAuthHandlerUpdateMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &accountReaderMock{account: &models.Account{User: models.User{ID: "u-1", Name: "Ada"}}}
	handler := NewAuthHandler(&authServiceMock{}, &accountServiceMock{}, reader)

	c, w := jsonContext(http.MethodPut, "/auth/me", `{"name":"Ada Lovelace","phone_number":"+2348000000000"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	c.Request.Header.Set("User-Agent", "tests")
	handler.UpdateMe(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", reader.lastID)
	require.NotNil(t, reader.update)
	require.NotNil(t, reader.update.PhoneNumber)
	assert.Equal(t, "+2348000000000", *reader.update.PhoneNumber)
	assert.Equal(t, "tests", reader.meta.UserAgent)
	assert.Contains(t, w.Body.String(), `"name":"Ada Lovelace"`)
}
