package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClientMeta identifies the caller of a request for audit and session records.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	ClientMeta `json:"-"`

	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new session.
type RefreshTokenRequest struct {
	ClientMeta `json:"-"`

	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair is an issued access token with its single-use refresh token.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// LoginResponse is a TokenPair plus the signed-in user.
type LoginResponse struct {
	TokenPair
	User UserInfo `json:"user"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
}

// JWTClaims is the access token payload.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
