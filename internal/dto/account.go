package dto

import "github.com/noah-isme/learnxy-api/internal/models"

// RegisterRequest creates an inactive student account.
type RegisterRequest struct {
	Name          string                `json:"name" validate:"required,max=255"`
	Email         string                `json:"email" validate:"required,email"`
	PhoneNumber   string                `json:"phone_number" validate:"omitempty,max=20"`
	Password      string                `json:"password" validate:"required,min=8"`
	RePassword    string                `json:"re_password" validate:"required,eqfield=Password"`
	Gender        *models.Gender        `json:"gender" validate:"omitempty,oneof=male female"`
	CurrentClass  *models.AcademicClass `json:"current_class" validate:"omitempty,academic_class"`
	GuardianName  string                `json:"guardian_name" validate:"omitempty,max=255"`
	GuardianPhone string                `json:"guardian_phone" validate:"omitempty,max=20"`
	Address       string                `json:"address"`
}

// ActivationRequest confirms an account with an emailed code.
type ActivationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required,len=6,numeric"`
}

// EmailRequest carries a single address, used by resend and reset requests.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordConfirmRequest completes a password reset.
type ResetPasswordConfirmRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Token         string `json:"token" validate:"required,len=6,numeric"`
	NewPassword   string `json:"new_password" validate:"required,min=8"`
	ReNewPassword string `json:"re_new_password" validate:"required,eqfield=NewPassword"`
}

// SetEmailRequest changes the signed-in user's address.
type SetEmailRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewEmail        string `json:"new_email" validate:"required,email"`
	ReNewEmail      string `json:"re_new_email" validate:"required,eqfield=NewEmail"`
}

// ResetEmailConfirmRequest moves an account to a new address with an emailed code.
type ResetEmailConfirmRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Token      string `json:"token" validate:"required,len=6,numeric"`
	NewEmail   string `json:"new_email" validate:"required,email"`
	ReNewEmail string `json:"re_new_email" validate:"required,eqfield=NewEmail"`
}

// UpdateMeRequest edits the contact details users may change themselves.
type UpdateMeRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
}

// LogoutRequest revokes a refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
