package dto

import "github.com/noah-isme/learnxy-api/internal/models"

// CreateUserRequest is the admin payload for provisioning an account.
type CreateUserRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Email       string          `json:"email" validate:"required,email"`
	PhoneNumber string          `json:"phone_number" validate:"omitempty,max=20"`
	Role        models.UserRole `json:"role" validate:"required,oneof=admin teacher student parent"`
	Password    string          `json:"password" validate:"required,min=8"`
	IsActive    bool            `json:"is_active"`
}

// UpdateUserRequest carries partial user changes.
type UpdateUserRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	IsActive    *bool   `json:"is_active"`
}

// AdmissionReviewRequest approves or rejects a student admission.
type AdmissionReviewRequest struct {
	Status        models.AdmissionStatus `json:"status" validate:"required,oneof=approved rejected"`
	CurrentClass  *models.AcademicClass  `json:"current_class" validate:"omitempty,academic_class"`
	AdmissionDate string                 `json:"admission_date" validate:"omitempty,datetime=2006-01-02"`
}
