package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/learnxy-api/internal/models"
)

// NewValidator returns a validator with the domain tags registered:
// academic_class, day_of_week and clock_time.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("academic_class", func(fl validator.FieldLevel) bool {
		return models.AcademicClass(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("day_of_week", func(fl validator.FieldLevel) bool {
		return models.DayOfWeek(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("clock_time", func(fl validator.FieldLevel) bool {
		_, err := models.ParseClockTime(fl.Field().String())
		return err == nil
	})
	return v
}

func orDefaultValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		return NewValidator()
	}
	return v
}
