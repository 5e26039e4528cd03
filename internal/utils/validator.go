package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"astroconnect/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("session_type", validateSessionType)
	validate.RegisterValidation("object_id", validateObjectID)
}

// ValidationError represents validation error details
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidateStruct validates a struct and returns user-friendly error messages
func ValidateStruct(s interface{}) []ValidationError {
	var errs []ValidationError

	err := validate.Struct(s)
	if err != nil {
		for _, ferr := range err.(validator.ValidationErrors) {
			errs = append(errs, ValidationError{
				Field:   strings.ToLower(ferr.Field()),
				Tag:     ferr.Tag(),
				Value:   ferr.Param(),
				Message: getErrorMessage(ferr),
			})
		}
	}

	return errs
}

func validateSessionType(fl validator.FieldLevel) bool {
	return models.SessionType(fl.Field().String()).Valid()
}

func validateObjectID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return len(id) <= 64
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "session_type":
		return "Session type must be chat, call, or video"
	case "object_id":
		return "Invalid identifier"
	case "min":
		return "Value is below the minimum of " + err.Param()
	case "max":
		return "Value exceeds the maximum of " + err.Param()
	case "oneof":
		return "Value must be one of: " + err.Param()
	default:
		return "Invalid value"
	}
}
