package server

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the service's custom rules registered.
func NewValidator() *Validator {
	v := validator.New()
	if err := v.RegisterValidation("request_url", validateRequestURL); err != nil {
		return nil
	}
	return &Validator{validate: v}
}

// Validate validates i and reports field failures as a *ValidationError.
func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// FieldError is one field's validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError converts validator errors into a ValidationError.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fieldErrors := make([]FieldError, 0, len(errs))
	for _, err := range errs {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   err.Field(),
			Message: errorMessage(err),
		})
	}
	return &ValidationError{Errors: fieldErrors}
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

// ErrorCode implements IAPIError.
func (ve *ValidationError) ErrorCode() string { return "VALIDATION_ERROR" }

// Message implements IAPIError.
func (ve *ValidationError) Message() string { return "Request validation failed" }

// HTTPStatus implements IAPIError.
func (ve *ValidationError) HTTPStatus() int { return 400 }

// Details implements IAPIError.
func (ve *ValidationError) Details() map[string]any {
	return map[string]any{"fields": ve.Errors}
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "request_url":
		return "must be an absolute http(s) URL"
	default:
		return "failed on " + fe.Tag()
	}
}

// validateRequestURL accepts absolute http and https URLs with a host.
func validateRequestURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
