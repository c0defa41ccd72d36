package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/isdelr/inkwell-be/internal/media"
)

// Validation codes carried by ValidationError.
const (
	CodeRequired         = "required"
	CodeInvalid          = "invalid"
	CodeDuplicate        = "duplicate"
	CodeWeakPassword     = "weak_password"
	CodeInvalidImageData = "invalid_image_data"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrValidation matches every *ValidationError through errors.Is.
	ErrValidation = &ValidationError{}

	ErrWeakPassword = &ValidationError{
		Field:   "password",
		Code:    CodeWeakPassword,
		Message: "Password does not meet the minimum strength criteria.",
	}
	ErrInvalidImageData = &ValidationError{
		Field:   "image",
		Code:    CodeInvalidImageData,
		Message: "Invalid image data.",
	}
)

// ValidationError describes a request field that was rejected.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches another ValidationError with the same code, or any
// ValidationError when the target carries no code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func required(field string) *ValidationError {
	return &ValidationError{Field: field, Code: CodeRequired, Message: "This field is required."}
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Code: CodeInvalid, Message: msg}
}

// invalidImage maps a media decode failure onto the image validation error
// for the given field.
func invalidImage(field string, err error) error {
	if !errors.Is(err, media.ErrInvalidImageData) {
		return err
	}
	return &ValidationError{Field: field, Code: CodeInvalidImageData, Message: "Invalid image data."}
}

// isUniqueViolation recognises unique constraint failures from both SQLite
// and Postgres drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key value")
}
