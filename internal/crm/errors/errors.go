package errors

import (
	"fmt"
	"strings"
)

var (
	ErrNotFound        = fmt.Errorf("not found")
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrDuplicateNumber = fmt.Errorf("duplicate number")
	ErrProtected       = fmt.Errorf("record is referenced and cannot be deleted")
	ErrConflict        = fmt.Errorf("conflict")
	ErrUnavailable     = fmt.Errorf("unavailable")
)

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field and record level problems found while
// validating an entity. It matches ErrInvalidInput with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

// Add records a problem for field. An empty field marks a record level problem.
func (v *ValidationError) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when nothing was recorded.
func (v *ValidationError) Err() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, "; "))
}

func (v *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
