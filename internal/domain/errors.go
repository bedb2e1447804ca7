package domain

import (
	"errors"
	"fmt"
)

// ValidationError indicates a malformed request; the caller must fix it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// PermissionError indicates the organization may not perform the operation.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Message
}

// NotFoundError indicates a referenced mode or job does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ErrUndoWindowClosed is returned when an undo is requested after its window
// expired or was already consumed.
var ErrUndoWindowClosed = errors.New("undo window expired or already used")

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPermission reports whether err is or wraps a PermissionError.
func IsPermission(err error) bool {
	var target *PermissionError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError or the closed
// undo window sentinel.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target) || errors.Is(err, ErrUndoWindowClosed)
}
