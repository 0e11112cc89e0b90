package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJSON indicates the config document failed to parse
	ErrInvalidJSON = errors.New("invalid JSON syntax")

	// ErrUnknownKey indicates a `config set` key with no known mapping
	ErrUnknownKey = errors.New("unknown configuration key")

	// ErrInvalidValue indicates a field has an invalid value
	ErrInvalidValue = errors.New("invalid field value")

	// ErrMissingRequiredField indicates a required field is empty
	ErrMissingRequiredField = errors.New("missing required field")
)

// ValidationError wraps configuration validation errors with field context
type ValidationError struct {
	Field string // JSON key of the offending field
	Value any    // Offending value (omitted from output when nil)
	Err   error  // Underlying error
}

// Error returns formatted error message
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("config field '%s' = %v: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("config field '%s': %v", e.Field, e.Err)
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, err error) *ValidationError {
	return &ValidationError{
		Field: field,
		Value: value,
		Err:   err,
	}
}

// LoadError wraps configuration loading errors with file context
type LoadError struct {
	File string // Configuration file being loaded
	Err  error  // Underlying error
}

// Error returns formatted error message
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new load error
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{
		File: file,
		Err:  err,
	}
}
