// Package errors defines the typed errors surfaced by an ingestion run.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType categorizes failures so callers can tell fatal run errors apart
// from the ones that are only counted.
type ErrorType string

const (
	ErrorTypeSourceUnavailable ErrorType = "SOURCE_UNAVAILABLE"
	ErrorTypeEmptySource       ErrorType = "EMPTY_SOURCE"
	ErrorTypeParse             ErrorType = "PARSE"
	ErrorTypeWrite             ErrorType = "WRITE"
	ErrorTypeConfig            ErrorType = "CONFIG"
	ErrorTypeInternal          ErrorType = "INTERNAL"
)

// AppError is the error type shared by all ingestion packages.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewSourceUnavailable reports that the source could not be opened or read.
func NewSourceUnavailable(message string, err error) error {
	return &AppError{Type: ErrorTypeSourceUnavailable, Message: message, Err: err}
}

// NewEmptySource reports a source without even a header line.
func NewEmptySource(message string) error {
	return &AppError{Type: ErrorTypeEmptySource, Message: message}
}

// NewWrite reports a downstream store failure.
func NewWrite(message string, err error) error {
	return &AppError{Type: ErrorTypeWrite, Message: message, Err: err}
}

// NewConfig reports invalid configuration.
func NewConfig(message string, err error) error {
	return &AppError{Type: ErrorTypeConfig, Message: message, Err: err}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// TypeOf returns the ErrorType of err, or "" when err is not an AppError.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

func IsSourceUnavailable(err error) bool { return TypeOf(err) == ErrorTypeSourceUnavailable }
func IsEmptySource(err error) bool       { return TypeOf(err) == ErrorTypeEmptySource }
func IsWrite(err error) bool             { return TypeOf(err) == ErrorTypeWrite }
func IsConfig(err error) bool            { return TypeOf(err) == ErrorTypeConfig }

// IsFatal reports whether err aborts a whole run.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeSourceUnavailable, ErrorTypeEmptySource:
		return true
	}
	return false
}
