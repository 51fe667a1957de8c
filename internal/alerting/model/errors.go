package model

import (
	"errors"
	"fmt"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Parameter string `json:"parameter,omitempty"`
	Value     string `json:"value,omitempty"`
}

const (
	ErrorCodeInvalidParameter = "INVALID_PARAMETER"
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeStorage          = "STORAGE_ERROR"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
)

var (
	// ErrInvalidWindow is returned for non-positive KPI/metric windows.
	ErrInvalidWindow = errors.New("window must be positive")
	// ErrAlertNotFound is returned when no live alert exists for an id.
	ErrAlertNotFound = errors.New("alert not found")
)

// TransientStorageError wraps a failed read or write against the backing store.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// ConfigurationError reports a malformed rule definition. Only raised at startup.
type ConfigurationError struct {
	Rule    string
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("rule %q: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("rule %q: %s: %s", e.Rule, e.Field, e.Message)
}

// InvariantViolation reports state that correct transitions never produce,
// e.g. two open incidents for one alert id.
type InvariantViolation struct {
	AlertID string
	Detail  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated for alert %q: %s", e.AlertID, e.Detail)
}

// InvalidEventError rejects an ingested event with a bad field.
type InvalidEventError struct {
	Field string
	Value string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event field %s=%q", e.Field, e.Value)
}

// IsStorageError reports whether err came from the backing store.
func IsStorageError(err error) bool {
	var se *TransientStorageError
	return errors.As(err, &se)
}
