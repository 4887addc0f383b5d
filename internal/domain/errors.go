package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrResultLimit marks an inventory query whose matches exceed what a single
// rule can carry. The result is never truncated.
var ErrResultLimit = errors.New("inventory result limit exceeded")

// ValidationError rejects caller input before any external call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// UnderlyingServiceError marks a systemic failure of the inventory, the
// firewall control plane or the store. Callers retry the whole pass.
type UnderlyingServiceError struct {
	Service string
	Err     error
}

func (e *UnderlyingServiceError) Error() string {
	return fmt.Sprintf("underlying service %s failed: %v", e.Service, e.Err)
}

func (e *UnderlyingServiceError) Unwrap() error {
	return e.Err
}

// ConflictError is returned when a conditional write lost against a
// concurrent writer.
type ConflictError struct {
	RuleID  string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("rule %s was modified concurrently (expected version %d)", e.RuleID, e.Version)
}

// RuleGroupValidationError is the control plane rejecting a rule group body.
// Message is the raw text returned by the firewall.
type RuleGroupValidationError struct {
	RuleGroupArn string
	Message      string
}

func (e *RuleGroupValidationError) Error() string {
	return fmt.Sprintf("rule group %s rejected update: %s", e.RuleGroupArn, e.Message)
}

func IsUnderlyingServiceError(err error) bool {
	var target *UnderlyingServiceError
	return errors.As(err, &target)
}

// StatusCode maps an error onto the HTTP status class reported to the caller.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var conflictErr *ConflictError
	var serviceErr *UnderlyingServiceError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &serviceErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
