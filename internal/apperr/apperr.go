// Package apperr holds the error taxonomy shared by the donation services and
// the web layer. Stores return driver errors or nil results; services translate
// them into these values so handlers can branch with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateResponse    = errors.New("already responded")
	ErrValidation           = errors.New("validation failed")
	ErrInvalidState         = errors.New("invalid state")
	ErrNotificationDelivery = errors.New("notification delivery failed")
)

// NotFoundError names the missing or non-actionable entity.
type NotFoundError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NotActionable reports an entity that exists but cannot be acted on.
func NotActionable(entity string, id int64, reason string) error {
	return &NotFoundError{Entity: entity, ID: id, Reason: reason}
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DuplicateResponseError is returned when a donor responds to the same request twice.
type DuplicateResponseError struct {
	DonorID        int64
	BloodRequestID int64
}

func (e *DuplicateResponseError) Error() string {
	return fmt.Sprintf("donor %d already responded to request %d", e.DonorID, e.BloodRequestID)
}

func (e *DuplicateResponseError) Unwrap() error { return ErrDuplicateResponse }

// NotificationDeliveryError wraps a sink failure. It is logged, never returned
// from a state-changing operation.
type NotificationDeliveryError struct {
	Kind string
	Err  error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s notification: %v", e.Kind, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() []error {
	return []error{ErrNotificationDelivery, e.Err}
}
