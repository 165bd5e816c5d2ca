package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.ID)
}

// NewNotFoundError builds a NotFoundError for the given entity kind and id.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError signals malformed or missing input; the offending field is
// carried when known.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError signals a state-machine guard violation, such as accepting a
// service that is no longer pending. It is an expected, recoverable outcome.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflictError builds a ConflictError with the given message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// InsufficientFundsError is returned when a debit would drive a wallet
// balance negative. Balance and Amount are decimal strings.
type InsufficientFundsError struct {
	UserID  string
	Balance string
	Amount  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, debit %s", e.Balance, e.Amount)
}

// InvalidTransitionError is returned when a tracking update would move the
// status backward.
type InvalidTransitionError struct {
	From TrackingStatus
	To   TrackingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid tracking transition: %s -> %s", e.From, e.To)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var i *InsufficientFundsError
	return errors.As(err, &i)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var i *InvalidTransitionError
	return errors.As(err, &i)
}
