package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	// Outcome errors, matched by *Failure
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrHoldExpired         = errors.New("hold expired")

	// Resolved hold/booking errors
	ErrHoldNotFound         = errors.New("hold not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingAlreadyExists = errors.New("booking already exists")

	// Group errors
	ErrGroupNotFound      = errors.New("group not found")
	ErrGroupAlreadyExists = errors.New("group already exists")

	// Validation errors
	ErrEmptyResourceSet   = errors.New("resource set is empty")
	ErrUnknownResource    = errors.New("unknown resource")
	ErrDuplicateResource  = errors.New("duplicate resource key")
	ErrInvalidGroupID     = errors.New("invalid group id")
	ErrInvalidHolderID    = errors.New("invalid holder id")
	ErrInvalidResourceKey = errors.New("invalid resource key")
	ErrInvalidTTL         = errors.New("ttl must be greater than zero")
	ErrInvalidBooking     = errors.New("invalid booking")
	ErrInvalidHoldToken   = errors.New("invalid hold token")
	ErrInvalidPricing     = errors.New("unknown pricing policy")

	// Ownership errors
	ErrNotBookingOwner = errors.New("booking belongs to another requester")
)

// FailureKind classifies the terminal failure of a reservation attempt
type FailureKind string

const (
	FailureResourceUnavailable FailureKind = "RESOURCE_UNAVAILABLE"
	FailurePaymentFailed       FailureKind = "PAYMENT_FAILED"
	FailureHoldExpired         FailureKind = "HOLD_EXPIRED"
)

// sentinel returns the error value a failure kind matches with errors.Is
func (k FailureKind) sentinel() error {
	switch k {
	case FailureResourceUnavailable:
		return ErrResourceUnavailable
	case FailurePaymentFailed:
		return ErrPaymentFailed
	case FailureHoldExpired:
		return ErrHoldExpired
	}
	return nil
}

// ResourceConflict names a resource that blocked a hold and the state it was in
type ResourceConflict struct {
	Key   string        `json:"key"`
	State ResourceState `json:"state"`
}

// UnavailableError is returned by the registry when a hold is rejected
type UnavailableError struct {
	GroupID   string
	Conflicts []ResourceConflict
}

func (e *UnavailableError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s is %s", c.Key, c.State)
	}
	return fmt.Sprintf("group %s: %s", e.GroupID, strings.Join(parts, ", "))
}

func (e *UnavailableError) Unwrap() error {
	return ErrResourceUnavailable
}

// Failure is the typed result of a reservation that did not produce a booking
type Failure struct {
	Kind    FailureKind
	Detail  string
	GroupID string
	HoldID  string

	// Conflicts is set for RESOURCE_UNAVAILABLE
	Conflicts []ResourceConflict

	// Set for HOLD_EXPIRED: the charge went through without a booking
	TransactionID string
	Amount        float64
	Currency      string
	Refunded      bool

	Err error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is lets errors.Is match a failure against its kind sentinel
func (f *Failure) Is(target error) bool {
	return target != nil && target == f.Kind.sentinel()
}

// AsFailure extracts a *Failure from an error chain
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrHoldNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrGroupNotFound)
}

// IsValidationError checks if the error is a caller error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyResourceSet) ||
		errors.Is(err, ErrUnknownResource) ||
		errors.Is(err, ErrDuplicateResource) ||
		errors.Is(err, ErrInvalidGroupID) ||
		errors.Is(err, ErrInvalidHolderID) ||
		errors.Is(err, ErrInvalidResourceKey) ||
		errors.Is(err, ErrInvalidTTL) ||
		errors.Is(err, ErrInvalidBooking) ||
		errors.Is(err, ErrInvalidHoldToken) ||
		errors.Is(err, ErrInvalidPricing)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrResourceUnavailable) ||
		errors.Is(err, ErrGroupAlreadyExists) ||
		errors.Is(err, ErrBookingAlreadyExists)
}

// IsExpiredError checks if the error is an expiration error
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrHoldExpired)
}
