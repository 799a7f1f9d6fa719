package util

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrPolicyViolation    = errors.New("attempt not allowed")
	ErrAttemptClosed      = errors.New("attempt is closed")
	ErrOwnershipViolation = errors.New("attempt belongs to another user")
	ErrQuestionMismatch   = errors.New("question does not belong to the attempt's assessment")
	ErrInvalidChoice      = errors.New("invalid choice for question")
	ErrInvalidPayload     = errors.New("invalid response payload")
	ErrTimeLimitExceeded  = errors.New("attempt time limit exceeded")
	ErrInvalidScore       = errors.New("points out of range for question")
	ErrLockTimeout        = errors.New("attempt is busy, retry later")

	// ErrAlreadyFinished also matches ErrAttemptClosed.
	ErrAlreadyFinished = fmt.Errorf("%w: already finished", ErrAttemptClosed)
)

// DenialReason says why a new attempt was refused.
type DenialReason string

const (
	DenyAssessmentInactive DenialReason = "assessment_inactive"
	DenyNotEnrolled        DenialReason = "not_enrolled"
	DenyMultipleDisabled   DenialReason = "multiple_attempts_disabled"
	DenyMaxAttempts        DenialReason = "max_attempts_reached"
)

// PolicyError carries the reason an attempt was denied. It unwraps to
// ErrPolicyViolation.
type PolicyError struct {
	Reason DenialReason
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPolicyViolation.Error(), e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicyViolation
}

func NewPolicyError(reason DenialReason) error {
	return &PolicyError{Reason: reason}
}
