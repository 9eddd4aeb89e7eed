package domain

import (
	"errors"
	"fmt"
)

var (
	ErrElectionNotFound       = errors.New("election not found")
	ErrElectionNotOpen        = errors.New("election not open")
	ErrInvalidOption          = errors.New("invalid option for this election")
	ErrFaceVerificationFailed = errors.New("face verification failed")
	ErrOTPVerificationFailed  = errors.New("otp verification required")
	ErrAgeIneligible          = errors.New("voter is not eligible by age")
	ErrDuplicateVote          = errors.New("user has already voted")
	ErrInvalidOrExpiredCode   = errors.New("invalid or expired code")
	ErrDeliveryFailed         = errors.New("failed to deliver notification")
	ErrIncidentNotFound       = errors.New("incident not found")
	ErrBallotNotFound         = errors.New("ballot not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidTransition      = errors.New("invalid election transition")
	ErrResultsNotReleased     = errors.New("results not yet released")
	ErrProfileIncomplete      = errors.New("profile incomplete")
	ErrValidation             = errors.New("validation failed")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
)

// RejectionError carries a human message for an expected outcome while
// still matching its sentinel through errors.Is.
type RejectionError struct {
	Err     error
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

func (e *RejectionError) Unwrap() error { return e.Err }

func Reject(err error, format string, args ...any) error {
	return &RejectionError{Err: err, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) error {
	return Reject(ErrValidation, format, args...)
}
