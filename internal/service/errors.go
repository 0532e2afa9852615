package service

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the services. Handlers map these onto HTTP
// status codes.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrRateLimited        = errors.New("too many attempts")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoRecoveryCode     = errors.New("no recovery code set for this account")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// ValidationError carries the field-level message from the validator.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// RateLimitError reports an ephemeral limiter block with its remaining
// duration.
type RateLimitError struct {
	LockedUntil      *time.Time
	MinutesRemaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, try again in %d minutes", e.MinutesRemaining)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// LockoutError reports an active persistent account lock. It is also returned
// by the failed attempt that triggers the lock.
type LockoutError struct {
	LockedUntil      time.Time
	MinutesRemaining int
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.MinutesRemaining)
}

func (e *LockoutError) Unwrap() error { return ErrAccountLocked }

// AttemptsError is a failed credential check with attempts still remaining
// before the lock engages.
type AttemptsError struct {
	AttemptsRemaining int
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining", e.AttemptsRemaining)
}

func (e *AttemptsError) Unwrap() error { return ErrInvalidCredentials }
