package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")

	// Signup / OTP failures.
	ErrMissingFields   = errors.New("all fields are required")
	ErrAlreadyVerified = errors.New("email already registered")
	ErrDeliveryFailed  = errors.New("failed to send OTP email")
	ErrInvalidCode     = errors.New("invalid OTP")
	ErrCodeExpired     = errors.New("OTP expired")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrEmailTaken      = errors.New("email already taken")

	// OAuth failures.
	ErrNoEmail       = errors.New("no email available from provider")
	ErrTokenExchange = errors.New("token exchange failed")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors aggregates every field failure from one request body.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}
