package contest

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the backend answers 401; the caller must
// send the user back through login.
var ErrUnauthorized = errors.New("not authorized")

type AuthKind string

const (
	AuthBadCredentials    AuthKind = "bad_credentials"
	AuthNetwork           AuthKind = "network"
	AuthProviderCancelled AuthKind = "provider_cancelled"
	AuthEmailInUse        AuthKind = "email_in_use"
	AuthWeakPassword      AuthKind = "weak_password"
)

type AuthError struct {
	Kind AuthKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return "auth: " + string(e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// ConflictError means the action's precondition no longer holds.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// TransientError wraps any other failed call. Local state must be left
// untouched and the action may be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
