package proposta

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCredentials marks rejected sign-in credentials
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodePendingApproval marks accounts awaiting admin approval
	TextCodePendingApproval = "PENDING_APPROVAL"
	// TextCodeEmailTaken marks an already registered identifier
	TextCodeEmailTaken = "EMAIL_TAKEN"
	// TextCodeProfileConflict marks a recoverable duplicate-key profile write
	TextCodeProfileConflict = "PROFILE_WRITE_CONFLICT"
	// TextCodeProviderError marks provider or network failures, fatal for the
	// calling operation
	TextCodeProviderError = "PROVIDER_ERROR"
	// TextCodeProfileFetch marks profile reads that failed during session
	// restore; non fatal, role degrades to non-admin
	TextCodeProfileFetch = "PROFILE_FETCH"
)

// ErrInvalidCredentials is returned when the provider rejects credentials
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials)

// ErrAccountPendingApproval is returned on sign-in for unapproved profiles
var ErrAccountPendingApproval = goerrors.New(
	"account is awaiting administrator approval", goerrors.CategoryAuth).
	WithTextCode(TextCodePendingApproval)

// ErrEmailAlreadyRegistered is returned on sign-up for a known identifier
var ErrEmailAlreadyRegistered = goerrors.New(
	"email is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken)

// ErrNoEmptyString rejects empty secrets before hashing
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation)

// ErrNoActiveSession is returned when an operation needs a signed-in account
var ErrNoActiveSession = goerrors.New("no active session", goerrors.CategoryAuth)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsInvalidCredentials checks for rejected credentials
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsPendingApproval checks for the awaiting-approval domain error
func IsPendingApproval(err error) bool {
	return hasTextCode(err, TextCodePendingApproval)
}

// IsEmailTaken checks for the duplicate-identifier domain error
func IsEmailTaken(err error) bool {
	return hasTextCode(err, TextCodeEmailTaken)
}

// IsDuplicateKey reports whether err is a unique-constraint violation from
// the storage driver. Postgres surfaces 23505, sqlite a constraint message;
// a trigger-created same-id row shows up through either.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeProfileConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "constraint failed: users.id") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "23505")
}

// wrapProvider classifies unexpected provider/repository failures so raw
// transport errors never reach the UI layer.
func wrapProvider(err error, msg string) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return rich
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeProviderError)
}
