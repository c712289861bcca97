// Package errors provides structured error handling for the keystore.
// It defines the error kinds callers branch on, and helpers for adding
// context, details, and suggestions to errors without losing the kind.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// KeystoreError is the structured error type for the keystore.
type KeystoreError struct {
	Code       string            // Machine-readable error kind
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for the caller
	Cause      error             // Underlying error
}

func (e *KeystoreError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *KeystoreError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for KeystoreError. Two keystore errors match when
// they carry the same code.
func (e *KeystoreError) Is(target error) bool {
	var t *KeystoreError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Error kinds.
var (
	ErrInvalidMnemonic = &KeystoreError{
		Code:    "INVALID_MNEMONIC",
		Message: "invalid mnemonic phrase",
	}

	ErrInvalidKey = &KeystoreError{
		Code:    "INVALID_KEY",
		Message: "invalid private key for coin curve",
	}

	ErrInvalidPassword = &KeystoreError{
		Code:    "INVALID_PASSWORD",
		Message: "invalid password",
	}

	ErrNotFound = &KeystoreError{
		Code:    "NOT_FOUND",
		Message: "wallet not found",
	}

	ErrUnknownCoin = &KeystoreError{
		Code:    "UNKNOWN_COIN",
		Message: "unknown coin",
	}

	ErrUnsupportedWalletType = &KeystoreError{
		Code:    "UNSUPPORTED_WALLET_TYPE",
		Message: "operation not supported for this wallet type",
	}

	ErrImportFailed = &KeystoreError{
		Code:    "IMPORT_FAILED",
		Message: "wallet import failed",
	}

	ErrStorageFailure = &KeystoreError{
		Code:    "STORAGE_FAILURE",
		Message: "wallet storage failed",
	}

	ErrVaultFailure = &KeystoreError{
		Code:    "VAULT_FAILURE",
		Message: "key vault operation failed",
	}

	ErrInvalidInput = &KeystoreError{
		Code:    "INVALID_INPUT",
		Message: "invalid input",
	}

	ErrRateLimited = &KeystoreError{
		Code:    "RATE_LIMITED",
		Message: "too many password attempts",
	}
)

// ErrWalletNotFound is the wallet-specific name for ErrNotFound.
var ErrWalletNotFound = ErrNotFound

// New creates a new KeystoreError with the given code and message.
func New(code, message string) *KeystoreError {
	return &KeystoreError{
		Code:    code,
		Message: message,
	}
}

// Kind classifies cause under the given error kind. The result matches kind
// with errors.Is, and still matches cause through Unwrap.
// If cause already carries the same kind it is returned unchanged.
func Kind(kind *KeystoreError, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return &KeystoreError{
		Code:    kind.Code,
		Message: kind.Message,
		Cause:   cause,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ke *KeystoreError
	if errors.As(err, &ke) {
		return &KeystoreError{
			Code:       ke.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ke.Message),
			Details:    ke.Details,
			Suggestion: ke.Suggestion,
			Cause:      ke.Cause,
		}
	}

	return &KeystoreError{
		Code:    "GENERAL_ERROR",
		Message: msg,
		Cause:   err,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ke *KeystoreError
	if errors.As(err, &ke) {
		return &KeystoreError{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    details,
			Suggestion: ke.Suggestion,
			Cause:      ke.Cause,
		}
	}

	return &KeystoreError{
		Code:    "GENERAL_ERROR",
		Message: err.Error(),
		Details: details,
		Cause:   err,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ke *KeystoreError
	if errors.As(err, &ke) {
		return &KeystoreError{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    ke.Details,
			Suggestion: suggestion,
			Cause:      ke.Cause,
		}
	}

	return &KeystoreError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Code returns the error code for an error.
func Code(err error) string {
	var ke *KeystoreError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return "GENERAL_ERROR"
}

// Suggestion returns the suggestion attached to an error, if any.
func Suggestion(err error) string {
	var ke *KeystoreError
	if errors.As(err, &ke) {
		return ke.Suggestion
	}
	return ""
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
