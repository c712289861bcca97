package wallet

import (
	"context"
	"fmt"
	"regexp"

	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// Storage is durable keyed storage for wallet records.
type Storage interface {
	// Get returns the record for id, or an error matching
	// errors.ErrWalletNotFound when there is none.
	Get(ctx context.Context, id string) (*Wallet, error)

	// Set creates or overwrites the record for id.
	Set(ctx context.Context, id string, w *Wallet) error

	// Delete removes the record for id after verifying password against it.
	Delete(ctx context.Context, id string, password []byte) error

	// LoadAll returns every stored record in the provider's native order.
	LoadAll(ctx context.Context) ([]*Wallet, error)
}

// PasswordVerifier checks that password opens a wallet's encrypted payload.
type PasswordVerifier interface {
	VerifyPassword(w *Wallet, password []byte) error
}

// PasswordVerifierFunc adapts a function to PasswordVerifier.
type PasswordVerifierFunc func(w *Wallet, password []byte) error

// VerifyPassword calls f.
func (f PasswordVerifierFunc) VerifyPassword(w *Wallet, password []byte) error {
	return f(w, password)
}

// idRegex restricts ids to characters safe for file names and keys.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateID checks that id is usable as a storage key.
func ValidateID(id string) error {
	if !idRegex.MatchString(id) {
		return &kserr.KeystoreError{
			Code:       kserr.ErrInvalidInput.Code,
			Message:    fmt.Sprintf("invalid wallet id %q", id),
			Suggestion: "wallet ids must be 1-64 alphanumeric characters, underscores, or hyphens",
		}
	}
	return nil
}

// VerifyDeletion runs the password check a provider performs before
// removing w. Providers call it with the record they are about to delete.
func VerifyDeletion(verifier PasswordVerifier, w *Wallet, password []byte) error {
	if verifier == nil {
		return fmt.Errorf("%w: no password verifier configured", kserr.ErrStorageFailure)
	}
	return verifier.VerifyPassword(w, password)
}
