// Package wallet defines the persisted wallet record, the secrets that can be
// exported from it, and the storage providers that hold records.
package wallet

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"time"

	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// Type is the kind of secret a wallet holds. It never changes after creation.
type Type string

// Wallet types.
const (
	TypeMnemonic   Type = "mnemonic"
	TypePrivateKey Type = "private-key"
)

// Validate rejects unknown wallet types.
func (t Type) Validate() error {
	switch t {
	case TypeMnemonic, TypePrivateKey:
		return nil
	default:
		return fmt.Errorf("%w: %q", kserr.ErrUnsupportedWalletType, t)
	}
}

// String returns the type identifier.
func (t Type) String() string {
	return string(t)
}

// Wallet is the persisted record binding an encrypted secret to its accounts.
type Wallet struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id" bson:"_id"`

	// Name is the user-facing label.
	Name string `json:"name" bson:"name"`

	Type Type `json:"type" bson:"type"`

	// Accounts are kept in insertion order.
	Accounts []Account `json:"accounts" bson:"accounts"`

	// Payload is the serialized vault container. It is opaque outside the vault.
	Payload json.RawMessage `json:"payload" bson:"payload"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Account is one derived identity within a wallet.
type Account struct {
	Coin           coin.Type       `json:"coin" bson:"coin"`
	Derivation     coin.Derivation `json:"derivation" bson:"derivation"`
	DerivationPath string          `json:"derivation_path" bson:"derivation_path"`
	Address        string          `json:"address" bson:"address"`

	// PublicKey is hex encoded.
	PublicKey string `json:"public_key" bson:"public_key"`

	// ExtendedPublicKey is the account-level xpub for secp256k1 accounts of
	// mnemonic wallets.
	ExtendedPublicKey string `json:"extended_public_key,omitempty" bson:"extended_public_key,omitempty"`
}

// ActiveAccount selects which account's key to extract. When a coin has
// several accounts, DerivationPath picks one; otherwise the first is used.
type ActiveAccount struct {
	Coin           coin.Type
	DerivationPath string
}

// CoinWithDerivation requests an account for Coin at Derivation.
type CoinWithDerivation struct {
	Coin       coin.Type
	Derivation coin.Derivation
}

// FindAccount returns the account matching the selector, if any.
func (w *Wallet) FindAccount(sel ActiveAccount) (Account, bool) {
	for _, acc := range w.Accounts {
		if acc.Coin != sel.Coin {
			continue
		}
		if sel.DerivationPath == "" || acc.DerivationPath == sel.DerivationPath {
			return acc, true
		}
	}
	return Account{}, false
}

// Clone returns a deep copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	out := *w
	if w.Accounts != nil {
		out.Accounts = make([]Account, len(w.Accounts))
		copy(out.Accounts, w.Accounts)
	}
	if w.Payload != nil {
		out.Payload = make(json.RawMessage, len(w.Payload))
		copy(out.Payload, w.Payload)
	}
	return &out
}

// Cipher selects how the vault encrypts a wallet secret.
type Cipher string

// Supported ciphers.
const (
	// CipherAES128CTR is Web3 secret storage v3: scrypt, AES-128-CTR and a keccak MAC.
	CipherAES128CTR Cipher = "aes-128-ctr"

	// CipherAge is an age file with a scrypt recipient.
	CipherAge Cipher = "age"
)

// Encryption carries cipher and KDF parameters for a new wallet.
type Encryption struct {
	Cipher  Cipher `json:"cipher" yaml:"cipher" mapstructure:"cipher"`
	ScryptN int    `json:"scrypt_n" yaml:"scrypt_n" mapstructure:"scrypt_n"`
	ScryptP int    `json:"scrypt_p" yaml:"scrypt_p" mapstructure:"scrypt_p"`
}

// Encryption presets.
//
//nolint:gochecknoglobals // Read-only presets
var (
	EncryptionStandard = Encryption{Cipher: CipherAES128CTR, ScryptN: 1 << 18, ScryptP: 1}
	EncryptionLight    = Encryption{Cipher: CipherAES128CTR, ScryptN: 1 << 12, ScryptP: 6}
	EncryptionAge      = Encryption{Cipher: CipherAge, ScryptN: 1 << 18, ScryptP: 1}
)

// Validate checks the cipher is known and N is a power of two greater than one.
func (e Encryption) Validate() error {
	switch e.Cipher {
	case CipherAES128CTR, CipherAge:
	default:
		return fmt.Errorf("%w: unknown cipher %q", kserr.ErrInvalidInput, e.Cipher)
	}
	if e.ScryptN <= 1 || e.ScryptN&(e.ScryptN-1) != 0 {
		return fmt.Errorf("%w: scrypt N must be a power of two, got %d", kserr.ErrInvalidInput, e.ScryptN)
	}
	if e.Cipher == CipherAES128CTR && e.ScryptP < 1 {
		return fmt.Errorf("%w: scrypt P must be positive, got %d", kserr.ErrInvalidInput, e.ScryptP)
	}
	return nil
}

// WorkFactor returns log2(ScryptN).
func (e Encryption) WorkFactor() int {
	if e.ScryptN <= 0 {
		return 0
	}
	return bits.Len(uint(e.ScryptN)) - 1
}
