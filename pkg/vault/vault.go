// Package vault performs every cryptographic step behind a wallet: secret
// validation, encryption of the secret into a container, HD account
// derivation, and decryption on export.
package vault

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mrz1836/keystore/internal/secure"
	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Vault builds and opens encrypted key containers.
type Vault struct {
	registry   *coin.Registry
	lockMemory bool
}

// Option configures a Vault.
type Option func(*Vault)

// WithMemoryLock controls whether session seeds are mlocked.
func WithMemoryLock(lock bool) Option {
	return func(v *Vault) {
		v.lockMemory = lock
	}
}

// New creates a vault resolving coins through registry.
// A nil registry selects coin.DefaultRegistry.
func New(registry *coin.Registry, opts ...Option) *Vault {
	if registry == nil {
		registry = coin.DefaultRegistry()
	}
	v := &Vault{registry: registry, lockMemory: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Registry returns the coin registry the vault derives against.
func (v *Vault) Registry() *coin.Registry {
	return v.registry
}

// IsMnemonicValid reports whether mnemonic passes wordlist and checksum validation.
func (v *Vault) IsMnemonicValid(mnemonic string) bool {
	return wallet.IsMnemonicValid(mnemonic)
}

// IsKeyValid reports whether key is a usable private key on curve.
func (v *Vault) IsKeyValid(key []byte, curve coin.Curve) bool {
	return coin.IsKeyValid(key, curve)
}

// ImportMnemonic encrypts mnemonic into a new container and adds the
// default account of primary.
func (v *Vault) ImportMnemonic(mnemonic, name string, password []byte, primary coin.Type, enc wallet.Encryption) (*StoredKey, error) {
	if _, err := v.registry.Lookup(primary); err != nil {
		return nil, err
	}

	session, err := v.NewHDSession(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer session.Release()

	phrase := []byte(wallet.NormalizeMnemonicInput(mnemonic))
	defer secure.Zero(phrase)

	k, err := v.newStoredKey(name, wallet.TypeMnemonic, primary, phrase, password, enc)
	if err != nil {
		return nil, err
	}

	if _, err := k.AddAccount(primary, coin.DerivationDefault, session); err != nil {
		k.Release()
		return nil, err
	}
	return k, nil
}

// ImportPrivateKey encrypts a raw private key for c into a new container
// holding the single account at derivation.
func (v *Vault) ImportPrivateKey(key []byte, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (*StoredKey, error) {
	info, err := v.registry.Lookup(c)
	if err != nil {
		return nil, err
	}
	if !coin.IsKeyValid(key, info.Curve) {
		return nil, fmt.Errorf("%w: key is not valid on %s", kserr.ErrInvalidKey, info.Curve)
	}

	account, err := v.accountFromKey(info, derivation, key)
	if err != nil {
		return nil, err
	}

	k, err := v.newStoredKey(name, wallet.TypePrivateKey, c, key, password, enc)
	if err != nil {
		return nil, err
	}
	k.accounts = []wallet.Account{account}
	return k, nil
}

// ImportPrivateKeyEncoded decodes a key in c's customary text form and
// imports it like ImportPrivateKey.
func (v *Vault) ImportPrivateKeyEncoded(encoded, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (*StoredKey, error) {
	info, err := v.registry.Lookup(c)
	if err != nil {
		return nil, err
	}

	key, err := info.DecodePrivateKey(encoded)
	if err != nil {
		return nil, kserr.Kind(kserr.ErrInvalidKey, err)
	}
	defer secure.Zero(key)

	return v.ImportPrivateKey(key, name, password, c, enc, derivation)
}

// NewHDSession derives the BIP-39 seed of mnemonic into a session.
func (v *Vault) NewHDSession(mnemonic, passphrase string) (*Session, error) {
	if !wallet.IsMnemonicValid(mnemonic) {
		return nil, kserr.ErrInvalidMnemonic
	}

	seed, err := wallet.MnemonicToSeed(mnemonic, passphrase)
	if err != nil {
		return nil, kserr.Kind(kserr.ErrInvalidMnemonic, err)
	}
	defer secure.Zero(seed)

	return newSession(seed, v.lockMemory), nil
}

// OpenSession decrypts the mnemonic of k with password into a session.
func (v *Vault) OpenSession(k *StoredKey, password []byte) (*Session, error) {
	phrase, err := k.decryptSecret(wallet.TypeMnemonic, password)
	if err != nil {
		return nil, err
	}
	defer secure.Zero(phrase)

	return v.NewHDSession(string(phrase), "")
}

// Unmarshal parses a container produced by StoredKey.Marshal.
func (v *Vault) Unmarshal(data []byte) (*StoredKey, error) {
	return v.unmarshalStoredKey(data)
}

// VerifyPassword checks that password decrypts the container in w's payload.
func (v *Vault) VerifyPassword(w *wallet.Wallet, password []byte) error {
	k, err := v.Unmarshal(w.Payload)
	if err != nil {
		return err
	}
	defer k.Release()

	secret, err := k.decryptSecret(k.walletType, password)
	if err != nil {
		return err
	}
	secure.Zero(secret)
	return nil
}

func (v *Vault) newStoredKey(name string, t wallet.Type, c coin.Type, secret, password []byte, enc wallet.Encryption) (*StoredKey, error) {
	env, err := seal(secret, password, enc)
	if err != nil {
		return nil, err
	}

	return &StoredKey{
		vault:      v,
		id:         uuid.NewString(),
		name:       name,
		walletType: t,
		coin:       c,
		crypto:     env,
	}, nil
}
