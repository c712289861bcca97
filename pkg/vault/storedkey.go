package vault

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mrz1836/keystore/internal/secure"
	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// containerVersion is the current container format version.
const containerVersion = 1

// StoredKey is an encrypted key container: the sealed secret plus the
// accounts derived from it. It never holds plaintext.
type StoredKey struct {
	mu       sync.Mutex
	vault    *Vault
	released bool

	id         string
	name       string
	walletType wallet.Type
	coin       coin.Type
	crypto     envelope
	accounts   []wallet.Account
}

// storedKeyJSON is the serialized container.
type storedKeyJSON struct {
	Version  int              `json:"version"`
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     wallet.Type      `json:"type"`
	Coin     coin.Type        `json:"coin"`
	Crypto   envelope         `json:"crypto"`
	Accounts []wallet.Account `json:"accounts"`
}

// ID returns the container id.
func (k *StoredKey) ID() string { return k.id }

// Name returns the container label.
func (k *StoredKey) Name() string { return k.name }

// Type returns the kind of secret sealed in the container.
func (k *StoredKey) Type() wallet.Type { return k.walletType }

// Coin returns the primary coin.
func (k *StoredKey) Coin() coin.Type { return k.coin }

// Accounts returns a copy of the container's accounts in insertion order.
func (k *StoredKey) Accounts() []wallet.Account {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]wallet.Account, len(k.accounts))
	copy(out, k.accounts)
	return out
}

// AddAccount derives the account for c at d using the seed held by
// session and appends it. If an account with the same coin and path
// already exists it is returned unchanged.
func (k *StoredKey) AddAccount(c coin.Type, d coin.Derivation, session *Session) (wallet.Account, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.released {
		return wallet.Account{}, errReleased
	}
	if k.walletType != wallet.TypeMnemonic {
		return wallet.Account{}, fmt.Errorf("%w: cannot add accounts to a %s container",
			kserr.ErrUnsupportedWalletType, k.walletType)
	}

	info, err := k.vault.registry.Lookup(c)
	if err != nil {
		return wallet.Account{}, err
	}
	path, err := k.vault.registry.Path(c, d)
	if err != nil {
		return wallet.Account{}, err
	}
	for _, acc := range k.accounts {
		if acc.Coin == c && acc.DerivationPath == path {
			return acc, nil
		}
	}

	var account wallet.Account
	err = session.withSeed(func(seed []byte) error {
		var derr error
		account, derr = k.vault.deriveAccount(info, d, seed)
		return derr
	})
	if err != nil {
		return wallet.Account{}, err
	}

	k.accounts = append(k.accounts, account)
	return account, nil
}

// PrivateKey decrypts the container and returns the raw private key of the
// account for c. An empty derivationPath selects the first account for c.
// The caller owns the returned slice.
func (k *StoredKey) PrivateKey(c coin.Type, derivationPath string, password []byte) ([]byte, error) {
	account, ok := k.findAccount(c, derivationPath)
	if !ok {
		if k.isReleased() {
			return nil, errReleased
		}
		return nil, fmt.Errorf("%w: no %s account in wallet", kserr.ErrUnknownCoin, c)
	}

	info, err := k.vault.registry.Lookup(c)
	if err != nil {
		return nil, err
	}

	secret, err := k.decryptSecret(k.walletType, password)
	if err != nil {
		return nil, err
	}
	defer secure.Zero(secret)

	switch k.walletType {
	case wallet.TypePrivateKey:
		key := make([]byte, len(secret))
		copy(key, secret)
		return key, nil

	case wallet.TypeMnemonic:
		seed, err := wallet.MnemonicToSeed(string(secret), "")
		if err != nil {
			return nil, kserr.Kind(kserr.ErrVaultFailure, err)
		}
		defer secure.Zero(seed)

		indexes, err := coin.ParsePath(account.DerivationPath)
		if err != nil {
			return nil, kserr.Kind(kserr.ErrVaultFailure, err)
		}
		key, err := deriveKey(info, seed, indexes)
		if err != nil {
			return nil, kserr.Kind(kserr.ErrVaultFailure, err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("%w: %q", kserr.ErrUnsupportedWalletType, k.walletType)
	}
}

// DecryptMnemonic returns the recovery phrase of a mnemonic container.
func (k *StoredKey) DecryptMnemonic(password []byte) (string, error) {
	secret, err := k.decryptSecret(wallet.TypeMnemonic, password)
	if err != nil {
		return "", err
	}
	defer secure.Zero(secret)
	return string(secret), nil
}

// DecryptPrivateKey returns the raw key of a private-key container.
// The caller owns the returned slice.
func (k *StoredKey) DecryptPrivateKey(password []byte) ([]byte, error) {
	return k.decryptSecret(wallet.TypePrivateKey, password)
}

// DecryptPrivateKeyEncoded returns the key of a private-key container in
// its coin's customary text form.
func (k *StoredKey) DecryptPrivateKeyEncoded(password []byte) (string, error) {
	info, err := k.vault.registry.Lookup(k.coin)
	if err != nil {
		return "", err
	}

	key, err := k.decryptSecret(wallet.TypePrivateKey, password)
	if err != nil {
		return "", err
	}
	defer secure.Zero(key)

	encoded, err := info.EncodePrivateKey(key)
	if err != nil {
		return "", kserr.Kind(kserr.ErrVaultFailure, err)
	}
	return encoded, nil
}

// Marshal serializes the container.
func (k *StoredKey) Marshal() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.released {
		return nil, errReleased
	}

	data, err := json.Marshal(storedKeyJSON{
		Version:  containerVersion,
		ID:       k.id,
		Name:     k.name,
		Type:     k.walletType,
		Coin:     k.coin,
		Crypto:   k.crypto,
		Accounts: k.accounts,
	})
	if err != nil {
		return nil, kserr.Kind(kserr.ErrVaultFailure, fmt.Errorf("marshaling container: %w", err))
	}
	return data, nil
}

// Release drops the sealed secret. It is safe to call more than once.
func (k *StoredKey) Release() {
	if k == nil {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.released = true
	k.crypto = envelope{}
}

// Released reports whether Release has been called.
func (k *StoredKey) Released() bool {
	return k.isReleased()
}

func (k *StoredKey) isReleased() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.released
}

func (k *StoredKey) findAccount(c coin.Type, path string) (wallet.Account, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.released {
		return wallet.Account{}, false
	}
	for _, acc := range k.accounts {
		if acc.Coin == c && (path == "" || acc.DerivationPath == path) {
			return acc, true
		}
	}
	return wallet.Account{}, false
}

// decryptSecret opens the envelope after checking the container holds a
// secret of type want. The caller must zero the result.
func (k *StoredKey) decryptSecret(want wallet.Type, password []byte) ([]byte, error) {
	k.mu.Lock()
	if k.released {
		k.mu.Unlock()
		return nil, errReleased
	}
	t, env := k.walletType, k.crypto
	k.mu.Unlock()

	if t != want {
		return nil, fmt.Errorf("%w: %s container holds no %s secret", kserr.ErrUnsupportedWalletType, t, want)
	}
	return env.open(password)
}

func (v *Vault) unmarshalStoredKey(data []byte) (*StoredKey, error) {
	var raw storedKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, kserr.Kind(kserr.ErrVaultFailure, fmt.Errorf("parsing container: %w", err))
	}

	if raw.Version != containerVersion {
		return nil, fmt.Errorf("%w: unsupported container version %d", kserr.ErrVaultFailure, raw.Version)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: container has no id", kserr.ErrVaultFailure)
	}
	if err := raw.Type.Validate(); err != nil {
		return nil, err
	}

	return &StoredKey{
		vault:      v,
		id:         raw.ID,
		name:       raw.Name,
		walletType: raw.Type,
		coin:       raw.Coin,
		crypto:     raw.Crypto,
		accounts:   raw.Accounts,
	}, nil
}
