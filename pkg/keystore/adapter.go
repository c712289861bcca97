package keystore

import (
	"fmt"

	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/vault"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// VaultAdapter exposes a *vault.Vault as a Vault.
type VaultAdapter struct {
	v *vault.Vault
}

var _ Vault = (*VaultAdapter)(nil)

// NewVaultAdapter wraps v.
func NewVaultAdapter(v *vault.Vault) *VaultAdapter {
	return &VaultAdapter{v: v}
}

// IsMnemonicValid implements Vault.
func (a *VaultAdapter) IsMnemonicValid(mnemonic string) bool {
	return a.v.IsMnemonicValid(mnemonic)
}

// IsKeyValid implements Vault.
func (a *VaultAdapter) IsKeyValid(key []byte, curve coin.Curve) bool {
	return a.v.IsKeyValid(key, curve)
}

// ImportMnemonic implements Vault.
func (a *VaultAdapter) ImportMnemonic(mnemonic, name string, password []byte, primary coin.Type, enc wallet.Encryption) (Container, error) {
	return wrapContainer(a.v.ImportMnemonic(mnemonic, name, password, primary, enc))
}

// ImportPrivateKey implements Vault.
func (a *VaultAdapter) ImportPrivateKey(key []byte, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (Container, error) {
	return wrapContainer(a.v.ImportPrivateKey(key, name, password, c, enc, derivation))
}

// ImportPrivateKeyEncoded implements Vault.
func (a *VaultAdapter) ImportPrivateKeyEncoded(key, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (Container, error) {
	return wrapContainer(a.v.ImportPrivateKeyEncoded(key, name, password, c, enc, derivation))
}

// NewHDSession implements Vault.
func (a *VaultAdapter) NewHDSession(mnemonic, passphrase string) (Session, error) {
	s, err := a.v.NewHDSession(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSession implements Vault.
func (a *VaultAdapter) OpenSession(c Container, password []byte) (Session, error) {
	sc, ok := c.(*storedContainer)
	if !ok {
		return nil, fmt.Errorf("%w: container %T was not produced by this vault", kserr.ErrVaultFailure, c)
	}
	s, err := a.v.OpenSession(sc.StoredKey, password)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Unmarshal implements Vault.
func (a *VaultAdapter) Unmarshal(payload []byte) (Container, error) {
	return wrapContainer(a.v.Unmarshal(payload))
}

// VerifyPassword lets the adapter gate storage deletion.
func (a *VaultAdapter) VerifyPassword(w *wallet.Wallet, password []byte) error {
	return a.v.VerifyPassword(w, password)
}

// storedContainer adapts *vault.StoredKey to Container.
type storedContainer struct {
	*vault.StoredKey
}

func wrapContainer(k *vault.StoredKey, err error) (Container, error) {
	if err != nil {
		return nil, err
	}
	return &storedContainer{StoredKey: k}, nil
}

// AddAccount implements Container.
func (c *storedContainer) AddAccount(t coin.Type, derivation coin.Derivation, s Session) (wallet.Account, error) {
	vs, ok := s.(*vault.Session)
	if !ok {
		return wallet.Account{}, fmt.Errorf("%w: session %T was not produced by this vault", kserr.ErrVaultFailure, s)
	}
	return c.StoredKey.AddAccount(t, derivation, vs)
}
