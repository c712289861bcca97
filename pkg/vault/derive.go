package vault

import (
	"encoding/hex"
	"fmt"

	"github.com/mrz1836/keystore/internal/hd"
	"github.com/mrz1836/keystore/internal/secure"
	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// resolve returns the scheme recorded on an account and its canonical path.
func (v *Vault) resolve(info coin.Info, d coin.Derivation) (coin.Derivation, string, []uint32, error) {
	path, err := v.registry.Path(info.Type, d)
	if err != nil {
		return "", "", nil, err
	}
	indexes, err := coin.ParsePath(path)
	if err != nil {
		return "", "", nil, err
	}

	switch {
	case d == "" || d == coin.DerivationDefault:
		d = info.DefaultScheme
	case d.IsPath():
		d = coin.Derivation(path)
	}
	return d, path, indexes, nil
}

// deriveKey derives the raw private key at indexes from seed.
// The caller must zero the result.
func deriveKey(info coin.Info, seed []byte, indexes []uint32) ([]byte, error) {
	switch info.Curve {
	case coin.Secp256k1:
		return hd.PrivateKey(seed, indexes, info.Params)
	case coin.Ed25519:
		k, err := hd.DeriveEd25519(seed, indexes)
		if err != nil {
			return nil, err
		}
		defer k.Zero()
		key := make([]byte, len(k.Key))
		copy(key, k.Key)
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", kserr.ErrVaultFailure, info.Curve)
	}
}

// deriveAccount derives the account for coin info at d from seed.
func (v *Vault) deriveAccount(info coin.Info, d coin.Derivation, seed []byte) (wallet.Account, error) {
	scheme, path, indexes, err := v.resolve(info, d)
	if err != nil {
		return wallet.Account{}, err
	}

	key, err := deriveKey(info, seed, indexes)
	if err != nil {
		return wallet.Account{}, fmt.Errorf("deriving %s key at %s: %w", info.Type, path, err)
	}
	defer secure.Zero(key)

	account, err := newAccount(info, scheme, path, indexes, key)
	if err != nil {
		return wallet.Account{}, err
	}

	if info.Curve == coin.Secp256k1 {
		xpub, err := hd.AccountXPub(seed, indexes, info.Params)
		if err != nil {
			return wallet.Account{}, fmt.Errorf("deriving %s account xpub: %w", info.Type, err)
		}
		account.ExtendedPublicKey = xpub
	}
	return account, nil
}

// accountFromKey builds the single account of a private-key container.
func (v *Vault) accountFromKey(info coin.Info, d coin.Derivation, key []byte) (wallet.Account, error) {
	scheme, path, indexes, err := v.resolve(info, d)
	if err != nil {
		return wallet.Account{}, err
	}
	return newAccount(info, scheme, path, indexes, key)
}

func newAccount(info coin.Info, scheme coin.Derivation, path string, indexes []uint32, key []byte) (wallet.Account, error) {
	pub, err := coin.PublicKey(key, info.Curve)
	if err != nil {
		return wallet.Account{}, err
	}

	address, err := info.FormatAddress(pub, indexes)
	if err != nil {
		return wallet.Account{}, err
	}

	return wallet.Account{
		Coin:           info.Type,
		Derivation:     scheme,
		DerivationPath: path,
		Address:        address,
		PublicKey:      hex.EncodeToString(pub),
	}, nil
}
