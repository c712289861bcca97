// Package hd derives child private keys from a BIP-39 seed: BIP-32 for
// secp256k1 coins and SLIP-10 for ed25519 coins.
package hd

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// ErrNonHardened is returned when an ed25519 path contains a non-hardened index.
var ErrNonHardened = errors.New("ed25519 derivation requires hardened indexes")

// accountDepth is the depth of the account node in BIP-44 style paths
// (purpose'/coin_type'/account').
const accountDepth = 3

// DeriveSecp256k1 derives the extended private key at path from seed.
// Intermediate keys are zeroed; the caller must Zero the result.
func DeriveSecp256k1(seed []byte, path []uint32, params *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}

	key, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	for depth, idx := range path {
		child, err := key.Derive(idx)
		key.Zero()
		if err != nil {
			return nil, fmt.Errorf("deriving child %d at depth %d: %w", idx, depth+1, err)
		}
		key = child
	}

	return key, nil
}

// PrivateKey derives the raw 32-byte secp256k1 private key at path.
// The caller owns the returned slice and should zero it after use.
func PrivateKey(seed []byte, path []uint32, params *chaincfg.Params) ([]byte, error) {
	key, err := DeriveSecp256k1(seed, path, params)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extracting private key: %w", err)
	}
	defer priv.Zero()

	return priv.Serialize(), nil
}

// AccountXPub returns the extended public key of the account node of path,
// the first three levels. Paths shorter than that yield an empty string.
func AccountXPub(seed []byte, path []uint32, params *chaincfg.Params) (string, error) {
	if len(path) < accountDepth {
		return "", nil
	}

	key, err := DeriveSecp256k1(seed, path[:accountDepth], params)
	if err != nil {
		return "", err
	}
	defer key.Zero()

	pub, err := key.Neuter()
	if err != nil {
		return "", fmt.Errorf("neutering account key: %w", err)
	}
	return pub.String(), nil
}
