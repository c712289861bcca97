package coin

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"

	kserr "github.com/mrz1836/keystore/pkg/errors"
)

const (
	secp256k1KeySize = 32
	ed25519KeySize   = ed25519.SeedSize
)

// IsKeyValid reports whether key is a usable private key on curve.
// secp256k1 keys must be 32 bytes in the range [1, n-1]; ed25519 keys are
// 32-byte seeds that must not be all zero.
func IsKeyValid(key []byte, curve Curve) bool {
	switch curve {
	case Secp256k1:
		if len(key) != secp256k1KeySize {
			return false
		}
		var s btcec.ModNScalar
		if overflow := s.SetByteSlice(key); overflow {
			return false
		}
		return !s.IsZero()
	case Ed25519:
		if len(key) != ed25519KeySize {
			return false
		}
		return !bytes.Equal(key, make([]byte, ed25519KeySize))
	default:
		return false
	}
}

// PublicKey derives the public key for a private key on curve. secp256k1
// keys yield the 33-byte compressed form, ed25519 keys the 32-byte key.
func PublicKey(key []byte, curve Curve) ([]byte, error) {
	if !IsKeyValid(key, curve) {
		return nil, fmt.Errorf("%w: not a valid %s private key", kserr.ErrInvalidKey, curve)
	}

	switch curve {
	case Secp256k1:
		_, pub := btcec.PrivKeyFromBytes(key)
		return pub.SerializeCompressed(), nil
	case Ed25519:
		priv := ed25519.NewKeyFromSeed(key)
		defer zero(priv)
		pub := make([]byte, ed25519.PublicKeySize)
		copy(pub, priv[ed25519.SeedSize:])
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", kserr.ErrInvalidKey, curve)
	}
}

// wifEncoder renders compressed WIF for the network.
func wifEncoder(params *chaincfg.Params) KeyEncoder {
	return func(key []byte) (string, error) {
		if !IsKeyValid(key, Secp256k1) {
			return "", fmt.Errorf("%w: not a valid secp256k1 private key", kserr.ErrInvalidKey)
		}
		priv, _ := btcec.PrivKeyFromBytes(key)
		wif, err := btcutil.NewWIF(priv, params, true)
		if err != nil {
			return "", fmt.Errorf("encoding WIF: %w", err)
		}
		return wif.String(), nil
	}
}

// wifDecoder accepts WIF for the network, or a 64-character hex key.
func wifDecoder(params *chaincfg.Params) KeyDecoder {
	return func(encoded string) ([]byte, error) {
		encoded = strings.TrimSpace(encoded)

		wif, err := btcutil.DecodeWIF(encoded)
		if err == nil {
			if !wif.IsForNet(params) {
				return nil, fmt.Errorf("%w: WIF is not for %s", kserr.ErrInvalidKey, params.Name)
			}
			return wif.PrivKey.Serialize(), nil
		}

		if key, hexErr := hexDecoder(encoded); hexErr == nil {
			return key, nil
		}
		return nil, fmt.Errorf("%w: decoding WIF: %w", kserr.ErrInvalidKey, err)
	}
}

func hexEncoder(key []byte) (string, error) {
	if !IsKeyValid(key, Secp256k1) {
		return "", fmt.Errorf("%w: not a valid secp256k1 private key", kserr.ErrInvalidKey)
	}
	return hex.EncodeToString(key), nil
}

// hexDecoder accepts 64 hex characters with an optional 0x prefix.
func hexDecoder(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	encoded = strings.TrimPrefix(strings.TrimPrefix(encoded, "0x"), "0X")

	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding hex: %w", kserr.ErrInvalidKey, err)
	}
	if !IsKeyValid(key, Secp256k1) {
		zero(key)
		return nil, fmt.Errorf("%w: not a valid secp256k1 private key", kserr.ErrInvalidKey)
	}
	return key, nil
}

// solanaKeyEncoder renders the base58 64-byte keypair (seed followed by
// public key) used by Solana wallets.
func solanaKeyEncoder(key []byte) (string, error) {
	if !IsKeyValid(key, Ed25519) {
		return "", fmt.Errorf("%w: not a valid ed25519 private key", kserr.ErrInvalidKey)
	}
	priv := ed25519.NewKeyFromSeed(key)
	defer zero(priv)
	return base58.Encode(priv), nil
}

// solanaKeyDecoder accepts a base58 64-byte keypair or a bare 32-byte seed.
func solanaKeyDecoder(encoded string) ([]byte, error) {
	raw := base58.Decode(strings.TrimSpace(encoded))
	defer zero(raw)

	var seed []byte
	switch len(raw) {
	case ed25519.PrivateKeySize:
		seed = raw[:ed25519.SeedSize]
		expected := ed25519.NewKeyFromSeed(seed)
		defer zero(expected)
		if !bytes.Equal(expected[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: keypair public half does not match seed", kserr.ErrInvalidKey)
		}
	case ed25519.SeedSize:
		seed = raw
	default:
		return nil, fmt.Errorf("%w: expected 32 or 64 base58 bytes, got %d", kserr.ErrInvalidKey, len(raw))
	}

	if !IsKeyValid(seed, Ed25519) {
		return nil, fmt.Errorf("%w: not a valid ed25519 private key", kserr.ErrInvalidKey)
	}

	out := make([]byte, ed25519.SeedSize)
	copy(out, seed)
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
