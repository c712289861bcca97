package coin

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	// RIPEMD160 is deprecated but REQUIRED by Bitcoin protocol (BIP-13, BIP-16).
	// Bitcoin P2PKH addresses use Hash160 = RIPEMD160(SHA256(pubkey)).
	//nolint:gosec,staticcheck // G507,SA1019: RIPEMD160 required by Bitcoin protocol
	"golang.org/x/crypto/ripemd160"

	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// purposeSegwit is the hardened BIP-84 purpose component.
const purposeSegwit = HardenedKeyStart + 84

// Hash160 computes RIPEMD160(SHA256(data)) as required by Bitcoin protocol.
//
//nolint:gosec // G406: RIPEMD160 is part of Bitcoin Hash160
func Hash160(data []byte) []byte {
	sha256Hash := sha256.Sum256(data)
	ripemd := ripemd160.New()
	ripemd.Write(sha256Hash[:])
	return ripemd.Sum(nil)
}

// bitcoinAddress returns the address renderer for a Bitcoin-family coin.
// BIP-84 paths produce bech32 P2WPKH when segwit is supported; everything
// else is P2PKH.
func bitcoinAddress(params *chaincfg.Params, segwit bool) AddressFunc {
	return func(pubKey []byte, path []uint32) (string, error) {
		pub, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return "", fmt.Errorf("%w: parsing public key: %w", kserr.ErrInvalidKey, err)
		}
		hash := Hash160(pub.SerializeCompressed())

		if segwit && len(path) > 0 && path[0] == purposeSegwit {
			addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
			if err != nil {
				return "", fmt.Errorf("creating P2WPKH address: %w", err)
			}
			return addr.EncodeAddress(), nil
		}

		addr, err := btcutil.NewAddressPubKeyHash(hash, params)
		if err != nil {
			return "", fmt.Errorf("creating P2PKH address: %w", err)
		}
		return addr.EncodeAddress(), nil
	}
}

// ethereumAddress renders the EIP-55 checksummed address of a secp256k1 key.
func ethereumAddress(pubKey []byte, _ []uint32) (string, error) {
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return "", fmt.Errorf("%w: parsing public key: %w", kserr.ErrInvalidKey, err)
	}
	// Skip the 0x04 prefix of the uncompressed encoding
	hash := crypto.Keccak256(pub.SerializeUncompressed()[1:])
	return common.BytesToAddress(hash[12:]).Hex(), nil
}

// solanaAddress renders the base58 form of an ed25519 public key.
func solanaAddress(pubKey []byte, _ []uint32) (string, error) {
	if len(pubKey) != ed25519KeySize {
		return "", fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d",
			kserr.ErrInvalidKey, ed25519KeySize, len(pubKey))
	}
	return base58.Encode(pubKey), nil
}
