// Package coin is the registry of supported coins: which curve each coin
// signs with, where its accounts live in an HD tree, and how its addresses
// and private keys are encoded.
package coin

import "strings"

// Type identifies a supported coin.
type Type string

// Supported coins.
const (
	Bitcoin   Type = "bitcoin"
	Litecoin  Type = "litecoin"
	BitcoinSV Type = "bitcoinsv"
	Ethereum  Type = "ethereum"
	Solana    Type = "solana"
)

// String returns the coin identifier string.
func (t Type) String() string {
	return string(t)
}

// Curve is the elliptic curve a coin's keys live on.
type Curve string

// Supported curves.
const (
	Secp256k1 Curve = "secp256k1"
	Ed25519   Curve = "ed25519"
)

// Derivation selects where in the HD tree an account is derived. It is either
// a named scheme or an explicit path such as "m/44'/0'/0'/0/0".
type Derivation string

// Named derivation schemes.
const (
	DerivationDefault Derivation = "default"
	DerivationLegacy  Derivation = "legacy"
	DerivationSegwit  Derivation = "segwit"
)

// IsPath reports whether d is an explicit derivation path.
func (d Derivation) IsPath() bool {
	return strings.HasPrefix(string(d), "m/") || d == "m"
}

// String returns the derivation string.
func (d Derivation) String() string {
	return string(d)
}
