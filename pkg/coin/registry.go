package coin

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// AddressFunc renders the address for a public key derived at path.
type AddressFunc func(pubKey []byte, path []uint32) (string, error)

// KeyEncoder renders a raw private key in the coin's customary text form.
type KeyEncoder func(key []byte) (string, error)

// KeyDecoder parses a text-encoded private key into raw bytes.
type KeyDecoder func(encoded string) ([]byte, error)

// Info describes one coin.
type Info struct {
	Type     Type
	Name     string
	Symbol   string
	Curve    Curve
	CoinType uint32

	// DefaultScheme is used when callers ask for DerivationDefault.
	DefaultScheme Derivation
	Schemes       map[Derivation]string

	// Params carries HD and address version bytes for secp256k1 coins.
	Params *chaincfg.Params

	FormatAddress    AddressFunc
	EncodePrivateKey KeyEncoder
	DecodePrivateKey KeyDecoder
}

// Registry maps coin identifiers to their Info.
type Registry struct {
	coins map[Type]Info
	order []Type
}

// NewRegistry creates a registry holding the given coins. Later entries
// replace earlier ones with the same Type.
func NewRegistry(infos ...Info) *Registry {
	r := &Registry{coins: make(map[Type]Info, len(infos))}
	for _, info := range infos {
		if _, exists := r.coins[info.Type]; !exists {
			r.order = append(r.order, info.Type)
		}
		r.coins[info.Type] = info
	}
	return r
}

// DefaultRegistry returns a registry with every built-in coin.
func DefaultRegistry() *Registry {
	return NewRegistry(
		bitcoinInfo(),
		litecoinInfo(),
		bitcoinSVInfo(),
		ethereumInfo(),
		solanaInfo(),
	)
}

// Lookup returns the Info for a coin.
func (r *Registry) Lookup(t Type) (Info, error) {
	info, ok := r.coins[t]
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", kserr.ErrUnknownCoin, t)
	}
	return info, nil
}

// Curve returns the curve a coin's keys live on.
func (r *Registry) Curve(t Type) (Curve, error) {
	info, err := r.Lookup(t)
	if err != nil {
		return "", err
	}
	return info.Curve, nil
}

// DefaultDerivation returns the scheme used for a coin when none is requested.
func (r *Registry) DefaultDerivation(t Type) (Derivation, error) {
	info, err := r.Lookup(t)
	if err != nil {
		return "", err
	}
	return info.DefaultScheme, nil
}

// Path resolves a derivation for a coin into a canonical path string.
// Explicit paths are validated; ed25519 coins only accept hardened paths.
func (r *Registry) Path(t Type, d Derivation) (string, error) {
	info, err := r.Lookup(t)
	if err != nil {
		return "", err
	}

	if d == "" || d == DerivationDefault {
		d = info.DefaultScheme
	}

	if d.IsPath() {
		indexes, err := ParsePath(string(d))
		if err != nil {
			return "", err
		}
		if info.Curve == Ed25519 && !allHardened(indexes) {
			return "", fmt.Errorf("%w: %s only supports hardened derivation, got %q",
				kserr.ErrInvalidInput, t, d)
		}
		return FormatPath(indexes), nil
	}

	path, ok := info.Schemes[d]
	if !ok {
		return "", fmt.Errorf("%w: derivation %q is not available for %s", kserr.ErrInvalidInput, d, t)
	}
	return path, nil
}

// Coins returns the registered coin identifiers in registration order.
func (r *Registry) Coins() []Type {
	out := make([]Type, len(r.order))
	copy(out, r.order)
	return out
}
