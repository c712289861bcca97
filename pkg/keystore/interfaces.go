package keystore

import (
	"github.com/mrz1836/keystore/pkg/coin"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Vault performs all cryptography for the manager: validation, encryption
// and decryption of secrets, and HD derivation.
type Vault interface {
	IsMnemonicValid(mnemonic string) bool
	IsKeyValid(key []byte, curve coin.Curve) bool

	ImportMnemonic(mnemonic, name string, password []byte, primary coin.Type, enc wallet.Encryption) (Container, error)
	ImportPrivateKey(key []byte, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (Container, error)
	ImportPrivateKeyEncoded(key, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (Container, error)

	// NewHDSession derives a transient seed session from a mnemonic.
	NewHDSession(mnemonic, passphrase string) (Session, error)

	// OpenSession decrypts a container's mnemonic into a session.
	OpenSession(c Container, password []byte) (Session, error)

	// Unmarshal rebuilds a container from a wallet payload.
	Unmarshal(payload []byte) (Container, error)
}

// Container is the vault's encrypted key container. It must be released
// once the operation that acquired it is done.
type Container interface {
	ID() string
	Name() string
	Type() wallet.Type
	Accounts() []wallet.Account

	AddAccount(c coin.Type, derivation coin.Derivation, s Session) (wallet.Account, error)
	PrivateKey(c coin.Type, derivationPath string, password []byte) ([]byte, error)

	DecryptMnemonic(password []byte) (string, error)
	DecryptPrivateKey(password []byte) ([]byte, error)
	DecryptPrivateKeyEncoded(password []byte) (string, error)

	Marshal() ([]byte, error)
	Release()
}

// Session holds secret-derived HD state. It must be released once the
// operation that acquired it is done.
type Session interface {
	Release()
}

// CoinRegistry resolves coin properties the manager validates against.
type CoinRegistry interface {
	Curve(c coin.Type) (coin.Curve, error)
	DefaultDerivation(c coin.Type) (coin.Derivation, error)
}
