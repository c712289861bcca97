package wallet

// Secret is the decrypted secret of a wallet, as returned by export.
// Its concrete type is MnemonicSecret or PrivateKeySecret.
type Secret interface {
	// Type is the wallet type the secret belongs to.
	Type() Type

	// Zero overwrites any zeroizable secret bytes.
	Zero()

	secret()
}

// MnemonicSecret is the recovery phrase of a mnemonic wallet.
type MnemonicSecret struct {
	Phrase string
}

// Type implements Secret.
func (MnemonicSecret) Type() Type { return TypeMnemonic }

// Zero is a no-op: Go strings are immutable.
func (MnemonicSecret) Zero() {}

func (MnemonicSecret) secret() {}

// PrivateKeySecret is the raw key of a private-key wallet.
type PrivateKeySecret struct {
	Key []byte
}

// Type implements Secret.
func (PrivateKeySecret) Type() Type { return TypePrivateKey }

// Zero overwrites the key bytes.
func (s PrivateKeySecret) Zero() {
	for i := range s.Key {
		s.Key[i] = 0
	}
}

func (PrivateKeySecret) secret() {}
