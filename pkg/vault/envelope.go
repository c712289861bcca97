package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"

	"github.com/mrz1836/keystore/internal/secure"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// envelope is the encrypted secret of a container. Exactly one of Keystore
// and Age is set, according to Cipher.
type envelope struct {
	Cipher   wallet.Cipher        `json:"cipher"`
	Keystore *keystore.CryptoJSON `json:"keystore,omitempty"`
	Age      []byte               `json:"age,omitempty"`
}

func seal(secret, password []byte, enc wallet.Encryption) (envelope, error) {
	if err := enc.Validate(); err != nil {
		return envelope{}, err
	}

	switch enc.Cipher {
	case wallet.CipherAES128CTR:
		cj, err := keystore.EncryptDataV3(secret, password, enc.ScryptN, enc.ScryptP)
		if err != nil {
			return envelope{}, kserr.Kind(kserr.ErrVaultFailure, fmt.Errorf("encrypting secret: %w", err))
		}
		return envelope{Cipher: enc.Cipher, Keystore: &cj}, nil

	case wallet.CipherAge:
		ct, err := secure.Encrypt(secret, password, enc.WorkFactor())
		if err != nil {
			return envelope{}, kserr.Kind(kserr.ErrVaultFailure, fmt.Errorf("encrypting secret: %w", err))
		}
		return envelope{Cipher: enc.Cipher, Age: ct}, nil

	default:
		return envelope{}, fmt.Errorf("%w: unknown cipher %q", kserr.ErrInvalidInput, enc.Cipher)
	}
}

// open decrypts the envelope. The caller must zero the result.
func (e envelope) open(password []byte) ([]byte, error) {
	switch e.Cipher {
	case wallet.CipherAES128CTR:
		if e.Keystore == nil {
			return nil, fmt.Errorf("%w: missing keystore crypto section", kserr.ErrVaultFailure)
		}
		secret, err := keystore.DecryptDataV3(*e.Keystore, string(password))
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, kserr.Kind(kserr.ErrInvalidPassword, err)
		}
		if err != nil {
			return nil, kserr.Kind(kserr.ErrVaultFailure, fmt.Errorf("decrypting secret: %w", err))
		}
		return secret, nil

	case wallet.CipherAge:
		secret, err := secure.Decrypt(e.Age, password)
		if errors.Is(err, secure.ErrIncorrectPassword) {
			return nil, kserr.Kind(kserr.ErrInvalidPassword, err)
		}
		if err != nil {
			return nil, kserr.Kind(kserr.ErrVaultFailure, fmt.Errorf("decrypting secret: %w", err))
		}
		return secret, nil

	default:
		return nil, fmt.Errorf("%w: unknown cipher %q", kserr.ErrVaultFailure, e.Cipher)
	}
}
