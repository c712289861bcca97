// Package backup writes password-encrypted, checksummed copies of wallet
// records to disk and restores them through the keystore manager.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mrz1836/keystore/pkg/wallet"
)

var (
	// ErrBackupNotFound indicates the backup file was not found.
	ErrBackupNotFound = errors.New("backup file not found")

	// ErrBackupCorrupted indicates the backup checksum failed.
	ErrBackupCorrupted = errors.New("backup corrupted - checksum mismatch")

	// ErrDecryptionFailed indicates backup decryption failed.
	ErrDecryptionFailed = errors.New("backup decryption failed")

	// ErrInvalidFormat indicates the backup format is invalid.
	ErrInvalidFormat = errors.New("invalid backup format")
)

// Version is the current backup format version.
const Version = 1

// EncryptionMethod names the cipher protecting backup contents.
const EncryptionMethod = "age-scrypt"

// Backup is the on-disk backup document.
type Backup struct {
	Version  int      `json:"version"`
	Manifest Manifest `json:"manifest"`

	// EncryptedData is the age-encrypted wallet record.
	EncryptedData []byte `json:"encrypted_data"`

	// Checksum is the hex SHA-256 of EncryptedData.
	Checksum string `json:"checksum"`
}

// Manifest describes a backup without revealing its contents.
type Manifest struct {
	WalletID   string      `json:"wallet_id"`
	WalletName string      `json:"wallet_name"`
	WalletType wallet.Type `json:"wallet_type"`
	CreatedAt  time.Time   `json:"created_at"`

	// Coins lists the coins with at least one account, sorted.
	Coins []string `json:"coins"`

	// AccountCount is the number of accounts per coin.
	AccountCount map[string]int `json:"account_count"`

	EncryptionMethod string `json:"encryption_method"`
}

// NewManifest describes w.
func NewManifest(w *wallet.Wallet, createdAt time.Time) Manifest {
	counts := make(map[string]int)
	for _, acc := range w.Accounts {
		counts[string(acc.Coin)]++
	}

	coins := make([]string, 0, len(counts))
	for c := range counts {
		coins = append(coins, c)
	}
	sort.Strings(coins)

	return Manifest{
		WalletID:         w.ID,
		WalletName:       w.Name,
		WalletType:       w.Type,
		CreatedAt:        createdAt.UTC(),
		Coins:            coins,
		AccountCount:     counts,
		EncryptionMethod: EncryptionMethod,
	}
}

// CalculateChecksum computes the SHA256 checksum of data.
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum verifies that data matches the expected checksum.
func VerifyChecksum(data []byte, expected string) error {
	actual := CalculateChecksum(data)
	if actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrBackupCorrupted, expected, actual)
	}
	return nil
}

// NewBackup creates a backup with the given manifest and encrypted data.
func NewBackup(manifest Manifest, encryptedData []byte) *Backup {
	return &Backup{
		Version:       Version,
		Manifest:      manifest,
		EncryptedData: encryptedData,
		Checksum:      CalculateChecksum(encryptedData),
	}
}

// Validate checks the backup for consistency.
func (b *Backup) Validate() error {
	if b.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, b.Version)
	}

	if b.Manifest.WalletID == "" {
		return fmt.Errorf("%w: missing wallet id", ErrInvalidFormat)
	}

	if len(b.EncryptedData) == 0 {
		return fmt.Errorf("%w: no encrypted data", ErrInvalidFormat)
	}

	return VerifyChecksum(b.EncryptedData, b.Checksum)
}
