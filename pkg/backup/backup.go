package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mrz1836/keystore/internal/fileutil"
	"github.com/mrz1836/keystore/internal/secure"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

const (
	// Extension is the file extension for backups.
	Extension = ".kbak"

	// DirPermissions is the permission mode for the backup directory.
	DirPermissions = 0o750

	// FilePermissions is the permission mode for backup files.
	FilePermissions = 0o600

	timestampLayout = "20060102-150405.000"
)

// Keystore is the part of the keystore manager a backup service needs.
// *keystore.Manager satisfies it.
type Keystore interface {
	Load(ctx context.Context, id string) (*wallet.Wallet, error)
	ImportWallet(ctx context.Context, w *wallet.Wallet) error
}

// Option configures a Service.
type Option func(*Service)

// WithWorkFactor sets the scrypt work factor (log2 N) for new backups.
func WithWorkFactor(workFactor int) Option {
	return func(s *Service) {
		s.workFactor = workFactor
	}
}

// Service provides backup operations.
type Service struct {
	dir        string
	keystore   Keystore
	workFactor int
	now        func() time.Time
}

// NewService creates a backup service writing to dir.
func NewService(dir string, ks Keystore, opts ...Option) *Service {
	s := &Service{
		dir:        dir,
		keystore:   ks,
		workFactor: secure.DefaultWorkFactor,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create backs up the wallet record id, encrypted under password, and
// returns the backup and the path it was written to. The record's own
// payload stays encrypted under the wallet password.
func (s *Service) Create(ctx context.Context, id string, password []byte) (*Backup, string, error) {
	w, err := s.keystore.Load(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("loading wallet: %w", err)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, "", fmt.Errorf("serializing wallet: %w", err)
	}
	defer secure.Zero(data)

	encrypted, err := secure.Encrypt(data, password, s.workFactor)
	if err != nil {
		return nil, "", fmt.Errorf("encrypting backup: %w", err)
	}

	now := s.now()
	b := NewBackup(NewManifest(w, now), encrypted)

	path, err := s.writeBackup(b, now)
	if err != nil {
		return nil, "", fmt.Errorf("writing backup: %w", err)
	}
	return b, path, nil
}

// Verify checks a backup file's structure and checksum without decrypting.
func (s *Service) Verify(path string) (*Manifest, error) {
	b, err := s.readBackup(path)
	if err != nil {
		return nil, err
	}
	return &b.Manifest, nil
}

// VerifyWithDecryption verifies a backup and checks that password opens it.
func (s *Service) VerifyWithDecryption(path string, password []byte) (*Manifest, error) {
	b, err := s.readBackup(path)
	if err != nil {
		return nil, err
	}

	w, err := decryptRecord(b, password)
	if err != nil {
		return nil, err
	}
	if w.ID != b.Manifest.WalletID {
		return nil, fmt.Errorf("%w: manifest is for %q, record is %q", ErrInvalidFormat, b.Manifest.WalletID, w.ID)
	}
	return &b.Manifest, nil
}

// Restore decrypts a backup and hands the record to the keystore, which
// checks the payload and stores it under its original id. An existing
// wallet with that id is overwritten.
func (s *Service) Restore(ctx context.Context, path string, password []byte) (*wallet.Wallet, error) {
	b, err := s.readBackup(path)
	if err != nil {
		return nil, err
	}

	w, err := decryptRecord(b, password)
	if err != nil {
		return nil, err
	}
	if w.ID != b.Manifest.WalletID {
		return nil, fmt.Errorf("%w: manifest is for %q, record is %q", ErrInvalidFormat, b.Manifest.WalletID, w.ID)
	}

	if err := s.keystore.ImportWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("restoring wallet: %w", err)
	}
	return w, nil
}

// List returns the backup file names in the backup directory, sorted.
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == Extension {
			backups = append(backups, entry.Name())
		}
	}
	sort.Strings(backups)

	return backups, nil
}

// Path returns the path of a backup file in the backup directory.
func (s *Service) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

func (s *Service) writeBackup(b *Backup, now time.Time) (string, error) {
	filename := fmt.Sprintf("%s-%s%s", b.Manifest.WalletID, now.UTC().Format(timestampLayout), Extension)
	path := fileutil.ContainedPath(s.dir, filename)
	if path == "" {
		return "", fmt.Errorf("%w: wallet id %q", kserr.ErrInvalidInput, b.Manifest.WalletID)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing backup: %w", err)
	}

	if err := fileutil.WriteAtomic(path, data, FilePermissions, DirPermissions); err != nil {
		return "", err
	}
	return path, nil
}

// readBackup reads and validates a backup file.
func (s *Service) readBackup(path string) (*Backup, error) {
	// #nosec G304 -- path is chosen by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBackupNotFound
		}
		return nil, fmt.Errorf("reading backup file: %w", err)
	}

	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func decryptRecord(b *Backup, password []byte) (*wallet.Wallet, error) {
	data, err := secure.Decrypt(b.EncryptedData, password)
	if err != nil {
		if errors.Is(err, secure.ErrIncorrectPassword) {
			return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, kserr.ErrInvalidPassword)
		}
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	defer secure.Zero(data)

	var w wallet.Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return &w, nil
}
