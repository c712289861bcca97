package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/mrz1836/keystore/internal/fileutil"
	kserr "github.com/mrz1836/keystore/pkg/errors"
)

const (
	// walletFileExtension is the extension for wallet files.
	walletFileExtension = ".wallet"

	// walletFilePermissions is the permission mode for wallet files.
	walletFilePermissions = 0o600

	// walletDirPermissions is the permission mode for the wallets directory.
	walletDirPermissions = 0o750
)

// FileStorage stores one JSON file per wallet under a base directory.
// Writes are atomic; concurrent writers to the same id are last-writer-wins.
type FileStorage struct {
	basePath string
	verifier PasswordVerifier
}

// NewFileStorage creates a file-based store rooted at basePath.
func NewFileStorage(basePath string, verifier PasswordVerifier) *FileStorage {
	return &FileStorage{basePath: basePath, verifier: verifier}
}

// Get implements Storage.
func (s *FileStorage) Get(ctx context.Context, id string) (*Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.walletPath(id)
	if err != nil {
		// No record can exist under an invalid id
		return nil, kserr.Kind(kserr.ErrWalletNotFound, err)
	}
	return readWalletFile(path)
}

// Set implements Storage.
func (s *FileStorage) Set(ctx context.Context, id string, w *Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.walletPath(id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshaling wallet: %w", err)
	}

	if err := fileutil.WriteAtomic(path, data, walletFilePermissions, walletDirPermissions); err != nil {
		return fmt.Errorf("writing wallet file: %w", err)
	}
	return nil
}

// Delete implements Storage.
func (s *FileStorage) Delete(ctx context.Context, id string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.walletPath(id)
	if err != nil {
		return kserr.Kind(kserr.ErrWalletNotFound, err)
	}

	w, err := readWalletFile(path)
	if err != nil {
		return err
	}
	if err := VerifyDeletion(s.verifier, w, password); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return kserr.ErrWalletNotFound
		}
		return fmt.Errorf("removing wallet file: %w", err)
	}
	return nil
}

// LoadAll implements Storage. Records are returned sorted by file name.
func (s *FileStorage) LoadAll(ctx context.Context) ([]*Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Wallet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading wallet directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), walletFileExtension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	wallets := make([]*Wallet, 0, len(names))
	for _, name := range names {
		path := fileutil.ContainedPath(s.basePath, name)
		if path == "" {
			continue
		}
		w, err := readWalletFile(path)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// walletPath returns the file path for id after validating it.
func (s *FileStorage) walletPath(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	path := fileutil.ContainedPath(s.basePath, id+walletFileExtension)
	if path == "" {
		return "", fmt.Errorf("%w: wallet id %q", kserr.ErrInvalidInput, id)
	}
	return path, nil
}

func readWalletFile(path string) (*Wallet, error) {
	//nolint:gosec // G304: path validated by walletPath / ContainedPath
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, kserr.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading wallet file: %w", err)
	}

	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing wallet file %s: %w", path, err)
	}
	return &w, nil
}
