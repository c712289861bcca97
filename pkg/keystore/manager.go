// Package keystore manages the lifecycle of encrypted cryptocurrency
// wallets: import, account addition, key extraction, export and deletion.
// All cryptography is delegated to a Vault and all persistence to a
// wallet.Storage.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrz1836/keystore/internal/metrics"
	"github.com/mrz1836/keystore/internal/ratelimit"
	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Operation names used for logging and metrics.
const (
	opHasWallet        = "has_wallet"
	opLoad             = "load"
	opLoadAll          = "load_all"
	opDelete           = "delete"
	opImport           = "import"
	opImportKey        = "import_key"
	opImportKeyEncoded = "import_key_encoded"
	opImportWallet     = "import_wallet"
	opAddAccounts      = "add_accounts"
	opGetKey           = "get_key"
	opExport           = "export"
	opExportMnemonic   = "export_mnemonic"
	opExportKey        = "export_private_key"
	opExportKeyEncoded = "export_private_key_encoded"
	opGetWalletType    = "get_wallet_type"
)

// Log fields.
const (
	fieldWalletID  = "wallet_id"
	fieldCoin      = "coin"
	fieldOperation = "operation"
)

const defaultTypoSuggestion = "check each word against the BIP39 list and the word order"

// Manager orchestrates wallet operations over a vault and a storage provider.
// It is safe for concurrent use when its collaborators are.
type Manager struct {
	vault    Vault
	storage  wallet.Storage
	registry CoinRegistry

	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	encryption wallet.Encryption
	now        func() time.Time

	closers []io.Closer
}

// New creates a manager.
func New(v Vault, storage wallet.Storage, registry CoinRegistry, opts ...Option) *Manager {
	o := &options{encryption: wallet.EncryptionStandard}
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Manager{
		vault:      v,
		storage:    storage,
		registry:   registry,
		log:        log,
		metrics:    o.buildMetrics(log),
		limiter:    o.limiter,
		encryption: o.encryption,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Stats returns a snapshot of the operation counters.
func (m *Manager) Stats() metrics.Snapshot {
	return m.metrics.Snapshot()
}

// DefaultEncryption returns the encryption used for imports that pass the
// zero Encryption.
func (m *Manager) DefaultEncryption() wallet.Encryption {
	return m.encryption
}

// Close releases the storage provider and any resources Open created.
func (m *Manager) Close() error {
	var errs []error
	if c, ok := m.storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, kserr.Kind(kserr.ErrStorageFailure, err))
		}
	}
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// HasWallet reports whether a wallet with id can be loaded. Every failure,
// not only absence, yields false.
func (m *Manager) HasWallet(ctx context.Context, id string) bool {
	var err error
	defer m.observe(opHasWallet, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	_, err = m.load(ctx, id)
	return err == nil
}

// Load returns the wallet record for id.
func (m *Manager) Load(ctx context.Context, id string) (w *wallet.Wallet, err error) {
	defer m.observe(opLoad, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	return m.load(ctx, id)
}

// LoadAll returns every wallet record in storage order.
func (m *Manager) LoadAll(ctx context.Context) (ws []*wallet.Wallet, err error) {
	defer m.observe(opLoadAll, time.Now(), logrus.Fields{}, &err)

	ws, err = m.storage.LoadAll(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return ws, nil
}

// GetWalletType returns the type of the wallet with id.
func (m *Manager) GetWalletType(ctx context.Context, id string) (t wallet.Type, err error) {
	defer m.observe(opGetWalletType, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	w, err := m.load(ctx, id)
	if err != nil {
		return "", err
	}
	return w.Type, nil
}

// Delete removes the wallet with id after the storage provider verifies
// password against it.
func (m *Manager) Delete(ctx context.Context, id string, password []byte) (err error) {
	defer m.observe(opDelete, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	if err = m.allowAttempt(id); err != nil {
		return err
	}
	if err = m.storage.Delete(ctx, id, password); err != nil {
		return storageError(err)
	}
	m.limiter.Forget(id)
	return nil
}

// Import creates a mnemonic wallet with one account per coin, using each
// coin's default derivation. The first coin is the primary coin.
func (m *Manager) Import(ctx context.Context, mnemonic, name string, password []byte, coins []coin.Type, enc wallet.Encryption) (w *wallet.Wallet, err error) {
	fields := logrus.Fields{}
	defer m.observe(opImport, time.Now(), fields, &err)

	if len(coins) == 0 {
		return nil, fmt.Errorf("%w: at least one coin is required", kserr.ErrInvalidInput)
	}
	fields[fieldCoin] = coins[0]

	if !m.vault.IsMnemonicValid(mnemonic) {
		return nil, invalidMnemonic(mnemonic)
	}
	derivations := make([]coin.Derivation, len(coins))
	for i, c := range coins {
		if derivations[i], err = m.registry.DefaultDerivation(c); err != nil {
			return nil, err
		}
	}

	container, err := m.vault.ImportMnemonic(mnemonic, name, password, coins[0], m.resolveEncryption(enc))
	if err != nil {
		return nil, kserr.Kind(kserr.ErrImportFailed, err)
	}
	defer container.Release()

	session, err := m.vault.NewHDSession(mnemonic, "")
	if err != nil {
		return nil, kserr.Kind(kserr.ErrImportFailed, err)
	}
	defer session.Release()

	for i, c := range coins {
		if _, err = container.AddAccount(c, derivations[i], session); err != nil {
			return nil, kserr.Kind(kserr.ErrImportFailed, fmt.Errorf("adding %s account: %w", c, err))
		}
	}

	w, err = m.newRecord(container, fields)
	if err != nil {
		return nil, err
	}
	session.Release()
	container.Release()

	return m.persistNew(ctx, w)
}

// ImportKey creates a private-key wallet from a raw key for c.
func (m *Manager) ImportKey(ctx context.Context, key []byte, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (w *wallet.Wallet, err error) {
	fields := logrus.Fields{fieldCoin: c}
	defer m.observe(opImportKey, time.Now(), fields, &err)

	curve, err := m.registry.Curve(c)
	if err != nil {
		return nil, err
	}
	if !m.vault.IsKeyValid(key, curve) {
		return nil, kserr.WithDetails(kserr.ErrInvalidKey, map[string]string{
			fieldCoin: string(c),
			"curve":   string(curve),
		})
	}

	container, err := m.vault.ImportPrivateKey(key, name, password, c, m.resolveEncryption(enc), derivation)
	if err != nil {
		return nil, kserr.Kind(kserr.ErrImportFailed, err)
	}
	defer container.Release()

	if w, err = m.newRecord(container, fields); err != nil {
		return nil, err
	}
	container.Release()

	return m.persistNew(ctx, w)
}

// ImportKeyEncoded creates a private-key wallet from a key in c's
// customary text encoding. The key is validated by the vault.
func (m *Manager) ImportKeyEncoded(ctx context.Context, key, name string, password []byte, c coin.Type, enc wallet.Encryption, derivation coin.Derivation) (w *wallet.Wallet, err error) {
	fields := logrus.Fields{fieldCoin: c}
	defer m.observe(opImportKeyEncoded, time.Now(), fields, &err)

	if _, err = m.registry.Curve(c); err != nil {
		return nil, err
	}

	container, err := m.vault.ImportPrivateKeyEncoded(key, name, password, c, m.resolveEncryption(enc), derivation)
	if err != nil {
		return nil, kserr.Kind(kserr.ErrImportFailed, err)
	}
	defer container.Release()

	if w, err = m.newRecord(container, fields); err != nil {
		return nil, err
	}
	container.Release()

	return m.persistNew(ctx, w)
}

// ImportWallet stores an existing wallet record as is, after checking that
// its payload is a container for the same id and type.
func (m *Manager) ImportWallet(ctx context.Context, w *wallet.Wallet) (err error) {
	fields := logrus.Fields{}
	defer m.observe(opImportWallet, time.Now(), fields, &err)

	if w == nil {
		return fmt.Errorf("%w: nil wallet", kserr.ErrInvalidInput)
	}
	fields[fieldWalletID] = w.ID

	if err = wallet.ValidateID(w.ID); err != nil {
		return err
	}
	if err = w.Type.Validate(); err != nil {
		return err
	}

	container, err := m.vault.Unmarshal(w.Payload)
	if err != nil {
		return kserr.Kind(kserr.ErrImportFailed, err)
	}
	defer container.Release()

	if container.ID() != w.ID || container.Type() != w.Type {
		return fmt.Errorf("%w: payload belongs to %s wallet %q", kserr.ErrImportFailed, container.Type(), container.ID())
	}

	record := w.Clone()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = m.now()
	}
	if err = m.storage.Set(ctx, record.ID, record); err != nil {
		return storageError(err)
	}
	return nil
}

// AddAccounts adds an account for each coin at the coin's default derivation.
func (m *Manager) AddAccounts(ctx context.Context, id string, password []byte, coins []coin.Type) (*wallet.Wallet, error) {
	requests := make([]wallet.CoinWithDerivation, 0, len(coins))
	for _, c := range coins {
		d, err := m.registry.DefaultDerivation(c)
		if err != nil {
			m.observe(opAddAccounts, time.Now(), logrus.Fields{fieldWalletID: id, fieldCoin: c}, &err)
			return nil, err
		}
		requests = append(requests, wallet.CoinWithDerivation{Coin: c, Derivation: d})
	}
	return m.AddAccountsWithDerivations(ctx, id, password, requests)
}

// AddAccountsWithDerivations adds an account for each (coin, derivation)
// pair to a mnemonic wallet. Pairs already present are not duplicated.
// An empty list still checks the password and rewrites the record with
// its accounts unchanged.
func (m *Manager) AddAccountsWithDerivations(ctx context.Context, id string, password []byte, coins []wallet.CoinWithDerivation) (w *wallet.Wallet, err error) {
	defer m.observe(opAddAccounts, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	for _, c := range coins {
		if _, err = m.registry.Curve(c.Coin); err != nil {
			return nil, err
		}
	}

	current, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = requireType(current, wallet.TypeMnemonic); err != nil {
		return nil, err
	}
	if err = m.allowAttempt(id); err != nil {
		return nil, err
	}

	container, err := m.vault.Unmarshal(current.Payload)
	if err != nil {
		return nil, vaultError(err)
	}
	defer container.Release()

	session, err := m.vault.OpenSession(container, password)
	if err != nil {
		return nil, vaultError(err)
	}
	defer session.Release()

	for _, c := range coins {
		if _, err = container.AddAccount(c.Coin, c.Derivation, session); err != nil {
			return nil, vaultError(err)
		}
	}

	updated, err := toWallet(container)
	if err != nil {
		return nil, vaultError(err)
	}
	updated.CreatedAt = current.CreatedAt
	session.Release()
	container.Release()

	if err = m.storage.Set(ctx, updated.ID, updated); err != nil {
		return nil, storageError(err)
	}
	return updated, nil
}

// GetKey returns the raw private key of the selected account. The caller
// owns the returned slice and should zero it after use.
func (m *Manager) GetKey(ctx context.Context, id string, password []byte, account wallet.ActiveAccount) (key []byte, err error) {
	defer m.observe(opGetKey, time.Now(), logrus.Fields{fieldWalletID: id, fieldCoin: account.Coin}, &err)

	w, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	acc, ok := w.FindAccount(account)
	if !ok {
		return nil, kserr.WithDetails(kserr.ErrUnknownCoin, map[string]string{
			fieldWalletID: id,
			fieldCoin:     string(account.Coin),
		})
	}
	if err = m.allowAttempt(id); err != nil {
		return nil, err
	}

	container, err := m.vault.Unmarshal(w.Payload)
	if err != nil {
		return nil, vaultError(err)
	}
	defer container.Release()

	key, err = container.PrivateKey(acc.Coin, acc.DerivationPath, password)
	if err != nil {
		return nil, vaultError(err)
	}
	return key, nil
}

// Export returns the wallet's secret: a MnemonicSecret or a PrivateKeySecret
// depending on its type.
func (m *Manager) Export(ctx context.Context, id string, password []byte) (s wallet.Secret, err error) {
	defer m.observe(opExport, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	w, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch w.Type {
	case wallet.TypeMnemonic:
		phrase, err := m.exportMnemonic(w, password)
		if err != nil {
			return nil, err
		}
		return wallet.MnemonicSecret{Phrase: phrase}, nil
	case wallet.TypePrivateKey:
		key, err := m.exportPrivateKey(w, password)
		if err != nil {
			return nil, err
		}
		return wallet.PrivateKeySecret{Key: key}, nil
	default:
		return nil, w.Type.Validate()
	}
}

// ExportMnemonic returns the recovery phrase of a mnemonic wallet. The
// phrase is the normalized form stored at import: lowercase, single-spaced,
// with list prefixes and commas removed. Canonical input round-trips as is.
func (m *Manager) ExportMnemonic(ctx context.Context, id string, password []byte) (phrase string, err error) {
	defer m.observe(opExportMnemonic, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	w, err := m.load(ctx, id)
	if err != nil {
		return "", err
	}
	return m.exportMnemonic(w, password)
}

// ExportPrivateKey returns the raw key of a private-key wallet. The caller
// owns the returned slice.
func (m *Manager) ExportPrivateKey(ctx context.Context, id string, password []byte) (key []byte, err error) {
	defer m.observe(opExportKey, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	w, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.exportPrivateKey(w, password)
}

// ExportPrivateKeyEncoded returns the key of a private-key wallet in its
// coin's customary text encoding.
func (m *Manager) ExportPrivateKeyEncoded(ctx context.Context, id string, password []byte) (encoded string, err error) {
	defer m.observe(opExportKeyEncoded, time.Now(), logrus.Fields{fieldWalletID: id}, &err)

	w, err := m.load(ctx, id)
	if err != nil {
		return "", err
	}
	if err = requireType(w, wallet.TypePrivateKey); err != nil {
		return "", err
	}
	if err = m.allowAttempt(id); err != nil {
		return "", err
	}

	container, err := m.vault.Unmarshal(w.Payload)
	if err != nil {
		return "", vaultError(err)
	}
	defer container.Release()

	encoded, err = container.DecryptPrivateKeyEncoded(password)
	if err != nil {
		return "", vaultError(err)
	}
	return encoded, nil
}

func (m *Manager) exportMnemonic(w *wallet.Wallet, password []byte) (string, error) {
	if err := requireType(w, wallet.TypeMnemonic); err != nil {
		return "", err
	}
	if err := m.allowAttempt(w.ID); err != nil {
		return "", err
	}

	container, err := m.vault.Unmarshal(w.Payload)
	if err != nil {
		return "", vaultError(err)
	}
	defer container.Release()

	phrase, err := container.DecryptMnemonic(password)
	if err != nil {
		return "", vaultError(err)
	}
	return phrase, nil
}

func (m *Manager) exportPrivateKey(w *wallet.Wallet, password []byte) ([]byte, error) {
	if err := requireType(w, wallet.TypePrivateKey); err != nil {
		return nil, err
	}
	if err := m.allowAttempt(w.ID); err != nil {
		return nil, err
	}

	container, err := m.vault.Unmarshal(w.Payload)
	if err != nil {
		return nil, vaultError(err)
	}
	defer container.Release()

	key, err := container.DecryptPrivateKey(password)
	if err != nil {
		return nil, vaultError(err)
	}
	return key, nil
}

func (m *Manager) load(ctx context.Context, id string) (*wallet.Wallet, error) {
	w, err := m.storage.Get(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return w, nil
}

// newRecord maps a freshly created container to its storage record.
func (m *Manager) newRecord(container Container, fields logrus.Fields) (*wallet.Wallet, error) {
	w, err := toWallet(container)
	if err != nil {
		return nil, kserr.Kind(kserr.ErrImportFailed, err)
	}
	w.CreatedAt = m.now()
	fields[fieldWalletID] = w.ID
	return w, nil
}

func (m *Manager) persistNew(ctx context.Context, w *wallet.Wallet) (*wallet.Wallet, error) {
	if err := m.storage.Set(ctx, w.ID, w); err != nil {
		return nil, storageError(err)
	}
	return w, nil
}

func (m *Manager) resolveEncryption(enc wallet.Encryption) wallet.Encryption {
	if enc == (wallet.Encryption{}) {
		return m.encryption
	}
	return enc
}

func (m *Manager) allowAttempt(id string) error {
	if m.limiter.Allow(id) {
		return nil
	}
	return kserr.WithDetails(kserr.ErrRateLimited, map[string]string{fieldWalletID: id})
}

// observe records metrics and logs the outcome of an operation. It reads
// *err when called, so it must be deferred.
func (m *Manager) observe(op string, start time.Time, fields logrus.Fields, err *error) {
	m.metrics.Record(op, time.Since(start), *err)

	entry := m.log.WithFields(fields).WithField(fieldOperation, op)
	if *err != nil {
		entry.WithField("error_code", kserr.Code(*err)).WithError(*err).Warn("keystore operation failed")
		return
	}
	entry.Debug("keystore operation completed")
}

// toWallet maps a container to a wallet record. CreatedAt is left to the caller.
func toWallet(c Container) (*wallet.Wallet, error) {
	payload, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	if err := c.Type().Validate(); err != nil {
		return nil, err
	}
	return &wallet.Wallet{
		ID:       c.ID(),
		Name:     c.Name(),
		Type:     c.Type(),
		Accounts: c.Accounts(),
		Payload:  payload,
	}, nil
}

func requireType(w *wallet.Wallet, want wallet.Type) error {
	if err := w.Type.Validate(); err != nil {
		return err
	}
	if w.Type != want {
		return kserr.WithDetails(kserr.ErrUnsupportedWalletType, map[string]string{
			fieldWalletID: w.ID,
			"type":        string(w.Type),
			"required":    string(want),
		})
	}
	return nil
}

func invalidMnemonic(mnemonic string) error {
	suggestion := wallet.FormatTypoSuggestions(wallet.DetectTypos(mnemonic))
	if suggestion == "" {
		suggestion = defaultTypoSuggestion
	}
	return kserr.WithSuggestion(kserr.ErrInvalidMnemonic, suggestion)
}

// storageError classifies a storage provider error. Absence and password
// failures keep their kind.
func storageError(err error) error {
	switch {
	case errors.Is(err, kserr.ErrNotFound),
		errors.Is(err, kserr.ErrInvalidPassword),
		errors.Is(err, kserr.ErrStorageFailure):
		return err
	default:
		return kserr.Kind(kserr.ErrStorageFailure, err)
	}
}

// vaultError classifies a vault error, keeping kinds callers branch on.
func vaultError(err error) error {
	switch {
	case errors.Is(err, kserr.ErrInvalidPassword),
		errors.Is(err, kserr.ErrUnsupportedWalletType),
		errors.Is(err, kserr.ErrUnknownCoin),
		errors.Is(err, kserr.ErrInvalidMnemonic),
		errors.Is(err, kserr.ErrInvalidKey),
		errors.Is(err, kserr.ErrInvalidInput),
		errors.Is(err, kserr.ErrVaultFailure):
		return err
	default:
		return kserr.Kind(kserr.ErrVaultFailure, err)
	}
}
