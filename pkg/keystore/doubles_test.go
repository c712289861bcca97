package keystore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/keystore"
	"github.com/mrz1836/keystore/pkg/wallet"
)

var (
	errBoom     = errors.New("boom")
	errDiskFull = errors.New("disk full")
)

// fakeVault is a Vault double that records calls and tracks handle
// releases. Containers carry their secret in clear JSON.
type fakeVault struct {
	mu       sync.Mutex
	calls    map[string]int
	acquired int
	released int
	nextID   int
	fail     map[string]error
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (v *fakeVault) record(op string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls[op]++
	return v.fail[op]
}

func (v *fakeVault) failOn(op string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fail[op] = err
}

func (v *fakeVault) totalCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := 0
	for op, n := range v.calls {
		if op == "IsMnemonicValid" || op == "IsKeyValid" {
			continue
		}
		total += n
	}
	return total
}

func (v *fakeVault) callCount(op string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[op]
}

// outstanding returns the number of handles acquired and not released.
func (v *fakeVault) outstanding() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.acquired - v.released
}

func (v *fakeVault) acquire() {
	v.mu.Lock()
	v.acquired++
	v.mu.Unlock()
}

func (v *fakeVault) IsMnemonicValid(mnemonic string) bool {
	_ = v.record("IsMnemonicValid")
	return wallet.IsMnemonicValid(mnemonic)
}

func (v *fakeVault) IsKeyValid(key []byte, curve coin.Curve) bool {
	_ = v.record("IsKeyValid")
	return coin.IsKeyValid(key, curve)
}

func (v *fakeVault) ImportMnemonic(mnemonic, name string, password []byte, primary coin.Type, _ wallet.Encryption) (keystore.Container, error) {
	if err := v.record("ImportMnemonic"); err != nil {
		return nil, err
	}
	acc, err := fakeAccount(primary, coin.DerivationDefault)
	if err != nil {
		return nil, err
	}
	c := v.newContainer(name, wallet.TypeMnemonic, wallet.NormalizeMnemonicInput(mnemonic), password)
	c.payload.Accounts = []wallet.Account{acc}
	return c, nil
}

func (v *fakeVault) ImportPrivateKey(key []byte, name string, password []byte, c coin.Type, _ wallet.Encryption, derivation coin.Derivation) (keystore.Container, error) {
	if err := v.record("ImportPrivateKey"); err != nil {
		return nil, err
	}
	acc, err := fakeAccount(c, derivation)
	if err != nil {
		return nil, err
	}
	fc := v.newContainer(name, wallet.TypePrivateKey, fmt.Sprintf("%x", key), password)
	fc.payload.Accounts = []wallet.Account{acc}
	return fc, nil
}

func (v *fakeVault) ImportPrivateKeyEncoded(key, name string, password []byte, c coin.Type, _ wallet.Encryption, derivation coin.Derivation) (keystore.Container, error) {
	if err := v.record("ImportPrivateKeyEncoded"); err != nil {
		return nil, err
	}
	acc, err := fakeAccount(c, derivation)
	if err != nil {
		return nil, err
	}
	fc := v.newContainer(name, wallet.TypePrivateKey, key, password)
	fc.payload.Accounts = []wallet.Account{acc}
	return fc, nil
}

func (v *fakeVault) NewHDSession(_, _ string) (keystore.Session, error) {
	if err := v.record("NewHDSession"); err != nil {
		return nil, err
	}
	v.acquire()
	return &fakeSession{vault: v}, nil
}

func (v *fakeVault) OpenSession(c keystore.Container, password []byte) (keystore.Session, error) {
	if err := v.record("OpenSession"); err != nil {
		return nil, err
	}
	fc := c.(*fakeContainer)
	if err := fc.check(wallet.TypeMnemonic, password); err != nil {
		return nil, err
	}
	v.acquire()
	return &fakeSession{vault: v}, nil
}

func (v *fakeVault) Unmarshal(data []byte) (keystore.Container, error) {
	if err := v.record("Unmarshal"); err != nil {
		return nil, err
	}
	var p fakePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing fake container: %w", err)
	}
	v.acquire()
	return &fakeContainer{vault: v, payload: p}, nil
}

func (v *fakeVault) VerifyPassword(w *wallet.Wallet, password []byte) error {
	c, err := v.Unmarshal(w.Payload)
	if err != nil {
		return err
	}
	defer c.Release()
	return c.(*fakeContainer).check(w.Type, password)
}

func (v *fakeVault) newContainer(name string, t wallet.Type, secret string, password []byte) *fakeContainer {
	v.mu.Lock()
	v.nextID++
	id := fmt.Sprintf("fake-%d", v.nextID)
	v.acquired++
	v.mu.Unlock()

	return &fakeContainer{vault: v, payload: fakePayload{
		ID:       id,
		Name:     name,
		Type:     t,
		Secret:   secret,
		Password: string(password),
	}}
}

type fakePayload struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     wallet.Type      `json:"type"`
	Secret   string           `json:"secret"`
	Password string           `json:"password"`
	Accounts []wallet.Account `json:"accounts"`
}

type fakeContainer struct {
	vault    *fakeVault
	payload  fakePayload
	released bool
}

// fakeAccount resolves d through the default registry so paths match
// what the real vault produces.
func fakeAccount(c coin.Type, d coin.Derivation) (wallet.Account, error) {
	path, err := coin.DefaultRegistry().Path(c, d)
	if err != nil {
		return wallet.Account{}, err
	}
	return wallet.Account{
		Coin:           c,
		Derivation:     d,
		DerivationPath: path,
		Address:        fmt.Sprintf("%s:%s", c, path),
	}, nil
}

func (c *fakeContainer) check(want wallet.Type, password []byte) error {
	if c.payload.Type != want {
		return kserr.ErrUnsupportedWalletType
	}
	if !bytes.Equal([]byte(c.payload.Password), password) {
		return kserr.ErrInvalidPassword
	}
	return nil
}

func (c *fakeContainer) ID() string        { return c.payload.ID }
func (c *fakeContainer) Name() string      { return c.payload.Name }
func (c *fakeContainer) Type() wallet.Type { return c.payload.Type }
func (c *fakeContainer) Accounts() []wallet.Account {
	return append([]wallet.Account(nil), c.payload.Accounts...)
}

func (c *fakeContainer) AddAccount(t coin.Type, d coin.Derivation, s keystore.Session) (wallet.Account, error) {
	if err := c.vault.record("AddAccount"); err != nil {
		return wallet.Account{}, err
	}
	if s.(*fakeSession).released {
		return wallet.Account{}, kserr.ErrVaultFailure
	}
	acc, err := fakeAccount(t, d)
	if err != nil {
		return wallet.Account{}, err
	}
	for _, existing := range c.payload.Accounts {
		if existing.Coin == acc.Coin && existing.DerivationPath == acc.DerivationPath {
			return existing, nil
		}
	}
	c.payload.Accounts = append(c.payload.Accounts, acc)
	return acc, nil
}

func (c *fakeContainer) PrivateKey(t coin.Type, path string, password []byte) ([]byte, error) {
	if err := c.vault.record("PrivateKey"); err != nil {
		return nil, err
	}
	if err := c.check(c.payload.Type, password); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("key:%s:%s", t, path)), nil
}

func (c *fakeContainer) DecryptMnemonic(password []byte) (string, error) {
	if err := c.vault.record("DecryptMnemonic"); err != nil {
		return "", err
	}
	if err := c.check(wallet.TypeMnemonic, password); err != nil {
		return "", err
	}
	return c.payload.Secret, nil
}

func (c *fakeContainer) DecryptPrivateKey(password []byte) ([]byte, error) {
	if err := c.vault.record("DecryptPrivateKey"); err != nil {
		return nil, err
	}
	if err := c.check(wallet.TypePrivateKey, password); err != nil {
		return nil, err
	}
	return []byte(c.payload.Secret), nil
}

func (c *fakeContainer) DecryptPrivateKeyEncoded(password []byte) (string, error) {
	if err := c.vault.record("DecryptPrivateKeyEncoded"); err != nil {
		return "", err
	}
	if err := c.check(wallet.TypePrivateKey, password); err != nil {
		return "", err
	}
	return "encoded:" + c.payload.Secret, nil
}

func (c *fakeContainer) Marshal() ([]byte, error) {
	if err := c.vault.record("Marshal"); err != nil {
		return nil, err
	}
	return json.Marshal(c.payload)
}

func (c *fakeContainer) Release() {
	if c.released {
		return
	}
	c.released = true
	c.vault.mu.Lock()
	c.vault.released++
	c.vault.mu.Unlock()
}

type fakeSession struct {
	vault    *fakeVault
	released bool
}

func (s *fakeSession) Release() {
	if s.released {
		return
	}
	s.released = true
	s.vault.mu.Lock()
	s.vault.released++
	s.vault.mu.Unlock()
}

// failingStorage wraps a storage and fails selected methods.
type failingStorage struct {
	wallet.Storage
	getErr, setErr, loadAllErr error
	beforeSet                  func()
}

func (s *failingStorage) Get(ctx context.Context, id string) (*wallet.Wallet, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Storage.Get(ctx, id)
}

func (s *failingStorage) Set(ctx context.Context, id string, w *wallet.Wallet) error {
	if s.beforeSet != nil {
		s.beforeSet()
	}
	if s.setErr != nil {
		return s.setErr
	}
	return s.Storage.Set(ctx, id, w)
}

func (s *failingStorage) LoadAll(ctx context.Context) ([]*wallet.Wallet, error) {
	if s.loadAllErr != nil {
		return nil, s.loadAllErr
	}
	return s.Storage.LoadAll(ctx)
}
