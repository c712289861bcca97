package keystore_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/keystore"
	"github.com/mrz1836/keystore/pkg/wallet"
)

const abandonMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

//nolint:gochecknoglobals // test fixtures
var (
	password      = []byte("hunter22")
	wrongPassword = []byte("hunter23")
)

type fixture struct {
	vault   *fakeVault
	storage *wallet.MemoryStorage
	manager *keystore.Manager
}

func newFixture(t *testing.T, opts ...keystore.Option) *fixture {
	t.Helper()
	v := newFakeVault()
	s := wallet.NewMemoryStorage(v)
	m := keystore.New(v, s, coin.DefaultRegistry(), opts...)
	t.Cleanup(func() { _ = m.Close() })
	return &fixture{vault: v, storage: s, manager: m}
}

// importMnemonic imports the abandon phrase for bitcoin and ethereum and
// resets the call counters.
func (f *fixture) importMnemonic(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := f.manager.Import(context.Background(), abandonMnemonic, "main", password,
		[]coin.Type{coin.Bitcoin, coin.Ethereum}, wallet.EncryptionLight)
	require.NoError(t, err)
	f.resetCalls()
	return w
}

func (f *fixture) importKey(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := f.manager.ImportKey(context.Background(), keyOne(), "hot", password,
		coin.Ethereum, wallet.EncryptionLight, coin.DerivationDefault)
	require.NoError(t, err)
	f.resetCalls()
	return w
}

func (f *fixture) resetCalls() {
	f.vault.mu.Lock()
	defer f.vault.mu.Unlock()
	f.vault.calls = make(map[string]int)
}

func keyOne() []byte {
	key := make([]byte, 32)
	key[31] = 1
	return key
}

func TestImport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.manager.Import(ctx, abandonMnemonic, "main", password,
		[]coin.Type{coin.Bitcoin, coin.Ethereum, coin.Solana}, wallet.EncryptionLight)
	require.NoError(t, err)

	assert.Equal(t, "main", w.Name)
	assert.Equal(t, wallet.TypeMnemonic, w.Type)
	assert.False(t, w.CreatedAt.IsZero())
	require.Len(t, w.Accounts, 3)
	assert.Equal(t, coin.Bitcoin, w.Accounts[0].Coin)
	assert.Equal(t, "m/84'/0'/0'/0/0", w.Accounts[0].DerivationPath)
	assert.Equal(t, coin.Ethereum, w.Accounts[1].Coin)
	assert.Equal(t, coin.Solana, w.Accounts[2].Coin)

	stored, err := f.storage.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, stored)

	assert.Equal(t, 1, f.vault.callCount("ImportMnemonic"))
	assert.Equal(t, 1, f.vault.callCount("NewHDSession"))
	assert.Zero(t, f.vault.outstanding(), "every container and session is released")
}

func TestImport_ValidationBeforeVault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mnemonic string
		coins    []coin.Type
		want     error
	}{
		{"no coins", abandonMnemonic, nil, kserr.ErrInvalidInput},
		{"invalid mnemonic", "abandon abandon abandon", []coin.Type{coin.Bitcoin}, kserr.ErrInvalidMnemonic},
		{"bad checksum", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", []coin.Type{coin.Bitcoin}, kserr.ErrInvalidMnemonic},
		{"unknown coin", abandonMnemonic, []coin.Type{coin.Bitcoin, "dogecoin"}, kserr.ErrUnknownCoin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			_, err := f.manager.Import(context.Background(), tt.mnemonic, "x", password, tt.coins, wallet.EncryptionLight)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.vault.totalCalls())

			all, err := f.storage.LoadAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestImport_TypoSuggestion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	phrase := "abandon abandn abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	_, err := f.manager.Import(context.Background(), phrase, "x", password, []coin.Type{coin.Bitcoin}, wallet.EncryptionLight)
	require.ErrorIs(t, err, kserr.ErrInvalidMnemonic)
	assert.Equal(t, "Word 2: 'abandn' - did you mean 'abandon'?", kserr.Suggestion(err))
}

func TestImport_VaultFailureIsImportFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.vault.failOn("AddAccount", errBoom)

	_, err := f.manager.Import(context.Background(), abandonMnemonic, "x", password,
		[]coin.Type{coin.Bitcoin, coin.Ethereum}, wallet.EncryptionLight)
	require.ErrorIs(t, err, kserr.ErrImportFailed)
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, f.vault.outstanding())

	all, err := f.storage.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "nothing persisted on failure")
}

func TestImport_DefaultEncryption(t *testing.T) {
	t.Parallel()
	f := newFixture(t, keystore.WithDefaultEncryption(wallet.EncryptionAge))
	assert.Equal(t, wallet.EncryptionAge, f.manager.DefaultEncryption())

	_, err := f.manager.Import(context.Background(), abandonMnemonic, "x", password,
		[]coin.Type{coin.Bitcoin}, wallet.Encryption{})
	require.NoError(t, err)
}

func TestImport_StorageFailure(t *testing.T) {
	t.Parallel()
	v := newFakeVault()
	s := &failingStorage{Storage: wallet.NewMemoryStorage(v), setErr: errDiskFull}
	m := keystore.New(v, s, coin.DefaultRegistry())

	_, err := m.Import(context.Background(), abandonMnemonic, "x", password, []coin.Type{coin.Bitcoin}, wallet.EncryptionLight)
	require.ErrorIs(t, err, kserr.ErrStorageFailure)
	require.ErrorIs(t, err, errDiskFull)
	assert.Zero(t, v.outstanding())
}

func TestHandlesReleasedBeforeWrite(t *testing.T) {
	t.Parallel()
	v := newFakeVault()
	var open []int
	s := &failingStorage{Storage: wallet.NewMemoryStorage(v)}
	s.beforeSet = func() { open = append(open, v.outstanding()) }
	m := keystore.New(v, s, coin.DefaultRegistry())
	ctx := context.Background()

	w, err := m.Import(ctx, abandonMnemonic, "main", password, []coin.Type{coin.Bitcoin}, wallet.EncryptionLight)
	require.NoError(t, err)
	_, err = m.ImportKey(ctx, keyOne(), "hot", password, coin.Ethereum, wallet.EncryptionLight, coin.DerivationDefault)
	require.NoError(t, err)
	_, err = m.AddAccounts(ctx, w.ID, password, []coin.Type{coin.Ethereum})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 0}, open)
	assert.Zero(t, v.outstanding())
}

func TestImportKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w, err := f.manager.ImportKey(context.Background(), keyOne(), "hot", password,
		coin.Ethereum, wallet.EncryptionLight, coin.DerivationDefault)
	require.NoError(t, err)
	assert.Equal(t, wallet.TypePrivateKey, w.Type)
	require.Len(t, w.Accounts, 1)
	assert.Equal(t, coin.Ethereum, w.Accounts[0].Coin)
	assert.Zero(t, f.vault.outstanding())
}

func TestImportKey_ValidationBeforeVault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  []byte
		coin coin.Type
		want error
	}{
		{"unknown coin", keyOne(), "dogecoin", kserr.ErrUnknownCoin},
		{"zero key", make([]byte, 32), coin.Bitcoin, kserr.ErrInvalidKey},
		{"short key", []byte{1, 2, 3}, coin.Ethereum, kserr.ErrInvalidKey},
		{"zero ed25519 key", make([]byte, 32), coin.Solana, kserr.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			_, err := f.manager.ImportKey(context.Background(), tt.key, "x", password, tt.coin, wallet.EncryptionLight, coin.DerivationDefault)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.vault.totalCalls())
		})
	}
}

func TestImportKeyEncoded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.ImportKeyEncoded(ctx, "whatever", "x", password, "dogecoin", wallet.EncryptionLight, coin.DerivationDefault)
	require.ErrorIs(t, err, kserr.ErrUnknownCoin)
	assert.Zero(t, f.vault.totalCalls())

	f.vault.failOn("ImportPrivateKeyEncoded", kserr.ErrInvalidKey)
	_, err = f.manager.ImportKeyEncoded(ctx, "garbage", "x", password, coin.Bitcoin, wallet.EncryptionLight, coin.DerivationDefault)
	require.ErrorIs(t, err, kserr.ErrImportFailed)
	require.ErrorIs(t, err, kserr.ErrInvalidKey)
}

func TestLoadAndHasWallet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	assert.True(t, f.manager.HasWallet(ctx, w.ID))
	assert.False(t, f.manager.HasWallet(ctx, "missing"))
	assert.False(t, f.manager.HasWallet(ctx, "../escape"))

	loaded, err := f.manager.Load(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, loaded)

	_, err = f.manager.Load(ctx, "missing")
	require.ErrorIs(t, err, kserr.ErrWalletNotFound)

	typ, err := f.manager.GetWalletType(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TypeMnemonic, typ)

	_, err = f.manager.GetWalletType(ctx, "missing")
	require.ErrorIs(t, err, kserr.ErrNotFound)
	assert.Zero(t, f.vault.totalCalls(), "reads never touch the vault")
}

func TestLoadAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.manager.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	first := f.importMnemonic(t)
	second := f.importKey(t)

	all, err = f.manager.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func TestStorageErrors(t *testing.T) {
	t.Parallel()
	v := newFakeVault()
	s := &failingStorage{
		Storage:    wallet.NewMemoryStorage(v),
		getErr:     errDiskFull,
		loadAllErr: errDiskFull,
	}
	m := keystore.New(v, s, coin.DefaultRegistry())
	ctx := context.Background()

	_, err := m.Load(ctx, "w1")
	require.ErrorIs(t, err, kserr.ErrStorageFailure)
	require.ErrorIs(t, err, errDiskFull)

	_, err = m.LoadAll(ctx)
	require.ErrorIs(t, err, kserr.ErrStorageFailure)

	assert.False(t, m.HasWallet(ctx, "w1"))

	_, err = m.GetKey(ctx, "w1", password, wallet.ActiveAccount{Coin: coin.Bitcoin})
	require.ErrorIs(t, err, kserr.ErrStorageFailure)
	assert.Zero(t, v.totalCalls())
}

func TestAddAccounts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	updated, err := f.manager.AddAccounts(ctx, w.ID, password, []coin.Type{coin.Solana, coin.Litecoin})
	require.NoError(t, err)
	require.Len(t, updated.Accounts, 4)
	assert.Equal(t, coin.Solana, updated.Accounts[2].Coin)
	assert.Equal(t, coin.Litecoin, updated.Accounts[3].Coin)
	assert.Equal(t, w.ID, updated.ID)

	stored, err := f.storage.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
	assert.Zero(t, f.vault.outstanding())
}

func TestAddAccounts_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	updated, err := f.manager.AddAccounts(ctx, w.ID, password, []coin.Type{coin.Bitcoin, coin.Ethereum})
	require.NoError(t, err)
	assert.Equal(t, w.Accounts, updated.Accounts)
}

func TestAddAccounts_EmptyList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	updated, err := f.manager.AddAccountsWithDerivations(ctx, w.ID, password, []wallet.CoinWithDerivation{})
	require.NoError(t, err)
	assert.Equal(t, w.Accounts, updated.Accounts)
	assert.Equal(t, 1, f.vault.callCount("OpenSession"))
	assert.Zero(t, f.vault.outstanding())

	stored, err := f.manager.Load(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.Accounts, stored.Accounts)

	_, err = f.manager.AddAccountsWithDerivations(ctx, w.ID, wrongPassword, nil)
	require.ErrorIs(t, err, kserr.ErrInvalidPassword)
}

func TestAddAccountsWithDerivations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	updated, err := f.manager.AddAccountsWithDerivations(ctx, w.ID, password, []wallet.CoinWithDerivation{
		{Coin: coin.Bitcoin, Derivation: coin.DerivationLegacy},
		{Coin: coin.Bitcoin, Derivation: "m/84'/0'/0'/0/1"},
	})
	require.NoError(t, err)
	require.Len(t, updated.Accounts, 4)
	assert.Equal(t, "m/44'/0'/0'/0/0", updated.Accounts[2].DerivationPath)
	assert.Equal(t, "m/84'/0'/0'/0/1", updated.Accounts[3].DerivationPath)
}

func TestAddAccounts_Rejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	mnemonicWallet := f.importMnemonic(t)
	keyWallet := f.importKey(t)

	tests := []struct {
		name  string
		id    string
		pass  []byte
		coins []wallet.CoinWithDerivation
		want  error
		vault bool
	}{
		{"unknown coin", mnemonicWallet.ID, password, []wallet.CoinWithDerivation{{Coin: "dogecoin"}}, kserr.ErrUnknownCoin, false},
		{"missing wallet", "missing", password, []wallet.CoinWithDerivation{{Coin: coin.Bitcoin}}, kserr.ErrWalletNotFound, false},
		{"private key wallet", keyWallet.ID, password, []wallet.CoinWithDerivation{{Coin: coin.Bitcoin}}, kserr.ErrUnsupportedWalletType, false},
		{"wrong password", mnemonicWallet.ID, wrongPassword, []wallet.CoinWithDerivation{{Coin: coin.Solana}}, kserr.ErrInvalidPassword, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.resetCalls()
			_, err := f.manager.AddAccountsWithDerivations(ctx, tt.id, tt.pass, tt.coins)
			require.ErrorIs(t, err, tt.want)
			if !tt.vault {
				assert.Zero(t, f.vault.totalCalls())
			}
		})
	}

	stored, err := f.storage.Get(ctx, mnemonicWallet.ID)
	require.NoError(t, err)
	assert.Equal(t, mnemonicWallet, stored, "failed calls leave the record untouched")
	assert.Zero(t, f.vault.outstanding())
}

func TestAddAccounts_UnknownCoin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	w := f.importMnemonic(t)

	_, err := f.manager.AddAccounts(context.Background(), w.ID, password, []coin.Type{"dogecoin"})
	require.ErrorIs(t, err, kserr.ErrUnknownCoin)
	assert.Zero(t, f.vault.totalCalls())
}

func TestGetKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	key, err := f.manager.GetKey(ctx, w.ID, password, wallet.ActiveAccount{Coin: coin.Ethereum})
	require.NoError(t, err)
	assert.Equal(t, "key:ethereum:m/44'/60'/0'/0/0", string(key))

	_, err = f.manager.GetKey(ctx, w.ID, wrongPassword, wallet.ActiveAccount{Coin: coin.Ethereum})
	require.ErrorIs(t, err, kserr.ErrInvalidPassword)

	f.resetCalls()
	_, err = f.manager.GetKey(ctx, w.ID, password, wallet.ActiveAccount{Coin: coin.Solana})
	require.ErrorIs(t, err, kserr.ErrUnknownCoin)
	assert.Zero(t, f.vault.totalCalls(), "missing account is detected before decrypting")

	_, err = f.manager.GetKey(ctx, w.ID, password, wallet.ActiveAccount{Coin: coin.Bitcoin, DerivationPath: "m/84'/0'/0'/0/9"})
	require.ErrorIs(t, err, kserr.ErrUnknownCoin)
	assert.Zero(t, f.vault.outstanding())
}

func TestGetKey_VaultFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	w := f.importMnemonic(t)
	f.vault.failOn("PrivateKey", errBoom)

	_, err := f.manager.GetKey(context.Background(), w.ID, password, wallet.ActiveAccount{Coin: coin.Bitcoin})
	require.ErrorIs(t, err, kserr.ErrVaultFailure)
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, f.vault.outstanding())
}

func TestExport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	mnemonicWallet := f.importMnemonic(t)
	keyWallet := f.importKey(t)

	secret, err := f.manager.Export(ctx, mnemonicWallet.ID, password)
	require.NoError(t, err)
	require.IsType(t, wallet.MnemonicSecret{}, secret)
	assert.Equal(t, abandonMnemonic, secret.(wallet.MnemonicSecret).Phrase)
	assert.Equal(t, wallet.TypeMnemonic, secret.Type())

	secret, err = f.manager.Export(ctx, keyWallet.ID, password)
	require.NoError(t, err)
	require.IsType(t, wallet.PrivateKeySecret{}, secret)
	assert.Equal(t, fmt.Sprintf("%x", keyOne()), string(secret.(wallet.PrivateKeySecret).Key))

	_, err = f.manager.Export(ctx, keyWallet.ID, wrongPassword)
	require.ErrorIs(t, err, kserr.ErrInvalidPassword)

	_, err = f.manager.Export(ctx, "missing", password)
	require.ErrorIs(t, err, kserr.ErrNotFound)
	assert.Zero(t, f.vault.outstanding())
}

func TestExport_Narrowed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	mnemonicWallet := f.importMnemonic(t)
	keyWallet := f.importKey(t)

	phrase, err := f.manager.ExportMnemonic(ctx, mnemonicWallet.ID, password)
	require.NoError(t, err)
	assert.Equal(t, abandonMnemonic, phrase)

	key, err := f.manager.ExportPrivateKey(ctx, keyWallet.ID, password)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	encoded, err := f.manager.ExportPrivateKeyEncoded(ctx, keyWallet.ID, password)
	require.NoError(t, err)
	assert.Equal(t, "encoded:"+fmt.Sprintf("%x", keyOne()), encoded)

	f.resetCalls()
	_, err = f.manager.ExportMnemonic(ctx, keyWallet.ID, password)
	require.ErrorIs(t, err, kserr.ErrUnsupportedWalletType)
	_, err = f.manager.ExportPrivateKey(ctx, mnemonicWallet.ID, password)
	require.ErrorIs(t, err, kserr.ErrUnsupportedWalletType)
	_, err = f.manager.ExportPrivateKeyEncoded(ctx, mnemonicWallet.ID, password)
	require.ErrorIs(t, err, kserr.ErrUnsupportedWalletType)
	assert.Zero(t, f.vault.totalCalls(), "type mismatches never reach the vault")
}

func TestExport_CorruptPayload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.storage.Set(ctx, "broken", &wallet.Wallet{
		ID:      "broken",
		Type:    wallet.TypeMnemonic,
		Payload: []byte(`"not a container"`),
	}))

	_, err := f.manager.ExportMnemonic(ctx, "broken", password)
	require.ErrorIs(t, err, kserr.ErrVaultFailure)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	err := f.manager.Delete(ctx, w.ID, wrongPassword)
	require.ErrorIs(t, err, kserr.ErrInvalidPassword)
	assert.True(t, f.manager.HasWallet(ctx, w.ID))

	require.NoError(t, f.manager.Delete(ctx, w.ID, password))
	assert.False(t, f.manager.HasWallet(ctx, w.ID))

	err = f.manager.Delete(ctx, w.ID, password)
	require.ErrorIs(t, err, kserr.ErrWalletNotFound)
}

func TestImportWallet(t *testing.T) {
	t.Parallel()
	src := newFixture(t)
	dst := newFixture(t)
	ctx := context.Background()
	w := src.importMnemonic(t)

	require.NoError(t, dst.manager.ImportWallet(ctx, w))
	loaded, err := dst.manager.Load(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, loaded)

	phrase, err := dst.manager.ExportMnemonic(ctx, w.ID, password)
	require.NoError(t, err)
	assert.Equal(t, abandonMnemonic, phrase)
	assert.Zero(t, dst.vault.outstanding())
}

func TestImportWallet_SetsCreatedAt(t *testing.T) {
	t.Parallel()
	src := newFixture(t)
	dst := newFixture(t)
	ctx := context.Background()

	w := src.importKey(t).Clone()
	w.CreatedAt = time.Time{}
	require.NoError(t, dst.manager.ImportWallet(ctx, w))

	loaded, err := dst.manager.Load(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, loaded.CreatedAt.IsZero())
	assert.True(t, w.CreatedAt.IsZero(), "caller's record is not modified")
}

func TestImportWallet_Rejected(t *testing.T) {
	t.Parallel()
	src := newFixture(t)
	w := src.importMnemonic(t)

	mismatchedID := w.Clone()
	mismatchedID.ID = "other"

	mismatchedType := w.Clone()
	mismatchedType.Type = wallet.TypePrivateKey

	badType := w.Clone()
	badType.Type = "paper"

	badPayload := w.Clone()
	badPayload.Payload = []byte(`[]`)

	badID := w.Clone()
	badID.ID = "../../etc"

	tests := []struct {
		name string
		w    *wallet.Wallet
		want error
	}{
		{"nil", nil, kserr.ErrInvalidInput},
		{"id mismatch", mismatchedID, kserr.ErrImportFailed},
		{"type mismatch", mismatchedType, kserr.ErrImportFailed},
		{"invalid type", badType, kserr.ErrUnsupportedWalletType},
		{"invalid payload", badPayload, kserr.ErrImportFailed},
		{"invalid id", badID, kserr.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dst := newFixture(t)
			err := dst.manager.ImportWallet(context.Background(), tt.w)
			require.ErrorIs(t, err, tt.want)

			all, err := dst.storage.LoadAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestPasswordRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, keystore.WithPasswordRateLimit(1, 2))
	ctx := context.Background()
	w := f.importMnemonic(t)
	other := f.importKey(t)

	_, err := f.manager.ExportMnemonic(ctx, w.ID, wrongPassword)
	require.ErrorIs(t, err, kserr.ErrInvalidPassword)
	_, err = f.manager.ExportMnemonic(ctx, w.ID, wrongPassword)
	require.ErrorIs(t, err, kserr.ErrInvalidPassword)

	f.resetCalls()
	_, err = f.manager.ExportMnemonic(ctx, w.ID, password)
	require.ErrorIs(t, err, kserr.ErrRateLimited)
	_, err = f.manager.GetKey(ctx, w.ID, password, wallet.ActiveAccount{Coin: coin.Bitcoin})
	require.ErrorIs(t, err, kserr.ErrRateLimited)
	assert.Zero(t, f.vault.totalCalls(), "throttled attempts never reach the vault")

	_, err = f.manager.ExportPrivateKey(ctx, other.ID, password)
	require.NoError(t, err, "other wallets keep their own budget")
}

func TestStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	w := f.importMnemonic(t)

	_, err := f.manager.Load(ctx, w.ID)
	require.NoError(t, err)
	_, err = f.manager.Load(ctx, "missing")
	require.Error(t, err)

	stats := f.manager.Stats()
	assert.Equal(t, int64(3), stats.OpsTotal)
	assert.Equal(t, int64(1), stats.OpsErrors)
}

func TestWithMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	f := newFixture(t, keystore.WithMetrics(reg), keystore.WithMetricsNamespace("test"))
	ctx := context.Background()
	w := f.importMnemonic(t)

	_, err := f.manager.ExportMnemonic(ctx, w.ID, wrongPassword)
	require.Error(t, err)

	expected := `
# HELP test_operations_total Keystore operations by name and result.
# TYPE test_operations_total counter
test_operations_total{operation="export_mnemonic",result="invalid_password"} 1
test_operations_total{operation="import",result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_operations_total"))
}

func TestLogging(t *testing.T) {
	t.Parallel()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := newFixture(t, keystore.WithLogger(logger))
	ctx := context.Background()
	w := f.importMnemonic(t)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "import", entry.Data["operation"])
	assert.Equal(t, w.ID, entry.Data["wallet_id"])
	assert.Equal(t, coin.Bitcoin, entry.Data["coin"])

	_, err := f.manager.ExportMnemonic(ctx, w.ID, wrongPassword)
	require.Error(t, err)

	entry = hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "INVALID_PASSWORD", entry.Data["error_code"])

	for _, e := range hook.AllEntries() {
		line, err := e.String()
		require.NoError(t, err)
		assert.NotContains(t, line, string(password))
		assert.NotContains(t, line, string(wrongPassword))
		assert.NotContains(t, line, "abandon")
	}
}
