// Package wallettest provides a conformance suite for wallet.Storage
// implementations.
package wallettest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/keystore/pkg/coin"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Password opens every record produced by Record when checked by Verifier.
var Password = []byte("correct horse") //nolint:gochecknoglobals // test fixture

// errWrongPassword is returned by Verifier for any other password.
var errWrongPassword = errors.New("password mismatch") //nolint:gochecknoglobals // test fixture

// Verifier accepts Password and rejects everything else with
// errors.ErrInvalidPassword.
func Verifier() wallet.PasswordVerifier {
	return wallet.PasswordVerifierFunc(func(_ *wallet.Wallet, password []byte) error {
		if !bytes.Equal(password, Password) {
			return kserr.Kind(kserr.ErrInvalidPassword, errWrongPassword)
		}
		return nil
	})
}

// Record builds a representative wallet record.
func Record(id string) *wallet.Wallet {
	return &wallet.Wallet{
		ID:   id,
		Name: "wallet " + id,
		Type: wallet.TypeMnemonic,
		Accounts: []wallet.Account{
			{
				Coin:           coin.Bitcoin,
				Derivation:     coin.DerivationSegwit,
				DerivationPath: "m/84'/0'/0'/0/0",
				Address:        "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
				PublicKey:      "0330d54fd0dd420a6e5f8d3624f5f3482cae350f79d5f0753bf5beef9c2d91af3c",
			},
			{
				Coin:           coin.Ethereum,
				Derivation:     coin.DerivationDefault,
				DerivationPath: "m/44'/60'/0'/0/0",
				Address:        "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
				PublicKey:      "0237b0bb7a8288d38ed49a524b5dc98cff3eb5ca824c9f9dc0dfdb3d9cd600f299",
			},
		},
		Payload:   json.RawMessage(fmt.Sprintf(`{"id":%q,"version":3}`, id)),
		CreatedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
}

// Factory returns a fresh, empty storage provider that gates deletion
// through verifier.
type Factory func(t *testing.T, verifier wallet.PasswordVerifier) wallet.Storage

// Run exercises the wallet.Storage contract against providers from newStorage.
//
//nolint:funlen // Conformance suite
func Run(t *testing.T, newStorage Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStorage(t, Verifier())
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, kserr.ErrWalletNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStorage(t, Verifier())
		w := Record("w-1")
		require.NoError(t, s.Set(ctx, w.ID, w))

		got, err := s.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	})

	t.Run("set overwrites", func(t *testing.T) {
		s := newStorage(t, Verifier())
		w := Record("w-1")
		require.NoError(t, s.Set(ctx, w.ID, w))

		updated := Record("w-1")
		updated.Accounts = append(updated.Accounts, wallet.Account{
			Coin:           coin.BitcoinSV,
			Derivation:     coin.DerivationLegacy,
			DerivationPath: "m/44'/236'/0'/0/0",
			Address:        "1addr",
			PublicKey:      "02ab",
		})
		require.NoError(t, s.Set(ctx, updated.ID, updated))

		got, err := s.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.Len(t, got.Accounts, 3)

		all, err := s.LoadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("stored copy is isolated", func(t *testing.T) {
		s := newStorage(t, Verifier())
		w := Record("w-1")
		require.NoError(t, s.Set(ctx, w.ID, w))

		w.Accounts[0].Address = "mutated"
		got, err := s.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "mutated", got.Accounts[0].Address)
	})

	t.Run("load all", func(t *testing.T) {
		s := newStorage(t, Verifier())
		empty, err := s.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for _, id := range []string{"w-1", "w-2", "w-3"} {
			require.NoError(t, s.Set(ctx, id, Record(id)))
		}

		all, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)

		ids := make([]string, 0, len(all))
		for _, w := range all {
			ids = append(ids, w.ID)
		}
		assert.ElementsMatch(t, []string{"w-1", "w-2", "w-3"}, ids)
	})

	t.Run("delete with password", func(t *testing.T) {
		s := newStorage(t, Verifier())
		w := Record("w-1")
		require.NoError(t, s.Set(ctx, w.ID, w))

		require.NoError(t, s.Delete(ctx, w.ID, Password))

		_, err := s.Get(ctx, w.ID)
		require.ErrorIs(t, err, kserr.ErrWalletNotFound)

		all, err := s.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("delete wrong password keeps record", func(t *testing.T) {
		s := newStorage(t, Verifier())
		w := Record("w-1")
		require.NoError(t, s.Set(ctx, w.ID, w))

		err := s.Delete(ctx, w.ID, []byte("wrong"))
		require.ErrorIs(t, err, kserr.ErrInvalidPassword)

		_, err = s.Get(ctx, w.ID)
		require.NoError(t, err)
	})

	t.Run("delete missing", func(t *testing.T) {
		s := newStorage(t, Verifier())
		err := s.Delete(ctx, "missing", Password)
		require.ErrorIs(t, err, kserr.ErrWalletNotFound)
	})

	t.Run("delete without verifier", func(t *testing.T) {
		s := newStorage(t, nil)
		w := Record("w-1")
		require.NoError(t, s.Set(ctx, w.ID, w))

		err := s.Delete(ctx, w.ID, Password)
		require.ErrorIs(t, err, kserr.ErrStorageFailure)
	})
}
