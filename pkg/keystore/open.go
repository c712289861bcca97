package keystore

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mrz1836/keystore/pkg/coin"
	"github.com/mrz1836/keystore/pkg/config"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/storage/badgerstore"
	"github.com/mrz1836/keystore/pkg/storage/mongostore"
	"github.com/mrz1836/keystore/pkg/vault"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Open builds a manager from configuration: coin registry, vault, storage
// backend, logger, metrics and password throttling. A nil cfg uses
// config.Defaults. The caller must Close the manager.
func Open(ctx context.Context, cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logCloser, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry := coin.DefaultRegistry()
	v := NewVaultAdapter(vault.New(registry, vault.WithMemoryLock(cfg.Security.MemoryLock)))

	storage, err := openStorage(ctx, cfg.Storage, v, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	opts := []Option{
		WithLogger(logger),
		WithDefaultEncryption(cfg.Encryption),
		WithMetricsNamespace(cfg.Metrics.Namespace),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, WithMetrics(prometheus.DefaultRegisterer))
	}
	if cfg.Security.PasswordAttemptsPerMinute > 0 {
		opts = append(opts, WithPasswordRateLimit(cfg.Security.PasswordAttemptsPerMinute, cfg.Security.PasswordAttemptBurst))
	}

	m := New(v, storage, registry, opts...)
	m.closers = append(m.closers, logCloser)

	logger.WithFields(logrus.Fields{
		"backend": cfg.Storage.Backend,
		"cipher":  cfg.Encryption.Cipher,
	}).Info("keystore opened")

	return m, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig, verifier wallet.PasswordVerifier, logger *logrus.Logger) (wallet.Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return wallet.NewMemoryStorage(verifier), nil

	case config.BackendFile:
		path, err := config.ExpandPath(cfg.Path)
		if err != nil {
			return nil, kserr.Kind(kserr.ErrStorageFailure, err)
		}
		return wallet.NewFileStorage(path, verifier), nil

	case config.BackendBadger:
		dir := cfg.BadgerDir
		if dir != "" {
			expanded, err := config.ExpandPath(dir)
			if err != nil {
				return nil, kserr.Kind(kserr.ErrStorageFailure, err)
			}
			dir = expanded
		}
		store, err := badgerstore.New(dir, verifier, logger.WithField("component", "badger"))
		if err != nil {
			return nil, kserr.Kind(kserr.ErrStorageFailure, err)
		}
		return store, nil

	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, mongostore.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		}, verifier)
		if err != nil {
			return nil, storageError(err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", kserr.ErrInvalidInput, cfg.Backend)
	}
}
