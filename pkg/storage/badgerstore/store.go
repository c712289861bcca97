// Package badgerstore stores wallet records in an embedded badger database
// through badgerhold.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// gcInterval is how often the value log is garbage collected on disk.
const gcInterval = 30 * time.Minute

// Store is a wallet.Storage backed by badgerhold.
type Store struct {
	db       *badgerhold.Store
	verifier wallet.PasswordVerifier
	log      logrus.FieldLogger

	stop      chan struct{}
	closeOnce sync.Once
}

var _ wallet.Storage = (*Store)(nil)

// New opens (or creates) the store in dir. An empty dir opens an in-memory
// database. A nil logger discards badger's output.
func New(dir string, verifier wallet.PasswordVerifier, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	db, err := createDb(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening wallet db: %w", err)
	}

	s := &Store{
		db:       db,
		verifier: verifier,
		log:      logger,
		stop:     make(chan struct{}),
	}
	if dir != "" {
		go s.runValueLogGC()
	}
	return s, nil
}

// Get implements wallet.Storage.
func (s *Store) Get(ctx context.Context, id string) (*wallet.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var w wallet.Wallet
	if err := s.db.Get(id, &w); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, kserr.ErrWalletNotFound
		}
		return nil, fmt.Errorf("reading wallet %s: %w", id, err)
	}
	return &w, nil
}

// Set implements wallet.Storage.
func (s *Store) Set(ctx context.Context, id string, w *wallet.Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := wallet.ValidateID(id); err != nil {
		return err
	}

	if err := s.db.Upsert(id, w); err != nil {
		return fmt.Errorf("writing wallet %s: %w", id, err)
	}
	return nil
}

// Delete implements wallet.Storage.
func (s *Store) Delete(ctx context.Context, id string, password []byte) error {
	w, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := wallet.VerifyDeletion(s.verifier, w, password); err != nil {
		return err
	}

	if err := s.db.Delete(id, wallet.Wallet{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return kserr.ErrWalletNotFound
		}
		return fmt.Errorf("deleting wallet %s: %w", id, err)
	}
	return nil
}

// LoadAll implements wallet.Storage. Records come back in key order.
func (s *Store) LoadAll(ctx context.Context) ([]*wallet.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found []wallet.Wallet
	if err := s.db.Find(&found, nil); err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}

	out := make([]*wallet.Wallet, 0, len(found))
	for i := range found {
		out = append(out, &found[i])
	}
	return out, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.db.Close()
	})
	return err
}

func (s *Store) runValueLogGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.db.Badger().RunValueLogGC(0.5); err != nil &&
				!errors.Is(err, badger.ErrNoRewrite) {
				s.log.WithError(err).Error("badger value log gc failed")
			}
		}
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) == 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          jsonEncode,
		Decoder:          jsonDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}

// jsonEncode stores records in the same JSON form the file provider uses.
func jsonEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer
	if err := json.NewEncoder(&buff).Encode(value); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

func jsonDecode(data []byte, value interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(value)
}
