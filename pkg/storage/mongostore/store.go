// Package mongostore stores wallet records as MongoDB documents keyed by
// wallet id.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mrz1836/keystore/internal/retry"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultDatabase   = "keystore"
	DefaultCollection = "wallets"

	pingTimeout = 3 * time.Second
)

// Config selects the server and collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Store is a wallet.Storage backed by a MongoDB collection.
type Store struct {
	client   *mongo.Client
	col      *mongo.Collection
	verifier wallet.PasswordVerifier
	owned    bool
}

var _ wallet.Storage = (*Store)(nil)

// Connect dials cfg.URI, pings the server and returns a store that owns
// the client.
func Connect(ctx context.Context, cfg Config, verifier wallet.PasswordVerifier) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: mongo uri is required", kserr.ErrInvalidInput)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	_, err = retry.Do(ctx, pingRetry(), func(ctx context.Context) (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return struct{}{}, client.Ping(pingCtx, nil)
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	s := New(client.Database(databaseName(cfg)).Collection(collectionName(cfg)), verifier)
	s.client = client
	s.owned = true
	return s, nil
}

// pingRetry retries the initial ping on network errors and timeouts.
func pingRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Retryable = func(err error) bool {
		return mongo.IsNetworkError(err) || mongo.IsTimeout(err) || retry.IsRetryable(err)
	}
	return cfg
}

// New wraps an existing collection. Close does not disconnect its client.
func New(col *mongo.Collection, verifier wallet.PasswordVerifier) *Store {
	return &Store{col: col, verifier: verifier}
}

// Get implements wallet.Storage.
func (s *Store) Get(ctx context.Context, id string) (*wallet.Wallet, error) {
	var w wallet.Wallet
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, kserr.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding wallet %s: %w", id, err)
	}
	return &w, nil
}

// Set implements wallet.Storage. The document is replaced or inserted.
func (s *Store) Set(ctx context.Context, id string, w *wallet.Wallet) error {
	if err := wallet.ValidateID(id); err != nil {
		return err
	}

	doc := *w
	doc.ID = id
	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
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

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting wallet %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return kserr.ErrWalletNotFound
	}
	return nil
}

// LoadAll implements wallet.Storage. Records are sorted by id.
func (s *Store) LoadAll(ctx context.Context) ([]*wallet.Wallet, error) {
	cur, err := s.col.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}

	var found []wallet.Wallet
	if err := cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decoding wallets: %w", err)
	}

	out := make([]*wallet.Wallet, 0, len(found))
	for i := range found {
		out = append(out, &found[i])
	}
	return out, nil
}

// Close disconnects the client when the store created it.
func (s *Store) Close() error {
	if !s.owned || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func databaseName(cfg Config) string {
	if cfg.Database == "" {
		return DefaultDatabase
	}
	return cfg.Database
}

func collectionName(cfg Config) string {
	if cfg.Collection == "" {
		return DefaultCollection
	}
	return cfg.Collection
}

// Drop removes the collection and every record in it.
func (s *Store) Drop(ctx context.Context) error {
	return s.col.Drop(ctx)
}
