package wallet

import (
	"context"
	"sync"

	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// MemoryStorage keeps records in memory. Records are copied on the way in
// and out, and LoadAll returns them in insertion order.
type MemoryStorage struct {
	mu       sync.RWMutex
	records  map[string]*Wallet
	order    []string
	verifier PasswordVerifier
}

// NewMemoryStorage creates an empty in-memory store that gates deletion
// through verifier.
func NewMemoryStorage(verifier PasswordVerifier) *MemoryStorage {
	return &MemoryStorage{
		records:  make(map[string]*Wallet),
		verifier: verifier,
	}
}

// Get implements Storage.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.records[id]
	if !ok {
		return nil, kserr.ErrWalletNotFound
	}
	return w.Clone(), nil
}

// Set implements Storage.
func (s *MemoryStorage) Set(ctx context.Context, id string, w *Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		s.order = append(s.order, id)
	}
	s.records[id] = w.Clone()
	return nil
}

// Delete implements Storage.
func (s *MemoryStorage) Delete(ctx context.Context, id string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.records[id]
	if !ok {
		return kserr.ErrWalletNotFound
	}
	if err := VerifyDeletion(s.verifier, w, password); err != nil {
		return err
	}

	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// LoadAll implements Storage.
func (s *MemoryStorage) LoadAll(ctx context.Context) ([]*Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Wallet, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}
