package vault

import (
	"fmt"
	"sync"

	"github.com/mrz1836/keystore/internal/secure"
	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// errReleased is returned when a released handle is used.
var errReleased = fmt.Errorf("%w: handle already released", kserr.ErrVaultFailure)

// Session holds a decrypted HD seed for the duration of one operation.
type Session struct {
	mu   sync.Mutex
	seed *secure.SecureBytes
}

func newSession(seed []byte, lock bool) *Session {
	return &Session{seed: secure.FromSlice(seed, lock)}
}

// withSeed runs fn with the seed while holding the session.
func (s *Session) withSeed(fn func(seed []byte) error) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", kserr.ErrVaultFailure)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return errReleased
	}
	return fn(s.seed.Bytes())
}

// Released reports whether Release has been called.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed == nil
}

// Release zeroes the seed. It is safe to call more than once.
func (s *Session) Release() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed != nil {
		s.seed.Destroy()
		s.seed = nil
	}
}
