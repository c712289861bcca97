package hd

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

const (
	ed25519SeedKey = "ed25519 seed"
	hardenedStart  = 0x80000000
)

// Ed25519Key is a SLIP-10 ed25519 node: a 32-byte private seed and its chain code.
type Ed25519Key struct {
	Key       []byte
	ChainCode []byte
}

// Zero overwrites the key material.
func (k *Ed25519Key) Zero() {
	if k == nil {
		return
	}
	for i := range k.Key {
		k.Key[i] = 0
	}
	for i := range k.ChainCode {
		k.ChainCode[i] = 0
	}
}

// Ed25519Master computes the SLIP-10 master node for seed.
func Ed25519Master(seed []byte) *Ed25519Key {
	return split(hmacSHA512([]byte(ed25519SeedKey), seed))
}

// DeriveEd25519 derives the SLIP-10 ed25519 node at path from seed.
// Only hardened indexes are defined for ed25519.
func DeriveEd25519(seed []byte, path []uint32) (*Ed25519Key, error) {
	key := Ed25519Master(seed)

	for depth, idx := range path {
		if idx < hardenedStart {
			key.Zero()
			return nil, fmt.Errorf("%w: index %d at depth %d", ErrNonHardened, idx, depth+1)
		}
		child := key.child(idx)
		key.Zero()
		key = child
	}

	return key, nil
}

// child derives the hardened child: HMAC-SHA512(c, 0x00 || k || ser32(i)).
func (k *Ed25519Key) child(idx uint32) *Ed25519Key {
	data := make([]byte, 0, 1+len(k.Key)+4)
	data = append(data, 0x00)
	data = append(data, k.Key...)
	data = binary.BigEndian.AppendUint32(data, idx)
	defer clear(data)

	return split(hmacSHA512(k.ChainCode, data))
}

func hmacSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func split(sum []byte) *Ed25519Key {
	return &Ed25519Key{Key: sum[:32], ChainCode: sum[32:]}
}
