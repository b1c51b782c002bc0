package jwtx

import (
	"crypto/rsa"
	"errors"
	"sync"
)

// ErrNoKey reports a key id with no matching public key in the set.
var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds RSA public verification keys by key id. It's
// thread-safe; entries are write-once in practice (a kid never changes
// key material) but Add simply overwrites.
type KeySet struct {
	mu  sync.RWMutex
	pub map[string]*rsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]*rsa.PublicKey)}
}

// Add registers a public key under the given key id.
func (k *KeySet) Add(kid string, pub *rsa.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[kid] = pub
}

// AddSigner registers a Signer's public key, so tokens it signs can be
// verified from this set.
func (k *KeySet) AddSigner(s *RS256Signer) {
	k.Add(s.KID(), &s.key.PublicKey)
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// Len reports how many keys are loaded.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub)
}
