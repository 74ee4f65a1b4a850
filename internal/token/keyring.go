// Package token mints and verifies the short-lived tokens that gate Stage 2.
// Issuance is the only signing path; verification is pure and stateless so
// verifiers can be load-balanced freely.
package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Keyring holds the current Ed25519 signing key plus the public halves of
// recently rotated keys. Tokens signed by a retired key keep verifying until
// the key is pruned, which bounds the rotation grace window by how often
// Prune is called.
type Keyring struct {
	mu        sync.RWMutex
	currentID string
	private   ed25519.PrivateKey
	public    map[string]ed25519.PublicKey
	retired   []string
	maxKept   int
}

// NewKeyring generates an initial signing key. keep bounds how many retired
// public keys stay verifiable (minimum 1).
func NewKeyring(keep int) (*Keyring, error) {
	if keep < 1 {
		keep = 1
	}
	k := &Keyring{public: make(map[string]ed25519.PublicKey), maxKept: keep}
	if err := k.Rotate(); err != nil {
		return nil, err
	}
	return k, nil
}

// Rotate generates a fresh signing key. The previous public key stays in the
// ring for verification until enough later rotations push it out.
func (k *Keyring) Rotate() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.currentID != "" {
		k.retired = append(k.retired, k.currentID)
		for len(k.retired) > k.maxKept {
			delete(k.public, k.retired[0])
			k.retired = k.retired[1:]
		}
	}

	k.currentID = uuid.NewString()
	k.private = priv
	k.public[k.currentID] = pub
	return nil
}

// Signer returns the current key id and private key, or an error when no
// signing key is available.
func (k *Keyring) Signer() (string, ed25519.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.private == nil {
		return "", nil, ErrNoSigningKey
	}
	return k.currentID, k.private, nil
}

// PublicKey resolves a key id to its public key; ok is false for unknown or
// pruned keys.
func (k *Keyring) PublicKey(kid string) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.public[kid]
	return pub, ok
}

// Revoke drops the current private key, leaving the ring unable to sign until
// the next Rotate. Verification of already-issued tokens is unaffected.
func (k *Keyring) Revoke() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.private = nil
}
