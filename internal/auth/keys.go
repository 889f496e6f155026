package auth

import (
	"crypto/sha256"
	"errors"
	"sync"
)

// ErrInvalidKey is returned when a presented key matches no configured hash.
var ErrInvalidKey = errors.New("invalid api key")

// APIKey is one configured client credential. Hash is a bcrypt hash of the
// plaintext key handed to the client.
type APIKey struct {
	Name string `mapstructure:"name"`
	Hash string `mapstructure:"hash"`
}

// KeySet verifies presented bearer tokens against configured key hashes.
// Successful verifications are cached by token digest so bcrypt runs once
// per distinct key.
type KeySet struct {
	keys     []APIKey
	verified sync.Map // [32]byte -> key name
}

// NewKeySet builds a KeySet. Entries without a hash are ignored.
func NewKeySet(keys []APIKey) *KeySet {
	ks := &KeySet{}
	for _, k := range keys {
		if k.Hash != "" {
			ks.keys = append(ks.keys, k)
		}
	}
	return ks
}

// Len returns the number of usable keys.
func (ks *KeySet) Len() int { return len(ks.keys) }

// Verify returns the name of the key matching token.
func (ks *KeySet) Verify(token string) (string, error) {
	if !hasKeyShape(token) {
		return "", ErrInvalidKey
	}
	digest := sha256.Sum256([]byte(token))
	if name, ok := ks.verified.Load(digest); ok {
		return name.(string), nil
	}
	for _, k := range ks.keys {
		if VerifyKey(k.Hash, token) == nil {
			ks.verified.Store(digest, k.Name)
			return k.Name, nil
		}
	}
	return "", ErrInvalidKey
}
