package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix marks mailrelay API keys so secret scanners and humans can
// recognise them.
const KeyPrefix = "mr_"

const (
	apiKeyBytes = 32
	bcryptCost  = 12
)

// GenerateAPIKey returns KeyPrefix followed by 32 random bytes, base64url
// encoded without padding.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashKey returns the bcrypt hash stored in config for key.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash API key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey returns nil when key matches hash.
func VerifyKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// hasKeyShape reports whether token could have come from GenerateAPIKey.
// Tokens that fail it are rejected before any bcrypt work.
func hasKeyShape(token string) bool {
	body, ok := strings.CutPrefix(token, KeyPrefix)
	if !ok {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil && len(raw) == apiKeyBytes
}
