package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// APIKeys validates static API keys against their SHA-256 hashes.
type APIKeys struct {
	hashes [][]byte
}

// NewAPIKeys creates a validator accepting keys whose hashes are listed.
// Hashes are hex encoded and matched case-insensitively.
func NewAPIKeys(hashes []string) *APIKeys {
	a := &APIKeys{}
	seen := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := seen[h]; h == "" || dup {
			continue
		}
		seen[h] = struct{}{}
		a.hashes = append(a.hashes, []byte(h))
	}
	return a
}

// Len returns the number of configured keys.
func (a *APIKeys) Len() int { return len(a.hashes) }

// Validate implements Validator.
func (a *APIKeys) Validate(_ context.Context, apiKey string) error {
	keyHash := []byte(HashAPIKey(apiKey))

	// Every stored hash is compared so timing does not reveal which one matched.
	match := 0
	for _, stored := range a.hashes {
		match |= subtle.ConstantTimeCompare(keyHash, stored)
	}
	if match != 1 {
		return Malformed("invalid API key", nil)
	}
	return nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
