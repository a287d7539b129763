// Package apikey handles the lifecycle of delegated machine credentials:
// secret generation and verification material, and periodic deactivation
// of expired keys. Interpretation of a verified key (tenant binding,
// scopes, allow-list) lives in the principal and keyguard packages.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SecretPrefix identifies Crewdeck API keys.
	SecretPrefix = "ck_"
	// SecretLength is the number of random bytes in a secret (256 bits).
	SecretLength = 32
	// indexPrefixLen is the number of encoded characters, after the
	// literal prefix, used for the fast index lookup. Prefix collisions
	// are expected at scale; verification compares full hashes against
	// every candidate sharing the prefix.
	indexPrefixLen = 8
)

// GenerateSecret creates a new API key secret.
// Format: ck_<base64url(32 random bytes)>. The plaintext is returned once;
// only the SHA-256 hash and the display/index prefix are stored.
func GenerateSecret() (secret, secretHash, secretPrefix string, err error) {
	randomBytes := make([]byte, SecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	secret = SecretPrefix + encoded
	secretHash = HashSecret(secret)
	secretPrefix = ExtractPrefix(secret)
	return secret, secretHash, secretPrefix, nil
}

// HashSecret computes the SHA-256 hash of a secret for storage and lookup.
func HashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// ValidateFormat checks that a raw secret has the expected shape before
// any lookup is attempted.
func ValidateFormat(secret string) error {
	if !strings.HasPrefix(secret, SecretPrefix) {
		return fmt.Errorf("key must start with %q", SecretPrefix)
	}

	encoded := strings.TrimPrefix(secret, SecretPrefix)
	if len(encoded) < indexPrefixLen {
		return fmt.Errorf("key is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid key encoding: %w", err)
	}

	return nil
}

// ExtractPrefix returns the indexable prefix of a secret, or "" if the
// secret does not have the expected shape.
func ExtractPrefix(secret string) string {
	if !strings.HasPrefix(secret, SecretPrefix) {
		return ""
	}

	encoded := strings.TrimPrefix(secret, SecretPrefix)
	if len(encoded) < indexPrefixLen {
		return ""
	}

	return SecretPrefix + encoded[:indexPrefixLen]
}
