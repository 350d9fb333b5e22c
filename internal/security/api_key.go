package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// apiKeyPrefix is the prefix used for generated API keys.
const apiKeyPrefix = "fb_"

// apiKeySecretLen is the number of random bytes in a key.
const apiKeySecretLen = 32

// apiKeyDisplayLen is how many leading characters are kept for display.
const apiKeyDisplayLen = len(apiKeyPrefix) + 8

// GenerateAPIKey creates a new random API key and its display prefix.
func GenerateAPIKey() (token string, displayPrefix string, err error) {
	secret := make([]byte, apiKeySecretLen)
	if _, err = io.ReadFull(rand.Reader, secret); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	token = apiKeyPrefix + hex.EncodeToString(secret)
	return token, token[:apiKeyDisplayLen], nil
}

// LooksLikeAPIKey reports whether token has the shape of a generated key.
func LooksLikeAPIKey(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	body := token[len(apiKeyPrefix):]
	if len(body) != apiKeySecretLen*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// HashAPIKey returns the hex SHA-256 of a raw API key for storage and lookup.
func HashAPIKey(token string) string {
	return HashToken(token)
}

// HashToken returns the hex SHA-256 of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomString returns a hex-encoded random string of the given length.
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", fmt.Errorf("generate random string: %w", err)
	}
	return hex.EncodeToString(bytes)[:length], nil
}
