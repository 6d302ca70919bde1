package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

/*
 * API key format: sk-v1-<secret_id>-<random_data>
 *
 *   secret_id    32 lowercase hex chars, names the HMAC secret that signed the key
 *   random_data  64 lowercase hex chars (256 bits)
 *
 * Only HMAC-SHA256(secret, key) is stored, so a leaked database does not
 * leak usable keys. Rotating secrets keeps old keys valid while their
 * secret_id stays configured.
 */

const (
	keyPrefix     = "sk-v1-"
	secretIDLen   = 32
	randomDataLen = 64
)

// ParseAPIKey splits a key into its secret id and random part.
// Returns ErrInvalidKeyFormat for anything but the exact format.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", "", ErrInvalidKeyFormat
	}
	secretID, randomData, ok = strings.Cut(rest, "-")
	if !ok || len(secretID) != secretIDLen || len(randomData) != randomDataLen {
		return "", "", ErrInvalidKeyFormat
	}
	if !isLowerHex(secretID) || !isLowerHex(randomData) {
		return "", "", ErrInvalidKeyFormat
	}
	return secretID, randomData, nil
}

func isLowerHex(s string) bool {
	return strings.IndexFunc(s, func(c rune) bool {
		return (c < '0' || c > '9') && (c < 'a' || c > 'f')
	}) < 0
}

// ComputeHMAC returns HMAC-SHA256 of apiKey under secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// FormatAPIKey assembles a key from its parts.
func FormatAPIKey(secretID, randomData string) string {
	return keyPrefix + secretID + "-" + randomData
}

// GenerateAPIKey returns a new key for secretID with 256 random bits.
func GenerateAPIKey(secretID string) (string, error) {
	buf := make([]byte, randomDataLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	return FormatAPIKey(secretID, hex.EncodeToString(buf)), nil
}
