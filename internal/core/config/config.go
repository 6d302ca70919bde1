// Package config provides configuration management for SegmentKeeper services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full service and client configuration.
type Config struct {
	Server   ServerConfig
	Preview  PreviewConfig
	Client   ClientConfig
	Database DatabaseConfig
}

// ServerConfig holds configuration for the HTTP/gRPC server.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// PreviewConfig controls live preview evaluation.
type PreviewConfig struct {
	Debounce   time.Duration
	SampleSize int
}

// ClientConfig holds settings for commands that talk to a running server.
// The API key is read from SK_API_KEY only.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DatabaseConfig holds the connection URL (sqlite://path or postgres://...).
type DatabaseConfig struct {
	URL string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Preview: PreviewConfig{
			Debounce:   500 * time.Millisecond,
			SampleSize: 10,
		},
		Client: ClientConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
	}
}

// APIKey returns the client API key from SK_API_KEY.
func APIKey() string {
	return strings.TrimSpace(os.Getenv("SK_API_KEY"))
}

/*
 * HMAC secrets come from the environment only:
 *
 *   SK_HMAC_SECRET=<secret_id>:<base64 secret>
 *   SK_HMAC_SECRET_1, SK_HMAC_SECRET_2, ...   (read until the first gap)
 *
 * Several secrets are live during rotation. A secret_id may appear once.
 */

const (
	hmacSecretEnv   = "SK_HMAC_SECRET"
	minSecretLength = 32
)

// HMACSecrets returns secret_id -> decoded secret for every configured secret.
func HMACSecrets() (map[string][]byte, error) {
	names := []string{hmacSecretEnv}
	for i := 1; os.Getenv(fmt.Sprintf("%s_%d", hmacSecretEnv, i)) != ""; i++ {
		names = append(names, fmt.Sprintf("%s_%d", hmacSecretEnv, i))
	}

	secrets := make(map[string][]byte)
	for _, name := range names {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, exists := secrets[secretID]; exists {
			return nil, fmt.Errorf("%s: duplicate secret_id %q across %s and %s_*", name, secretID, hmacSecretEnv, hmacSecretEnv)
		}
		secrets[secretID] = decoded
	}
	return secrets, nil
}

// ParseHMACSecret decodes a base64 secret of at least 32 bytes.
func ParseHMACSecret(encoded string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < minSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", minSecretLength, len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses "<secret_id>:<base64 secret>". The id is 32
// lowercase hex chars, the same form API keys carry.
func ParseHMACSecretWithID(value string) (secretID string, secret []byte, err error) {
	secretID, encoded, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars")
	}
	if strings.Trim(secretID, "0123456789abcdef") != "" {
		return "", nil, fmt.Errorf("secret_id must be lowercase hex")
	}
	secret, err = ParseHMACSecret(encoded)
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
