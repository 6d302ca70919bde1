package auth

import "errors"

// Authentication errors map to HTTP status.
// 401 for missing/invalid (doesn't confirm key existence).
// 403 for revoked (confirms key exists but blocked).
var (
	ErrMissingKey       = errors.New("API key required in x-api-key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
)
