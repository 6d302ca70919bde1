// Package auth provides HMAC-based API key authentication for the HTTP API.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solatis/segmentkeeper/internal/types"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// shopIDKey is the context key for storing the authenticated shop.
const shopIDKey = contextKey("shop_id")

// HeaderAPIKey carries the API key on every request.
const HeaderAPIKey = "x-api-key"

// Queries interface defines database operations needed for authentication.
// Implemented by *db.Queries to allow query loading via LoadQueries().
type Queries interface {
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
	}
}

// Authenticate validates API key and returns the owning shop on success.
// Database failures wrap types.ErrStorage.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (types.ShopID, error) {
	// Parse API key format
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	// O(1) lookup of HMAC secret using secret_id from key format
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	// unique constraint on key_hash ensures a single row
	var result struct {
		ShopID     string       `db:"shop_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		APIKeyID   string       `db:"api_key_id"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	err = a.queries.GetContext(ctx, "get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// 1-minute throttle keeps active clients from writing on every request
	if a.shouldUpdateLastUsed(result.LastUsedAt) {
		_, _ = a.queries.ExecContext(ctx, "update-last-used", a.now().UTC(), result.APIKeyID)
	}

	return types.ShopID(result.ShopID), nil
}

func (a *Authenticator) shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return a.now().Sub(lastUsed.Time) > time.Minute
}

// CreateKey issues a new API key for shop, signed with the newest configured
// secret. The plaintext key is returned once; only its HMAC is stored.
func (a *Authenticator) CreateKey(ctx context.Context, shop types.ShopID, name string) (key string, keyID string, err error) {
	if strings.TrimSpace(string(shop)) == "" {
		return "", "", fmt.Errorf("shop cannot be empty")
	}
	if len(a.secrets) == 0 {
		return "", "", fmt.Errorf("no HMAC secrets configured")
	}

	// secret ids are UUIDv7 hex, so the largest is the newest
	ids := make([]string, 0, len(a.secrets))
	for id := range a.secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	secretID := ids[len(ids)-1]

	key, err = GenerateAPIKey(secretID)
	if err != nil {
		return "", "", err
	}
	keyID = uuid.Must(uuid.NewV7()).String()

	_, err = a.queries.ExecContext(ctx, "insert-api-key",
		keyID, string(shop), secretID, ComputeHMAC(a.secrets[secretID], key), name, a.now().UTC())
	if err != nil {
		return "", "", fmt.Errorf("%w: insert api key: %v", types.ErrStorage, err)
	}
	return key, keyID, nil
}

// Revoke marks a key revoked. Revoking twice is a no-op.
func (a *Authenticator) Revoke(ctx context.Context, keyID string) error {
	if _, err := a.queries.ExecContext(ctx, "revoke-api-key", a.now().UTC(), keyID); err != nil {
		return fmt.Errorf("%w: revoke api key: %v", types.ErrStorage, err)
	}
	return nil
}

// StatusFor maps an authentication error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return http.StatusForbidden
	case errors.Is(err, types.ErrStorage):
		// database errors are unavailability, not bad credentials
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// Middleware authenticates requests and stores the shop in the request
// context. Failures are reported through fail with the mapped status.
func (a *Authenticator) Middleware(fail func(w http.ResponseWriter, r *http.Request, status int, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(HeaderAPIKey)
			if apiKey == "" {
				fail(w, r, http.StatusUnauthorized, ErrMissingKey)
				return
			}

			shop, err := a.Authenticate(r.Context(), apiKey)
			if err != nil {
				fail(w, r, StatusFor(err), err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithShopID(r.Context(), shop)))
		})
	}
}

// WithShopID returns a context carrying shop.
func WithShopID(ctx context.Context, shop types.ShopID) context.Context {
	return context.WithValue(ctx, shopIDKey, shop)
}

// ShopIDFromContext extracts the shop from context.
// Returns empty string if not found.
func ShopIDFromContext(ctx context.Context) types.ShopID {
	if shop, ok := ctx.Value(shopIDKey).(types.ShopID); ok {
		return shop
	}
	return ""
}
