// internal/customers/matcher.go
package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

// DefaultSampleSize is the number of sample rows returned with a count.
const DefaultSampleSize = 10

// sampleColumns are the CustomerSummary columns; email may be NULL.
const sampleColumns = `customer_id, COALESCE(email, '') AS email, first_name, last_name,
	total_spent, orders_count, rfm_segment`

// Matcher evaluates wire queries against the customers table.
// Safe for concurrent use.
type Matcher struct {
	db         *sqlx.DB
	sampleSize int
	logger     *slog.Logger
}

// NewMatcher creates a matcher returning up to sampleSize rows per match.
// sampleSize is clamped to 1..types.MaxSampleSize.
func NewMatcher(db *sqlx.DB, sampleSize int, logger *slog.Logger) (*Matcher, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if missing := unmappedFields(); len(missing) > 0 {
		return nil, fmt.Errorf("fields without customer columns: %s", strings.Join(missing, ", "))
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if sampleSize > types.MaxSampleSize {
		sampleSize = types.MaxSampleSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{db: db, sampleSize: sampleSize, logger: logger}, nil
}

// Match counts the shop's customers matching q and returns the highest
// spenders among them as the sample.
//
// Invalid queries fail with the filter sentinel errors (types.ErrEmptyFilter,
// types.ErrUnknownField, ...); database failures wrap types.ErrStorage.
func (m *Matcher) Match(ctx context.Context, shop types.ShopID, q wire.Query) (types.MatchResult, error) {
	where, scoped, err := scope(shop, q)
	if err != nil {
		return types.MatchResult{}, err
	}
	count, err := m.count(ctx, where, scoped)
	if err != nil {
		return types.MatchResult{}, err
	}

	sample := []types.CustomerSummary{}
	if count > 0 {
		sampleSQL := m.db.Rebind("SELECT " + sampleColumns +
			" FROM customers WHERE shop_id = ? AND " + where +
			" ORDER BY total_spent DESC, customer_id ASC LIMIT ?")
		if err := m.db.SelectContext(ctx, &sample, sampleSQL, append(scoped, m.sampleSize)...); err != nil {
			return types.MatchResult{}, fmt.Errorf("%w: sample customers: %v", types.ErrStorage, err)
		}
	}

	m.logger.Debug("matched customers",
		"shop", shop,
		"logic", q.Logic,
		"conditions", len(q.Conditions),
		"count", count,
	)
	return types.MatchResult{Count: count, Sample: sample}, nil
}

// Count returns the number of the shop's customers matching q, without a
// sample. Errors are those of Match.
func (m *Matcher) Count(ctx context.Context, shop types.ShopID, q wire.Query) (int, error) {
	where, scoped, err := scope(shop, q)
	if err != nil {
		return 0, err
	}
	return m.count(ctx, where, scoped)
}

// scope compiles q and prepends the shop to its arguments.
func scope(shop types.ShopID, q wire.Query) (string, []any, error) {
	where, args, err := Compile(q)
	if err != nil {
		return "", nil, err
	}
	return where, append([]any{string(shop)}, args...), nil
}

func (m *Matcher) count(ctx context.Context, where string, scoped []any) (int, error) {
	countSQL := m.db.Rebind("SELECT COUNT(*) FROM customers WHERE shop_id = ? AND " + where)
	var count int
	if err := m.db.GetContext(ctx, &count, countSQL, scoped...); err != nil {
		return 0, fmt.Errorf("%w: count customers: %v", types.ErrStorage, err)
	}
	return count, nil
}
