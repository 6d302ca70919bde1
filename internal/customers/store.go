// internal/customers/store.go
package customers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/types"
)

// Customer is one row of the customers table as written by the analytics
// pipeline. Pointer fields are nullable columns.
type Customer struct {
	ID                 string  `json:"id"`
	Email              *string `json:"email,omitempty"`
	FirstName          string  `json:"firstName"`
	LastName           string  `json:"lastName"`
	TotalSpent         float64 `json:"totalSpent"`
	OrdersCount        int     `json:"ordersCount"`
	AvgOrderValue      float64 `json:"avgOrderValue"`
	DaysSinceLastOrder *int    `json:"daysSinceLastOrder,omitempty"`
	RFMSegment         string  `json:"rfmSegment"`
	RecencyScore       *int    `json:"recencyScore,omitempty"`
	FrequencyScore     *int    `json:"frequencyScore,omitempty"`
	MonetaryScore      *int    `json:"monetaryScore,omitempty"`
	IsHighValue        bool    `json:"isHighValue"`
	IsChurnRisk        bool    `json:"isChurnRisk"`
}

type fieldValue struct {
	key   string
	value any
}

// Validate checks the row against the field catalog so stored data can be
// matched by every operator the catalog allows.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("customer id cannot be empty")
	}
	checks := []fieldValue{
		{"totalSpent", c.TotalSpent},
		{"ordersCount", c.OrdersCount},
		{"avgOrderValue", c.AvgOrderValue},
		{"rfmSegment", c.RFMSegment},
	}
	for _, opt := range []struct {
		key   string
		value *int
	}{
		{"daysSinceLastOrder", c.DaysSinceLastOrder},
		{"recencyScore", c.RecencyScore},
		{"frequencyScore", c.FrequencyScore},
		{"monetaryScore", c.MonetaryScore},
	} {
		if opt.value != nil {
			checks = append(checks, fieldValue{opt.key, *opt.value})
		}
	}

	for _, chk := range checks {
		def, err := fields.Lookup(chk.key)
		if err != nil {
			return err
		}
		if _, err := def.Coerce(chk.value); err != nil {
			return fmt.Errorf("customer %s: %s: %w", c.ID, chk.key, err)
		}
	}
	return nil
}

// Queries is the named-query surface the store needs.
// Implemented by *db.Queries.
type Queries interface {
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
}

// Store writes customer rows for a shop.
type Store struct {
	queries Queries
	now     func() time.Time
}

// NewStore creates a customer store.
func NewStore(queries Queries) *Store {
	return &Store{queries: queries, now: time.Now}
}

// Upsert inserts or replaces the shop's customers. Rows are validated first;
// the first invalid row aborts before anything is written.
func (s *Store) Upsert(ctx context.Context, shop types.ShopID, customers []Customer) error {
	for _, c := range customers {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	now := s.now().UTC()
	for _, c := range customers {
		_, err := s.queries.ExecContext(ctx, "upsert-customer",
			string(shop), c.ID, c.Email, c.FirstName, c.LastName,
			c.TotalSpent, c.OrdersCount, c.AvgOrderValue, c.DaysSinceLastOrder,
			c.RFMSegment, c.RecencyScore, c.FrequencyScore, c.MonetaryScore,
			c.IsHighValue, c.IsChurnRisk, now,
		)
		if err != nil {
			return fmt.Errorf("%w: upsert customer %s: %v", types.ErrStorage, c.ID, err)
		}
	}
	return nil
}

// Count returns the number of customers stored for the shop.
func (s *Store) Count(ctx context.Context, shop types.ShopID) (int, error) {
	var n int
	if err := s.queries.GetContext(ctx, "count-customers", &n, string(shop)); err != nil {
		return 0, fmt.Errorf("%w: count customers: %v", types.ErrStorage, err)
	}
	return n, nil
}

// Delete removes one customer. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, shop types.ShopID, id string) error {
	if _, err := s.queries.ExecContext(ctx, "delete-customer", string(shop), id); err != nil {
		return fmt.Errorf("%w: delete customer %s: %v", types.ErrStorage, id, err)
	}
	return nil
}
