// internal/segments/store.go
package segments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

/*
 * Segment persistence.
 *
 * Segments are scoped to a shop: every query filters on shop_id, so a segment
 * id from another shop reads as not found.
 *
 * Member counts are computed on create and update by the configured Counter.
 * A counter failure fails the write; a stored count is always one the counter
 * produced for the stored filters. Without a counter the count stays zero.
 */

// Queries is the named-query surface the store needs.
// Implemented by *db.Queries.
type Queries interface {
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
}

// Counter counts a shop's customers matching a query. Implemented by
// *customers.Matcher.
type Counter interface {
	Count(ctx context.Context, shop types.ShopID, q wire.Query) (int, error)
}

// Store persists segments.
type Store struct {
	queries Queries
	counter Counter
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a segment store. counter may be nil.
func NewStore(queries Queries, counter Counter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: queries, counter: counter, logger: logger, now: time.Now}
}

// Create validates in, computes the member count and inserts a new segment.
func (s *Store) Create(ctx context.Context, shop types.ShopID, in Input) (Segment, error) {
	in, err := in.Normalize()
	if err != nil {
		return Segment{}, err
	}
	count, err := s.memberCount(ctx, shop, in.Filters)
	if err != nil {
		return Segment{}, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	seg := Segment{
		ID:          types.NewSegmentID(),
		ShopID:      shop,
		Name:        in.Name,
		Description: in.Description,
		Filters:     in.Filters,
		IsActive:    in.IsActive,
		MemberCount: count,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.queries.ExecContext(ctx, "insert-segment",
		string(seg.ID), string(seg.ShopID), seg.Name, seg.Description, seg.Filters,
		seg.IsActive, seg.MemberCount, seg.CreatedAt, seg.UpdatedAt,
	)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: insert segment: %v", types.ErrStorage, err)
	}

	s.logger.Info("segment created", "shop", shop, "segment_id", seg.ID, "member_count", count)
	return seg, nil
}

// Get returns one segment of the shop.
func (s *Store) Get(ctx context.Context, shop types.ShopID, id types.SegmentID) (Segment, error) {
	var seg Segment
	err := s.queries.GetContext(ctx, "get-segment", &seg, string(shop), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
	}
	if err != nil {
		return Segment{}, fmt.Errorf("%w: get segment: %v", types.ErrStorage, err)
	}
	seg.CreatedAt = seg.CreatedAt.UTC()
	seg.UpdatedAt = seg.UpdatedAt.UTC()
	return seg, nil
}

// List returns the shop's segments, newest first.
func (s *Store) List(ctx context.Context, shop types.ShopID) ([]Segment, error) {
	segs := []Segment{}
	if err := s.queries.SelectContext(ctx, "list-segments", &segs, string(shop)); err != nil {
		return nil, fmt.Errorf("%w: list segments: %v", types.ErrStorage, err)
	}
	for i := range segs {
		segs[i].CreatedAt = segs[i].CreatedAt.UTC()
		segs[i].UpdatedAt = segs[i].UpdatedAt.UTC()
	}
	return segs, nil
}

// Update replaces the caller-controlled fields of an existing segment and
// recomputes its member count.
func (s *Store) Update(ctx context.Context, shop types.ShopID, id types.SegmentID, in Input) (Segment, error) {
	in, err := in.Normalize()
	if err != nil {
		return Segment{}, err
	}
	seg, err := s.Get(ctx, shop, id)
	if err != nil {
		return Segment{}, err
	}
	count, err := s.memberCount(ctx, shop, in.Filters)
	if err != nil {
		return Segment{}, err
	}

	seg.Name = in.Name
	seg.Description = in.Description
	seg.Filters = in.Filters
	seg.IsActive = in.IsActive
	seg.MemberCount = count
	seg.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	res, err := s.queries.ExecContext(ctx, "update-segment",
		seg.Name, seg.Description, seg.Filters, seg.IsActive, seg.MemberCount, seg.UpdatedAt,
		string(shop), string(id),
	)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: update segment: %v", types.ErrStorage, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// deleted between Get and update
		return Segment{}, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
	}

	s.logger.Info("segment updated", "shop", shop, "segment_id", id, "member_count", count)
	return seg, nil
}

// Delete removes a segment. Deleting a missing segment is ErrSegmentNotFound.
func (s *Store) Delete(ctx context.Context, shop types.ShopID, id types.SegmentID) error {
	res, err := s.queries.ExecContext(ctx, "delete-segment", string(shop), string(id))
	if err != nil {
		return fmt.Errorf("%w: delete segment: %v", types.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete segment: %v", types.ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
	}
	s.logger.Info("segment deleted", "shop", shop, "segment_id", id)
	return nil
}

func (s *Store) memberCount(ctx context.Context, shop types.ShopID, q wire.Query) (int, error) {
	if s.counter == nil {
		return 0, nil
	}
	n, err := s.counter.Count(ctx, shop, q)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}
