// Package types provides domain models shared across SegmentKeeper components.
//
// Zero-dependency design: types.go and errors.go use only the standard library
// so the filter model, codec and client can share them without pulling in
// storage or transport deps. ID utilities in ids.go import uuid but are isolated.
package types

import "time"

// SegmentID represents a UUIDv7 segment identifier.
// String alias enables type safety while maintaining JSON string serialization.
type SegmentID string

// ShopID identifies the tenant (one connected Shopify store).
// Every segment, customer and API key is scoped to exactly one shop.
type ShopID string

// CustomerSummary is one row of a preview sample.
// Only the columns a merchant needs to recognise the customer are carried.
type CustomerSummary struct {
	ID          string  `json:"id" db:"customer_id"`
	Email       string  `json:"email" db:"email"`
	FirstName   string  `json:"firstName" db:"first_name"`
	LastName    string  `json:"lastName" db:"last_name"`
	TotalSpent  float64 `json:"totalSpent" db:"total_spent"`
	OrdersCount int     `json:"ordersCount" db:"orders_count"`
	RFMSegment  string  `json:"rfmSegment" db:"rfm_segment"`
}

// MatchResult is the outcome of evaluating a query against stored customers.
// Count is the full match count; Sample holds at most the requested number
// of rows in evaluation order.
type MatchResult struct {
	Count  int               `json:"count"`
	Sample []CustomerSummary `json:"sample"`
}

// Timestamp layout used for all persisted timestamps.
// RFC3339 in UTC keeps sqlite TEXT columns sortable.
const TimestampLayout = time.RFC3339

// Resource limits enforced on filter input to bound evaluation cost.
const (
	// MaxGroups limits the number of groups in one tree.
	MaxGroups = 16

	// MaxConditionsPerGroup limits conditions per group.
	MaxConditionsPerGroup = 32

	// MaxInOperatorValues limits in/notIn list size.
	// 64 values supports typical enum-style checks without large IN clauses.
	MaxInOperatorValues = 64

	// MaxSampleSize caps the preview sample regardless of configuration.
	MaxSampleSize = 100

	// MaxSegmentNameLength bounds segment names.
	MaxSegmentNameLength = 255
)
