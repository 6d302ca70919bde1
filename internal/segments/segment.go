// Package segments stores saved customer segments per shop.
package segments

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

// Segment is a saved filter with its last computed member count.
type Segment struct {
	ID          types.SegmentID `json:"id" db:"segment_id"`
	ShopID      types.ShopID    `json:"shopId" db:"shop_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Filters     wire.Query      `json:"filters" db:"filters"`
	IsActive    bool            `json:"isActive" db:"is_active"`
	MemberCount int             `json:"memberCount" db:"member_count"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// Input is the caller-controlled part of a segment, used by create and update.
type Input struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Filters     wire.Query `json:"filters"`
	IsActive    bool       `json:"isActive"`
}

// Normalize trims the name and description and checks the input can be saved.
// Failures wrap types.ErrInvalidSegment.
func (in Input) Normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if in.Name == "" {
		return in, fmt.Errorf("%w: name cannot be empty", types.ErrInvalidSegment)
	}
	if utf8.RuneCountInString(in.Name) > types.MaxSegmentNameLength {
		return in, fmt.Errorf("%w: name exceeds %d characters", types.ErrInvalidSegment, types.MaxSegmentNameLength)
	}
	// round trip drops conditions the catalog would reject
	in.Filters = wire.Encode(in.Filters.Tree())
	if in.Filters.IsEmpty() {
		return in, fmt.Errorf("%w: %v", types.ErrInvalidSegment, types.ErrEmptyFilter)
	}
	return in, nil
}
