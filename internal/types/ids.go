package types

import (
	"time"

	"github.com/google/uuid"
)

// NewSegmentID generates a UUIDv7 segment identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewSegmentID() SegmentID {
	return SegmentID(uuid.Must(uuid.NewV7()).String())
}

// NewNodeID generates an identifier for a group or condition in a filter tree.
// Tree ids only need to be unique within one editing session.
func NewNodeID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseSegmentID validates and converts a string to SegmentID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseSegmentID(s string) (SegmentID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return SegmentID(s), nil
}

// SegmentIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func SegmentIDTime(id SegmentID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
