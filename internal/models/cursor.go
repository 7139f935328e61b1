package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned by ParseCursor for malformed input.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the (sequence, storage id) ordering key of the last processed
// event. The zero value addresses the beginning of the store.
type Cursor struct {
	Sequence  int64
	StorageID int64
}

// IsZero reports whether c is the beginning-of-store cursor.
func (c Cursor) IsZero() bool {
	return c.Sequence == 0 && c.StorageID == 0
}

// Before reports whether c sorts strictly before o.
func (c Cursor) Before(o Cursor) bool {
	if c.Sequence != o.Sequence {
		return c.Sequence < o.Sequence
	}
	return c.StorageID < o.StorageID
}

// String renders "<sequence>:<storageId>".
func (c Cursor) String() string {
	return strconv.FormatInt(c.Sequence, 10) + ":" + strconv.FormatInt(c.StorageID, 10)
}

// ParseCursor is the inverse of Cursor.String. An empty string is the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	seq, id, ok := strings.Cut(s, ":")
	if !ok {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	sv, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: sequence %q", ErrInvalidCursor, seq)
	}
	iv, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: id %q", ErrInvalidCursor, id)
	}
	return Cursor{Sequence: sv, StorageID: iv}, nil
}
