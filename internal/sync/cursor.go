package sync

import (
	"fmt"
	"strconv"
	"time"
)

// Cursor is an opaque, monotonically increasing per-client watermark. On the
// wire it is a decimal string of unix nanoseconds; clients must treat it as
// opaque and echo it back unchanged. The zero value means "from the
// beginning".
type Cursor struct {
	t time.Time
}

// CursorAt returns a cursor positioned at t.
func CursorAt(t time.Time) Cursor {
	return Cursor{t: t.UTC()}
}

// ParseCursor decodes a wire cursor. The empty string and "0" both decode to
// the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	if s == "" || s == "0" {
		return Cursor{}, nil
	}
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil || nanos < 0 {
		return Cursor{}, fmt.Errorf("invalid cursor %q", s)
	}
	return Cursor{t: time.Unix(0, nanos).UTC()}, nil
}

// String encodes the cursor for the wire.
func (c Cursor) String() string {
	if c.t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(c.t.UnixNano(), 10)
}

// Time returns the instant the cursor marks.
func (c Cursor) Time() time.Time {
	return c.t
}

// IsZero reports whether the cursor marks the beginning of history.
func (c Cursor) IsZero() bool {
	return c.t.IsZero()
}

// Advance returns the later of c and a cursor at t. Cursors never move
// backwards.
func (c Cursor) Advance(t time.Time) Cursor {
	if t.After(c.t) {
		return Cursor{t: t.UTC()}
	}
	return c
}
