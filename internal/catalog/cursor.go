package catalog

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrBadCursor = errors.New("bad cursor")

// Cursor marks the last product of a page in (created_at desc, id desc) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func CursorOf(p Product) Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return Cursor{}, ErrBadCursor
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Admits reports whether p sorts strictly after the cursor position, i.e.
// belongs to a later page.
func (c Cursor) Admits(p Product) bool {
	if !p.CreatedAt.Equal(c.CreatedAt) {
		return p.CreatedAt.Before(c.CreatedAt)
	}
	return p.ID < c.ID
}
