package submissions

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrBadCursor marks a cursor that could not be decoded. Listing treats
// it as no cursor at all, restarting from the first page.
var ErrBadCursor = errors.New("malformed cursor")

// Cursor points just past the last item of a page: its timestamp and
// id. Pages are ordered submitted_at DESC, id ASC, so "after" means
// older, or same instant with a larger id.
type Cursor struct {
	SubmittedAt int64
	ID          uuid.UUID
}

// Encode serializes the cursor as url-safe base64 of
// "{submittedAtMillis}|{id}". The format is opaque to clients.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d|%s", c.SubmittedAt, c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor reverses Encode.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrBadCursor
	}

	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, ErrBadCursor
	}

	return Cursor{SubmittedAt: ts, ID: id}, nil
}
