// Package pagination implements the opaque keyset cursor used by the item
// listing endpoint. A cursor is the base64 encoding of the last row's
// publish timestamp and id; listing resumes strictly after that pair.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const separator = ","

// RFC3339Nano keeps sub-second ordering intact across encode/decode.
const timeFormat = time.RFC3339Nano

// Cursor is a decoded pagination position.
type Cursor struct {
	Time time.Time
	ID   int64
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	key := c.Time.UTC().Format(timeFormat) + separator + strconv.FormatInt(c.ID, 10)
	return base64.URLEncoding.EncodeToString([]byte(key))
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	tsPart, idPart, found := strings.Cut(string(raw), separator)
	if !found {
		return Cursor{}, fmt.Errorf("invalid cursor format")
	}

	ts, err := time.Parse(timeFormat, tsPart)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid id in cursor: %w", err)
	}

	return Cursor{Time: ts.UTC(), ID: id}, nil
}
