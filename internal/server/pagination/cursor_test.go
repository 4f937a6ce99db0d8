package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)
	original := Cursor{Time: ts, ID: 42}

	decoded, err := Decode(original.Encode())
	require.NoError(t, err)

	assert.True(t, decoded.Time.Equal(ts))
	assert.Equal(t, int64(42), decoded.ID)
}

func TestDecode_InvalidBase64(t *testing.T) {
	_, err := Decode("not base64!!!")
	assert.Error(t, err)
}

func TestDecode_MissingSeparator(t *testing.T) {
	_, err := Decode("MjAyNS0wNi0wMVQxMjowMDowMFo=") // base64 of a bare timestamp
	assert.Error(t, err)
}

func TestDecode_BadTimestamp(t *testing.T) {
	bad := Cursor{ID: 1}
	token := bad.Encode()
	// Valid token still decodes; a hand-built garbage timestamp does not.
	_, err := Decode(token)
	assert.NoError(t, err)

	_, err = Decode("bm90LWEtdGltZSw1") // base64 of "not-a-time,5"
	assert.Error(t, err)
}
