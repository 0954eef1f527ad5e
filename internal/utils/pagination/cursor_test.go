package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEmptyTokenIsFirstPage(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, Cursor{}, c)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("%%%not-base64")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Decode("bm90LWpzb24=") // "not-json"
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, ErrTokenMismatch, ErrInvalidToken)
}

func TestEncodeDecode(t *testing.T) {
	token, err := Encode(Cursor{LastID: 42, UserID: "u1"})
	require.NoError(t, err)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), c.LastID)
	assert.Equal(t, "u1", c.UserID)
}
