package nickcrypt

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penter405/cubetimer-backend/internal/common"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		nickname string
		userID   int
	}{
		{"Alice#1", 7},
		{"名字#12", 123},
		{"with:colon#3", 1},
	}

	for _, tc := range tests {
		enc := Encode(tc.nickname, tc.userID)
		got, err := Decode(enc, tc.userID)
		require.NoError(t, err)
		assert.Equal(t, tc.nickname, got)
	}
}

func TestEncode_StoredFormat(t *testing.T) {
	// Wire format check: documents written by earlier migrations hold
	// base64("{userID}:{nickname}").
	enc := Encode("Alice#1", 7)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("7:Alice#1")), enc)
}

func TestEncode_Empty(t *testing.T) {
	assert.Equal(t, "", Encode("", 42))

	got, err := Decode("", 42)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDecode_SaltMismatch(t *testing.T) {
	enc := Encode("Alice#1", 7)
	_, err := Decode(enc, 8)
	assert.ErrorIs(t, err, common.ErrCorruptRecord)
}

func TestDecode_NotBase64(t *testing.T) {
	_, err := Decode("%%%", 7)
	assert.ErrorIs(t, err, common.ErrCorruptRecord)
}
