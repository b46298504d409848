package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairDerivesPublicKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, kp.Public.IsZero())

	derived, err := FromSecretKey(kp.Private)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, derived.Public, "FromSecretKey must reproduce the generated public key")
}

func TestFromSecretKeyRejectsZero(t *testing.T) {
	_, err := FromSecretKey([32]byte{})
	assert.ErrorIs(t, err, ErrZeroKey)
}

func TestPublicKeyTextRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	text, err := kp.Public.MarshalText()
	require.NoError(t, err)
	assert.Len(t, text, 64)

	var parsed PublicKey
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, kp.Public, parsed)
	assert.Equal(t, string(text[:8]), kp.Public.Short())
}

func TestParsePublicKeyErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "abcd"},
		{"too long", strings.Repeat("ab", 33)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublicKey(tt.input)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestParseSecretKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	hexKey := PublicKey(kp.Private).String()
	parsed, err := ParseSecretKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, parsed.Public)
}

func TestPublicKeyFromBytes(t *testing.T) {
	_, err := PublicKeyFromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidKey)

	b := make([]byte, 32)
	b[0] = 7
	k, err := PublicKeyFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, byte(7), k[0])
}
