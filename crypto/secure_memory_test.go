package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureWipe(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single byte", []byte{0xFF}},
		{"secret key", []byte("0123456789abcdef0123456789abcdef")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, SecureWipe(tt.data))
			assert.Equal(t, make([]byte, len(tt.data)), tt.data)
		})
	}

	assert.ErrorIs(t, SecureWipe(nil), ErrNilKey)
}

func TestZeroBytesIgnoresNil(t *testing.T) {
	assert.NotPanics(t, func() { ZeroBytes(nil) })
}

func TestWipeKeyPairKeepsIdentity(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	public := kp.Public

	require.NoError(t, WipeKeyPair(kp))
	assert.Equal(t, [32]byte{}, kp.Private)
	assert.Equal(t, public, kp.Public, "only the private half is erased")

	assert.ErrorIs(t, WipeKeyPair(nil), ErrNilKey)
}
