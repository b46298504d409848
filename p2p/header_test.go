package p2p

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/thumbshare/file"
)

func TestHeaderEncoding(t *testing.T) {
	id := uuid.MustParse("5b1e0c1a-7d2f-4e8b-9a41-0f6c3d2e1b00")

	tests := []struct {
		name   string
		header Header
		size   int
	}{
		{"file full", Header{FileRequest(id), file.FullRange()}, 2 + 16 + 1},
		{"file partial", Header{FileRequest(id), file.PartialRange(0, 1 << 20)}, 2 + 16 + 17},
		{"thumbnail", Header{ThumbnailRequest("a1b2c3d4"), file.FullRange()}, 2 + 2 + 8 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.header.MarshalBinary()
			require.NoError(t, err)
			assert.Len(t, encoded, tt.size)
			assert.Equal(t, byte(HeaderLibraryFile), encoded[0])

			r := bytes.NewReader(append(encoded, 0xEE))
			decoded, err := ReadHeader(r)
			require.NoError(t, err)
			assert.Equal(t, tt.header, decoded)
			assert.Equal(t, 1, r.Len(), "reader stops at the end of the envelope")
		})
	}
}

func TestThumbnailRequestWireLayout(t *testing.T) {
	encoded, err := Header{ThumbnailRequest("abc"), file.FullRange()}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 3, 0, 'a', 'b', 'c', 0}, encoded)
}

func TestHeaderRejectsMalformed(t *testing.T) {
	_, err := Header{Request: ThumbnailRequest("ab")}.MarshalBinary()
	assert.ErrorIs(t, err, ErrMalformedHeader)

	_, err = Header{Request: Request{Kind: 9}}.MarshalBinary()
	assert.ErrorIs(t, err, ErrMalformedHeader)

	inputs := map[string][]byte{
		"unknown kind":         {7, 0},
		"unknown request kind": {1, 9},
		"short file id":        {1, 0, 1, 2, 3},
		"cas id too short":     {1, 1, 2, 0, 'a', 'b', 0},
		"cas id too long":      {1, 1, 0xFF, 0xFF},
		"truncated cas id":     {1, 1, 8, 0, 'a'},
		"bad range":            {1, 1, 3, 0, 'a', 'b', 'c', 5},
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(input))
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "framed", StateFramed.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.False(t, StateTransferring.Terminal())
	assert.True(t, StateCancelled.Terminal())
}
