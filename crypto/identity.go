package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey indicates a key that is not 32 hex encoded bytes.
var ErrInvalidKey = errors.New("invalid key encoding")

// PublicKey is a Curve25519 public key. It names a remote library instance and
// is the value checked against a library's member list after a handshake.
type PublicKey [32]byte

// String returns the lowercase hex encoding of the key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 8 hex characters, for log fields.
func (k PublicKey) Short() string {
	return hex.EncodeToString(k[:4])
}

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool {
	return isZeroKey(k)
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePublicKey decodes a hex encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := decodeKey(s)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey(raw), nil
}

// PublicKeyFromBytes copies a 32 byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != len(k) {
		return k, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(b), len(k))
	}
	copy(k[:], b)
	return k, nil
}

func decodeKey(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), len(out))
	}
	copy(out[:], raw)
	ZeroBytes(raw)
	return out, nil
}
