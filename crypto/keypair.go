// Package crypto implements the identity primitives used by library tunnels.
//
// Every library instance owns a Curve25519 key pair. The public half is the
// instance's identity inside the library; the private half is only ever handed
// to the Noise handshake.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Identity:", keys.Public)
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// ErrZeroKey is returned for an all-zero secret key.
var ErrZeroKey = errors.New("invalid secret key: all zeros")

// KeyPair represents a Curve25519 key pair identifying one library instance.
type KeyPair struct {
	Public  PublicKey
	Private [32]byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		Public:  PublicKey(*publicKey),
		Private: *privateKey,
	}, nil
}

// FromSecretKey creates a key pair from an existing private key, deriving the
// public key by scalar multiplication with the Curve25519 base point.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, ErrZeroKey
	}

	pub, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], pub)
	return kp, nil
}

// ParseSecretKey decodes a hex encoded private key and derives its key pair.
func ParseSecretKey(s string) (*KeyPair, error) {
	raw, err := decodeKey(s)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(raw[:])
	return FromSecretKey(raw)
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
