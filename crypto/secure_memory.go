package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// ErrNilKey is returned when asked to wipe a key that does not exist.
var ErrNilKey = errors.New("nil key material")

// SecureWipe overwrites secret with zeros in place.
func SecureWipe(secret []byte) error {
	if secret == nil {
		return ErrNilKey
	}

	// x ^ x; the store must not be elided as dead.
	subtle.XORBytes(secret, secret, secret)
	runtime.KeepAlive(secret)
	return nil
}

// ZeroBytes is SecureWipe for callers with nothing to do on failure.
func ZeroBytes(secret []byte) {
	_ = SecureWipe(secret)
}

// WipeKeyPair erases the private half of a library identity. The public
// key stays usable for logging the identity that was closed.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return ErrNilKey
	}
	return SecureWipe(kp.Private[:])
}
