// Package limits provides centralized size limits for the thumbnail cache and
// the library transfer protocol. This ensures consistent validation across
// different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MinCasIDLength is the shortest content identifier accepted anywhere.
	// The first MinCasIDLength characters form the storage shard.
	MinCasIDLength = 3

	// MaxCasIDLength bounds content identifiers received from remote peers.
	MaxCasIDLength = 128

	// MaxNoiseMessage is the Noise Protocol limit for a single message (65535 bytes)
	MaxNoiseMessage = 65535

	// EncryptionOverhead is the ChaCha20-Poly1305 authentication tag size
	EncryptionOverhead = 16

	// MaxTunnelPlaintext is the largest plaintext carried by one tunnel frame
	MaxTunnelPlaintext = MaxNoiseMessage - EncryptionOverhead

	// MaxBlockSize is the largest block size a responder may announce.
	// Receivers allocate one block-sized buffer, so this caps per-transfer memory.
	MaxBlockSize = 4 * 1024 * 1024

	// MaxRequestHeader is the largest encoded request envelope
	MaxRequestHeader = 2 + 16 + 2 + MaxCasIDLength + 1 + 16
)

var (
	// ErrEmpty indicates an empty value was provided
	ErrEmpty = errors.New("empty value")

	// ErrTooLarge indicates a value exceeds its maximum size
	ErrTooLarge = errors.New("value too large")

	// ErrTooSmall indicates a value is below its minimum size
	ErrTooSmall = errors.New("value too small")
)

// ValidateSize validates a length against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(size, maxSize int) error {
	if size == 0 {
		return ErrEmpty
	}
	if size > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, size, maxSize)
	}
	return nil
}

// ValidateCasIDLength checks a content identifier against MinCasIDLength and
// MaxCasIDLength. It does not inspect the characters.
func ValidateCasIDLength(casID string) error {
	if len(casID) == 0 {
		return ErrEmpty
	}
	if len(casID) < MinCasIDLength {
		return fmt.Errorf("%w: cas id length %d below minimum %d", ErrTooSmall, len(casID), MinCasIDLength)
	}
	if len(casID) > MaxCasIDLength {
		return fmt.Errorf("%w: cas id length %d exceeds limit %d", ErrTooLarge, len(casID), MaxCasIDLength)
	}
	return nil
}

// ValidateBlockSize validates a block size announced by a remote peer.
func ValidateBlockSize(size uint32) error {
	if size == 0 {
		return ErrEmpty
	}
	if size > MaxBlockSize {
		return fmt.Errorf("%w: block size %d exceeds limit %d", ErrTooLarge, size, MaxBlockSize)
	}
	return nil
}
