// Package limits provides centralized size constants and validation functions
// for the thumbshare protocol. This package ensures consistent size enforcement
// across the thumbnail store, the tunnel and the transfer engine.
//
// # Size Hierarchy
//
//   - MinCasIDLength / MaxCasIDLength (3 / 128 characters): content identifiers.
//     The lower bound guarantees a full shard prefix; the upper bound caps what a
//     remote peer can make us allocate while decoding a request envelope.
//
//   - MaxTunnelPlaintext (65519 bytes): the plaintext carried by a single
//     encrypted tunnel frame, i.e. the Noise message limit minus the
//     ChaCha20-Poly1305 tag.
//
//   - MaxBlockSize (4 MiB): the largest block a responder may announce in the
//     framing header. Receivers allocate one block buffer per transfer.
//
// # Validation Functions
//
//	err := limits.ValidateCasIDLength(casID)
//	if err != nil {
//	    // ErrEmpty, ErrTooSmall or ErrTooLarge
//	}
//
// For custom size limits, use the generic ValidateSize function:
//
//	err := limits.ValidateSize(len(data), 4096)
//
// # Security Considerations
//
// All values received from the network (cas ids, block sizes, envelope lengths)
// must be validated against these limits before any allocation or filesystem
// access happens.
package limits
