// Package noise provides the Noise Protocol Framework handshake for library
// tunnels.
//
// The handshake uses the formally verified flynn/noise library with
// ChaCha20-Poly1305 encryption, SHA256 hashing and Curve25519 key exchange.
//
// # XX Pattern
//
// Neither side knows the other's static key before the handshake; both static
// keys are exchanged encrypted and become available through
// GetRemoteStaticKey as soon as the peer's static key has been received, so
// the initiator can vet the responder before revealing its own key. The caller decides whether
// that key belongs to a trusted library member.
//
// Message flow:
//
//	Initiator                              Responder
//	─────────                              ─────────
//	-> e
//	                                       <- e, ee, s, es
//	-> s, se
//	[session established]
//
// # Prologue
//
// The prologue is hashed into the handshake transcript but never sent. Tunnels
// use the library identifier as the prologue, so a peer that announces one
// library and completes the handshake under another fails authentication.
//
// Example:
//
//	hs, err := noise.NewXXHandshake(identity.Private[:], libraryID[:], noise.Initiator)
//	msg1, _, err := hs.WriteMessage(nil)
//	// send msg1, receive msg2
//	_, _, err = hs.ReadMessage(msg2)
//	msg3, complete, err := hs.WriteMessage(nil)
//	send, recv, _ := hs.GetCipherStates()
package noise
