// Package noise provides the Noise Protocol Framework handshake used by
// library tunnels. It implements the XX pattern, which gives mutual
// authentication without either side knowing the other's static key up front.
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"github.com/opd-ai/thumbshare/crypto"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator starts the handshake
	Initiator HandshakeRole = iota
	// Responder responds to handshake initiation
	Responder
)

// String returns the role name for log fields.
func (r HandshakeRole) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// CipherSuite is the suite shared by every tunnel.
var CipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// XXHandshake implements the Noise XX pattern for mutual authentication
// without prior key knowledge.
//
//	-> e
//	<- e, ee, s, es
//	-> s, se
type XXHandshake struct {
	role        HandshakeRole
	state       *noise.HandshakeState
	sendCipher  *noise.CipherState
	recvCipher  *noise.CipherState
	complete    bool
	localPubKey crypto.PublicKey
}

// NewXXHandshake creates a new XX pattern handshake.
// staticPrivKey is our long-term private key (32 bytes).
// prologue is mixed into the handshake hash; both sides must supply the same
// bytes or the handshake fails.
func NewXXHandshake(staticPrivKey []byte, prologue []byte, role HandshakeRole) (*XXHandshake, error) {
	if len(staticPrivKey) != 32 {
		return nil, fmt.Errorf("static private key must be 32 bytes, got %d", len(staticPrivKey))
	}

	var privateKeyArray [32]byte
	copy(privateKeyArray[:], staticPrivKey)

	keyPair, err := crypto.FromSecretKey(privateKeyArray)
	crypto.ZeroBytes(privateKeyArray[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create keypair: %w", err)
	}

	staticKey := noise.DHKey{
		Private: make([]byte, 32),
		Public:  make([]byte, 32),
	}
	copy(staticKey.Private, keyPair.Private[:])
	copy(staticKey.Public, keyPair.Public[:])
	crypto.ZeroBytes(keyPair.Private[:])

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   CipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == Initiator,
		Prologue:      prologue,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create XX handshake state: %w", err)
	}

	return &XXHandshake{
		role:        role,
		state:       hs,
		localPubKey: keyPair.Public,
	}, nil
}

// Role returns the side of the handshake this state plays.
func (xx *XXHandshake) Role() HandshakeRole {
	return xx.role
}

// WriteMessage writes the next handshake message carrying payload.
// It reports whether the handshake completed with this message.
func (xx *XXHandshake) WriteMessage(payload []byte) ([]byte, bool, error) {
	if xx.complete {
		return nil, false, ErrHandshakeComplete
	}

	message, cs1, cs2, err := xx.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("XX handshake write failed: %w", err)
	}

	return message, xx.finish(cs1, cs2), nil
}

// ReadMessage consumes a handshake message from the peer and returns its payload.
func (xx *XXHandshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if xx.complete {
		return nil, false, ErrHandshakeComplete
	}

	payload, cs1, cs2, err := xx.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("XX handshake read failed: %w", err)
	}

	return payload, xx.finish(cs1, cs2), nil
}

// finish records the split cipher states. flynn/noise returns them in
// initiator-to-responder, responder-to-initiator order regardless of role.
func (xx *XXHandshake) finish(cs1, cs2 *noise.CipherState) bool {
	if cs1 == nil || cs2 == nil {
		return false
	}
	if xx.role == Initiator {
		xx.sendCipher, xx.recvCipher = cs1, cs2
	} else {
		xx.sendCipher, xx.recvCipher = cs2, cs1
	}
	xx.complete = true
	return true
}

// IsComplete returns whether the XX handshake is complete.
func (xx *XXHandshake) IsComplete() bool {
	return xx.complete
}

// GetCipherStates returns the established send and receive cipher states.
func (xx *XXHandshake) GetCipherStates() (*noise.CipherState, *noise.CipherState, error) {
	if !xx.complete {
		return nil, nil, ErrHandshakeNotComplete
	}
	return xx.sendCipher, xx.recvCipher, nil
}

// GetRemoteStaticKey returns the peer's static key. The initiator learns it
// from the second message, the responder only once the handshake completes.
func (xx *XXHandshake) GetRemoteStaticKey() (crypto.PublicKey, error) {
	peer := xx.state.PeerStatic()
	if len(peer) == 0 {
		return crypto.PublicKey{}, ErrHandshakeNotComplete
	}
	return crypto.PublicKeyFromBytes(peer)
}

// GetLocalStaticKey returns our static public key.
func (xx *XXHandshake) GetLocalStaticKey() crypto.PublicKey {
	return xx.localPubKey
}
