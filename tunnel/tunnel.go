// Package tunnel upgrades a raw peer stream into an authenticated, encrypted
// channel scoped to one library.
//
// The initiator announces the library it wants to talk to, both sides run a
// Noise XX handshake bound to that library identifier, and each side checks
// that the other's static key belongs to a known instance of the library.
// Only then does any request-specific byte flow, and every such byte is
// encrypted.
package tunnel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	flynn "github.com/flynn/noise"
	"github.com/google/uuid"
	"github.com/opd-ai/thumbshare/crypto"
	"github.com/opd-ai/thumbshare/limits"
	"github.com/opd-ai/thumbshare/noise"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAuthenticationFailed indicates the handshake failed or the peer is
	// not a member of the library.
	ErrAuthenticationFailed = errors.New("tunnel authentication failed")
	// ErrUnknownLibrary indicates the announced library does not exist locally.
	ErrUnknownLibrary = errors.New("unknown library")
	// ErrMalformedFrame indicates an empty frame or one larger than a Noise message.
	ErrMalformedFrame = errors.New("malformed tunnel frame")
)

// HandshakeTimeout bounds the whole handshake when the stream supports deadlines.
const HandshakeTimeout = 30 * time.Second

// Authorizer decides whether a remote static key is a member of a library.
type Authorizer interface {
	Authorize(libraryID uuid.UUID, remote crypto.PublicKey) error
}

// Keyring resolves the local identity for a library and authorizes members.
type Keyring interface {
	Authorizer
	// Identity returns the local key pair for the library. It returns an
	// error wrapping ErrUnknownLibrary when the library is not held locally.
	Identity(libraryID uuid.UUID) (*crypto.KeyPair, error)
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Tunnel is an encrypted stream. It is safe to use one reader and one writer
// concurrently.
type Tunnel struct {
	conn      io.ReadWriter
	libraryID uuid.UUID
	remote    crypto.PublicKey

	wmu  sync.Mutex
	send *flynn.CipherState
	wbuf []byte

	rmu     sync.Mutex
	recv    *flynn.CipherState
	pending []byte
	rbuf    []byte
}

// Initiator authenticates to the responder as a member of libraryID using
// identity, and verifies that the responder is a member too.
func Initiator(stream io.ReadWriter, libraryID uuid.UUID, identity *crypto.KeyPair, auth Authorizer) (*Tunnel, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":   "Initiator",
		"library_id": libraryID,
	})

	if identity == nil {
		return nil, fmt.Errorf("%w: no local identity", ErrAuthenticationFailed)
	}

	restore := applyDeadline(stream)
	defer restore()

	if _, err := stream.Write(libraryID[:]); err != nil {
		return nil, fmt.Errorf("write library preamble: %w", err)
	}

	hs, err := noise.NewXXHandshake(identity.Private[:], libraryID[:], noise.Initiator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	msg1, _, err := hs.WriteMessage(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if err := writeFrame(stream, msg1); err != nil {
		return nil, fmt.Errorf("write handshake: %w", err)
	}

	msg2, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read handshake: %v", ErrAuthenticationFailed, err)
	}
	if _, _, err := hs.ReadMessage(msg2); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	// The responder's static key is known after the second message; refuse
	// to reveal ours to an instance outside the library.
	remote, err := remoteKey(hs)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(libraryID, remote); err != nil {
		logger.WithFields(logrus.Fields{
			"remote": remote.Short(),
			"error":  err.Error(),
		}).Warn("Responder is not a library member")
		return nil, fmt.Errorf("%w: responder %s: %v", ErrAuthenticationFailed, remote.Short(), err)
	}

	msg3, _, err := hs.WriteMessage(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if err := writeFrame(stream, msg3); err != nil {
		return nil, fmt.Errorf("write handshake: %w", err)
	}

	t, err := newTunnel(stream, libraryID, remote, hs)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"local":  hs.GetLocalStaticKey().Short(),
		"remote": remote.Short(),
	}).Debug("Tunnel established")
	return t, nil
}

// Responder accepts a tunnel on stream. The library is chosen by the
// initiator's preamble and must be present in keys; the initiator must be one
// of its members.
func Responder(stream io.ReadWriter, keys Keyring) (*Tunnel, error) {
	restore := applyDeadline(stream)
	defer restore()

	var libraryID uuid.UUID
	if _, err := io.ReadFull(stream, libraryID[:]); err != nil {
		return nil, fmt.Errorf("%w: read library preamble: %v", ErrAuthenticationFailed, err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"function":   "Responder",
		"library_id": libraryID,
	})

	identity, err := keys.Identity(libraryID)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Tunnel requested for unknown library")
		if errors.Is(err, ErrUnknownLibrary) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnknownLibrary, err)
	}

	hs, err := noise.NewXXHandshake(identity.Private[:], libraryID[:], noise.Responder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	msg1, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read handshake: %v", ErrAuthenticationFailed, err)
	}
	if _, _, err := hs.ReadMessage(msg1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	msg2, _, err := hs.WriteMessage(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if err := writeFrame(stream, msg2); err != nil {
		return nil, fmt.Errorf("write handshake: %w", err)
	}

	msg3, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read handshake: %v", ErrAuthenticationFailed, err)
	}
	if _, _, err := hs.ReadMessage(msg3); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	remote, err := remoteKey(hs)
	if err != nil {
		return nil, err
	}
	if err := keys.Authorize(libraryID, remote); err != nil {
		logger.WithFields(logrus.Fields{
			"remote": remote.Short(),
			"error":  err.Error(),
		}).Warn("Initiator is not a library member")
		return nil, fmt.Errorf("%w: initiator %s: %v", ErrAuthenticationFailed, remote.Short(), err)
	}

	t, err := newTunnel(stream, libraryID, remote, hs)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"local":  hs.GetLocalStaticKey().Short(),
		"remote": remote.Short(),
	}).Debug("Tunnel accepted")
	return t, nil
}

func remoteKey(hs *noise.XXHandshake) (crypto.PublicKey, error) {
	key, err := hs.GetRemoteStaticKey()
	if err != nil {
		return crypto.PublicKey{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return key, nil
}

func newTunnel(stream io.ReadWriter, libraryID uuid.UUID, remote crypto.PublicKey, hs *noise.XXHandshake) (*Tunnel, error) {
	if !hs.IsComplete() {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, noise.ErrHandshakeNotComplete)
	}
	send, recv, err := hs.GetCipherStates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return &Tunnel{
		conn:      stream,
		libraryID: libraryID,
		remote:    remote,
		send:      send,
		recv:      recv,
	}, nil
}

// LibraryID returns the library the tunnel is scoped to.
func (t *Tunnel) LibraryID() uuid.UUID {
	return t.libraryID
}

// RemoteIdentity returns the authenticated static key of the peer.
func (t *Tunnel) RemoteIdentity() crypto.PublicKey {
	return t.remote
}

// Write encrypts p into one or more frames.
func (t *Tunnel) Write(p []byte) (int, error) {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	written := 0
	for len(p) > 0 {
		n := len(p)
		if n > limits.MaxTunnelPlaintext {
			n = limits.MaxTunnelPlaintext
		}

		ct, err := t.send.Encrypt(t.wbuf[:0], nil, p[:n])
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		t.wbuf = ct
		if err := writeFrame(t.conn, ct); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Read decrypts the next frame if no plaintext is buffered and copies it into p.
func (t *Tunnel) Read(p []byte) (int, error) {
	t.rmu.Lock()
	defer t.rmu.Unlock()

	for len(t.pending) == 0 {
		frame, err := readFrame(t.conn)
		if err != nil {
			return 0, err
		}
		pt, err := t.recv.Decrypt(t.rbuf[:0], nil, frame)
		if err != nil {
			return 0, fmt.Errorf("%w: decrypt: %v", ErrAuthenticationFailed, err)
		}
		t.rbuf = pt
		t.pending = pt
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Close closes the underlying stream when it is closable.
func (t *Tunnel) Close() error {
	if c, ok := t.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if err := limits.ValidateSize(len(payload), limits.MaxNoiseMessage); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	buf := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[2:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	if err := limits.ValidateSize(int(n), limits.MaxNoiseMessage); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func applyDeadline(stream io.ReadWriter) func() {
	d, ok := stream.(deadliner)
	if !ok {
		return func() {}
	}
	if err := d.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return func() {}
	}
	return func() { _ = d.SetDeadline(time.Time{}) }
}
