package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/thumbshare/crypto"
)

// DefaultDialTimeout bounds OpenStream when the caller's context has no deadline.
const DefaultDialTimeout = 10 * time.Second

var (
	// ErrUnknownPeer is returned by Session for an identity with no address.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrClosed is returned once the transport was closed.
	ErrClosed = errors.New("transport closed")
	// ErrAlreadyListening is returned by a second Listen call.
	ErrAlreadyListening = errors.New("transport already listening")
)

// Handler serves one inbound stream. The stream is closed when it returns.
// ctx is cancelled when the transport closes.
type Handler func(ctx context.Context, stream net.Conn)

// Options configures a TCPTransport.
type Options struct {
	// RequestsPerSecond is the sustained rate of accepted inbound connections.
	// Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the number of connections accepted at once above the rate.
	Burst int
	// DialTimeout defaults to DefaultDialTimeout.
	DialTimeout time.Duration
	// OnDrop is called for every connection refused by the limiter.
	OnDrop func()
}

// TCPTransport carries streams between library instances. Every stream is a
// dedicated TCP connection; peers are addressed by their identity.
type TCPTransport struct {
	listener   net.Listener
	listenAddr net.Addr
	limiter    *rate.Limiter
	dialer     net.Dialer
	onDrop     func()

	peers   map[crypto.PublicKey]string
	streams map[net.Conn]struct{}
	closed  bool
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTCPTransport creates a transport with no listener and no peers.
func NewTCPTransport(opts Options) *TCPTransport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TCPTransport{
		limiter: limiter,
		dialer:  net.Dialer{Timeout: opts.DialTimeout},
		onDrop:  opts.OnDrop,
		peers:   make(map[crypto.PublicKey]string),
		streams: make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Listen starts accepting inbound streams on addr and hands each one to
// handler on its own goroutine.
func (t *TCPTransport) Listen(addr string, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.listener != nil {
		return ErrAlreadyListening
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	t.listener = listener
	t.listenAddr = listener.Addr()

	logrus.WithFields(logrus.Fields{
		"function": "Listen",
		"address":  t.listenAddr.String(),
	}).Info("Accepting streams")

	t.wg.Add(1)
	go t.acceptConnections(listener, handler)
	return nil
}

// LocalAddr returns the listening address, or nil before Listen.
func (t *TCPTransport) LocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listenAddr
}

// AddPeer records the dial address of identity, replacing any previous one.
func (t *TCPTransport) AddPeer(identity crypto.PublicKey, address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[identity] = address
}

// RemovePeer forgets identity.
func (t *TCPTransport) RemovePeer(identity crypto.PublicKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, identity)
}

// Session returns a handle for opening streams to identity.
func (t *TCPTransport) Session(identity crypto.PublicKey) (*Session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, ErrClosed
	}
	address, ok := t.peers[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, identity.Short())
	}
	return &Session{transport: t, peer: identity, address: address}, nil
}

// Close stops the listener, closes every inbound stream and waits for their
// handlers to return.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.cancel()

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	for conn := range t.streams {
		conn.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	return err
}

func (t *TCPTransport) acceptConnections(listener net.Listener, handler Handler) {
	defer t.wg.Done()

	logger := logrus.WithField("function", "acceptConnections")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.WithError(err).Warn("Accept failed")
			continue
		}

		if t.limiter != nil && !t.limiter.Allow() {
			logger.WithField("remote", conn.RemoteAddr().String()).Warn("Inbound rate exceeded, dropping connection")
			conn.Close()
			if t.onDrop != nil {
				t.onDrop()
			}
			continue
		}

		if !t.registerStream(conn) {
			conn.Close()
			return
		}
		t.wg.Add(1)
		go t.handleConnection(conn, handler)
	}
}

func (t *TCPTransport) handleConnection(conn net.Conn, handler Handler) {
	defer t.wg.Done()
	defer t.unregisterStream(conn)
	defer conn.Close()

	handler(t.ctx, conn)
}

func (t *TCPTransport) registerStream(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.streams[conn] = struct{}{}
	return true
}

func (t *TCPTransport) unregisterStream(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streams, conn)
}

// Session addresses one remote library instance.
type Session struct {
	transport *TCPTransport
	peer      crypto.PublicKey
	address   string
}

// Peer returns the remote identity.
func (s *Session) Peer() crypto.PublicKey {
	return s.peer
}

// Address returns the dial address.
func (s *Session) Address() string {
	return s.address
}

// OpenStream dials a new stream to the peer.
func (s *Session) OpenStream(ctx context.Context) (net.Conn, error) {
	if s.transport.ctx.Err() != nil {
		return nil, ErrClosed
	}

	conn, err := s.transport.dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s at %s: %w", s.peer.Short(), s.address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "OpenStream",
		"peer":     s.peer.Short(),
		"address":  s.address,
	}).Debug("Stream opened")
	return conn, nil
}

// OpenStream dials a new stream to identity.
func (t *TCPTransport) OpenStream(ctx context.Context, identity crypto.PublicKey) (net.Conn, error) {
	session, err := t.Session(identity)
	if err != nil {
		return nil, err
	}
	return session.OpenStream(ctx)
}
