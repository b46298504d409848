package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrCancelled indicates the transfer was stopped by either side.
	ErrCancelled = errors.New("transfer cancelled")
	// ErrInvalidState indicates an operation not allowed in the current state.
	ErrInvalidState = errors.New("transfer in invalid state")
)

// TransferDirection indicates whether a transfer is incoming or outgoing.
type TransferDirection uint8

const (
	// TransferDirectionIncoming represents a resource being received.
	TransferDirectionIncoming TransferDirection = iota
	// TransferDirectionOutgoing represents a resource being sent.
	TransferDirectionOutgoing
)

func (d TransferDirection) String() string {
	if d == TransferDirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// TransferState represents the current state of a transfer.
type TransferState uint8

const (
	// TransferStatePending indicates the transfer is waiting to start.
	TransferStatePending TransferState = iota
	// TransferStateRunning indicates the transfer is in progress.
	TransferStateRunning
	// TransferStateCompleted indicates every byte was delivered.
	TransferStateCompleted
	// TransferStateCancelled indicates either side cancelled.
	TransferStateCancelled
	// TransferStateError indicates the transfer failed.
	TransferStateError
)

func (s TransferState) String() string {
	switch s {
	case TransferStatePending:
		return "pending"
	case TransferStateRunning:
		return "running"
	case TransferStateCompleted:
		return "completed"
	case TransferStateCancelled:
		return "cancelled"
	case TransferStateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// CancelToken is a flag shared between the goroutine driving a transfer and
// whoever may want to stop it. It takes effect at the next block boundary.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the flag. It is safe to call more than once.
func (c *CancelToken) Cancel() {
	c.flag.Store(true)
}

// Cancelled reports whether Cancel was called.
func (c *CancelToken) Cancelled() bool {
	return c.flag.Load()
}

// Transfer drives one block-framed transfer over a stream.
type Transfer struct {
	ID        uuid.UUID
	Direction TransferDirection

	mu               sync.Mutex
	state            TransferState
	header           Header
	transferred      uint64
	startTime        time.Time
	lastBlockTime    time.Time
	transferSpeed    float64 // bytes per second
	err              error
	token            *CancelToken
	timeProvider     TimeProvider
	progressCallback func(percent uint8)
	completeCallback func(error)
}

// NewTransfer creates a pending transfer. A nil token gets a fresh one.
func NewTransfer(id uuid.UUID, direction TransferDirection, token *CancelToken) *Transfer {
	if token == nil {
		token = NewCancelToken()
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewTransfer",
		"transfer_id": id,
		"direction":   direction,
	}).Debug("Creating transfer")

	return &Transfer{
		ID:           id,
		Direction:    direction,
		state:        TransferStatePending,
		token:        token,
		timeProvider: defaultTimeProvider,
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (t *Transfer) SetTimeProvider(tp TimeProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeProvider = tp
}

// Token returns the transfer's cancellation token.
func (t *Transfer) Token() *CancelToken {
	return t.token
}

// Cancel requests cancellation at the next block boundary.
func (t *Transfer) Cancel() {
	t.token.Cancel()
}

// OnProgress sets a callback invoked with the percentage complete after each
// block. This method is safe for concurrent use.
func (t *Transfer) OnProgress(callback func(percent uint8)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progressCallback = callback
}

// OnComplete sets a callback invoked once when the transfer ends, with nil on
// success. This method is safe for concurrent use.
func (t *Transfer) OnComplete(callback func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completeCallback = callback
}

// State returns the current state.
func (t *Transfer) State() TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that ended the transfer, if any.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Header returns the framing header once it has been sent or received.
func (t *Transfer) Header() Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header
}

// Transferred returns the payload bytes moved so far.
func (t *Transfer) Transferred() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferred
}

// GetProgress returns the current progress as a percentage.
func (t *Transfer) GetProgress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return progressPercent(t.transferred, t.header.Length)
}

// GetSpeed returns the current transfer speed in bytes per second.
func (t *Transfer) GetSpeed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferSpeed
}

// GetEstimatedTimeRemaining returns the estimated time remaining.
func (t *Transfer) GetEstimatedTimeRemaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.transferSpeed <= 0 || t.transferred >= t.header.Length {
		return 0
	}
	remaining := float64(t.header.Length - t.transferred)
	return time.Duration(remaining / t.transferSpeed * float64(time.Second))
}

// Send writes the framing header for length bytes and then streams them from
// src in blocks, waiting for the receiver's acknowledgement after each one.
// src must already be positioned at the first byte of the range.
func (t *Transfer) Send(ctx context.Context, stream io.ReadWriter, src io.Reader, length uint64) error {
	header := Header{BlockSize: BlockSizeFromFileSize(length), Length: length}
	if err := t.start(header); err != nil {
		return err
	}

	logger := logrus.WithFields(logrus.Fields{
		"function":    "Send",
		"transfer_id": t.ID,
		"length":      length,
		"block_size":  header.BlockSize,
	})

	encoded, _ := header.MarshalBinary()
	if _, err := stream.Write(encoded); err != nil {
		return t.finish(fmt.Errorf("write header: %w", err))
	}
	logger.Debug("Sent block framing header")

	frame := make([]byte, dataFrameHeaderSize+int(header.BlockSize))
	var offset uint64
	for offset < length {
		if t.cancelled(ctx) {
			if _, err := stream.Write([]byte{frameCancel}); err != nil {
				logger.WithField("error", err.Error()).Debug("Failed to send cancel frame")
			}
			return t.finish(ErrCancelled)
		}

		n := int(header.BlockSize)
		if remaining := length - offset; remaining < uint64(n) {
			n = int(remaining)
		}
		if _, err := io.ReadFull(src, frame[dataFrameHeaderSize:dataFrameHeaderSize+n]); err != nil {
			return t.finish(fmt.Errorf("read source at offset %d: %w", offset, err))
		}
		if err := writeDataFrame(stream, frame, offset, n); err != nil {
			return t.finish(fmt.Errorf("write block at offset %d: %w", offset, err))
		}

		var ack [1]byte
		if _, err := io.ReadFull(stream, ack[:]); err != nil {
			return t.finish(fmt.Errorf("read acknowledgement: %w", err))
		}

		offset += uint64(n)
		t.advance(uint64(n))

		switch ack[0] {
		case ackContinue:
		case ackCancel:
			logger.WithField("offset", offset).Info("Receiver cancelled transfer")
			return t.finish(ErrCancelled)
		default:
			return t.finish(fmt.Errorf("%w: unknown acknowledgement %d", ErrProtocol, ack[0]))
		}
	}

	return t.finish(nil)
}

// Receive reads the framing header and then every block into sink. Bytes
// already written to sink stay there when the transfer fails or is cancelled.
func (t *Transfer) Receive(ctx context.Context, stream io.ReadWriter, sink io.Writer) error {
	if err := t.start(Header{}); err != nil {
		return err
	}

	header, err := ReadHeader(stream)
	if err != nil {
		return t.finish(fmt.Errorf("read header: %w", err))
	}
	t.mu.Lock()
	t.header = header
	t.mu.Unlock()

	logger := logrus.WithFields(logrus.Fields{
		"function":    "Receive",
		"transfer_id": t.ID,
		"length":      header.Length,
		"block_size":  header.BlockSize,
	})
	logger.Debug("Received block framing header")

	buf := make([]byte, header.BlockSize)
	var received uint64
	for received < header.Length {
		kind, offset, size, err := readFrameHeader(stream)
		if err != nil {
			return t.finish(fmt.Errorf("read block: %w", err))
		}
		if kind == frameCancel {
			logger.WithField("received", received).Info("Sender cancelled transfer")
			return t.finish(ErrCancelled)
		}
		if offset != received || size == 0 || size > uint32(header.BlockSize) || uint64(size) > header.Length-received {
			return t.finish(fmt.Errorf("%w: block offset %d size %d at position %d", ErrProtocol, offset, size, received))
		}

		if _, err := io.ReadFull(stream, buf[:size]); err != nil {
			return t.finish(fmt.Errorf("read block payload: %w", err))
		}
		if _, err := sink.Write(buf[:size]); err != nil {
			return t.finish(fmt.Errorf("write sink: %w", err))
		}

		received += uint64(size)
		t.advance(uint64(size))

		ack := ackContinue
		if t.cancelled(ctx) {
			ack = ackCancel
		}
		if _, err := stream.Write([]byte{ack}); err != nil {
			return t.finish(fmt.Errorf("write acknowledgement: %w", err))
		}
		if ack == ackCancel {
			return t.finish(ErrCancelled)
		}
	}

	return t.finish(nil)
}

func (t *Transfer) start(header Header) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TransferStatePending {
		return fmt.Errorf("%w: %s", ErrInvalidState, t.state)
	}
	now := t.timeProvider.Now()
	t.state = TransferStateRunning
	t.header = header
	t.startTime = now
	t.lastBlockTime = now
	return nil
}

// cancelled treats context cancellation the same as the token.
func (t *Transfer) cancelled(ctx context.Context) bool {
	if t.token.Cancelled() {
		return true
	}
	if ctx.Err() != nil {
		t.token.Cancel()
		return true
	}
	return false
}

func (t *Transfer) advance(n uint64) {
	t.mu.Lock()
	t.transferred += n
	t.updateTransferSpeed(n)
	cb := t.progressCallback
	percent := uint8(progressPercent(t.transferred, t.header.Length))
	t.mu.Unlock()

	if cb != nil {
		cb(percent)
	}
}

// updateTransferSpeed blends the latest block rate into the running estimate.
// Callers hold t.mu.
func (t *Transfer) updateTransferSpeed(blockSize uint64) {
	now := t.timeProvider.Now()
	elapsed := now.Sub(t.lastBlockTime).Seconds()
	t.lastBlockTime = now
	if elapsed <= 0 {
		return
	}

	instant := float64(blockSize) / elapsed
	if t.transferSpeed == 0 {
		t.transferSpeed = instant
	} else {
		t.transferSpeed = 0.7*t.transferSpeed + 0.3*instant
	}
}

func (t *Transfer) finish(err error) error {
	t.mu.Lock()
	switch {
	case err == nil:
		t.state = TransferStateCompleted
	case errors.Is(err, ErrCancelled):
		t.state = TransferStateCancelled
	default:
		t.state = TransferStateError
	}
	t.err = err
	state := t.state
	transferred := t.transferred
	elapsed := t.timeProvider.Since(t.startTime)
	cb := t.completeCallback
	t.mu.Unlock()

	entry := logrus.WithFields(logrus.Fields{
		"function":    "finish",
		"transfer_id": t.ID,
		"direction":   t.Direction,
		"state":       state,
		"transferred": transferred,
		"elapsed":     elapsed,
	})
	if state == TransferStateError {
		entry.WithField("error", err.Error()).Warn("Transfer failed")
	} else {
		entry.Debug("Transfer finished")
	}

	if cb != nil {
		cb(err)
	}
	return err
}

func progressPercent(done, total uint64) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
