package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/thumbshare/crypto"
	"github.com/opd-ai/thumbshare/file"
	"github.com/opd-ai/thumbshare/metrics"
	"github.com/opd-ai/thumbshare/tunnel"
)

var (
	// ErrPeerUnavailable is returned when no stream can be opened to the peer.
	ErrPeerUnavailable = errors.New("peer unavailable")
	// ErrRejected is returned when the responder closed the stream before
	// framing a response. The reason is only known to the responder.
	ErrRejected = errors.New("request rejected by peer")
)

// Sessions opens raw streams to peers.
type Sessions interface {
	OpenStream(ctx context.Context, peer crypto.PublicKey) (net.Conn, error)
}

// Requester fetches resources from libraries shared with remote peers.
type Requester struct {
	Sessions Sessions
	// Keys provides the local identity of each library and authorizes the
	// responder.
	Keys tunnel.Keyring
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Transfers, when set, tracks incoming transfers so they can be cancelled.
	Transfers *file.Manager
}

// RequestOptions tunes a single request.
type RequestOptions struct {
	// Token cancels the transfer at the next block boundary. Created when nil.
	Token *file.CancelToken
	// OnProgress receives the completed percentage after every block.
	OnProgress func(percent uint8)
}

// Report summarizes a finished request.
type Report struct {
	ID uuid.UUID
	// Length is the number of bytes the responder framed.
	Length      uint64
	Transferred uint64
	Cancelled   bool
	// BytesPerSecond is the smoothed receive rate when the transfer ended.
	BytesPerSecond float64
}

// Request asks peer for req within libraryID and writes rng of it to out.
// A transfer cancelled through the token returns a Report with Cancelled set
// and no error; whatever reached out stays there.
func (r *Requester) Request(ctx context.Context, peer crypto.PublicKey, libraryID uuid.UUID, req Request, rng file.Range, out io.Writer, opts RequestOptions) (Report, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":   "Request",
		"peer":       peer.Short(),
		"library_id": libraryID,
		"request":    req.String(),
		"range":      rng.String(),
	})

	identity, err := r.Keys.Identity(libraryID)
	if err != nil {
		return Report{}, err
	}

	envelope, err := Header{Request: req, Range: rng}.MarshalBinary()
	if err != nil {
		return Report{}, err
	}

	stream, err := r.Sessions.OpenStream(ctx, peer)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrPeerUnavailable, err)
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = stream.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := stream.Write(envelope); err != nil {
		return Report{}, fmt.Errorf("%w: write request: %w", ErrPeerUnavailable, err)
	}

	tun, err := tunnel.Initiator(stream, libraryID, identity, r.Keys)
	if err != nil {
		if ctx.Err() != nil {
			return Report{}, ctx.Err()
		}
		if errors.Is(err, tunnel.ErrAuthenticationFailed) {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}

	transfer := file.NewTransfer(uuid.New(), file.TransferDirectionIncoming, opts.Token)
	if r.Transfers != nil {
		if err := r.Transfers.Track(transfer); err != nil {
			return Report{}, err
		}
	}
	transfer.OnProgress(func(percent uint8) {
		logger.WithFields(logrus.Fields{
			"percent": percent,
			"eta":     transfer.GetEstimatedTimeRemaining(),
		}).Debug("Receiving")
		if opts.OnProgress != nil {
			opts.OnProgress(percent)
		}
	})

	direction := transfer.Direction.String()
	r.Metrics.TransferStarted(direction)
	err = transfer.Receive(ctx, tun, out)

	report := Report{
		ID:          transfer.ID,
		Length:      transfer.Header().Length,
		Transferred: transfer.Transferred(),

		BytesPerSecond: transfer.GetSpeed(),
	}
	framed := transfer.Header().BlockSize != 0

	switch {
	case err == nil:
		r.Metrics.TransferFinished(direction, "completed", report.Transferred)
		logger.WithField("length", report.Length).Info("Request completed")
		return report, nil

	case errors.Is(err, file.ErrCancelled):
		report.Cancelled = true
		r.Metrics.TransferFinished(direction, "cancelled", report.Transferred)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		logger.WithField("transferred", report.Transferred).Info("Request cancelled")
		return report, nil

	default:
		r.Metrics.TransferFinished(direction, "failed", report.Transferred)
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Cancelled = true
			return report, ctxErr
		}
		if !framed {
			return report, fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return report, err
	}
}
