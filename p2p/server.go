package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/thumbshare/file"
	"github.com/opd-ai/thumbshare/index"
	"github.com/opd-ai/thumbshare/metrics"
	"github.com/opd-ai/thumbshare/thumbnail"
	"github.com/opd-ai/thumbshare/tunnel"
)

// ErrResourceNotFound is returned when a file identifier is not indexed or
// the resolved file does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// Resolver looks up indexed files.
type Resolver interface {
	Resolve(ctx context.Context, library, id uuid.UUID) (index.FilePath, error)
}

// Server answers library file requests.
type Server struct {
	// Libraries authenticates initiators and provides local identities.
	Libraries tunnel.Keyring
	// Index resolves RequestFile. Without it such requests are not found.
	Index Resolver
	// ThumbnailsDir is the root of the thumbnail store.
	ThumbnailsDir string
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Transfers, when set, tracks outgoing transfers so they can be cancelled.
	Transfers *file.Manager
}

// Handle reads the request envelope from stream and serves it. It matches
// transport.Handler; errors are only logged since the peer must never learn
// why a request was refused.
func (s *Server) Handle(ctx context.Context, stream net.Conn) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Handle",
		"remote":   stream.RemoteAddr().String(),
	})

	_ = stream.SetReadDeadline(time.Now().Add(tunnel.HandshakeTimeout))
	header, err := ReadHeader(stream)
	_ = stream.SetReadDeadline(time.Time{})
	if err != nil {
		s.Metrics.RequestRejected("malformed")
		logger.WithField("error", err.Error()).Warn("Dropping stream with unreadable request header")
		return
	}

	if err := s.Serve(ctx, stream, header); err != nil {
		logger.WithFields(logrus.Fields{
			"request": header.Request.String(),
			"error":   err.Error(),
		}).Debug("Request ended with error")
	}
}

// Serve authenticates the initiator through a tunnel and streams the
// requested resource. Any failure before the framing header is sent returns
// without writing anything further, and the caller closes the stream.
func (s *Server) Serve(ctx context.Context, stream io.ReadWriter, header Header) error {
	state := StateUnauthenticated
	logger := logrus.WithFields(logrus.Fields{
		"function": "Serve",
		"request":  header.Request.String(),
		"range":    header.Range.String(),
	})
	transition := func(next State) {
		logger.WithFields(logrus.Fields{
			"from": state,
			"to":   next,
		}).Debug("Request state")
		state = next
	}
	reject := func(reason string, err error) error {
		s.Metrics.RequestRejected(reason)
		logger.WithFields(logrus.Fields{
			"state":  state,
			"reason": reason,
			"error":  err.Error(),
		}).Warn("Rejecting request")
		transition(StateFailed)
		return err
	}

	tun, err := tunnel.Responder(stream, s.Libraries)
	if err != nil {
		if errors.Is(err, tunnel.ErrUnknownLibrary) {
			return reject("unknown_library", err)
		}
		return reject("unauthenticated", err)
	}
	libraryID := tun.LibraryID()
	logger = logger.WithFields(logrus.Fields{
		"library_id": libraryID,
		"remote":     tun.RemoteIdentity().Short(),
	})
	transition(StateAuthenticated)

	root, path, err := s.resolve(ctx, libraryID, header.Request)
	if err != nil {
		return reject(rejectionReason(err), err)
	}
	transition(StateResolved)

	ext := ""
	if header.Request.Kind == RequestThumbnail {
		ext = thumbnail.WebPExtension
	}
	path, err = file.AuthorizePath(root, path, ext)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %w", ErrResourceNotFound, err)
		}
		return reject(rejectionReason(err), err)
	}
	transition(StateAuthorized)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return reject("not_found", fmt.Errorf("%w: %w", ErrResourceNotFound, err))
		}
		return reject("io", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return reject("io", err)
	}
	if !info.Mode().IsRegular() {
		return reject("unauthorized", fmt.Errorf("%w: not a regular file", file.ErrPathNotAuthorized))
	}
	offset, length, err := header.Range.Bounds(uint64(info.Size()))
	if err != nil {
		return reject("invalid_range", err)
	}

	transfer := file.NewTransfer(uuid.New(), file.TransferDirectionOutgoing, nil)
	if s.Transfers != nil {
		if err := s.Transfers.Track(transfer); err != nil {
			return reject("io", err)
		}
	}
	transfer.OnProgress(func(percent uint8) {
		if state == StateFramed {
			transition(StateTransferring)
		}
		logger.WithField("percent", percent).Debug("Serving")
	})

	logger.WithFields(logrus.Fields{
		"path":        path,
		"transfer_id": transfer.ID,
		"length":      length,
	}).Info("Serving resource")

	direction := transfer.Direction.String()
	s.Metrics.TransferStarted(direction)
	transition(StateFramed)
	err = transfer.Send(ctx, tun, io.NewSectionReader(f, int64(offset), int64(length)), length)
	switch {
	case err == nil:
		transition(StateCompleted)
		s.Metrics.TransferFinished(direction, "completed", transfer.Transferred())
		logger.WithField("bytes_per_second", transfer.GetSpeed()).Debug("Resource served")
	case errors.Is(err, file.ErrCancelled):
		transition(StateCancelled)
		s.Metrics.TransferFinished(direction, "cancelled", transfer.Transferred())
	default:
		transition(StateFailed)
		s.Metrics.TransferFinished(direction, "failed", transfer.Transferred())
		logger.WithFields(logrus.Fields{
			"progress": transfer.GetProgress(),
			"error":    err.Error(),
		}).Warn("Serving failed mid-transfer")
	}
	return err
}

// resolve maps a request to the directory it must stay within and the path
// to serve.
func (s *Server) resolve(ctx context.Context, libraryID uuid.UUID, req Request) (root, path string, err error) {
	switch req.Kind {
	case RequestFile:
		if s.Index == nil {
			return "", "", fmt.Errorf("%w: no index", ErrResourceNotFound)
		}
		fp, err := s.Index.Resolve(ctx, libraryID, req.FileID)
		if err != nil {
			if errors.Is(err, index.ErrNotFound) {
				return "", "", fmt.Errorf("%w: %w", ErrResourceNotFound, err)
			}
			return "", "", err
		}
		return fp.LocationPath, fp.FullPath(), nil

	case RequestThumbnail:
		if err := thumbnail.ValidateCasID(req.CasID); err != nil {
			return "", "", fmt.Errorf("%w: %w", file.ErrPathNotAuthorized, err)
		}
		kind := thumbnail.Indexed(libraryID)
		root := filepath.Join(s.ThumbnailsDir, kind.Segment())
		return root, kind.ComputePath(s.ThumbnailsDir, req.CasID), nil

	default:
		return "", "", fmt.Errorf("%w: request kind %d", ErrMalformedHeader, req.Kind)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, file.ErrPathNotAuthorized):
		return "unauthorized"
	case errors.Is(err, ErrResourceNotFound):
		return "not_found"
	default:
		return "io"
	}
}
