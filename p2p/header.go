package p2p

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/opd-ai/thumbshare/file"
	"github.com/opd-ai/thumbshare/limits"
)

// ErrMalformedHeader is returned for a request envelope that cannot be decoded.
var ErrMalformedHeader = errors.New("malformed request header")

// HeaderKind tags the stream. Only library file requests exist today.
type HeaderKind uint8

// HeaderLibraryFile requests a resource of a library the peers share.
const HeaderLibraryFile HeaderKind = 1

// RequestKind selects how a library resource is named.
type RequestKind uint8

const (
	// RequestFile names an indexed file by its identifier.
	RequestFile RequestKind = iota
	// RequestThumbnail names a thumbnail by the content id of its source.
	RequestThumbnail
)

func (k RequestKind) String() string {
	switch k {
	case RequestFile:
		return "file"
	case RequestThumbnail:
		return "thumbnail"
	default:
		return fmt.Sprintf("RequestKind(%d)", k)
	}
}

// Request names one resource of a library.
type Request struct {
	Kind   RequestKind
	FileID uuid.UUID
	CasID  string
}

// FileRequest asks for the indexed file id.
func FileRequest(id uuid.UUID) Request {
	return Request{Kind: RequestFile, FileID: id}
}

// ThumbnailRequest asks for the thumbnail of casID.
func ThumbnailRequest(casID string) Request {
	return Request{Kind: RequestThumbnail, CasID: casID}
}

func (r Request) String() string {
	if r.Kind == RequestThumbnail {
		return "thumbnail:" + r.CasID
	}
	return "file:" + r.FileID.String()
}

// Header is the envelope an initiator writes before upgrading the stream to a
// tunnel:
//
//	[u8 kind][u8 request kind][16 byte file id | u16 LE length + cas id][range]
type Header struct {
	Request Request
	Range   file.Range
}

// MarshalBinary encodes the envelope.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, limits.MaxRequestHeader)
	buf = append(buf, byte(HeaderLibraryFile), byte(h.Request.Kind))

	switch h.Request.Kind {
	case RequestFile:
		buf = append(buf, h.Request.FileID[:]...)
	case RequestThumbnail:
		if err := limits.ValidateCasIDLength(h.Request.CasID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(h.Request.CasID)))
		buf = append(buf, h.Request.CasID...)
	default:
		return nil, fmt.Errorf("%w: unknown request kind %d", ErrMalformedHeader, h.Request.Kind)
	}

	rng, err := h.Range.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	return append(buf, rng...), nil
}

// ReadHeader decodes one envelope from r. It never reads past the envelope.
func ReadHeader(r io.Reader) (Header, error) {
	var tags [2]byte
	if _, err := io.ReadFull(r, tags[:]); err != nil {
		return Header{}, err
	}
	if HeaderKind(tags[0]) != HeaderLibraryFile {
		return Header{}, fmt.Errorf("%w: unknown header kind %d", ErrMalformedHeader, tags[0])
	}

	var h Header
	h.Request.Kind = RequestKind(tags[1])
	switch h.Request.Kind {
	case RequestFile:
		if _, err := io.ReadFull(r, h.Request.FileID[:]); err != nil {
			return Header{}, fmt.Errorf("%w: file id: %w", ErrMalformedHeader, err)
		}
	case RequestThumbnail:
		var size [2]byte
		if _, err := io.ReadFull(r, size[:]); err != nil {
			return Header{}, fmt.Errorf("%w: cas id length: %w", ErrMalformedHeader, err)
		}
		n := int(binary.LittleEndian.Uint16(size[:]))
		if n < limits.MinCasIDLength || n > limits.MaxCasIDLength {
			return Header{}, fmt.Errorf("%w: cas id length %d", ErrMalformedHeader, n)
		}
		cas := make([]byte, n)
		if _, err := io.ReadFull(r, cas); err != nil {
			return Header{}, fmt.Errorf("%w: cas id: %w", ErrMalformedHeader, err)
		}
		h.Request.CasID = string(cas)
	default:
		return Header{}, fmt.Errorf("%w: unknown request kind %d", ErrMalformedHeader, tags[1])
	}

	rng, err := file.ReadRange(r)
	if err != nil {
		return Header{}, fmt.Errorf("%w: range: %w", ErrMalformedHeader, err)
	}
	h.Range = rng
	return h, nil
}
