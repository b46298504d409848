package file

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/thumbshare/limits"
)

// DefaultBlockSize is the chunk granularity used for every transfer.
const DefaultBlockSize BlockSize = 128 * 1024

// HeaderSize is the encoded size of a Header.
const HeaderSize = 4 + 8

// Block frame types.
const (
	frameData   byte = 0
	frameCancel byte = 1
)

// Acknowledgement bytes sent by the receiver after each data block.
const (
	ackContinue byte = 0
	ackCancel   byte = 1
)

// dataFrameHeaderSize is [type][u64 offset][u32 size].
const dataFrameHeaderSize = 1 + 8 + 4

var (
	// ErrInvalidRange indicates a range that does not fit the resource.
	ErrInvalidRange = errors.New("invalid byte range")
	// ErrInvalidBlockSize indicates a zero or oversized block size.
	ErrInvalidBlockSize = errors.New("invalid block size")
	// ErrProtocol indicates a malformed or out-of-order block frame.
	ErrProtocol = errors.New("transfer protocol violation")
)

// BlockSize is the number of payload bytes carried by one data block.
type BlockSize uint32

// BlockSizeFromFileSize picks the block size for a resource of the given
// length. Every length currently maps to DefaultBlockSize.
func BlockSizeFromFileSize(uint64) BlockSize {
	return DefaultBlockSize
}

// ReadBlockSize reads a little-endian block size and rejects values a
// receiver should not allocate.
func ReadBlockSize(r io.Reader) (BlockSize, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	size := binary.LittleEndian.Uint32(buf[:])
	if err := limits.ValidateBlockSize(size); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBlockSize, err)
	}
	return BlockSize(size), nil
}

// Bytes returns the wire encoding of the block size.
func (b BlockSize) Bytes() []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(b))
	return buf[:]
}

// RangeKind tags a Range.
type RangeKind uint8

const (
	// RangeFull selects the whole resource.
	RangeFull RangeKind = iota
	// RangePartial selects [Start, End).
	RangePartial
)

// Range selects the portion of a resource to transfer.
type Range struct {
	Kind  RangeKind
	Start uint64
	End   uint64
}

// FullRange selects the whole resource.
func FullRange() Range {
	return Range{Kind: RangeFull}
}

// PartialRange selects bytes [start, end).
func PartialRange(start, end uint64) Range {
	return Range{Kind: RangePartial, Start: start, End: end}
}

// Bounds resolves the range against a resource of size bytes and returns the
// offset and length to transfer. An end past the resource is clamped.
func (r Range) Bounds(size uint64) (offset, length uint64, err error) {
	switch r.Kind {
	case RangeFull:
		return 0, size, nil
	case RangePartial:
		if r.Start > r.End {
			return 0, 0, fmt.Errorf("%w: start %d after end %d", ErrInvalidRange, r.Start, r.End)
		}
		if r.Start > size {
			return 0, 0, fmt.Errorf("%w: start %d beyond size %d", ErrInvalidRange, r.Start, size)
		}
		end := r.End
		if end > size {
			end = size
		}
		return r.Start, end - r.Start, nil
	default:
		return 0, 0, fmt.Errorf("%w: unknown kind %d", ErrInvalidRange, r.Kind)
	}
}

// MarshalBinary encodes the range as [kind] or [kind][u64 start][u64 end].
func (r Range) MarshalBinary() ([]byte, error) {
	switch r.Kind {
	case RangeFull:
		return []byte{byte(RangeFull)}, nil
	case RangePartial:
		buf := make([]byte, 17)
		buf[0] = byte(RangePartial)
		binary.LittleEndian.PutUint64(buf[1:9], r.Start)
		binary.LittleEndian.PutUint64(buf[9:17], r.End)
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidRange, r.Kind)
	}
}

// ReadRange decodes a range written by MarshalBinary.
func ReadRange(r io.Reader) (Range, error) {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return Range{}, err
	}
	switch RangeKind(kind[0]) {
	case RangeFull:
		return FullRange(), nil
	case RangePartial:
		var buf [16]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Range{}, err
		}
		return PartialRange(
			binary.LittleEndian.Uint64(buf[0:8]),
			binary.LittleEndian.Uint64(buf[8:16]),
		), nil
	default:
		return Range{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidRange, kind[0])
	}
}

func (r Range) String() string {
	if r.Kind == RangeFull {
		return "full"
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Header is sent by the responder before any payload byte. Length is the
// number of payload bytes that follow, which for a partial range is the
// range's length rather than the resource size.
type Header struct {
	BlockSize BlockSize
	Length    uint64
}

// MarshalBinary encodes the header as [u32 LE block size][u64 LE length].
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.BlockSize))
	binary.LittleEndian.PutUint64(buf[4:12], h.Length)
	return buf, nil
}

// ReadHeader reads and validates a Header.
func ReadHeader(r io.Reader) (Header, error) {
	bs, err := ReadBlockSize(r)
	if err != nil {
		return Header{}, err
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{BlockSize: bs, Length: binary.LittleEndian.Uint64(buf[:])}, nil
}

// writeDataFrame fills in the frame header of frame, whose first n payload
// bytes already sit after the header, and writes it.
func writeDataFrame(w io.Writer, frame []byte, offset uint64, n int) error {
	frame[0] = frameData
	binary.LittleEndian.PutUint64(frame[1:9], offset)
	binary.LittleEndian.PutUint32(frame[9:13], uint32(n))
	_, err := w.Write(frame[:dataFrameHeaderSize+n])
	return err
}

// readFrameHeader returns the frame type and, for data frames, the offset and size.
func readFrameHeader(r io.Reader) (kind byte, offset uint64, size uint32, err error) {
	var t [1]byte
	if _, err = io.ReadFull(r, t[:]); err != nil {
		return 0, 0, 0, err
	}
	switch t[0] {
	case frameCancel:
		return frameCancel, 0, 0, nil
	case frameData:
		var hdr [12]byte
		if _, err = io.ReadFull(r, hdr[:]); err != nil {
			return 0, 0, 0, err
		}
		return frameData, binary.LittleEndian.Uint64(hdr[0:8]), binary.LittleEndian.Uint32(hdr[8:12]), nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: unknown frame type %d", ErrProtocol, t[0])
	}
}
