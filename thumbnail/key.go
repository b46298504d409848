package thumbnail

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/thumbshare/limits"
)

const (
	// CacheDirName is the thumbnails directory under the data directory.
	CacheDirName = "thumbnails"
	// EphemeralDir holds thumbnails of items outside any library.
	EphemeralDir = "ephemeral"
	// WebPExtension is the extension of every stored thumbnail.
	WebPExtension = "webp"
	// TargetPixels is the pixel budget of a thumbnail, about 1024x1024.
	TargetPixels = 1_048_576
	// TargetQuality is the lossy WebP quality factor.
	TargetQuality = 60
	// GenerationTimeout bounds one generation end to end.
	GenerationTimeout = 60 * time.Second
	// ShardLength is the number of leading cas id characters naming a shard.
	ShardLength = limits.MinCasIDLength
	// VideoScale bounds the longer side of a video frame thumbnail.
	VideoScale = 1024
)

// ErrInvalidCasID indicates a content identifier unusable as a cache key.
var ErrInvalidCasID = errors.New("invalid cas id")

// Directory returns the thumbnails directory inside dataDir.
func Directory(dataDir string) string {
	return filepath.Join(dataDir, CacheDirName)
}

// ShardHex returns the shard directory name for casID: its first three
// characters, giving 4096 shards for hex ids. It panics when casID is shorter
// than ShardLength; validate untrusted ids with ValidateCasID first.
func ShardHex(casID string) string {
	if len(casID) < ShardLength {
		panic(fmt.Sprintf("thumbnail: cas id %q shorter than %d characters", casID, ShardLength))
	}
	return casID[:ShardLength]
}

// ValidateCasID checks that casID is a lowercase or uppercase hex string of
// acceptable length.
func ValidateCasID(casID string) error {
	if err := limits.ValidateCasIDLength(casID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCasID, err)
	}
	for i := 0; i < len(casID); i++ {
		c := casID[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return fmt.Errorf("%w: non-hex character %q at %d", ErrInvalidCasID, c, i)
		}
	}
	return nil
}

// Kind says whether a thumbnail belongs to a library or is ephemeral.
type Kind struct {
	library uuid.UUID
	indexed bool
}

// Ephemeral is the kind of thumbnails not tied to a library.
func Ephemeral() Kind {
	return Kind{}
}

// Indexed is the kind of thumbnails of files indexed in library.
func Indexed(library uuid.UUID) Kind {
	return Kind{library: library, indexed: true}
}

// IsEphemeral reports whether k is the ephemeral kind.
func (k Kind) IsEphemeral() bool {
	return !k.indexed
}

// LibraryID returns the library of an indexed kind.
func (k Kind) LibraryID() (uuid.UUID, bool) {
	return k.library, k.indexed
}

// Segment is the directory under the thumbnails directory for this kind.
func (k Kind) Segment() string {
	if k.indexed {
		return k.library.String()
	}
	return EphemeralDir
}

func (k Kind) String() string {
	return k.Segment()
}

// MarshalText encodes the kind as its directory segment.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.Segment()), nil
}

// UnmarshalText parses a directory segment.
func (k *Kind) UnmarshalText(text []byte) error {
	if string(text) == EphemeralDir {
		*k = Ephemeral()
		return nil
	}
	id, err := uuid.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("parse thumbnail kind %q: %w", text, err)
	}
	*k = Indexed(id)
	return nil
}

// ComputePath returns <thumbnailsDir>/<segment>/<shard>/<casID>.webp.
func (k Kind) ComputePath(thumbnailsDir, casID string) string {
	return filepath.Join(thumbnailsDir, k.Segment(), ShardHex(casID), casID+"."+WebPExtension)
}

// ThumbKey identifies a stored thumbnail to a client that will fetch it.
type ThumbKey struct {
	ShardHex      string `json:"shard_hex"`
	CasID         string `json:"cas_id"`
	BaseDirectory string `json:"base_directory_str"`
}

// NewThumbKey builds the key of casID under kind.
func NewThumbKey(casID string, kind Kind) ThumbKey {
	return ThumbKey{
		ShardHex:      ShardHex(casID),
		CasID:         casID,
		BaseDirectory: kind.Segment(),
	}
}

// NewIndexedThumbKey builds the key of casID in library.
func NewIndexedThumbKey(casID string, library uuid.UUID) ThumbKey {
	return NewThumbKey(casID, Indexed(library))
}

// NewEphemeralThumbKey builds the key of an ephemeral casID.
func NewEphemeralThumbKey(casID string) ThumbKey {
	return NewThumbKey(casID, Ephemeral())
}

// Path returns the key's location under thumbnailsDir.
func (k ThumbKey) Path(thumbnailsDir string) string {
	return filepath.Join(thumbnailsDir, k.BaseDirectory, k.ShardHex, k.CasID+"."+WebPExtension)
}
