package thumbnail

import (
	"errors"
	"fmt"
)

// Generation failure kinds. A *GenerationError matches exactly one of them
// with errors.Is.
var (
	ErrDecodeFailed          = errors.New("decode failed")
	ErrEncodeFailed          = errors.New("encode failed")
	ErrWorkerPanicked        = errors.New("worker panicked")
	ErrDirectoryCreateFailed = errors.New("shard directory creation failed")
	ErrWriteFailed           = errors.New("thumbnail write failed")
	ErrExternalToolFailed    = errors.New("external tool failed")
	ErrTimeout               = errors.New("thumbnail generation timed out")
)

// GenerationError reports why one file's thumbnail could not be produced.
type GenerationError struct {
	Kind error
	Path string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newGenerationError(kind error, path string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Path: path, Err: err}
}

var errEmptyFrame = errors.New("frame extractor produced no output")
