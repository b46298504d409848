// Package media drives the external programs that turn videos and documents
// into still images.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrToolFailed indicates an external program exited unsuccessfully.
	ErrToolFailed = errors.New("external tool failed")
	// ErrToolUnavailable indicates the program is not installed.
	ErrToolUnavailable = errors.New("external tool unavailable")
)

// FrameExtractor writes a WebP thumbnail of a representative video frame.
type FrameExtractor interface {
	ExtractThumbnail(ctx context.Context, source, output string, scale int, quality float32) error
}

// DocumentRenderer renders the first page of a document to PNG bytes.
type DocumentRenderer interface {
	RenderFirstPage(ctx context.Context, source string) ([]byte, error)
}

// Available reports whether binary can be found on PATH or at its given path.
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// run executes prog, capturing stderr into the returned error.
func run(ctx context.Context, stdout io.Writer, prog string, args ...string) error {
	cmd := exec.CommandContext(ctx, prog, args...)

	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s: %v", ErrToolUnavailable, prog, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s stderr=`%s`: %v", ErrToolFailed, prog, strings.TrimSpace(stderr.String()), err)
	}

	return nil
}

// FFmpeg extracts video frames with the ffmpeg binary.
type FFmpeg struct {
	// Path of the binary; "ffmpeg" when empty.
	Path string
}

// ExtractThumbnail picks a representative frame from source, scales its
// longer side down to at most scale pixels and writes it to output as WebP.
func (f FFmpeg) ExtractThumbnail(ctx context.Context, source, output string, scale int, quality float32) error {
	prog := f.Path
	if prog == "" {
		prog = "ffmpeg"
	}
	if err := run(ctx, nil, prog, FFmpegArgs(source, output, scale, quality)...); err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w", err)
	}
	return nil
}

// FFmpegArgs builds the ffmpeg command line used by ExtractThumbnail.
func FFmpegArgs(source, output string, scale int, quality float32) []string {
	s := strconv.Itoa(scale)
	filter := "thumbnail," +
		"scale='if(gt(iw,ih),min(" + s + ",iw),-1)':'if(gt(iw,ih),-1,min(" + s + ",ih))'"

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", source,
		"-vf", filter,
		"-frames:v", "1",
		"-c:v", "libwebp",
		"-quality", strconv.FormatFloat(float64(quality), 'f', -1, 32),
		"-f", "webp",
		output,
	}
}

// DefaultDPI is the rendering resolution used by Pdftoppm.
const DefaultDPI = 150

// Pdftoppm renders documents with poppler's pdftoppm.
type Pdftoppm struct {
	// Path of the binary; "pdftoppm" when empty.
	Path string
	// DPI defaults to DefaultDPI.
	DPI int
}

// RenderFirstPage renders page one of source and returns it as PNG.
func (p Pdftoppm) RenderFirstPage(ctx context.Context, source string) ([]byte, error) {
	prog := p.Path
	if prog == "" {
		prog = "pdftoppm"
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	var out bytes.Buffer
	if err := run(ctx, &out, prog, PdftoppmArgs(source, dpi)...); err != nil {
		return nil, fmt.Errorf("pdftoppm render: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no output", ErrToolFailed)
	}
	return out.Bytes(), nil
}

// PdftoppmArgs builds the pdftoppm command line. Without an output root,
// pdftoppm writes the single page to stdout.
func PdftoppmArgs(source string, dpi int) []string {
	return []string{
		"-png",
		"-singlefile",
		"-f", "1",
		"-l", "1",
		"-r", strconv.Itoa(dpi),
		source,
	}
}
