package thumbnail

import (
	"bytes"
	"context"
	"image"
	"os"

	"github.com/opd-ai/thumbshare/media"
	"github.com/opd-ai/thumbshare/worker"
)

// Strategy renders the WebP thumbnail bytes for one media category.
type Strategy interface {
	Render(ctx context.Context, path, ext string) ([]byte, error)
}

// imageStrategy decodes, resizes, orients and encodes on the worker pool.
type imageStrategy struct {
	pool *worker.Pool
}

func (s imageStrategy) Render(ctx context.Context, path, ext string) ([]byte, error) {
	return worker.Run(ctx, s.pool, func() ([]byte, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, newGenerationError(ErrDecodeFailed, path, err)
		}
		defer f.Close()

		var img image.Image
		vector := normalizeExtension(ext) == "svg"
		if vector {
			img, err = renderSVG(f)
		} else {
			img, err = decodeRaster(f)
		}
		if err != nil {
			return nil, newGenerationError(ErrDecodeFailed, path, err)
		}

		img = resize(img)
		if !vector && shouldRotate(ext) {
			img = orient(img, readOrientation(path))
		}

		data, err := encodeWebP(img)
		if err != nil {
			return nil, newGenerationError(ErrEncodeFailed, path, err)
		}
		return data, nil
	})
}

// documentStrategy renders the first page with an external tool and then
// treats it as an image.
type documentStrategy struct {
	pool     *worker.Pool
	renderer media.DocumentRenderer
}

func (s documentStrategy) Render(ctx context.Context, path, _ string) ([]byte, error) {
	page, err := s.renderer.RenderFirstPage(ctx, path)
	if err != nil {
		return nil, newGenerationError(ErrExternalToolFailed, path, err)
	}

	return worker.Run(ctx, s.pool, func() ([]byte, error) {
		img, err := decodeRaster(bytes.NewReader(page))
		if err != nil {
			return nil, newGenerationError(ErrDecodeFailed, path, err)
		}
		data, err := encodeWebP(resize(img))
		if err != nil {
			return nil, newGenerationError(ErrEncodeFailed, path, err)
		}
		return data, nil
	})
}

// videoStrategy lets the frame extractor produce the WebP directly.
type videoStrategy struct {
	extractor media.FrameExtractor
}

func (s videoStrategy) Render(ctx context.Context, path, _ string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "thumbshare-frame-*."+WebPExtension)
	if err != nil {
		return nil, newGenerationError(ErrWriteFailed, path, err)
	}
	out := tmp.Name()
	tmp.Close()
	defer os.Remove(out)

	if err := s.extractor.ExtractThumbnail(ctx, path, out, VideoScale, TargetQuality); err != nil {
		return nil, newGenerationError(ErrExternalToolFailed, path, err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, newGenerationError(ErrExternalToolFailed, path, err)
	}
	if len(data) == 0 {
		return nil, newGenerationError(ErrExternalToolFailed, path, errEmptyFrame)
	}
	return data, nil
}
