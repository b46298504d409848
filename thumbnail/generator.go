package thumbnail

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/opd-ai/thumbshare/media"
	"github.com/opd-ai/thumbshare/worker"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// Status is the result of a successful Generate call.
type Status uint8

const (
	// StatusGenerated means a thumbnail was written.
	StatusGenerated Status = iota
	// StatusSkipped means nothing was written, either because the thumbnail
	// already existed or because the file type is not thumbnailable.
	StatusSkipped
)

func (s Status) String() string {
	if s == StatusGenerated {
		return "generated"
	}
	return "skipped"
}

// Request names a source file and its content identifier.
type Request struct {
	Extension string
	CasID     string
	Path      string
}

// Outcome describes one generation. Elapsed is set even when Generate fails.
type Outcome struct {
	Key     ThumbKey
	Status  Status
	Elapsed time.Duration
}

// Recorder receives one observation per Generate call. result is
// "generated", "skipped" or "failed".
type Recorder interface {
	ObserveGeneration(category, result string, elapsed time.Duration)
}

// Options configures a Generator.
type Options struct {
	// Pool runs CPU-bound work; one sized to runtime.NumCPU is created when nil.
	Pool *worker.Pool
	// Renderer enables document thumbnails when set.
	Renderer media.DocumentRenderer
	// Extractor enables video thumbnails when set.
	Extractor media.FrameExtractor
	// Timeout defaults to GenerationTimeout.
	Timeout time.Duration
	// BatchConcurrency bounds GenerateBatch; defaults to runtime.NumCPU.
	BatchConcurrency int
	// Recorder is optional.
	Recorder Recorder
}

// Generator produces thumbnails into a Store.
type Generator struct {
	store            *Store
	strategies       map[Category]Strategy
	timeout          time.Duration
	batchConcurrency int
	recorder         Recorder
	now              func() time.Time
}

// NewGenerator creates a generator writing into store.
func NewGenerator(store *Store, opts Options) *Generator {
	if opts.Pool == nil {
		opts.Pool = worker.NewPool(runtime.NumCPU())
	}
	if opts.Timeout <= 0 {
		opts.Timeout = GenerationTimeout
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = runtime.NumCPU()
	}

	strategies := map[Category]Strategy{
		CategoryImage: imageStrategy{pool: opts.Pool},
	}
	if opts.Renderer != nil {
		strategies[CategoryDocument] = documentStrategy{pool: opts.Pool, renderer: opts.Renderer}
	}
	if opts.Extractor != nil {
		strategies[CategoryVideo] = videoStrategy{extractor: opts.Extractor}
	}

	return &Generator{
		store:            store,
		strategies:       strategies,
		timeout:          opts.Timeout,
		batchConcurrency: opts.BatchConcurrency,
		recorder:         opts.Recorder,
		now:              time.Now,
	}
}

// Store returns the store the generator writes into.
func (g *Generator) Store() *Store {
	return g.store
}

// VideoEnabled reports whether video thumbnails can be produced.
func (g *Generator) VideoEnabled() bool {
	_, ok := g.strategies[CategoryVideo]
	return ok
}

// Supports reports whether Generate would attempt ext.
func (g *Generator) Supports(ext string) bool {
	_, ok := g.strategyFor(ext)
	return ok
}

func (g *Generator) strategyFor(ext string) (Strategy, bool) {
	if !SupportsThumbnailing(ext, true) {
		return nil, false
	}
	s, ok := g.strategies[Classify(ext)]
	return s, ok
}

// Generate writes the thumbnail of req under kind unless it already exists
// and regenerate is false. Unsupported file types are skipped without error.
func (g *Generator) Generate(ctx context.Context, req Request, kind Kind, regenerate bool) (Outcome, error) {
	start := g.now()
	category := Classify(req.Extension)
	logger := logrus.WithFields(logrus.Fields{
		"function": "Generate",
		"path":     req.Path,
		"cas_id":   req.CasID,
		"kind":     kind,
	})

	if err := ValidateCasID(req.CasID); err != nil {
		g.observe(category, "failed", g.now().Sub(start))
		return Outcome{Elapsed: g.now().Sub(start)}, err
	}

	out := Outcome{Key: NewThumbKey(req.CasID, kind)}
	finish := func(status Status) Outcome {
		out.Status = status
		out.Elapsed = g.now().Sub(start)
		g.observe(category, status.String(), out.Elapsed)
		return out
	}

	path := g.store.Path(kind, req.CasID)
	if !regenerate && g.store.Exists(path) {
		logger.Debug("Thumbnail already exists, skipping")
		return finish(StatusSkipped), nil
	}

	strategy, ok := g.strategyFor(req.Extension)
	if !ok {
		logger.WithField("extension", req.Extension).Debug("No thumbnail strategy for extension, skipping")
		return finish(StatusSkipped), nil
	}

	genCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	data, err := strategy.Render(genCtx, req.Path, req.Extension)
	if err == nil {
		err = genCtx.Err()
	}
	if err == nil {
		err = g.store.Write(path, data)
	}
	if err != nil {
		err = classify(genCtx, req.Path, err)
		out.Elapsed = g.now().Sub(start)
		g.observe(category, "failed", out.Elapsed)
		logger.WithFields(logrus.Fields{
			"elapsed": out.Elapsed,
			"error":   err.Error(),
		}).Warn("Thumbnail generation failed")
		return out, err
	}

	out = finish(StatusGenerated)
	logger.WithField("elapsed", out.Elapsed).Debug("Generated thumbnail")
	return out, nil
}

// classify turns any generation failure into a *GenerationError, except a
// cancellation by the caller, which is returned as is.
func classify(ctx context.Context, path string, err error) error {
	var ge *GenerationError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newGenerationError(ErrTimeout, path, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, worker.ErrPanicked):
		return newGenerationError(ErrWorkerPanicked, path, err)
	case errors.As(err, &ge):
		return ge
	case errors.Is(err, ErrDirectoryCreateFailed):
		return newGenerationError(ErrDirectoryCreateFailed, path, err)
	case errors.Is(err, ErrWriteFailed):
		return newGenerationError(ErrWriteFailed, path, err)
	default:
		return newGenerationError(ErrDecodeFailed, path, err)
	}
}

func (g *Generator) observe(category Category, result string, elapsed time.Duration) {
	if g.recorder != nil {
		g.recorder.ObserveGeneration(category.String(), result, elapsed)
	}
}

// GenerateSingle generates one ad-hoc thumbnail behind throttle, holding
// its reservation for the whole generation. Only a Generated outcome
// restarts the throttle window. Batch work should call
// Generate or GenerateBatch instead.
func (g *Generator) GenerateSingle(ctx context.Context, throttle *Throttle, req Request, kind Kind) (Outcome, error) {
	r, err := throttle.Wait(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer r.Release()

	out, err := g.Generate(ctx, req, kind, false)
	if err == nil && out.Status == StatusGenerated {
		r.Generated()
	}
	return out, err
}

// BatchResult is the outcome of one file in a batch.
type BatchResult struct {
	Request Request
	Outcome Outcome
	Err     error
}

// GenerateBatch generates every request with bounded concurrency. A failing
// file never stops the others; results keep the order of reqs.
func (g *Generator) GenerateBatch(ctx context.Context, reqs []Request, kind Kind, regenerate bool) []BatchResult {
	results := make([]BatchResult, len(reqs))

	p := pool.New().WithMaxGoroutines(g.batchConcurrency)
	for i, req := range reqs {
		p.Go(func() {
			out, err := g.Generate(ctx, req, kind, regenerate)
			results[i] = BatchResult{Request: req, Outcome: out, Err: err}
		})
	}
	p.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "GenerateBatch",
		"kind":     kind,
		"total":    len(reqs),
		"failed":   failed,
	}).Info("Thumbnail batch finished")

	return results
}
