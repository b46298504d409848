package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"github.com/opd-ai/thumbshare/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	data  []byte
	err   error
	block bool
	calls int
}

func (f *fakeExtractor) ExtractThumbnail(ctx context.Context, _, output string, scale int, quality float32) error {
	f.calls++
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	if scale != VideoScale || quality != TargetQuality {
		return errors.New("unexpected extraction settings")
	}
	return os.WriteFile(output, f.data, 0o600)
}

type fakeRenderer struct {
	page []byte
	err  error
}

func (f fakeRenderer) RenderFirstPage(context.Context, string) ([]byte, error) {
	return f.page, f.err
}

type observation struct {
	category string
	result   string
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *fakeRecorder) ObserveGeneration(category, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{category, result})
}

type panickingStrategy struct {
	pool *worker.Pool
}

func (s panickingStrategy) Render(ctx context.Context, _, _ string) ([]byte, error) {
	return worker.Run(ctx, s.pool, func() ([]byte, error) {
		panic("decoder crashed")
	})
}

func newTestGenerator(t *testing.T, opts Options) (*Generator, string) {
	t.Helper()
	dir := t.TempDir()
	return NewGenerator(NewStore(Directory(dir)), opts), dir
}

func TestGenerateImage(t *testing.T) {
	rec := &fakeRecorder{}
	g, dir := newTestGenerator(t, Options{Recorder: rec})
	src := filepath.Join(dir, "photo.png")
	writePNG(t, src, 2048, 1024)
	library := uuid.New()

	out, err := g.Generate(context.Background(), Request{Extension: "png", CasID: testCasID, Path: src}, Indexed(library), false)
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, out.Status)
	assert.Equal(t, NewIndexedThumbKey(testCasID, library), out.Key)
	assert.True(t, out.Elapsed > 0)

	data, err := os.ReadFile(out.Key.Path(g.Store().Dir()))
	require.NoError(t, err)
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1448, cfg.Width)
	assert.Equal(t, 724, cfg.Height)
	assert.LessOrEqual(t, cfg.Width*cfg.Height, TargetPixels)

	assert.Equal(t, []observation{{"image", "generated"}}, rec.obs)
}

func TestGenerateIsIdempotent(t *testing.T) {
	g, dir := newTestGenerator(t, Options{})
	src := filepath.Join(dir, "photo.png")
	writePNG(t, src, 64, 64)
	req := Request{Extension: "png", CasID: testCasID, Path: src}

	first, err := g.Generate(context.Background(), req, Ephemeral(), false)
	require.NoError(t, err)
	require.Equal(t, StatusGenerated, first.Status)

	path := first.Key.Path(g.Store().Dir())
	before, err := os.Stat(path)
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := g.Generate(context.Background(), req, Ephemeral(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, first.Key, second.Key)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "skip must leave the file alone")
	assert.Equal(t, before.ModTime(), after.ModTime())
	secondBytes, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestGenerateRegenerateOverwrites(t *testing.T) {
	g, dir := newTestGenerator(t, Options{})
	src := filepath.Join(dir, "photo.png")
	writePNG(t, src, 64, 64)
	req := Request{Extension: "png", CasID: testCasID, Path: src}
	path := NewEphemeralThumbKey(testCasID).Path(g.Store().Dir())

	var (
		prev     os.FileInfo
		prevData []byte
	)
	for i := 0; i < 2; i++ {
		out, err := g.Generate(context.Background(), req, Ephemeral(), true)
		require.NoError(t, err)
		require.Equal(t, StatusGenerated, out.Status, "call %d", i)

		info, err := os.Stat(path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		if prev != nil {
			// Writes go through a temp file and rename, so a rewrite is a new file.
			assert.False(t, os.SameFile(prev, info), "regenerate must replace the file")
			assert.Equal(t, prevData, data, "same source and settings give the same bytes")
		}
		prev, prevData = info, data
	}
}

func TestGenerateSkipsUnsupported(t *testing.T) {
	g, dir := newTestGenerator(t, Options{})
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))

	for _, ext := range []string{"txt", "heic", "mp4", "pdf"} {
		out, err := g.Generate(context.Background(), Request{Extension: ext, CasID: testCasID, Path: src}, Ephemeral(), false)
		require.NoError(t, err, ext)
		assert.Equal(t, StatusSkipped, out.Status, ext)
		assert.NoFileExists(t, out.Key.Path(g.Store().Dir()), ext)
	}
}

func TestGenerateVideo(t *testing.T) {
	ext := &fakeExtractor{data: []byte("RIFF fake webp")}
	g, dir := newTestGenerator(t, Options{Extractor: ext})
	require.True(t, g.VideoEnabled())

	out, err := g.Generate(context.Background(), Request{Extension: "mp4", CasID: testCasID, Path: filepath.Join(dir, "clip.mp4")}, Ephemeral(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, out.Status)

	data, err := os.ReadFile(out.Key.Path(g.Store().Dir()))
	require.NoError(t, err)
	assert.Equal(t, "RIFF fake webp", string(data))
}

func TestGenerateVideoFailure(t *testing.T) {
	boom := errors.New("ffmpeg exploded")
	g, dir := newTestGenerator(t, Options{Extractor: &fakeExtractor{err: boom}})
	src := filepath.Join(dir, "clip.mkv")

	out, err := g.Generate(context.Background(), Request{Extension: "mkv", CasID: testCasID, Path: src}, Ephemeral(), false)
	require.ErrorIs(t, err, ErrExternalToolFailed)
	assert.ErrorIs(t, err, boom)

	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, src, ge.Path)
	assert.True(t, out.Elapsed > 0)
	assert.NoFileExists(t, NewEphemeralThumbKey(testCasID).Path(g.Store().Dir()))
}

func TestGenerateDocument(t *testing.T) {
	g, dir := newTestGenerator(t, Options{Renderer: fakeRenderer{page: pngBytes(t, 120, 160)}})

	out, err := g.Generate(context.Background(), Request{Extension: "pdf", CasID: testCasID, Path: filepath.Join(dir, "doc.pdf")}, Ephemeral(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, out.Status)
	assert.FileExists(t, out.Key.Path(g.Store().Dir()))
}

func TestGenerateDecodeFailure(t *testing.T) {
	rec := &fakeRecorder{}
	g, dir := newTestGenerator(t, Options{Recorder: rec})
	src := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(src, []byte("definitely not a jpeg"), 0o600))

	_, err := g.Generate(context.Background(), Request{Extension: "jpg", CasID: testCasID, Path: src}, Ephemeral(), false)
	assert.ErrorIs(t, err, ErrDecodeFailed)
	assert.Equal(t, []observation{{"image", "failed"}}, rec.obs)
}

func TestGenerateTimeout(t *testing.T) {
	g, dir := newTestGenerator(t, Options{Extractor: &fakeExtractor{block: true}, Timeout: 20 * time.Millisecond})

	_, err := g.Generate(context.Background(), Request{Extension: "mov", CasID: testCasID, Path: filepath.Join(dir, "a.mov")}, Ephemeral(), false)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerateConvertsWorkerPanic(t *testing.T) {
	g, dir := newTestGenerator(t, Options{})
	g.strategies[CategoryImage] = panickingStrategy{pool: worker.NewPool(1)}

	_, err := g.Generate(context.Background(), Request{Extension: "png", CasID: testCasID, Path: filepath.Join(dir, "a.png")}, Ephemeral(), false)
	assert.ErrorIs(t, err, ErrWorkerPanicked)
	assert.ErrorIs(t, err, worker.ErrPanicked)
}

func TestGenerateRejectsInvalidCasID(t *testing.T) {
	g, _ := newTestGenerator(t, Options{})

	_, err := g.Generate(context.Background(), Request{Extension: "png", CasID: "ab", Path: "x.png"}, Ephemeral(), false)
	assert.ErrorIs(t, err, ErrInvalidCasID)
}

func TestGenerateBatchContinuesPastFailures(t *testing.T) {
	g, dir := newTestGenerator(t, Options{BatchConcurrency: 2})

	good := filepath.Join(dir, "good.png")
	writePNG(t, good, 32, 32)
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o600))

	reqs := []Request{
		{Extension: "png", CasID: "aaa111", Path: bad},
		{Extension: "png", CasID: "bbb222", Path: good},
		{Extension: "txt", CasID: "ccc333", Path: good},
		{Extension: "png", CasID: "ddd444", Path: good},
	}
	results := g.GenerateBatch(context.Background(), reqs, Ephemeral(), false)
	require.Len(t, results, len(reqs))

	for i, r := range results {
		assert.Equal(t, reqs[i], r.Request)
	}
	assert.ErrorIs(t, results[0].Err, ErrDecodeFailed)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, StatusGenerated, results[1].Outcome.Status)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, StatusSkipped, results[2].Outcome.Status)
	assert.Equal(t, StatusGenerated, results[3].Outcome.Status)
}
