package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Index {
	t.Helper()
	x, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func TestPutResolveDelete(t *testing.T) {
	x := openTest(t)
	ctx := context.Background()
	library := uuid.New()
	fp := FilePath{
		ID:           uuid.New(),
		LocationPath: "/srv/photos",
		RelativePath: "2026/beach.jpg",
		CasID:        "abc123",
		Extension:    "jpg",
	}

	require.NoError(t, x.Put(library, fp))

	got, err := x.Resolve(ctx, library, fp.ID)
	require.NoError(t, err)
	assert.Equal(t, fp, got)
	assert.Equal(t, filepath.Join("/srv/photos", "2026", "beach.jpg"), got.FullPath())

	_, err = x.Resolve(ctx, uuid.New(), fp.ID)
	assert.ErrorIs(t, err, ErrNotFound, "entries are scoped by library")

	require.NoError(t, x.Delete(library, fp.ID))
	_, err = x.Resolve(ctx, library, fp.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, x.Delete(library, fp.ID))
}

func TestPutRequiresID(t *testing.T) {
	x := openTest(t)
	assert.Error(t, x.Put(uuid.New(), FilePath{RelativePath: "a"}))
}

func TestList(t *testing.T) {
	x := openTest(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, x.Put(a, FilePath{ID: uuid.New(), LocationPath: "/a", RelativePath: "f"}))
	}
	require.NoError(t, x.Put(b, FilePath{ID: uuid.New(), LocationPath: "/b", RelativePath: "g"}))

	listed, err := x.List(ctx, a)
	require.NoError(t, err)
	assert.Len(t, listed, 3)
	for _, p := range listed {
		assert.Equal(t, "/a", p.LocationPath)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = x.Resolve(cancelled, a, listed[0].ID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	library := uuid.New()
	fp := FilePath{ID: uuid.New(), LocationPath: "/x", RelativePath: "y"}

	x, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, x.Put(library, fp))
	require.NoError(t, x.Close())

	x, err = Open(dir)
	require.NoError(t, err)
	defer x.Close()
	got, err := x.Resolve(context.Background(), library, fp.ID)
	require.NoError(t, err)
	assert.Equal(t, fp, got)
}
