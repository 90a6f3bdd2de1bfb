package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/zarrbench/workload"
	"github.com/weiihann/zarrbench/zarr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) (*Registry, string) {
	t.Helper()

	dir := t.TempDir()

	return Default(dir, workload.NewGenerator(1), discardLogger()), dir
}

func TestDefaultRegistry(t *testing.T) {
	r, dir := testRegistry(t)

	assert.Equal(t, KnownBackends(), r.Names())

	a, ok := r.Lookup(ZarrV2Zstd)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "zarr-v2-zstd.zarr"), a.Path())

	_, ok = r.Lookup("NotARealBackend")
	assert.False(t, ok)

	assert.True(t, r.Supports(ZarrV2, CapAppend))
	assert.True(t, r.Supports(ZarrV2Zstd, CapAppend))
	assert.False(t, r.Supports(OMEZarr, CapAppend))
	assert.False(t, r.Supports(ZarrV3, CapAppend))
	assert.True(t, r.Supports(ZarrV3, CapGeneratesData))
	assert.False(t, r.Supports("missing", CapAppend))
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	gen := workload.NewGenerator(1)
	a := NewArrayWriter(WriterConfig{Name: "x"}, gen, discardLogger())
	b := NewArrayWriter(WriterConfig{Name: "x"}, gen, discardLogger())

	_, err := NewRegistry(a, b)
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("tmp", "ome-zarr.zarr"), ResolvePath("tmp", OMEZarr))
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "write", Capability(0).String())
	assert.Equal(t, "write,append", CapAppend.String())
	assert.Equal(t, "write,append,generates-data", (CapAppend | CapGeneratesData).String())
}

func TestWriteEachBackend(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()
	shape := []int{4, 6, 6}
	chunks := []int{2, 3, 3}
	data := workload.NewGenerator(5).Fill(shape)

	for _, a := range r.Adapters() {
		t.Run(a.Name(), func(t *testing.T) {
			var in []byte
			if !a.Capabilities().Has(CapGeneratesData) {
				in = data
			}

			elapsed, err := a.Write(ctx, shape, chunks, in)
			require.NoError(t, err)
			assert.Positive(t, elapsed)

			size, err := DirSize(a.Path())
			require.NoError(t, err)
			assert.Positive(t, size)

			store, err := zarr.NewLocalStore(a.Path())
			require.NoError(t, err)

			prefix := ""
			if a.Name() == OMEZarr {
				prefix = omeDatasetPath
			}

			arr, err := zarr.Open(store, prefix)
			require.NoError(t, err)
			defer arr.Close()

			assert.Equal(t, shape, arr.Shape())
			assert.Equal(t, chunks, arr.Chunks())
		})
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	r, _ := testRegistry(t)
	a, _ := r.Lookup(ZarrV2)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(a.Path(), "stale"), 0o755))

	_, err := a.Write(ctx, []int{2, 2}, []int{2, 2}, make([]byte, 4))
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(a.Path(), "stale"))
}

func TestWriteWithoutDataFails(t *testing.T) {
	r, _ := testRegistry(t)
	a, _ := r.Lookup(ZarrV2)

	_, err := a.Write(context.Background(), []int{2, 2}, []int{2, 2}, nil)
	assert.Error(t, err)
}

func TestOMEGroupMetadata(t *testing.T) {
	r, _ := testRegistry(t)
	a, _ := r.Lookup(OMEZarr)

	_, err := a.Write(context.Background(), []int{4, 4, 4}, []int{2, 2, 2}, make([]byte, 64))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(a.Path(), ".zgroup"))

	raw, err := os.ReadFile(filepath.Join(a.Path(), ".zattrs"))
	require.NoError(t, err)

	var attrs omeAttrs
	require.NoError(t, json.Unmarshal(raw, &attrs))
	require.Len(t, attrs.Multiscales, 1)

	ms := attrs.Multiscales[0]
	assert.Equal(t, "0.4", ms.Version)
	require.Len(t, ms.Axes, 3)
	assert.Equal(t, "z", ms.Axes[0].Name)
	assert.Equal(t, "x", ms.Axes[2].Name)
	assert.Equal(t, "0", ms.Datasets[0].Path)
}

func TestOMERankLimits(t *testing.T) {
	_, err := omeImageAttrs(1)
	assert.Error(t, err)

	_, err = omeImageAttrs(6)
	assert.Error(t, err)

	_, err = omeImageAttrs(5)
	assert.NoError(t, err)
}

func TestAppendGrowsArray(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()
	shape := []int{3, 4}
	chunks := []int{2, 4}
	gen := workload.NewGenerator(9)

	for _, name := range []string{ZarrV2, ZarrV2Zstd} {
		t.Run(name, func(t *testing.T) {
			a, _ := r.Lookup(name)
			app, ok := a.(Appender)
			require.True(t, ok)

			var want []byte
			for m := 1; m <= 3; m++ {
				data := gen.Fill(shape)
				want = append(want, data...)

				newShape := []int{shape[0] * m, shape[1]}
				_, err := app.Append(ctx, shape, chunks, newShape, data, m)
				require.NoError(t, err)
			}

			store, err := zarr.NewLocalStore(a.Path())
			require.NoError(t, err)

			arr, err := zarr.Open(store, "")
			require.NoError(t, err)
			defer arr.Close()

			assert.Equal(t, []int{9, 4}, arr.Shape())

			var got []byte
			for c := 0; c < 5; c++ {
				chunk, err := arr.ReadChunk([]int{c, 0})
				require.NoError(t, err)
				got = append(got, chunk...)
			}

			assert.Equal(t, want, got[:len(want)])
		})
	}
}

func TestAppendRejectsBadGrowth(t *testing.T) {
	r, _ := testRegistry(t)
	a, _ := r.Lookup(ZarrV2)
	app := a.(Appender)
	ctx := context.Background()

	_, err := app.Append(ctx, []int{2, 2}, []int{2, 2}, []int{2, 2}, make([]byte, 4), 1)
	require.NoError(t, err)

	_, err = app.Append(ctx, []int{2, 2}, []int{2, 2}, []int{8, 2}, make([]byte, 4), 2)
	assert.Error(t, err)
}

func TestAppendUnsupported(t *testing.T) {
	r, _ := testRegistry(t)
	a, _ := r.Lookup(OMEZarr)
	app := a.(Appender)

	_, err := app.Append(context.Background(), []int{2, 2}, []int{2, 2}, []int{2, 2}, make([]byte, 4), 1)
	assert.ErrorIs(t, err, ErrAppendUnsupported)
}

func TestDirSizeMissing(t *testing.T) {
	size, err := DirSize(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestModeLabel(t *testing.T) {
	assert.Equal(t, "Zarr V2 Write", ModeWrite.Label(ZarrV2))
	assert.Equal(t, "Zarr V2 Append", ModeAppend.Label(ZarrV2))
}
