package zarr

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}

	return buf
}

// readAll reassembles the full array from its chunks.
func readAll(t *testing.T, a *Array) []byte {
	t.Helper()

	shape := a.Shape()
	chunks := a.Chunks()
	out := make([]byte, volume(shape))
	zero := make([]int, len(shape))

	hi := make([]int, len(shape))
	for d := range shape {
		hi[d] = (shape[d] + chunks[d] - 1) / chunks[d]
	}

	err := forEachIndex(zero, hi, func(coords []int) error {
		buf, err := a.ReadChunk(coords)
		if err != nil {
			return err
		}

		origin := make([]int, len(coords))
		for d := range coords {
			origin[d] = coords[d] * chunks[d]
		}

		copyBox(out, zero, shape, buf, origin, chunks)

		return nil
	})
	require.NoError(t, err)

	return out
}

func TestCreateAndWriteV2(t *testing.T) {
	store := NewMemoryStore()

	a, err := Create(store, "", Options{Shape: []int{5, 4, 3}, Chunks: []int{2, 3, 2}})
	require.NoError(t, err)

	data := sequence(5 * 4 * 3)
	require.NoError(t, a.Write(data))

	// 3 x 2 x 2 chunk grid plus .zarray.
	assert.Equal(t, 13, store.Keys())
	assert.Equal(t, data, readAll(t, a))

	raw, err := store.Get(".zarray")
	require.NoError(t, err)

	var meta ArrayMeta
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, FormatV2, meta.ZarrFormat)
	assert.Equal(t, []int{5, 4, 3}, meta.Shape)
	assert.Equal(t, []int{2, 3, 2}, meta.Chunks)
	assert.Equal(t, "|u1", meta.DType)
	assert.Nil(t, meta.Compressor)
	assert.Equal(t, "/", meta.DimensionSeparator)
}

func TestEdgeChunksArePadded(t *testing.T) {
	store := NewMemoryStore()

	a, err := Create(store, "", Options{Shape: []int{3}, Chunks: []int{2}})
	require.NoError(t, err)
	require.NoError(t, a.Write([]byte{7, 8, 9}))

	last, err := a.ReadChunk([]int{1})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 0}, last)
}

func TestCodecsRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		level int
	}{
		{"raw", CodecRaw, 0},
		{"zstd", CodecZstd, 3},
		{"gzip", CodecGzip, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewCodec(tt.id, tt.level)
			require.NoError(t, err)
			defer codec.Close()

			store := NewMemoryStore()
			a, err := Create(store, "arr", Options{
				Shape:  []int{6, 10},
				Chunks: []int{4, 4},
				Codec:  codec,
			})
			require.NoError(t, err)

			data := sequence(60)
			require.NoError(t, a.Write(data))

			reopened, err := Open(store, "arr")
			require.NoError(t, err)
			defer reopened.Close()

			assert.Equal(t, tt.id, reopened.Codec().ID())
			assert.Equal(t, data, readAll(t, reopened))
		})
	}
}

func TestUnknownCodec(t *testing.T) {
	_, err := NewCodec("blosc", 5)
	assert.Error(t, err)
}

func TestResizeAndAppendRegion(t *testing.T) {
	store := NewMemoryStore()

	a, err := Create(store, "", Options{Shape: []int{3, 4}, Chunks: []int{2, 4}})
	require.NoError(t, err)

	first := sequence(12)
	require.NoError(t, a.Write(first))

	second := make([]byte, 12)
	for i := range second {
		second[i] = 200
	}

	require.NoError(t, a.Resize([]int{6, 4}))
	// Row 3 shares chunk 1 with row 2, so that chunk is merged.
	require.NoError(t, a.WriteRegion([]int{3, 0}, []int{3, 4}, second))

	got := readAll(t, a)
	assert.Equal(t, first, got[:12])
	assert.Equal(t, second, got[12:])

	reopened, err := Open(store, "")
	require.NoError(t, err)
	assert.Equal(t, []int{6, 4}, reopened.Shape())
}

func TestWriteRegionValidation(t *testing.T) {
	a, err := Create(NewMemoryStore(), "", Options{Shape: []int{4, 4}, Chunks: []int{2, 2}})
	require.NoError(t, err)

	assert.Error(t, a.WriteRegion([]int{0, 0}, []int{4, 4}, make([]byte, 3)))
	assert.Error(t, a.WriteRegion([]int{2, 0}, []int{4, 4}, make([]byte, 16)))
	assert.Error(t, a.WriteRegion([]int{0}, []int{4}, make([]byte, 4)))
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		shape  []int
		chunks []int
	}{
		{"empty", nil, nil},
		{"rank mismatch", []int{4, 4}, []int{2}},
		{"zero extent", []int{0, 4}, []int{1, 1}},
		{"negative chunk", []int{4, 4}, []int{-1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(NewMemoryStore(), "", Options{Shape: tt.shape, Chunks: tt.chunks})
			assert.Error(t, err)
		})
	}
}

func TestV3Layout(t *testing.T) {
	dir := t.TempDir()

	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	codec, err := NewZstd(1)
	require.NoError(t, err)
	defer codec.Close()

	a, err := Create(store, "", Options{
		Format: FormatV3,
		Shape:  []int{4, 4},
		Chunks: []int{2, 4},
		Codec:  codec,
	})
	require.NoError(t, err)
	require.NoError(t, a.Write(sequence(16)))

	assert.FileExists(t, filepath.Join(dir, "zarr.json"))
	assert.FileExists(t, filepath.Join(dir, "c", "0", "0"))
	assert.FileExists(t, filepath.Join(dir, "c", "1", "0"))

	raw, err := os.ReadFile(filepath.Join(dir, "zarr.json"))
	require.NoError(t, err)

	var meta ArrayMetaV3
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "array", meta.NodeType)
	assert.Equal(t, "uint8", meta.DataType)
	assert.Equal(t, []int{2, 4}, meta.ChunkGrid.Configuration.ChunkShape)
	require.Len(t, meta.Codecs, 2)
	assert.Equal(t, "zstd", meta.Codecs[1].Name)

	reopened, err := Open(store, "")
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, FormatV3, reopened.Format())
	assert.Equal(t, sequence(16), readAll(t, reopened))
}

func TestWriteGroup(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, WriteGroup(store, "img", map[string]string{"k": "v"}))

	raw, err := store.Get("img/.zgroup")
	require.NoError(t, err)
	assert.JSONEq(t, `{"zarr_format": 2}`, string(raw))

	raw, err = store.Get("img/.zattrs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"k": "v"}`, string(raw))
}

func TestLocalStoreMissingKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Open(store, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
