package zarr

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Options describe a new array.
type Options struct {
	Format int
	Shape  []int
	Chunks []int
	// Codec defaults to Raw when nil. The array does not take ownership.
	Codec Codec
}

// Array is a handle on a uint8 array stored under a prefix of a Store.
type Array struct {
	store  Store
	prefix string
	format int
	shape  []int
	chunks []int
	codec  Codec
}

// Create writes fresh metadata for an array at prefix. Existing chunks
// under the prefix are not removed.
func Create(store Store, prefix string, opts Options) (*Array, error) {
	if opts.Format == 0 {
		opts.Format = FormatV2
	}

	if opts.Codec == nil {
		opts.Codec = Raw()
	}

	if err := validate(opts.Shape, opts.Chunks); err != nil {
		return nil, err
	}

	a := &Array{
		store:  store,
		prefix: prefix,
		format: opts.Format,
		shape:  append([]int(nil), opts.Shape...),
		chunks: append([]int(nil), opts.Chunks...),
		codec:  opts.Codec,
	}

	if err := writeMeta(store, prefix, a); err != nil {
		return nil, fmt.Errorf("create array: %w", err)
	}

	return a, nil
}

// Open loads the array whose metadata lives at prefix. The caller owns
// the returned array's codec and should Close the array when done.
func Open(store Store, prefix string) (*Array, error) {
	format, shape, chunks, codec, err := readMeta(store, prefix)
	if err != nil {
		return nil, fmt.Errorf("open array %q: %w", prefix, err)
	}

	if err := validate(shape, chunks); err != nil {
		codec.Close()

		return nil, fmt.Errorf("open array %q: %w", prefix, err)
	}

	return &Array{
		store:  store,
		prefix: prefix,
		format: format,
		shape:  shape,
		chunks: chunks,
		codec:  codec,
	}, nil
}

// Close releases the array's codec.
func (a *Array) Close() error {
	return a.codec.Close()
}

// Format returns 2 or 3.
func (a *Array) Format() int { return a.format }

// Shape returns a copy of the array extents.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Chunks returns a copy of the chunk extents.
func (a *Array) Chunks() []int { return append([]int(nil), a.chunks...) }

// Codec returns the compressor applied to every chunk.
func (a *Array) Codec() Codec { return a.codec }

// Resize changes the array extents and rewrites the metadata. Chunks
// outside the new bounds are left in place.
func (a *Array) Resize(shape []int) error {
	if err := validate(shape, a.chunks); err != nil {
		return fmt.Errorf("resize: %w", err)
	}

	a.shape = append([]int(nil), shape...)

	if err := writeMeta(a.store, a.prefix, a); err != nil {
		return fmt.Errorf("resize: %w", err)
	}

	return nil
}

// Write stores data as the full contents of the array.
func (a *Array) Write(data []byte) error {
	return a.WriteRegion(make([]int, len(a.shape)), a.shape, data)
}

// WriteRegion stores data, laid out in C order with extents
// regionShape, at origin. Chunks only partly covered by the region are
// read back and merged.
func (a *Array) WriteRegion(origin, regionShape []int, data []byte) error {
	rank := len(a.shape)
	if len(origin) != rank || len(regionShape) != rank {
		return fmt.Errorf("region rank %d/%d, array rank %d",
			len(origin), len(regionShape), rank)
	}

	if int64(len(data)) != volume(regionShape) {
		return fmt.Errorf("region %v needs %d bytes, got %d",
			regionShape, volume(regionShape), len(data))
	}

	lo := make([]int, rank)
	hi := make([]int, rank)

	for d := 0; d < rank; d++ {
		end := origin[d] + regionShape[d]
		if origin[d] < 0 || regionShape[d] <= 0 || end > a.shape[d] {
			return fmt.Errorf("region %v at %v outside array %v",
				regionShape, origin, a.shape)
		}

		lo[d] = origin[d] / a.chunks[d]
		hi[d] = (end-1)/a.chunks[d] + 1
	}

	chunkLen := volume(a.chunks)

	return forEachIndex(lo, hi, func(coords []int) error {
		chunkOrigin := make([]int, rank)
		for d := range coords {
			chunkOrigin[d] = coords[d] * a.chunks[d]
		}

		var buf []byte

		if a.covers(origin, regionShape, chunkOrigin) {
			buf = make([]byte, chunkLen)
		} else {
			existing, err := a.ReadChunk(coords)
			switch {
			case errors.Is(err, ErrNotFound):
				buf = make([]byte, chunkLen)
			case err != nil:
				return err
			default:
				buf = existing
			}
		}

		copyBox(buf, chunkOrigin, a.chunks, data, origin, regionShape)

		encoded, err := a.codec.Encode(buf)
		if err != nil {
			return fmt.Errorf("encode chunk %v: %w", coords, err)
		}

		return a.store.Set(a.chunkKey(coords), encoded)
	})
}

// ReadChunk returns the decoded chunk at grid coordinates coords.
func (a *Array) ReadChunk(coords []int) ([]byte, error) {
	raw, err := a.store.Get(a.chunkKey(coords))
	if err != nil {
		return nil, err
	}

	buf, err := a.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %v: %w", coords, err)
	}

	if int64(len(buf)) != volume(a.chunks) {
		return nil, fmt.Errorf("chunk %v has %d bytes, want %d",
			coords, len(buf), volume(a.chunks))
	}

	return buf, nil
}

// covers reports whether the region fills every in-bounds element of
// the chunk starting at chunkOrigin.
func (a *Array) covers(origin, regionShape, chunkOrigin []int) bool {
	for d := range chunkOrigin {
		chunkEnd := min(chunkOrigin[d]+a.chunks[d], a.shape[d])
		if origin[d] > chunkOrigin[d] || origin[d]+regionShape[d] < chunkEnd {
			return false
		}
	}

	return true
}

func (a *Array) chunkKey(coords []int) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.Itoa(c)
	}

	key := strings.Join(parts, "/")
	if a.format == FormatV3 {
		key = "c/" + key
	}

	return path.Join(a.prefix, key)
}

func validate(shape, chunks []int) error {
	if len(shape) == 0 {
		return errors.New("shape must have at least one dimension")
	}

	if len(shape) != len(chunks) {
		return fmt.Errorf("shape rank %d does not match chunks rank %d",
			len(shape), len(chunks))
	}

	for d := range shape {
		if shape[d] <= 0 || chunks[d] <= 0 {
			return fmt.Errorf("dimension %d: shape %d, chunk %d must be positive",
				d, shape[d], chunks[d])
		}
	}

	return nil
}

func volume(shape []int) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= int64(s)
	}

	return n
}

// forEachIndex calls fn for every index in the box [lo, hi), last
// dimension fastest. fn must not retain idx.
func forEachIndex(lo, hi []int, fn func(idx []int) error) error {
	idx := append([]int(nil), lo...)

	for {
		if err := fn(idx); err != nil {
			return err
		}

		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < hi[d] {
				break
			}

			idx[d] = lo[d]
		}

		if d < 0 {
			return nil
		}
	}
}

// copyBox copies the overlap of the src box into the dst box. Both
// buffers are C-ordered with the given origins and extents in array
// coordinates.
func copyBox(dst []byte, dstOrigin, dstShape []int, src []byte, srcOrigin, srcShape []int) {
	rank := len(dstShape)
	lo := make([]int, rank)
	hi := make([]int, rank)

	for d := 0; d < rank; d++ {
		lo[d] = max(dstOrigin[d], srcOrigin[d])
		hi[d] = min(dstOrigin[d]+dstShape[d], srcOrigin[d]+srcShape[d])

		if lo[d] >= hi[d] {
			return
		}
	}

	dstStrides := strides(dstShape)
	srcStrides := strides(srcShape)
	last := rank - 1
	span := hi[last] - lo[last]
	idx := append([]int(nil), lo...)

	for {
		dOff, sOff := 0, 0
		for d := 0; d < rank; d++ {
			dOff += (idx[d] - dstOrigin[d]) * dstStrides[d]
			sOff += (idx[d] - srcOrigin[d]) * srcStrides[d]
		}

		copy(dst[dOff:dOff+span], src[sOff:sOff+span])

		d := last - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < hi[d] {
				break
			}

			idx[d] = lo[d]
		}

		if d < 0 {
			return
		}
	}
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1

	for d := len(shape) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= shape[d]
	}

	return s
}
