package zarr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec ids as written into array metadata.
const (
	CodecRaw  = ""
	CodecZstd = "zstd"
	CodecGzip = "gzip"
)

// CodecConfig is the numcodecs-style compressor entry of v2 metadata.
type CodecConfig struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// Codec turns a raw chunk buffer into its stored form and back.
type Codec interface {
	ID() string
	Level() int
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
	Close() error
}

// NewCodec builds the codec named by id. An empty id means chunks are
// stored uncompressed.
func NewCodec(id string, level int) (Codec, error) {
	switch id {
	case CodecRaw:
		return Raw(), nil
	case CodecZstd:
		return NewZstd(level)
	case CodecGzip:
		return NewGzip(level)
	default:
		return nil, fmt.Errorf("unsupported codec %q", id)
	}
}

type rawCodec struct{}

// Raw returns the identity codec.
func Raw() Codec { return rawCodec{} }

func (rawCodec) ID() string                        { return CodecRaw }
func (rawCodec) Level() int                        { return 0 }
func (rawCodec) Encode(src []byte) ([]byte, error) { return src, nil }
func (rawCodec) Decode(src []byte) ([]byte, error) { return src, nil }
func (rawCodec) Close() error                      { return nil }

type zstdCodec struct {
	level int
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewZstd returns a zstd codec at the given zstd level (1..22).
func NewZstd(level int) (Codec, error) {
	if level <= 0 {
		level = 1
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &zstdCodec{level: level, enc: enc}, nil
}

func (c *zstdCodec) ID() string { return CodecZstd }
func (c *zstdCodec) Level() int { return c.level }

func (c *zstdCodec) Encode(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

func (c *zstdCodec) Decode(src []byte) ([]byte, error) {
	if c.dec == nil {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}

		c.dec = dec
	}

	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}

	return out, nil
}

func (c *zstdCodec) Close() error {
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}

	return c.enc.Close()
}

type gzipCodec struct {
	level int
}

// NewGzip returns a gzip codec at the given compression level (1..9).
func NewGzip(level int) (Codec, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("gzip level %d out of range", level)
	}

	return gzipCodec{level: level}, nil
}

func (c gzipCodec) ID() string { return CodecGzip }
func (c gzipCodec) Level() int { return c.level }

func (c gzipCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}

	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("gzip encode: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip flush: %w", err)
	}

	return buf.Bytes(), nil
}

func (c gzipCodec) Decode(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip decode: %w", err)
	}

	return out, nil
}

func (c gzipCodec) Close() error { return nil }
