// Package zarr writes uint8 Zarr arrays (format 2 and 3) to a Store.
//
// It covers only what the benchmark adapters need: regular chunk grids,
// C order, a single optional compressor, resizing, and region writes.
package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
)

// Supported on-disk formats.
const (
	FormatV2 = 2
	FormatV3 = 3
)

const (
	arrayKeyV2 = ".zarray"
	groupKeyV2 = ".zgroup"
	attrsKeyV2 = ".zattrs"
	metaKeyV3  = "zarr.json"

	dtypeV2 = "|u1"
	dtypeV3 = "uint8"
)

// ArrayMeta is the v2 ".zarray" document.
type ArrayMeta struct {
	ZarrFormat         int           `json:"zarr_format"`
	Shape              []int         `json:"shape"`
	Chunks             []int         `json:"chunks"`
	DType              string        `json:"dtype"`
	Compressor         *CodecConfig  `json:"compressor"`
	FillValue          int           `json:"fill_value"`
	Filters            []CodecConfig `json:"filters"`
	Order              string        `json:"order"`
	DimensionSeparator string        `json:"dimension_separator"`
}

// ArrayMetaV3 is the v3 "zarr.json" document for an array node.
type ArrayMetaV3 struct {
	ZarrFormat       int              `json:"zarr_format"`
	NodeType         string           `json:"node_type"`
	Shape            []int            `json:"shape"`
	DataType         string           `json:"data_type"`
	ChunkGrid        ChunkGrid        `json:"chunk_grid"`
	ChunkKeyEncoding ChunkKeyEncoding `json:"chunk_key_encoding"`
	FillValue        int              `json:"fill_value"`
	Codecs           []CodecV3        `json:"codecs"`
}

// ChunkGrid describes a regular v3 chunk grid.
type ChunkGrid struct {
	Name          string `json:"name"`
	Configuration struct {
		ChunkShape []int `json:"chunk_shape"`
	} `json:"configuration"`
}

// ChunkKeyEncoding describes how v3 chunk coordinates map to keys.
type ChunkKeyEncoding struct {
	Name          string `json:"name"`
	Configuration struct {
		Separator string `json:"separator"`
	} `json:"configuration"`
}

// CodecV3 is one entry of the v3 codec pipeline.
type CodecV3 struct {
	Name          string         `json:"name"`
	Configuration *CodecV3Config `json:"configuration,omitempty"`
}

// CodecV3Config carries the settings used by the zstd and gzip codecs.
type CodecV3Config struct {
	Level    int   `json:"level"`
	Checksum *bool `json:"checksum,omitempty"`
}

func metaV2(shape, chunks []int, codec Codec) ArrayMeta {
	m := ArrayMeta{
		ZarrFormat:         FormatV2,
		Shape:              shape,
		Chunks:             chunks,
		DType:              dtypeV2,
		Order:              "C",
		DimensionSeparator: "/",
	}

	if codec.ID() != CodecRaw {
		m.Compressor = &CodecConfig{ID: codec.ID(), Level: codec.Level()}
	}

	return m
}

func metaV3(shape, chunks []int, codec Codec) ArrayMetaV3 {
	m := ArrayMetaV3{
		ZarrFormat: FormatV3,
		NodeType:   "array",
		Shape:      shape,
		DataType:   dtypeV3,
		Codecs:     []CodecV3{{Name: "bytes"}},
	}

	m.ChunkGrid.Name = "regular"
	m.ChunkGrid.Configuration.ChunkShape = chunks
	m.ChunkKeyEncoding.Name = "default"
	m.ChunkKeyEncoding.Configuration.Separator = "/"

	switch codec.ID() {
	case CodecZstd:
		checksum := false
		m.Codecs = append(m.Codecs, CodecV3{
			Name:          CodecZstd,
			Configuration: &CodecV3Config{Level: codec.Level(), Checksum: &checksum},
		})
	case CodecGzip:
		m.Codecs = append(m.Codecs, CodecV3{
			Name:          CodecGzip,
			Configuration: &CodecV3Config{Level: codec.Level()},
		})
	}

	return m
}

func writeMeta(store Store, prefix string, a *Array) error {
	var (
		key string
		doc any
	)

	switch a.format {
	case FormatV2:
		key, doc = arrayKeyV2, metaV2(a.shape, a.chunks, a.codec)
	case FormatV3:
		key, doc = metaKeyV3, metaV3(a.shape, a.chunks, a.codec)
	default:
		return fmt.Errorf("unsupported zarr format %d", a.format)
	}

	return setJSON(store, path.Join(prefix, key), doc)
}

// readMeta loads whichever metadata document exists under prefix and
// returns format, shape, chunks and the codec it names.
func readMeta(store Store, prefix string) (int, []int, []int, Codec, error) {
	raw, err := store.Get(path.Join(prefix, metaKeyV3))
	if err == nil {
		var m ArrayMetaV3
		if err := json.Unmarshal(raw, &m); err != nil {
			return 0, nil, nil, nil, fmt.Errorf("decode %s: %w", metaKeyV3, err)
		}

		if m.DataType != dtypeV3 {
			return 0, nil, nil, nil, fmt.Errorf("unsupported data type %q", m.DataType)
		}

		id, level := CodecRaw, 0
		for _, c := range m.Codecs {
			if c.Name == "bytes" {
				continue
			}

			id = c.Name
			if c.Configuration != nil {
				level = c.Configuration.Level
			}
		}

		codec, err := NewCodec(id, level)
		if err != nil {
			return 0, nil, nil, nil, err
		}

		return FormatV3, m.Shape, m.ChunkGrid.Configuration.ChunkShape, codec, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return 0, nil, nil, nil, err
	}

	raw, err = store.Get(path.Join(prefix, arrayKeyV2))
	if err != nil {
		return 0, nil, nil, nil, err
	}

	var m ArrayMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0, nil, nil, nil, fmt.Errorf("decode %s: %w", arrayKeyV2, err)
	}

	if m.DType != dtypeV2 {
		return 0, nil, nil, nil, fmt.Errorf("unsupported dtype %q", m.DType)
	}

	id, level := CodecRaw, 0
	if m.Compressor != nil {
		id, level = m.Compressor.ID, m.Compressor.Level
	}

	codec, err := NewCodec(id, level)
	if err != nil {
		return 0, nil, nil, nil, err
	}

	return FormatV2, m.Shape, m.Chunks, codec, nil
}

// WriteGroup writes a v2 group node with the given attributes.
func WriteGroup(store Store, prefix string, attrs any) error {
	if err := setJSON(store, path.Join(prefix, groupKeyV2), map[string]int{
		"zarr_format": FormatV2,
	}); err != nil {
		return err
	}

	if attrs == nil {
		return nil
	}

	return setJSON(store, path.Join(prefix, attrsKeyV2), attrs)
}

func setJSON(store Store, key string, doc any) error {
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	return store.Set(key, raw)
}
