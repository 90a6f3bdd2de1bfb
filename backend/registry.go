package backend

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/weiihann/zarrbench/workload"
	"github.com/weiihann/zarrbench/zarr"
)

// Built-in backend names.
const (
	ZarrV2     = "Zarr V2"
	ZarrV2Zstd = "Zarr V2 Zstd"
	OMEZarr    = "OME Zarr"
	ZarrV3     = "Zarr V3"
)

// KnownBackends returns the built-in backend names in run order.
func KnownBackends() []string {
	return []string{ZarrV2, ZarrV2Zstd, OMEZarr, ZarrV3}
}

// ResolvePath returns the working directory for a backend below workDir.
func ResolvePath(workDir, name string) string {
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))

	return filepath.Join(workDir, slug+".zarr")
}

// Registry is an ordered set of adapters addressable by name.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry builds a registry, rejecting duplicate names.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{byName: make(map[string]Adapter, len(adapters))}

	for _, a := range adapters {
		if _, dup := r.byName[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate backend %q", a.Name())
		}

		r.byName[a.Name()] = a
		r.adapters = append(r.adapters, a)
	}

	return r, nil
}

// Default returns the built-in writers, each working below workDir.
func Default(workDir string, gen *workload.Generator, logger *slog.Logger) *Registry {
	configs := []WriterConfig{
		{
			Name:   ZarrV2,
			Format: zarr.FormatV2,
			Codec:  zarr.CodecRaw,
			Caps:   CapAppend,
		},
		{
			Name:   ZarrV2Zstd,
			Format: zarr.FormatV2,
			Codec:  zarr.CodecZstd,
			Level:  1,
			Caps:   CapAppend,
		},
		{
			Name:       OMEZarr,
			Format:     zarr.FormatV2,
			Codec:      zarr.CodecGzip,
			Level:      1,
			ArrayPath:  omeDatasetPath,
			GroupAttrs: omeImageAttrs,
		},
		{
			Name:   ZarrV3,
			Format: zarr.FormatV3,
			Codec:  zarr.CodecZstd,
			Level:  1,
			Caps:   CapGeneratesData,
		},
	}

	r := &Registry{byName: make(map[string]Adapter, len(configs))}
	for _, cfg := range configs {
		cfg.Path = ResolvePath(workDir, cfg.Name)
		w := NewArrayWriter(cfg, gen, logger)

		r.byName[cfg.Name] = w
		r.adapters = append(r.adapters, w)
	}

	return r
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	a, ok := r.byName[name]

	return a, ok
}

// Adapters returns the adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return append([]Adapter(nil), r.adapters...)
}

// Names returns the adapter names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}

	return names
}

// Supports reports whether the named adapter exists and has c.
func (r *Registry) Supports(name string, c Capability) bool {
	a, ok := r.byName[name]

	return ok && a.Capabilities().Has(c)
}
