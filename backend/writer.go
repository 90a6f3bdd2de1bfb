package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/weiihann/zarrbench/workload"
	"github.com/weiihann/zarrbench/zarr"
)

// ErrAppendUnsupported is returned by Append on writers without
// CapAppend.
var ErrAppendUnsupported = errors.New("append not supported")

// WriterConfig describes one Zarr writer.
type WriterConfig struct {
	Name   string
	Path   string
	Format int
	Codec  string
	Level  int
	Caps   Capability
	// ArrayPath is the array's key prefix inside Path; empty puts the
	// array at the root.
	ArrayPath string
	// GroupAttrs, when set, makes Path a group whose attributes are
	// built from the array rank.
	GroupAttrs func(rank int) (any, error)
}

// ArrayWriter is an Adapter backed by the zarr package and a local
// directory store.
type ArrayWriter struct {
	cfg    WriterConfig
	gen    *workload.Generator
	logger *slog.Logger
}

// NewArrayWriter creates a writer. gen is only used by writers with
// CapGeneratesData.
func NewArrayWriter(
	cfg WriterConfig,
	gen *workload.Generator,
	logger *slog.Logger,
) *ArrayWriter {
	return &ArrayWriter{
		cfg:    cfg,
		gen:    gen,
		logger: logger.With(slog.String("backend", cfg.Name)),
	}
}

// Name returns the backend name.
func (w *ArrayWriter) Name() string { return w.cfg.Name }

// Path returns the working directory.
func (w *ArrayWriter) Path() string { return w.cfg.Path }

// Capabilities returns the writer's capability set.
func (w *ArrayWriter) Capabilities() Capability { return w.cfg.Caps }

// Write creates the array from scratch. Data generation, when the
// writer does it itself, is not included in the elapsed time.
func (w *ArrayWriter) Write(
	ctx context.Context,
	shape, chunks []int,
	data []byte,
) (time.Duration, error) {
	if data == nil {
		if !w.cfg.Caps.Has(CapGeneratesData) {
			return 0, fmt.Errorf("%s: no data supplied", w.cfg.Name)
		}

		data = w.gen.Fill(shape)
	}

	if err := os.RemoveAll(w.cfg.Path); err != nil {
		return 0, fmt.Errorf("clean %s: %w", w.cfg.Path, err)
	}

	start := time.Now()

	arr, codec, err := w.create(shape, chunks)
	if err != nil {
		return 0, err
	}
	defer codec.Close()

	if err := arr.Write(data); err != nil {
		return 0, fmt.Errorf("%s write: %w", w.cfg.Name, err)
	}

	elapsed := time.Since(start)

	w.logger.DebugContext(ctx, "array written",
		slog.Any("shape", shape),
		slog.Duration("elapsed", elapsed),
	)

	return elapsed, nil
}

// Append grows the existing array by one increment. See Appender.
func (w *ArrayWriter) Append(
	ctx context.Context,
	shape, chunks, newShape []int,
	data []byte,
	multiplier int,
) (time.Duration, error) {
	if !w.cfg.Caps.Has(CapAppend) {
		return 0, fmt.Errorf("%s: %w", w.cfg.Name, ErrAppendUnsupported)
	}

	if multiplier <= 1 {
		return w.Write(ctx, shape, chunks, data)
	}

	if len(newShape) != len(shape) {
		return 0, fmt.Errorf("%s append: new shape %v does not match rank of %v",
			w.cfg.Name, newShape, shape)
	}

	start := time.Now()

	store, err := zarr.NewLocalStore(w.cfg.Path)
	if err != nil {
		return 0, err
	}

	arr, err := zarr.Open(store, w.cfg.ArrayPath)
	if err != nil {
		return 0, fmt.Errorf("%s append: %w", w.cfg.Name, err)
	}
	defer arr.Close()

	current := arr.Shape()
	if err := checkGrowth(current, shape, newShape); err != nil {
		return 0, fmt.Errorf("%s append: %w", w.cfg.Name, err)
	}

	if err := arr.Resize(newShape); err != nil {
		return 0, fmt.Errorf("%s append: %w", w.cfg.Name, err)
	}

	origin := make([]int, len(shape))
	origin[0] = current[0]

	if err := arr.WriteRegion(origin, shape, data); err != nil {
		return 0, fmt.Errorf("%s append: %w", w.cfg.Name, err)
	}

	elapsed := time.Since(start)

	w.logger.DebugContext(ctx, "array appended",
		slog.Any("shape", newShape),
		slog.Duration("elapsed", elapsed),
	)

	return elapsed, nil
}

func (w *ArrayWriter) create(shape, chunks []int) (*zarr.Array, zarr.Codec, error) {
	codec, err := zarr.NewCodec(w.cfg.Codec, w.cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", w.cfg.Name, err)
	}

	arr, err := w.createWith(codec, shape, chunks)
	if err != nil {
		codec.Close()

		return nil, nil, err
	}

	return arr, codec, nil
}

func (w *ArrayWriter) createWith(codec zarr.Codec, shape, chunks []int) (*zarr.Array, error) {
	store, err := zarr.NewLocalStore(w.cfg.Path)
	if err != nil {
		return nil, err
	}

	if w.cfg.GroupAttrs != nil {
		attrs, err := w.cfg.GroupAttrs(len(shape))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.cfg.Name, err)
		}

		if err := zarr.WriteGroup(store, "", attrs); err != nil {
			return nil, fmt.Errorf("%s: %w", w.cfg.Name, err)
		}
	}

	arr, err := zarr.Create(store, w.cfg.ArrayPath, zarr.Options{
		Format: w.cfg.Format,
		Shape:  shape,
		Chunks: chunks,
		Codec:  codec,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.cfg.Name, err)
	}

	return arr, nil
}

// checkGrowth verifies newShape is current extended by exactly one
// increment along the first axis.
func checkGrowth(current, increment, newShape []int) error {
	if len(current) != len(newShape) {
		return fmt.Errorf("array rank %d, new shape %v", len(current), newShape)
	}

	if newShape[0] != current[0]+increment[0] {
		return fmt.Errorf("array has %d rows, cannot grow to %d by %d",
			current[0], newShape[0], increment[0])
	}

	for d := 1; d < len(newShape); d++ {
		if newShape[d] != current[d] || increment[d] != current[d] {
			return fmt.Errorf("dimension %d: array %d, increment %d, new shape %d",
				d, current[d], increment[d], newShape[d])
		}
	}

	return nil
}

// DirSize returns the total size of regular files below path. A missing
// path has size 0.
func DirSize(path string) (uint64, error) {
	var size uint64

	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += uint64(info.Size())
		}

		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	return size, err
}
