// Package bench drives repeated write and append trials against the
// registered backends until a data-volume cap is reached and averages
// the observed bandwidth.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/weiihann/zarrbench/backend"
	"github.com/weiihann/zarrbench/plot"
	"github.com/weiihann/zarrbench/report"
	"github.com/weiihann/zarrbench/workload"
)

const (
	// bytesPerCapGB converts the soft cap to bytes.
	bytesPerCapGB = 1 << 30
	// bytesPerGB converts logical sizes to the gigabytes used for
	// bandwidth.
	bytesPerGB = 1e9

	// DefaultWorkDir holds the backends' working directories when no
	// registry is supplied.
	DefaultWorkDir = "tmp"
)

// minElapsed keeps bandwidth finite when a clock reports no progress.
const minElapsed = time.Nanosecond

var (
	// ErrUnknownBackend is returned when a backend filter names no
	// registered adapter.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrRankMismatch is returned when shape and chunks differ in rank.
	ErrRankMismatch = errors.New("shape and chunks rank mismatch")
	// ErrInvalidExtent is returned for empty or non-positive extents.
	ErrInvalidExtent = errors.New("extents must be positive")
)

// RunOptions configures a write or append run.
type RunOptions struct {
	// TargetGB is the soft cap: iterations continue while the array is
	// smaller than TargetGB * 2^30 bytes.
	TargetGB float64
	// ShowResults prints the summary when the run finishes.
	ShowResults bool
	// Backend restricts the run to one adapter when non-empty.
	Backend string
	// Series receives one point per iteration.
	Series plot.SeriesSink
	// Averages receives one bar per backend.
	Averages plot.BarSink
}

// AllOptions configures RunAllTests.
type AllOptions struct {
	AppendGB       float64
	WriteGB        float64
	Backend        string
	AppendSeries   plot.SeriesSink
	AppendAverages plot.BarSink
	WriteSeries    plot.SeriesSink
	WriteAverages  plot.BarSink
}

// Benchmark runs trials for a fixed base shape and chunking. It is not
// safe for concurrent use.
type Benchmark struct {
	shape    []int
	chunks   []int
	registry *backend.Registry
	gen      *workload.Generator
	logger   *slog.Logger
	out      io.Writer
	acc      Accumulator
}

// Option customizes a Benchmark.
type Option func(*Benchmark)

// WithRegistry sets the adapters to benchmark.
func WithRegistry(r *backend.Registry) Option {
	return func(b *Benchmark) { b.registry = r }
}

// WithGenerator sets the source of synthetic data.
func WithGenerator(g *workload.Generator) Option {
	return func(b *Benchmark) { b.gen = g }
}

// WithLogger sets the progress logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Benchmark) { b.logger = l }
}

// WithOutput sets where summaries are printed.
func WithOutput(w io.Writer) Option {
	return func(b *Benchmark) { b.out = w }
}

// New validates shape and chunks and returns a Benchmark. Without
// WithRegistry the built-in backends are used below DefaultWorkDir.
func New(shape, chunks []int, opts ...Option) (*Benchmark, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: empty shape", ErrInvalidExtent)
	}

	if len(shape) != len(chunks) {
		return nil, fmt.Errorf("%w: shape %v, chunks %v", ErrRankMismatch, shape, chunks)
	}

	for d := range shape {
		if shape[d] <= 0 || chunks[d] <= 0 {
			return nil, fmt.Errorf("%w: shape %v, chunks %v", ErrInvalidExtent, shape, chunks)
		}
	}

	b := &Benchmark{
		shape:  append([]int(nil), shape...),
		chunks: append([]int(nil), chunks...),
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		out:    os.Stdout,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.gen == nil {
		b.gen = workload.NewGenerator(time.Now().UnixNano())
	}

	if b.registry == nil {
		b.registry = backend.Default(DefaultWorkDir, b.gen, b.logger)
	}

	return b, nil
}

// Shape returns the base shape.
func (b *Benchmark) Shape() []int { return append([]int(nil), b.shape...) }

// Chunks returns the chunk extents.
func (b *Benchmark) Chunks() []int { return append([]int(nil), b.chunks...) }

// Accumulator returns the averages recorded so far.
func (b *Benchmark) Accumulator() *Accumulator { return &b.acc }

// PrintResults prints the summary of every recorded average.
func (b *Benchmark) PrintResults(header string) error {
	return report.Summary(b.out, header, b.shape, b.chunks, b.acc.Entries())
}

// RunWriteTests writes a growing array to every backend, or only to
// opts.Backend. The growth axis is multiplied by 1, 5, 10, 15, ...
// and each iteration's artifact is removed before the next one.
func (b *Benchmark) RunWriteTests(ctx context.Context, opts RunOptions) ([]backend.Result, error) {
	if err := b.checkBackend(opts.Backend); err != nil {
		return nil, err
	}

	var results []backend.Result

	for _, a := range b.registry.Adapters() {
		// Some writers fail when their path already holds data.
		if err := removeArtifact(a.Path()); err != nil {
			return results, err
		}

		if opts.Backend != "" && opts.Backend != a.Name() {
			continue
		}

		res, err := b.writeLoop(ctx, a, opts.TargetGB, opts.Series)
		if err != nil {
			return results, err
		}

		b.finish(&res, opts.Averages)
		results = append(results, res)
	}

	if opts.ShowResults {
		if err := b.PrintResults(fmt.Sprintf("Write Test GB Soft Cap: %sGB", formatGB(opts.TargetGB))); err != nil {
			return results, err
		}
	}

	return results, nil
}

// RunAppendTests grows an array by one base-shape increment per
// iteration on every backend with CapAppend. Backends without it are
// skipped, even when named by opts.Backend.
func (b *Benchmark) RunAppendTests(ctx context.Context, opts RunOptions) ([]backend.Result, error) {
	if err := b.checkBackend(opts.Backend); err != nil {
		return nil, err
	}

	var results []backend.Result

	for _, a := range b.registry.Adapters() {
		if !a.Capabilities().Has(backend.CapAppend) {
			continue
		}

		if opts.Backend != "" && opts.Backend != a.Name() {
			continue
		}

		app, ok := a.(backend.Appender)
		if !ok {
			return results, fmt.Errorf("%s declares append but does not implement it", a.Name())
		}

		if err := removeArtifact(a.Path()); err != nil {
			return results, err
		}

		res, err := b.appendLoop(ctx, a, app, opts.TargetGB, opts.Series)
		if err != nil {
			return results, err
		}

		b.finish(&res, opts.Averages)
		results = append(results, res)
	}

	if opts.ShowResults {
		if err := b.PrintResults(fmt.Sprintf("Append Test GB Soft Cap: %sGB", formatGB(opts.TargetGB))); err != nil {
			return results, err
		}
	}

	return results, nil
}

// RunAllTests runs the append tests, then the write tests, and prints a
// single combined summary.
func (b *Benchmark) RunAllTests(ctx context.Context, opts AllOptions) ([]backend.Result, error) {
	appended, err := b.RunAppendTests(ctx, RunOptions{
		TargetGB: opts.AppendGB,
		Backend:  opts.Backend,
		Series:   opts.AppendSeries,
		Averages: opts.AppendAverages,
	})
	if err != nil {
		return appended, err
	}

	written, err := b.RunWriteTests(ctx, RunOptions{
		TargetGB: opts.WriteGB,
		Backend:  opts.Backend,
		Series:   opts.WriteSeries,
		Averages: opts.WriteAverages,
	})

	results := append(appended, written...)
	if err != nil {
		return results, err
	}

	header := fmt.Sprintf("Write Test GB Soft Cap: %sGB | Append Test GB Soft Cap: %sGB",
		formatGB(opts.WriteGB), formatGB(opts.AppendGB))

	return results, b.PrintResults(header)
}

func (b *Benchmark) writeLoop(
	ctx context.Context,
	a backend.Adapter,
	targetGB float64,
	series plot.SeriesSink,
) (backend.Result, error) {
	logger := b.logger.With(
		slog.String("backend", a.Name()),
		slog.String("mode", string(backend.ModeWrite)),
	)
	logger.InfoContext(ctx, "starting stress test", slog.Any("shape", b.shape))

	res := backend.Result{Backend: a.Name(), Mode: backend.ModeWrite}
	selfGenerated := a.Capabilities().Has(backend.CapGeneratesData)

	for multiplier := 1; ; multiplier = nextWriteMultiplier(multiplier) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		shape := grow(b.shape, multiplier)

		var data []byte
		if !selfGenerated {
			data = b.gen.Fill(shape)
		}

		elapsed, err := a.Write(ctx, shape, b.chunks, data)
		if err != nil {
			return res, fmt.Errorf("%s write at %dx: %w", a.Name(), multiplier, err)
		}

		size := workload.Volume(shape)
		rec := newRecord(multiplier, size, size, elapsed)
		rec.ArtifactBytes = b.artifactSize(ctx, logger, a.Path())
		res.Records = append(res.Records, rec)

		logIteration(ctx, logger, rec)

		if series != nil {
			series.Point(a.Name(), rec.Gigabytes, rec.BandwidthGBps)
		}

		if err := removeArtifact(a.Path()); err != nil {
			return res, err
		}

		if !belowCap(size, targetGB) {
			return res, nil
		}
	}
}

func (b *Benchmark) appendLoop(
	ctx context.Context,
	a backend.Adapter,
	app backend.Appender,
	targetGB float64,
	series plot.SeriesSink,
) (backend.Result, error) {
	logger := b.logger.With(
		slog.String("backend", a.Name()),
		slog.String("mode", string(backend.ModeAppend)),
	)
	logger.InfoContext(ctx, "starting append stress test", slog.Any("shape", b.shape))

	res := backend.Result{Backend: a.Name(), Mode: backend.ModeAppend}
	increment := workload.Volume(b.shape)

	for multiplier := 1; ; multiplier++ {
		if err := ctx.Err(); err != nil {
			if rmErr := removeArtifact(a.Path()); rmErr != nil {
				logger.WarnContext(ctx, "cleanup after cancel failed",
					slog.String("error", rmErr.Error()),
				)
			}

			return res, err
		}

		newShape := grow(b.shape, multiplier)
		data := b.gen.Fill(b.shape)

		elapsed, err := app.Append(ctx, b.shape, b.chunks, newShape, data, multiplier)
		if err != nil {
			return res, fmt.Errorf("%s append at %dx: %w", a.Name(), multiplier, err)
		}

		size := workload.Volume(newShape)
		rec := newRecord(multiplier, size, increment, elapsed)
		rec.ArtifactBytes = b.artifactSize(ctx, logger, a.Path())
		res.Records = append(res.Records, rec)

		logIteration(ctx, logger, rec)

		if series != nil {
			series.Point(a.Name(), float64(multiplier), rec.BandwidthGBps)
		}

		if !belowCap(size, targetGB) {
			break
		}
	}

	if err := removeArtifact(a.Path()); err != nil {
		return res, err
	}

	return res, nil
}

// finish averages a backend's records into the accumulator and the bar
// sink.
func (b *Benchmark) finish(res *backend.Result, bars plot.BarSink) {
	res.AverageGBps = average(res.Records)
	b.acc.Set(res.Mode.Label(res.Backend), res.AverageGBps)

	if bars != nil {
		bars.Bar(res.Backend, res.AverageGBps)
	}

	b.logger.Info("stress test complete",
		slog.String("backend", res.Backend),
		slog.String("mode", string(res.Mode)),
		slog.Int("iterations", len(res.Records)),
		slog.Float64("average_gbps", res.AverageGBps),
	)
}

func (b *Benchmark) checkBackend(name string) error {
	if name == "" {
		return nil
	}

	if _, ok := b.registry.Lookup(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}

	return nil
}

func (b *Benchmark) artifactSize(ctx context.Context, logger *slog.Logger, path string) uint64 {
	size, err := backend.DirSize(path)
	if err != nil {
		logger.WarnContext(ctx, "failed to measure artifact size",
			slog.String("error", err.Error()),
		)
	}

	return size
}

func logIteration(ctx context.Context, logger *slog.Logger, rec backend.Record) {
	logger.InfoContext(ctx, "iteration complete",
		slog.String("multiplier", fmt.Sprintf("%dx", rec.Multiplier)),
		slog.Duration("elapsed", rec.Elapsed),
		slog.String("artifact_size", humanize.IBytes(rec.ArtifactBytes)),
		slog.Float64("bandwidth_gbps", rec.BandwidthGBps),
	)
}

func newRecord(multiplier int, size, written int64, elapsed time.Duration) backend.Record {
	secs := max(elapsed, minElapsed).Seconds()

	return backend.Record{
		Multiplier:     multiplier,
		Bytes:          size,
		Gigabytes:      float64(size) / bytesPerGB,
		WrittenBytes:   written,
		Elapsed:        elapsed,
		ElapsedSeconds: elapsed.Seconds(),
		BandwidthGBps:  float64(written) / bytesPerGB / secs,
	}
}

// nextWriteMultiplier steps 1 to 5, then adds 5.
func nextWriteMultiplier(m int) int {
	if m == 1 {
		return m + 4
	}

	return m + 5
}

// grow scales the growth axis of base by multiplier.
func grow(base []int, multiplier int) []int {
	shape := append([]int(nil), base...)
	shape[0] = base[0] * multiplier

	return shape
}

func belowCap(size int64, targetGB float64) bool {
	return float64(size) < targetGB*bytesPerCapGB
}

func average(records []backend.Record) float64 {
	if len(records) == 0 {
		return 0
	}

	var sum float64
	for _, r := range records {
		sum += r.BandwidthGBps
	}

	return sum / float64(len(records))
}

func removeArtifact(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}

func formatGB(gb float64) string {
	return strconv.FormatFloat(gb, 'g', -1, 64)
}
