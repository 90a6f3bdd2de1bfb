// Package report formats benchmark results into summary tables and
// machine-readable exports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/weiihann/zarrbench/backend"
)

// Summary writes the run summary: an optional header line, the shape
// and chunks benchmarked, and one row per averaged bandwidth in the
// order given. No entries yields an empty table.
func Summary(
	w io.Writer,
	header string,
	shape, chunks []int,
	entries []backend.Entry,
) error {
	var sb strings.Builder

	if header != "" {
		sb.WriteString(header + "\n")
	}

	fmt.Fprintf(&sb, "Shape %s, Chunks %s\n", formatDims(shape), formatDims(chunks))
	sb.WriteString("\n")

	sb.WriteString("| Test | Bandwidth |\n")
	sb.WriteString("|------|-----------|\n")

	for _, e := range entries {
		fmt.Fprintf(&sb, "| %s | %s |\n", e.Label, formatGBps(e.GBps))
	}

	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())

	return err
}

// Details writes one table per result listing every iteration.
func Details(w io.Writer, results []backend.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	var sb strings.Builder

	for _, r := range results {
		fmt.Fprintf(&sb, "### %s\n\n", r.Mode.Label(r.Backend))
		sb.WriteString("| Multiplier | Array | Written | Elapsed | Bandwidth | On Disk |\n")
		sb.WriteString("|------------|-------|---------|---------|-----------|---------|\n")

		for _, rec := range r.Records {
			fmt.Fprintf(&sb, "| %dx | %s | %s | %.3fs | %s | %s |\n",
				rec.Multiplier,
				formatBytes(uint64(rec.Bytes)),
				formatBytes(uint64(rec.WrittenBytes)),
				rec.ElapsedSeconds,
				formatGBps(rec.BandwidthGBps),
				formatBytes(rec.ArtifactBytes),
			)
		}

		fmt.Fprintf(&sb, "\nAverage: %s\n\n", formatGBps(r.AverageGBps))
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []backend.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

type tomlDoc struct {
	Results []backend.Result `toml:"results"`
}

// GenerateTOML writes results as a TOML document with one [[results]]
// table per backend and mode.
func GenerateTOML(w io.Writer, results []backend.Result) error {
	return toml.NewEncoder(w).Encode(tomlDoc{Results: results})
}

func formatDims(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%d", d)
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

func formatGBps(v float64) string {
	return fmt.Sprintf("%.4f GBps", v)
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	return humanize.IBytes(b)
}
