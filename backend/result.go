// Package backend wraps the chunked-array writers under benchmark and
// the measurements taken from them.
package backend

import "time"

// Mode names the operation a Result measured.
type Mode string

const (
	ModeWrite  Mode = "write"
	ModeAppend Mode = "append"
)

// Label returns the accumulator key for a backend measured in mode m,
// e.g. "Zarr V2 Write".
func (m Mode) Label(backend string) string {
	switch m {
	case ModeAppend:
		return backend + " Append"
	default:
		return backend + " Write"
	}
}

// Record holds the measurements of one benchmark iteration.
type Record struct {
	Multiplier     int           `json:"multiplier" toml:"multiplier"`
	Bytes          int64         `json:"bytes" toml:"bytes"`
	Gigabytes      float64       `json:"gigabytes" toml:"gigabytes"`
	WrittenBytes   int64         `json:"written_bytes" toml:"written_bytes"`
	Elapsed        time.Duration `json:"-" toml:"-"`
	ElapsedSeconds float64       `json:"elapsed_seconds" toml:"elapsed_seconds"`
	BandwidthGBps  float64       `json:"bandwidth_gbps" toml:"bandwidth_gbps"`
	ArtifactBytes  uint64        `json:"artifact_bytes" toml:"artifact_bytes"`
}

// Result holds every iteration recorded for one backend in one mode.
type Result struct {
	Backend     string   `json:"backend" toml:"backend"`
	Mode        Mode     `json:"mode" toml:"mode"`
	Records     []Record `json:"records" toml:"records"`
	AverageGBps float64  `json:"average_gbps" toml:"average_gbps"`
}

// Entry is one labelled average bandwidth.
type Entry struct {
	Label string  `json:"label" toml:"label"`
	GBps  float64 `json:"gbps" toml:"gbps"`
}
