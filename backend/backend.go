package backend

import (
	"context"
	"strings"
	"time"
)

// Capability is a set of optional operations an adapter supports.
type Capability uint8

const (
	// CapAppend marks adapters that implement Appender.
	CapAppend Capability = 1 << iota
	// CapGeneratesData marks adapters that fill the array themselves
	// when Write is called with nil data.
	CapGeneratesData
)

// Has reports whether every capability in o is present in c.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapAppend) {
		parts = append(parts, "append")
	}

	if c.Has(CapGeneratesData) {
		parts = append(parts, "generates-data")
	}

	if len(parts) == 0 {
		return "write"
	}

	return "write," + strings.Join(parts, ",")
}

// Adapter materializes an array at a fixed working path and reports how
// long that took.
type Adapter interface {
	Name() string
	// Path is the directory the adapter writes to. The caller may remove
	// it between calls.
	Path() string
	Capabilities() Capability
	// Write replaces anything at Path with a new array of the given
	// shape and chunking holding data, and returns the wall-clock time
	// spent creating and writing it.
	Write(ctx context.Context, shape, chunks []int, data []byte) (time.Duration, error)
}

// Appender is implemented by adapters with CapAppend.
type Appender interface {
	// Append grows the array at Path from newShape minus one increment
	// of shape to newShape along the first axis and writes data, which
	// has extents shape, into the new region. With multiplier 1 the
	// array is created at shape instead.
	Append(ctx context.Context, shape, chunks, newShape []int, data []byte, multiplier int) (time.Duration, error)
}
