package bench

import "github.com/weiihann/zarrbench/backend"

// Accumulator maps test labels to average bandwidth, keeping the order
// in which labels were first recorded.
type Accumulator struct {
	entries []backend.Entry
	index   map[string]int
}

// Set records value under label, replacing an earlier value in place.
func (a *Accumulator) Set(label string, value float64) {
	if a.index == nil {
		a.index = make(map[string]int)
	}

	if i, ok := a.index[label]; ok {
		a.entries[i].GBps = value

		return
	}

	a.index[label] = len(a.entries)
	a.entries = append(a.entries, backend.Entry{Label: label, GBps: value})
}

// Get returns the value recorded under label.
func (a *Accumulator) Get(label string) (float64, bool) {
	i, ok := a.index[label]
	if !ok {
		return 0, false
	}

	return a.entries[i].GBps, true
}

// Entries returns a copy of the recorded entries in insertion order.
func (a *Accumulator) Entries() []backend.Entry {
	return append([]backend.Entry(nil), a.entries...)
}

// Len returns the number of labels recorded.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Reset drops every entry.
func (a *Accumulator) Reset() {
	a.entries = nil
	a.index = nil
}
