//go:build property

package watcher

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDebouncerProperties validates the batching properties of the debouncer
func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("a flush reports each path once with its last event", prop.ForAll(
		func(paths []int, kinds []int) bool {
			d := NewDebouncer(0)
			last := make(map[string]EventType)
			for i, p := range paths {
				path := fmt.Sprintf("pack/%d.json", p)
				kind := EventType(kinds[i%len(kinds)] % 4)
				d.pending = append(d.pending, ChangeEvent{Type: kind, Path: path})
				last[path] = kind
			}

			d.flush()

			if len(paths) == 0 {
				return len(d.output) == 0
			}
			batch := <-d.output
			if len(batch) != len(last) || len(d.pending) != 0 {
				return false
			}
			if !sort.SliceIsSorted(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path }) {
				return false
			}
			for _, event := range batch {
				if last[event.Path] != event.Type {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 8)),
		gen.SliceOfN(4, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
