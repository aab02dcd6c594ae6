package progress_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"heatline/internal/progress"
)

func descriptorsOf(n int) []progress.Descriptor {
	out := make([]progress.Descriptor, n)
	for i := range out {
		out[i] = progress.Descriptor{Name: fmt.Sprintf("f%d", i), Required: i%3 == 0}
	}
	return out
}

// recordFrom fills field i when mask[i] is set, using a mix of value kinds.
func recordFrom(mask []bool) progress.Record {
	rec := progress.Record{}
	for i, on := range mask {
		if !on {
			continue
		}
		switch i % 4 {
		case 0:
			rec[fmt.Sprintf("f%d", i)] = "x"
		case 1:
			rec[fmt.Sprintf("f%d", i)] = false
		case 2:
			rec[fmt.Sprintf("f%d", i)] = 0.0
		default:
			rec[fmt.Sprintf("f%d", i)] = []string{"doc"}
		}
	}
	return rec
}

func TestPercentProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("result stays within 0..100", prop.ForAll(
		func(mask []bool) bool {
			p := progress.Percent(descriptorsOf(len(mask)), recordFrom(mask))
			return p >= 0 && p <= 100
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("filling one more field never lowers the result", prop.ForAll(
		func(mask []bool, idx int) bool {
			if len(mask) == 0 {
				return true
			}
			i := idx % len(mask)
			if mask[i] {
				return true
			}
			descs := descriptorsOf(len(mask))
			before := progress.Percent(descs, recordFrom(mask))
			next := append([]bool(nil), mask...)
			next[i] = true
			return progress.Percent(descs, recordFrom(next)) >= before
		},
		gen.SliceOf(gen.Bool()),
		gen.IntRange(0, 1000),
	))

	properties.Property("descriptor order does not matter", prop.ForAll(
		func(mask []bool) bool {
			descs := descriptorsOf(len(mask))
			reversed := make([]progress.Descriptor, len(descs))
			for i, d := range descs {
				reversed[len(descs)-1-i] = d
			}
			rec := recordFrom(mask)
			return progress.Percent(descs, rec) == progress.Percent(reversed, rec)
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("aggregate is 100 when every required item is done", prop.ForAll(
		func(optional []bool) bool {
			items := []progress.Item{{Required: true, Completed: true}}
			for _, done := range optional {
				items = append(items, progress.Item{Completed: done})
			}
			return progress.Aggregate(items) == 100
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
