package progress_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatline/internal/progress"
)

func names(ns ...string) []progress.Descriptor {
	out := make([]progress.Descriptor, 0, len(ns))
	for _, n := range ns {
		out = append(out, progress.Descriptor{Name: n})
	}
	return out
}

func TestPercentEmptyDescriptors(t *testing.T) {
	assert.Equal(t, 0, progress.Percent(nil, progress.Record{"x": "filled"}))
	assert.Equal(t, 0, progress.Percent([]progress.Descriptor{}, nil))
}

func TestPercentEmptyRecord(t *testing.T) {
	assert.Equal(t, 0, progress.Percent(names("a", "b", "c"), progress.Record{}))
	assert.Equal(t, 0, progress.Percent(names("a"), nil))
}

func TestPercentFullRecord(t *testing.T) {
	rec := progress.Record{"a": "x", "b": 3.5, "c": true}
	assert.Equal(t, 100, progress.Percent(names("a", "b", "c"), rec))
}

func TestFalseCountsAsAnswer(t *testing.T) {
	assert.Equal(t, 100, progress.Percent(names("x"), progress.Record{"x": false}))
}

func TestZeroCountsAsAnswer(t *testing.T) {
	assert.Equal(t, 100, progress.Percent(names("x"), progress.Record{"x": 0}))
	assert.Equal(t, 100, progress.Percent(names("x"), progress.Record{"x": 0.0}))
}

func TestUnfilledValues(t *testing.T) {
	var nilPtr *string
	var nilSlice []string
	cases := map[string]any{
		"empty string": "",
		"nil":          nil,
		"nil pointer":  nilPtr,
		"nil slice":    nilSlice,
		"empty slice":  []any{},
		"empty map":    map[string]any{},
		"zero time":    time.Time{},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 0, progress.Percent(names("x"), progress.Record{"x": v}))
		})
	}
}

func TestFilledCollectionsAndDates(t *testing.T) {
	s := "value"
	cases := map[string]any{
		"slice":   []string{"a"},
		"map":     map[string]any{"k": 1},
		"date":    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"pointer": &s,
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 100, progress.Percent(names("x"), progress.Record{"x": v}))
		})
	}
}

func TestRoundingHalfUp(t *testing.T) {
	assert.Equal(t, 33, progress.Percent(names("a", "b", "c"), progress.Record{"a": "x"}))
	assert.Equal(t, 67, progress.Percent(names("a", "b", "c"), progress.Record{"a": "x", "b": "y"}))
	// 1/8 = 12.5
	assert.Equal(t, 13, progress.Percent(names("a", "b", "c", "d", "e", "f", "g", "h"), progress.Record{"a": 1}))
	assert.Equal(t, 50, progress.Percent(names("a", "b"), progress.Record{"b": 1}))
}

func TestValidatorOverridesDefaultRule(t *testing.T) {
	positive := func(v any) bool {
		n, ok := v.(int)
		return ok && n > 0
	}
	d := []progress.Descriptor{{Name: "n", Validator: positive}}
	assert.Equal(t, 0, progress.Percent(d, progress.Record{"n": 0}))
	assert.Equal(t, 100, progress.Percent(d, progress.Record{"n": 4}))

	always := []progress.Descriptor{{Name: "n", Validator: func(any) bool { return true }}}
	assert.Equal(t, 100, progress.Percent(always, progress.Record{}))
}

func TestRequiredFlagDoesNotWeigh(t *testing.T) {
	d := []progress.Descriptor{
		{Name: "heat_pump_type", Required: true},
		{Name: "cop"},
		{Name: "heat_source", Required: true},
	}
	rec := progress.Record{"heat_pump_type": "Luft/Wasser", "cop": nil, "heat_source": "Luft"}
	assert.Equal(t, 67, progress.Percent(d, rec))

	rec = progress.Record{"cop": 4.2}
	s := progress.Summarize(d, rec)
	assert.Equal(t, 33, s.Percent)
	assert.Equal(t, []string{"heat_pump_type", "heat_source"}, s.MissingRequired)
	assert.Equal(t, []string{"heat_pump_type", "heat_source"}, s.Missing)
}

func TestExtraKeysIgnored(t *testing.T) {
	rec := progress.Record{"a": "x", "unrelated": "y", "other": 3}
	assert.Equal(t, 50, progress.Percent(names("a", "b"), rec))
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, 0, progress.Aggregate(nil))
	assert.Equal(t, 0, progress.Aggregate([]progress.Item{{Required: false, Completed: true}}))
	assert.Equal(t, 100, progress.Aggregate([]progress.Item{
		{Required: true, Completed: true},
		{Required: false, Completed: false},
		{Required: true, Completed: true},
	}))
	assert.Equal(t, 33, progress.Aggregate([]progress.Item{
		{Required: true, Completed: true},
		{Required: true},
		{Required: true},
		{Required: false, Completed: true},
	}))
}

func TestApplyDoesNotMutate(t *testing.T) {
	base := progress.Record{"a": "x", "b": 2}
	next := progress.Apply(base,
		progress.FieldChange{Name: "a", Value: nil},
		progress.FieldChange{Name: "c", Value: false},
	)
	assert.Equal(t, progress.Record{"a": "x", "b": 2}, base)
	assert.Equal(t, progress.Record{"b": 2, "c": false}, next)

	fromNil := progress.Apply(nil, progress.FieldChange{Name: "a", Value: "y"})
	assert.Equal(t, progress.Record{"a": "y"}, fromNil)
}

func TestChangesSorted(t *testing.T) {
	got := progress.Changes(map[string]any{"b": 1, "a": nil, "c": "x"})
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, "c", got[2].Name)
}

func TestValidateDescriptors(t *testing.T) {
	require.NoError(t, progress.ValidateDescriptors(names("a", "b")))
	assert.Error(t, progress.ValidateDescriptors(names("a", "a")))
	assert.Error(t, progress.ValidateDescriptors(names("")))
}
