// Package progress derives completion percentages from form records.
//
// The calculator is pure: it never caches, never mutates its inputs, and is
// meant to be re-run on every edit of a record.
package progress

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Record maps a field name to its current value. Keys that no descriptor
// names are ignored by the calculator.
type Record map[string]any

// Descriptor declares one tracked field of a form.
type Descriptor struct {
	Name     string
	Required bool
	// Validator, when set, alone decides whether the value counts as filled.
	Validator func(any) bool
}

// FieldChange sets one field. A nil Value clears the field.
type FieldChange struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Item is one entry of a required-only aggregate, e.g. a checklist item.
type Item struct {
	Required  bool
	Completed bool
}

// Summary is the derived view of a record against its descriptors.
type Summary struct {
	Percent         int      `json:"percent"`
	Filled          int      `json:"filled"`
	Total           int      `json:"total"`
	Missing         []string `json:"missing"`
	MissingRequired []string `json:"missing_required"`
}

// Percent returns filled/total*100 rounded half up. Every descriptor weighs
// the same regardless of Required. An empty descriptor list yields 0.
func Percent(descriptors []Descriptor, rec Record) int {
	return Summarize(descriptors, rec).Percent
}

// Summarize computes the percentage together with the open fields.
func Summarize(descriptors []Descriptor, rec Record) Summary {
	s := Summary{
		Total:           len(descriptors),
		Missing:         []string{},
		MissingRequired: []string{},
	}
	for _, d := range descriptors {
		if Filled(d, rec[d.Name]) {
			s.Filled++
			continue
		}
		s.Missing = append(s.Missing, d.Name)
		if d.Required {
			s.MissingRequired = append(s.MissingRequired, d.Name)
		}
	}
	s.Percent = ratio(s.Filled, s.Total)
	return s
}

// Filled reports whether v counts as an answer for d.
func Filled(d Descriptor, v any) bool {
	if d.Validator != nil {
		return d.Validator(v)
	}
	return present(v)
}

// present is the default rule: false and 0 are answers, nil and "" are not,
// empty collections are not.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return true
	case time.Time:
		return !x.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return present(rv.Elem().Interface())
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len() > 0
	}
	return true
}

// Aggregate returns the share of completed items among the required ones.
// Optional items never count; no required items means 0.
func Aggregate(items []Item) int {
	var required, completed int
	for _, it := range items {
		if !it.Required {
			continue
		}
		required++
		if it.Completed {
			completed++
		}
	}
	return ratio(completed, required)
}

// Apply returns a copy of rec with the changes applied in order.
func Apply(rec Record, changes ...FieldChange) Record {
	out := make(Record, len(rec)+len(changes))
	for k, v := range rec {
		out[k] = v
	}
	for _, c := range changes {
		if c.Value == nil {
			delete(out, c.Name)
			continue
		}
		out[c.Name] = c.Value
	}
	return out
}

// Changes turns a field map into changes ordered by field name.
func Changes(fields map[string]any) []FieldChange {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]FieldChange, 0, len(names))
	for _, name := range names {
		out = append(out, FieldChange{Name: name, Value: fields[name]})
	}
	return out
}

// ValidateDescriptors checks that names are set and unique.
func ValidateDescriptors(descriptors []Descriptor) error {
	seen := make(map[string]struct{}, len(descriptors))
	for i, d := range descriptors {
		if d.Name == "" {
			return fmt.Errorf("descriptor %d has empty name", i)
		}
		if _, ok := seen[d.Name]; ok {
			return fmt.Errorf("duplicate descriptor %s", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

func ratio(n, total int) int {
	if total <= 0 {
		return 0
	}
	return (n*200 + total) / (2 * total)
}
