package rules

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Range is a closed integer interval [Min, Max].
// Administrators author every range inclusively ("TOP 1-3", "5-6 correct answers"),
// so both bounds always match.
type Range struct {
	Min int
	Max int
}

// NewRange builds a Range from its bounds
func NewRange(min, max int) Range {
	return Range{Min: min, Max: max}
}

// Valid reports whether Min <= Max
func (r Range) Valid() bool {
	return r.Min <= r.Max
}

// String renders the range as [min, max]
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// MarshalJSON encodes the range as a two-element array
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Min, r.Max})
}

// UnmarshalJSON decodes a two-element array
func (r *Range) UnmarshalJSON(data []byte) error {
	var bounds []int
	if err := json.Unmarshal(data, &bounds); err != nil {
		return fmt.Errorf("range must be a [min, max] array: %w", err)
	}
	return r.setBounds(bounds)
}

// MarshalYAML encodes the range as a two-element sequence
func (r Range) MarshalYAML() (interface{}, error) {
	return []int{r.Min, r.Max}, nil
}

// UnmarshalYAML decodes a two-element sequence
func (r *Range) UnmarshalYAML(value *yaml.Node) error {
	var bounds []int
	if err := value.Decode(&bounds); err != nil {
		return fmt.Errorf("range must be a [min, max] sequence: %w", err)
	}
	return r.setBounds(bounds)
}

func (r *Range) setBounds(bounds []int) error {
	if len(bounds) != 2 {
		return fmt.Errorf("range must have exactly 2 bounds, got %d", len(bounds))
	}
	r.Min, r.Max = bounds[0], bounds[1]
	return nil
}

// Matches reports whether min <= value <= max.
// It is the single matching primitive used by scoring, rewards and placement.
func Matches(value int, r Range) bool {
	return r.Min <= value && value <= r.Max
}

// Overlaps reports whether two ranges share at least one value
func Overlaps(a, b Range) bool {
	return a.Min <= b.Max && b.Min <= a.Max
}

// FirstMatch returns the index of the first item, in declaration order,
// whose range contains value. It returns -1 when nothing matches.
func FirstMatch[T any](items []T, value int, rangeOf func(T) Range) int {
	for i, item := range items {
		if Matches(value, rangeOf(item)) {
			return i
		}
	}
	return -1
}

// FirstExact returns the index of the first item whose key equals value, or -1
func FirstExact[T any](items []T, value int, keyOf func(T) int) int {
	for i, item := range items {
		if keyOf(item) == value {
			return i
		}
	}
	return -1
}
