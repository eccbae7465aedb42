// Package tier resolves accrued value to a discrete privilege tier.
//
// A Schedule is an ordered list of thresholds in token base units. Index 0
// is the entry tier and is conventionally 0. Resolution is a pure function
// of the schedule and a value; nothing in this package touches storage.
package tier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/xraph/streampass/types"
)

// ErrEmptySchedule is returned when a schedule has no thresholds.
var ErrEmptySchedule = errors.New("tier: schedule must contain at least one threshold")

// Schedule is an ordered sequence of tier thresholds.
type Schedule []*uint256.Int

// Resolve returns the tier for value: the greatest index i whose threshold
// is <= value, scanning ascending and stopping at the first threshold that
// exceeds value. A value above every threshold clamps to the top tier.
// An empty schedule, or one whose first threshold exceeds value, resolves
// to tier 0.
func (s Schedule) Resolve(value *uint256.Int) int {
	if value == nil {
		value = types.Zero()
	}
	level := 0
	for i, threshold := range s {
		if threshold == nil || threshold.Gt(value) {
			break
		}
		level = i
	}
	return level
}

// Validate checks that the schedule can be installed.
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return ErrEmptySchedule
	}
	for i, threshold := range s {
		if threshold == nil {
			return fmt.Errorf("tier: threshold %d is nil", i)
		}
	}
	return nil
}

// IsMonotonic reports whether thresholds are non-decreasing.
func (s Schedule) IsMonotonic() bool {
	for i := 1; i < len(s); i++ {
		if s[i].Lt(s[i-1]) {
			return false
		}
	}
	return true
}

// Threshold returns the threshold for tier i.
func (s Schedule) Threshold(i int) (*uint256.Int, bool) {
	if i < 0 || i >= len(s) {
		return nil, false
	}
	return new(uint256.Int).Set(s[i]), true
}

// Top returns the highest tier index, or 0 for an empty schedule.
func (s Schedule) Top() int {
	if len(s) == 0 {
		return 0
	}
	return len(s) - 1
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	if s == nil {
		return nil
	}
	out := make(Schedule, len(s))
	for i, threshold := range s {
		if threshold != nil {
			out[i] = new(uint256.Int).Set(threshold)
		}
	}
	return out
}

// Strings renders thresholds as base-unit decimal strings.
func (s Schedule) Strings() []string {
	out := make([]string, len(s))
	for i, threshold := range s {
		out[i] = threshold.Dec()
	}
	return out
}

func (s Schedule) String() string {
	return "[" + strings.Join(s.Strings(), " ") + "]"
}

// Equal reports whether two schedules hold the same thresholds.
func (s Schedule) Equal(other Schedule) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].Eq(other[i]) {
			return false
		}
	}
	return true
}

// FromStrings parses base-unit decimal strings, as produced by Strings.
func FromStrings(values []string) (Schedule, error) {
	return ParseSchedule(values, 0)
}

// ParseSchedule parses thresholds given in major units, scaling each by
// 10^decimals. ParseSchedule([]string{"0", "1", "2"}, 18) yields
// 0, 1e18 and 2e18.
func ParseSchedule(values []string, decimals int) (Schedule, error) {
	out := make(Schedule, 0, len(values))
	for i, v := range values {
		threshold, err := types.ParseUnits(v, decimals)
		if err != nil {
			return nil, fmt.Errorf("tier: threshold %d: %w", i, err)
		}
		out = append(out, threshold)
	}
	return out, nil
}

// MustParseSchedule is like ParseSchedule but panics on error.
func MustParseSchedule(values []string, decimals int) Schedule {
	s, err := ParseSchedule(values, decimals)
	if err != nil {
		panic(err)
	}
	return s
}
