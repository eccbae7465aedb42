package tier_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

func testSchedule() tier.Schedule {
	return tier.MustParseSchedule([]string{"0", "1", "2", "3"}, types.TokenDecimals)
}

func TestResolve(t *testing.T) {
	s := testSchedule()
	one := types.Ether(1)

	tests := []struct {
		name  string
		value *uint256.Int
		want  int
	}{
		{"zero", types.Zero(), 0},
		{"nil value", nil, 0},
		{"just below tier 1", new(uint256.Int).SubUint64(one, 1), 0},
		{"exactly tier 1", one, 1},
		{"between 1 and 2", types.Units(15, 17), 1},
		{"exactly tier 3", types.Ether(3), 3},
		{"clamped above top", types.Ether(400), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Resolve(tt.value))
		})
	}
}

func TestResolveStopsAtFirstLargerThreshold(t *testing.T) {
	// Non-monotonic schedules are accepted; the scan stops at the first
	// threshold above the value even if a later one is lower.
	s := tier.Schedule{uint256.NewInt(0), uint256.NewInt(100), uint256.NewInt(50)}
	assert.Equal(t, 0, s.Resolve(uint256.NewInt(60)))
	assert.Equal(t, 2, s.Resolve(uint256.NewInt(100)))
	assert.False(t, s.IsMonotonic())
}

func TestResolveFirstThresholdAboveValue(t *testing.T) {
	s := tier.Schedule{uint256.NewInt(10), uint256.NewInt(20)}
	assert.Equal(t, 0, s.Resolve(uint256.NewInt(5)))
}

func TestReplacingScheduleChangesTier(t *testing.T) {
	value := types.Units(15, 17) // 1.5 tokens
	before := testSchedule()
	after := tier.MustParseSchedule([]string{"0", "2"}, types.TokenDecimals)

	assert.Equal(t, 1, before.Resolve(value))
	assert.Equal(t, 0, after.Resolve(value))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, tier.Schedule{}.Validate(), tier.ErrEmptySchedule)
	assert.ErrorIs(t, tier.Schedule(nil).Validate(), tier.ErrEmptySchedule)
	assert.Error(t, tier.Schedule{uint256.NewInt(0), nil}.Validate())
	assert.NoError(t, testSchedule().Validate())
}

func TestThresholdAndTop(t *testing.T) {
	s := testSchedule()

	th, ok := s.Threshold(1)
	require.True(t, ok)
	assert.True(t, th.Eq(types.Ether(1)))

	th.SetUint64(0) // copy, must not alias
	assert.True(t, s[1].Eq(types.Ether(1)))

	_, ok = s.Threshold(4)
	assert.False(t, ok)
	_, ok = s.Threshold(-1)
	assert.False(t, ok)

	assert.Equal(t, 3, s.Top())
	assert.Equal(t, 0, tier.Schedule{}.Top())
}

func TestStringsRoundTrip(t *testing.T) {
	s := tier.MustParseSchedule([]string{"0", "240", "380", "760", "1800"}, types.TokenDecimals)
	parsed, err := tier.FromStrings(s.Strings())
	require.NoError(t, err)
	assert.True(t, s.Equal(parsed))
	assert.Equal(t, "[0 240000000000000000000 380000000000000000000 760000000000000000000 1800000000000000000000]", s.String())
}

func TestParseScheduleRejects(t *testing.T) {
	_, err := tier.ParseSchedule([]string{"0", "-1"}, types.TokenDecimals)
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestCloneIsDeep(t *testing.T) {
	s := testSchedule()
	c := s.Clone()
	c[1].SetUint64(0)
	assert.True(t, s[1].Eq(types.Ether(1)))
	assert.Nil(t, tier.Schedule(nil).Clone())
}

func TestResolveMonotoneProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	s := tier.Schedule{
		uint256.NewInt(0),
		uint256.NewInt(1_000),
		uint256.NewInt(5_000),
		uint256.NewInt(5_000),
		uint256.NewInt(90_000),
	}

	properties.Property("tier is non-decreasing in value", prop.ForAll(
		func(a, b uint64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			return s.Resolve(uint256.NewInt(lo)) <= s.Resolve(uint256.NewInt(hi))
		},
		gen.UInt64Range(0, 200_000),
		gen.UInt64Range(0, 200_000),
	))

	properties.Property("tier never exceeds top", prop.ForAll(
		func(v uint64) bool {
			return s.Resolve(uint256.NewInt(v)) <= s.Top()
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
