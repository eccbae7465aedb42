package pass_test

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/streampass/pass"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want pass.Address
	}{
		{"lower", "0x00000000000000000000000000000000000000a1", "0x00000000000000000000000000000000000000a1"},
		{"mixed case", "0xEB796bdb90fFA0f28255275e16936D25d3418603", "0xeb796bdb90ffa0f28255275e16936d25d3418603"},
		{"no prefix", "5D8B4C2554aeB7e86F387B4d6c00Ac33499Ed01f", "0x5d8b4c2554aeb7e86f387b4d6c00ac33499ed01f"},
		{"whitespace", "  0x00000000000000000000000000000000000000b2 ", "0x00000000000000000000000000000000000000b2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pass.ParseAddress(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAddressRejects(t *testing.T) {
	for _, in := range []string{"", "0x", "0x1234", "0xZZ796bdb90fFA0f28255275e16936D25d3418603", "0xEB796bdb90fFA0f28255275e16936D25d341860300"} {
		_, err := pass.ParseAddress(in)
		assert.True(t, errors.Is(err, pass.ErrInvalidAddress), "input %q", in)
	}
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, pass.ZeroAddress.IsZero())
	assert.True(t, pass.Address("").IsZero())

	a := pass.MustParseAddress("0xeb796bdb90ffa0f28255275e16936d25d3418603")
	assert.False(t, a.IsZero())
	assert.Equal(t, "0xeb79…8603", a.Short())
	assert.Panics(t, func() { pass.MustParseAddress("nope") })
}

func TestNewPass(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	owner := pass.MustParseAddress("0x00000000000000000000000000000000000000a1")
	rate := uint256.NewInt(110000000)

	p := pass.New(1, owner, rate, now)

	assert.Equal(t, pass.ID(1), p.ID)
	assert.Equal(t, owner, p.Owner)
	assert.True(t, p.Active)
	assert.True(t, p.TTV.IsZero())
	assert.Equal(t, uint64(110000000), p.LastFlowRate.Uint64())
	assert.Equal(t, now.Truncate(time.Second), p.LastUpdate)

	// The pass must not alias the caller's rate.
	rate.SetUint64(1)
	assert.Equal(t, uint64(110000000), p.LastFlowRate.Uint64())
}

func TestClone(t *testing.T) {
	p := pass.New(7, pass.ZeroAddress, uint256.NewInt(5), time.Unix(100, 0))
	p.TTV.SetUint64(42)

	c := p.Clone()
	c.TTV.SetUint64(0)
	c.LastFlowRate.SetUint64(0)
	c.Active = false

	assert.Equal(t, uint64(42), p.TTV.Uint64())
	assert.Equal(t, uint64(5), p.LastFlowRate.Uint64())
	assert.True(t, p.Active)

	var nilPass *pass.Pass
	assert.Nil(t, nilPass.Clone())
}

func TestAccount(t *testing.T) {
	assert.False(t, pass.Account{}.HasActive())
	assert.True(t, pass.Account{ActivePassID: 3}.HasActive())
	assert.True(t, pass.None.IsNone())
}
