package streampass_test

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/flow/sim"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/store/memory"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

// timeForTier is the number of seconds at baseRate needed to stream one
// whole token, plus one.
var timeForTier = int64(new(uint256.Int).Div(types.Ether(1), baseRate).Uint64() + 1)

func TestLoadsCorrectTier(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(user1)
	require.Equal(t, user1, h.ownerOf(1))

	assert.Equal(t, 0, h.tier(user1))
	for want := 1; want <= 3; want++ {
		h.advance(timeForTier)
		assert.Equal(t, want, h.tier(user1), "after %d periods", want)
	}

	h.advance(timeForTier)
	assert.Equal(t, 3, h.tier(user1), "clamps at the top tier")
}

func TestTierWithoutActivePass(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.tier(user2))

	h.mustCreate(user1)
	h.advance(timeForTier)
	h.advance(timeForTier)
	require.NoError(t, h.delete(user1))
	assert.Equal(t, 0, h.tier(user1), "inactive passes confer no tier")
	assert.Equal(t, "2000000000020000000", h.ttv(1).Dec())
}

func TestUpdateTierTakesEffectImmediately(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(user1)
	h.advance(timeForTier)
	require.Equal(t, 1, h.tier(user1))
	before, err := h.engine.Pass(h.ctx, 1)
	require.NoError(t, err)

	next := tier.MustParseSchedule([]string{"0", "2"}, 18)
	require.NoError(t, h.engine.UpdateTier(h.ctx, deployer, next))

	assert.Equal(t, 0, h.tier(user1))
	after, err := h.engine.Pass(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before.TTV.Dec(), after.TTV.Dec())
	assert.Equal(t, before.LastUpdate, after.LastUpdate)
	assert.Equal(t, before.LastFlowRate.Dec(), after.LastFlowRate.Dec())

	got, err := h.engine.Tiers(h.ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(next))

	updated, ok := h.events.Last().(plugin.ScheduleEvent)
	require.True(t, ok)
	assert.True(t, updated.Previous.Equal(testSchedule()))
	assert.Equal(t, deployer, updated.Caller)
}

func TestOnlyOwnerUpdatesTiers(t *testing.T) {
	h := newHarness(t)

	err := h.engine.UpdateTier(h.ctx, user1, tier.MustParseSchedule([]string{"0"}, 18))
	require.ErrorIs(t, err, streampass.ErrNotOwner)
	assert.True(t, streampass.IsAuthorization(err))

	err = h.engine.UpdateTier(h.ctx, deployer, tier.Schedule{})
	assert.True(t, streampass.IsValidation(err))

	got, err := h.engine.Tiers(h.ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(testSchedule()))
}

func TestUpdateTierAcceptsUnorderedSchedule(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(user1)
	h.advance(timeForTier)
	h.advance(timeForTier)
	require.Equal(t, 2, h.tier(user1))

	unordered := tier.MustParseSchedule([]string{"0", "3", "1"}, 18)
	require.NoError(t, h.engine.UpdateTier(h.ctx, deployer, unordered))
	assert.Equal(t, 0, h.tier(user1), "scan stops at the first larger threshold")
}

func TestTierLookup(t *testing.T) {
	h := newHarness(t)

	threshold, err := h.engine.Tier(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.Ether(1).Dec(), threshold.Dec())

	_, err = h.engine.Tier(h.ctx, 4)
	assert.ErrorIs(t, err, streampass.ErrIndexOutOfRange)
	_, err = h.engine.Tier(h.ctx, -1)
	assert.ErrorIs(t, err, streampass.ErrIndexOutOfRange)
}

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx

	got, err := h.engine.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, deployer, got)

	require.ErrorIs(t, h.engine.TransferOwnership(ctx, user1, user1), streampass.ErrNotOwner)
	assert.True(t, streampass.IsValidation(h.engine.TransferOwnership(ctx, deployer, pass.ZeroAddress)))

	require.NoError(t, h.engine.TransferOwnership(ctx, deployer, user1))
	got, err = h.engine.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, user1, got)

	sched := tier.MustParseSchedule([]string{"0", "5"}, 18)
	assert.ErrorIs(t, h.engine.UpdateTier(ctx, deployer, sched), streampass.ErrNotOwner)
	assert.NoError(t, h.engine.UpdateTier(ctx, user1, sched))

	moved, ok := h.events.Last().(plugin.ScheduleEvent)
	require.True(t, ok)
	assert.Equal(t, user1, moved.Caller)
}

func TestRestartKeepsStoredConfiguration(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	host := sim.New(hostAddr)
	cfg := streampass.Config{
		Address:  appAddr,
		Host:     hostAddr,
		Token:    tokenAddr,
		Owner:    deployer,
		Schedule: testSchedule(),
	}

	first, err := streampass.New(st, host, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.UpdateTier(ctx, deployer, tier.MustParseSchedule([]string{"0", "9"}, 18)))

	cfg.Schedule = tier.MustParseSchedule([]string{"0"}, 18)
	cfg.Owner = user1
	second, err := streampass.New(st, host, cfg)
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))

	got, err := second.Tiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "9000000000000000000"}, got.Strings())
	owner, err := second.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, deployer, owner)
	assert.Equal(t, streampass.DefaultName, second.Name())
	assert.Equal(t, streampass.DefaultSymbol, second.Symbol())
}

func TestNewValidatesConfig(t *testing.T) {
	valid := streampass.Config{
		Address:  appAddr,
		Host:     hostAddr,
		Token:    tokenAddr,
		Owner:    deployer,
		Schedule: testSchedule(),
	}

	tests := []struct {
		name   string
		mutate func(*streampass.Config)
	}{
		{"address", func(c *streampass.Config) { c.Address = "" }},
		{"host", func(c *streampass.Config) { c.Host = pass.ZeroAddress }},
		{"token", func(c *streampass.Config) { c.Token = "" }},
		{"owner", func(c *streampass.Config) { c.Owner = "" }},
		{"schedule", func(c *streampass.Config) { c.Schedule = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := streampass.New(memory.New(), sim.New(hostAddr), cfg)
			var verr *streampass.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.name, verr.Field)
		})
	}

	_, err := streampass.New(nil, sim.New(hostAddr), valid)
	assert.True(t, streampass.IsValidation(err))
	_, err = streampass.New(memory.New(), nil, valid)
	assert.True(t, streampass.IsValidation(err))
}
