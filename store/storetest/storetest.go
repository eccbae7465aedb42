// Package storetest is a conformance suite every store.Store backend runs.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

var (
	alice = pass.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob   = pass.MustParseAddress("0x00000000000000000000000000000000000000b2")
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"SequenceStartsAtOne", testSequence},
		{"PassRoundTrip", testPassRoundTrip},
		{"UpdatePass", testUpdatePass},
		{"MissingPass", testMissingPass},
		{"ListByOwnerAscending", testListByOwner},
		{"ActivePass", testActivePass},
		{"ScheduleAndOwner", testScheduleAndOwner},
		{"AtomicRollback", testAtomicRollback},
		{"AtomicCommit", testAtomicCommit},
		{"View", testView},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testSequence(t *testing.T, s store.Store) {
	ctx := context.Background()
	for want := pass.ID(1); want <= 3; want++ {
		got, err := s.NextPassID(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func newPass(t *testing.T, s store.Store, owner pass.Address, rate uint64) *pass.Pass {
	t.Helper()
	ctx := context.Background()
	id, err := s.NextPassID(ctx)
	require.NoError(t, err)
	p := pass.New(id, owner, uint256.NewInt(rate), start)
	require.NoError(t, s.CreatePass(ctx, p))
	return p
}

func testPassRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPass(t, s, alice, 110000000)
	p.TTV = types.Ether(3)
	require.NoError(t, s.UpdatePass(ctx, p))

	got, err := s.GetPass(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, alice, got.Owner)
	assert.True(t, got.Active)
	assert.Equal(t, "3000000000000000000", got.TTV.Dec())
	assert.Equal(t, "110000000", got.LastFlowRate.Dec())
	assert.True(t, got.LastUpdate.Equal(start))
	assert.True(t, got.CreatedAt.Equal(start))

	n, err := s.CountPasses(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func testUpdatePass(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPass(t, s, alice, 5)

	p.Owner = bob
	p.Active = false
	p.LastFlowRate = types.Zero()
	p.LastUpdate = start.Add(time.Hour)
	p.Touch(start.Add(time.Hour))
	require.NoError(t, s.UpdatePass(ctx, p))

	got, err := s.GetPass(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.Owner)
	assert.False(t, got.Active)
	assert.True(t, got.LastFlowRate.IsZero())
	assert.True(t, got.LastUpdate.Equal(start.Add(time.Hour)))

	missing := pass.New(99, alice, types.Zero(), start)
	assert.ErrorIs(t, s.UpdatePass(ctx, missing), streampass.ErrPassNotFound)
}

func testMissingPass(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetPass(ctx, 42)
	assert.ErrorIs(t, err, streampass.ErrPassNotFound)

	err = s.CreatePass(ctx, pass.New(pass.None, alice, types.Zero(), start))
	assert.True(t, streampass.IsValidation(err), "got %v", err)
}

func testListByOwner(t *testing.T, s store.Store) {
	ctx := context.Background()
	a1 := newPass(t, s, alice, 1)
	newPass(t, s, bob, 1)
	a3 := newPass(t, s, alice, 1)

	list, err := s.ListPassesByOwner(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a1.ID, list[0].ID)
	assert.Equal(t, a3.ID, list[1].ID)

	none, err := s.ListPassesByOwner(ctx, pass.ZeroAddress)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testActivePass(t *testing.T, s store.Store) {
	ctx := context.Background()

	got, err := s.GetActivePass(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, pass.None, got)

	require.NoError(t, s.SetActivePass(ctx, alice, 3))
	require.NoError(t, s.SetActivePass(ctx, alice, 4))
	got, err = s.GetActivePass(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, pass.ID(4), got)

	require.NoError(t, s.SetActivePass(ctx, alice, pass.None))
	got, err = s.GetActivePass(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, pass.None, got)
}

func testScheduleAndOwner(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSchedule(ctx)
	assert.ErrorIs(t, err, streampass.ErrNotConfigured)
	_, err = s.GetOwner(ctx)
	assert.ErrorIs(t, err, streampass.ErrNotConfigured)

	sched := tier.MustParseSchedule([]string{"0", "1", "2", "3"}, types.TokenDecimals)
	require.NoError(t, s.SetSchedule(ctx, sched))
	require.NoError(t, s.SetSchedule(ctx, sched[:2]))
	got, err := s.GetSchedule(ctx)
	require.NoError(t, err)
	assert.True(t, sched[:2].Equal(got), "got %s", got)

	require.NoError(t, s.SetOwner(ctx, alice))
	require.NoError(t, s.SetOwner(ctx, bob))
	owner, err := s.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

func testAtomicRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPass(t, s, alice, 1)
	require.NoError(t, s.SetActivePass(ctx, alice, p.ID))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetPass(ctx, p.ID)
		if err != nil {
			return err
		}
		got.Active = false
		if err := tx.UpdatePass(ctx, got); err != nil {
			return err
		}
		if err := tx.SetActivePass(ctx, alice, pass.None); err != nil {
			return err
		}
		if _, err := tx.NextPassID(ctx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetPass(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	active, err := s.GetActivePass(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, p.ID, active)

	next, err := s.NextPassID(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID+1, next)
}

func testAtomicCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	var created pass.ID
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.NextPassID(ctx)
		if err != nil {
			return err
		}
		created = id
		if err := tx.CreatePass(ctx, pass.New(id, bob, uint256.NewInt(7), start)); err != nil {
			return err
		}
		return tx.SetActivePass(ctx, bob, id)
	})
	require.NoError(t, err)

	active, err := s.GetActivePass(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, created, active)
}

func testView(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPass(t, s, alice, 1)

	err := s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetPass(ctx, p.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, alice, got.Owner)
		return nil
	})
	require.NoError(t, err)
}

func testPing(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(ctx), streampass.ErrStoreClosed)
	assert.ErrorIs(t, s.Atomic(ctx, func(context.Context, store.Tx) error { return nil }), streampass.ErrStoreClosed)
}
