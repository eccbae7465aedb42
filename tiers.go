package streampass

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/ttv"
)

// ──────────────────────────────────────────────────
// Tier engine
// ──────────────────────────────────────────────────

// ActiveTier resolves the subscriber's tier from the live TTV of their
// active pass. A subscriber without an active pass is tier 0.
func (e *Engine) ActiveTier(ctx context.Context, subscriber pass.Address) (int, error) {
	level := 0
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, now time.Time) error {
		activeID, err := tx.GetActivePass(ctx, subscriber)
		if err != nil || activeID.IsNone() {
			return err
		}
		p, err := tx.GetPass(ctx, activeID)
		if err != nil {
			return err
		}
		live, err := ttv.Live(p, now)
		if err != nil {
			return err
		}
		sched, err := tx.GetSchedule(ctx)
		if err != nil {
			return err
		}
		level = sched.Resolve(live)
		return nil
	})
	return level, err
}

// TTV returns the value transmitted into passID: the stored figure for an
// inactive pass, the live projection for an active one.
func (e *Engine) TTV(ctx context.Context, passID pass.ID) (*uint256.Int, error) {
	if passID.IsNone() {
		return nil, ErrPassNotFound
	}
	var v *uint256.Int
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, now time.Time) error {
		p, err := tx.GetPass(ctx, passID)
		if err != nil {
			return err
		}
		v, err = ttv.Live(p, now)
		return err
	})
	return v, err
}

// Tiers returns the current schedule.
func (e *Engine) Tiers(ctx context.Context) (tier.Schedule, error) {
	var sched tier.Schedule
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, _ time.Time) error {
		var err error
		sched, err = tx.GetSchedule(ctx)
		return err
	})
	return sched, err
}

// Tier returns threshold i.
func (e *Engine) Tier(ctx context.Context, i int) (*uint256.Int, error) {
	sched, err := e.Tiers(ctx)
	if err != nil {
		return nil, err
	}
	threshold, ok := sched.Threshold(i)
	if !ok {
		return nil, ErrIndexOutOfRange
	}
	return threshold, nil
}

// UpdateTier replaces the schedule. Only the owner may call it. The new
// thresholds apply to every later read; no pass data is rewritten.
func (e *Engine) UpdateTier(ctx context.Context, caller pass.Address, thresholds tier.Schedule) error {
	if err := thresholds.Validate(); err != nil {
		return invalid("thresholds", "%v", err)
	}
	next := thresholds.Clone()

	return e.atomic(ctx, "tier.update", func(ctx context.Context, ts *txState) error {
		annotate(ctx, attribute.Int("streampass.tiers", len(next)))

		owner, err := ts.tx.GetOwner(ctx)
		if err != nil {
			return err
		}
		if caller != owner {
			return ErrNotOwner
		}
		prev, err := ts.tx.GetSchedule(ctx)
		if err != nil {
			return err
		}
		if err := ts.tx.SetSchedule(ctx, next); err != nil {
			return err
		}

		ts.after(func(ctx context.Context) {
			if !next.IsMonotonic() {
				e.logger.Warn("tier schedule is not monotonic", "schedule", next.String())
			}
			e.logger.Info("tier schedule updated", "previous", prev.String(), "current", next.String())
			e.plugins.EmitScheduleUpdated(ctx, plugin.ScheduleEvent{
				Meta:     ts.meta(),
				Caller:   caller,
				Previous: prev,
				Current:  next.Clone(),
			})
		})
		return nil
	})
}

// ──────────────────────────────────────────────────
// Ownership
// ──────────────────────────────────────────────────

// Owner returns the address allowed to replace the schedule.
func (e *Engine) Owner(ctx context.Context) (pass.Address, error) {
	var owner pass.Address
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, _ time.Time) error {
		var err error
		owner, err = tx.GetOwner(ctx)
		return err
	})
	return owner, err
}

// TransferOwnership hands the owner role to next.
func (e *Engine) TransferOwnership(ctx context.Context, caller, next pass.Address) error {
	if next.IsZero() {
		return invalid("owner", "new owner is the zero address")
	}

	return e.atomic(ctx, "owner.transfer", func(ctx context.Context, ts *txState) error {
		owner, err := ts.tx.GetOwner(ctx)
		if err != nil {
			return err
		}
		if caller != owner {
			return ErrNotOwner
		}
		if err := ts.tx.SetOwner(ctx, next); err != nil {
			return err
		}

		ts.after(func(ctx context.Context) {
			e.logger.Info("ownership transferred", "previous", owner, "current", next)
			e.plugins.EmitOwnershipTransferred(ctx, plugin.OwnershipEvent{
				Meta:     ts.meta(),
				Previous: owner,
				Current:  next,
			})
		})
		return nil
	})
}
