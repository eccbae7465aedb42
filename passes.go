package streampass

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/ttv"
)

// ──────────────────────────────────────────────────
// Pass registry
// ──────────────────────────────────────────────────

// Name returns the collection name.
func (e *Engine) Name() string { return e.cfg.Name }

// Symbol returns the collection symbol.
func (e *Engine) Symbol() string { return e.cfg.Symbol }

// OwnerOf returns the owner of passID.
func (e *Engine) OwnerOf(ctx context.Context, passID pass.ID) (pass.Address, error) {
	p, err := e.Pass(ctx, passID)
	if err != nil {
		return "", err
	}
	return p.Owner, nil
}

// BalanceOf returns the number of passes owner holds.
func (e *Engine) BalanceOf(ctx context.Context, owner pass.Address) (uint64, error) {
	ids, err := e.PassesOf(ctx, owner)
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

// TokenOfOwnerByIndex returns the index-th pass held by owner, in
// ascending id order.
func (e *Engine) TokenOfOwnerByIndex(ctx context.Context, owner pass.Address, index int) (pass.ID, error) {
	ids, err := e.PassesOf(ctx, owner)
	if err != nil {
		return pass.None, err
	}
	if index < 0 || index >= len(ids) {
		return pass.None, ErrIndexOutOfRange
	}
	return ids[index], nil
}

// TotalSupply returns the number of passes ever issued.
func (e *Engine) TotalSupply(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, _ time.Time) error {
		var err error
		n, err = tx.CountPasses(ctx)
		return err
	})
	return n, err
}

// PassesOf returns the ids held by owner in ascending order.
func (e *Engine) PassesOf(ctx context.Context, owner pass.Address) ([]pass.ID, error) {
	if owner.IsZero() {
		return nil, invalid("owner", "zero address is not a valid owner")
	}
	var ids []pass.ID
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, _ time.Time) error {
		owned, err := tx.ListPassesByOwner(ctx, owner)
		if err != nil {
			return err
		}
		ids = make([]pass.ID, len(owned))
		for i, p := range owned {
			ids[i] = p.ID
		}
		return nil
	})
	return ids, err
}

// Pass returns a copy of the stored pass. Its TTV is the value at
// LastUpdate; use TTV for the live figure.
func (e *Engine) Pass(ctx context.Context, passID pass.ID) (*pass.Pass, error) {
	if passID.IsNone() {
		return nil, ErrPassNotFound
	}
	var p *pass.Pass
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, _ time.Time) error {
		var err error
		p, err = tx.GetPass(ctx, passID)
		return err
	})
	return p, err
}

// PassState reports whether passID is accruing.
func (e *Engine) PassState(ctx context.Context, passID pass.ID) (bool, error) {
	p, err := e.Pass(ctx, passID)
	if err != nil {
		return false, err
	}
	return p.Active, nil
}

// ActivePass returns the subscriber's active pass, or pass.None.
func (e *Engine) ActivePass(ctx context.Context, subscriber pass.Address) (pass.ID, error) {
	activeID := pass.None
	err := e.view(ctx, func(ctx context.Context, tx store.Tx, _ time.Time) error {
		var err error
		activeID, err = tx.GetActivePass(ctx, subscriber)
		return err
	})
	return activeID, err
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

// TransferFrom moves passID from from to to. caller must be from and from
// must own the pass. Transferring the sender's active pass freezes it and
// terminates the sender's stream. The recipient never auto-activates it.
func (e *Engine) TransferFrom(ctx context.Context, caller, from, to pass.Address, passID pass.ID) error {
	switch {
	case to.IsZero():
		return invalid("to", "transfer to the zero address")
	case to == from:
		return invalid("to", "transfer to self")
	case passID.IsNone():
		return ErrPassNotFound
	}

	return e.atomic(ctx, "pass.transfer", func(ctx context.Context, ts *txState) error {
		annotate(ctx,
			attribute.Int64("streampass.pass_id", int64(passID)),
			attribute.String("streampass.from", from.String()),
			attribute.String("streampass.to", to.String()),
		)

		p, err := ts.tx.GetPass(ctx, passID)
		if err != nil {
			return err
		}
		if caller != from || p.Owner != from {
			return ErrNotPassOwner
		}

		activeID, err := ts.tx.GetActivePass(ctx, from)
		if err != nil {
			return err
		}
		wasActive := activeID == passID

		if wasActive {
			if err := e.deactivate(ctx, ts, p, from, plugin.ReasonTransferred); err != nil {
				return err
			}
		}

		p.Owner = to
		p.Touch(ts.now)
		if err := ts.tx.UpdatePass(ctx, p); err != nil {
			return err
		}

		terminated := false
		if wasActive {
			terminated = e.terminateStream(ctx, from)
		}

		ts.after(func(ctx context.Context) {
			e.logger.Info("pass transferred",
				"pass_id", passID,
				"from", from,
				"to", to,
				"was_active", wasActive,
				"stream_terminated", terminated,
			)
			e.plugins.EmitPassTransferred(ctx, plugin.TransferEvent{
				Meta:             ts.meta(),
				PassID:           passID,
				From:             from,
				To:               to,
				WasActive:        wasActive,
				StreamTerminated: terminated,
			})
		})
		return nil
	})
}

// terminateStream deletes sender's stream into the engine if it still
// exists. Failures are logged and never abort the caller.
func (e *Engine) terminateStream(ctx context.Context, sender pass.Address) bool {
	f, err := e.protocol.GetFlow(ctx, e.cfg.Token, sender, e.cfg.Address)
	if err != nil {
		e.logger.Warn("stream lookup failed", "sender", sender, "error", err)
		return false
	}
	if !f.Exists {
		return false
	}
	err = e.protocol.DeleteFlow(ctx, e.cfg.Token, sender, e.cfg.Address)
	switch {
	case err == nil:
		return true
	case errors.Is(err, flow.ErrFlowNotFound):
		return false
	case errors.Is(err, flow.ErrCallbackFailed):
		// The flow is gone; only the nested callback failed.
		e.logger.Warn("stream terminated with callback error", "sender", sender, "error", err)
		return true
	default:
		e.logger.Warn("stream termination failed", "sender", sender, "error", err)
		return false
	}
}

// SwitchPass makes passID the caller's active pass. The caller must own
// it and have a live stream. The current active pass is frozen without
// terminating the stream; passID then accrues at the live flow rate.
func (e *Engine) SwitchPass(ctx context.Context, caller pass.Address, passID pass.ID) error {
	if passID.IsNone() {
		return ErrPassNotFound
	}

	return e.atomic(ctx, "pass.switch", func(ctx context.Context, ts *txState) error {
		annotate(ctx,
			attribute.Int64("streampass.pass_id", int64(passID)),
			attribute.String("streampass.sender", caller.String()),
		)

		target, err := ts.tx.GetPass(ctx, passID)
		if err != nil {
			return err
		}
		if target.Owner != caller {
			return ErrNotPassOwner
		}

		f, err := e.protocol.GetFlow(ctx, e.cfg.Token, caller, e.cfg.Address)
		if err != nil {
			return err
		}
		if !f.Exists {
			return ErrNoStream
		}

		currentID, err := ts.tx.GetActivePass(ctx, caller)
		if err != nil {
			return err
		}

		if currentID == passID {
			delta, err := ttv.Activate(target, f.FlowRate, ts.now)
			if err != nil {
				return err
			}
			if err := ts.tx.UpdatePass(ctx, target); err != nil {
				return err
			}
			e.accrued(ts, target, delta)
			return nil
		}

		if !currentID.IsNone() {
			current, err := ts.tx.GetPass(ctx, currentID)
			if err != nil {
				return err
			}
			if err := e.deactivate(ctx, ts, current, caller, plugin.ReasonSwitched); err != nil {
				return err
			}
		}

		if _, err := ttv.Activate(target, f.FlowRate, ts.now); err != nil {
			return err
		}
		if err := ts.tx.UpdatePass(ctx, target); err != nil {
			return err
		}
		if err := ts.tx.SetActivePass(ctx, caller, passID); err != nil {
			return err
		}
		e.activated(ts, target, caller, plugin.ReasonSwitched)
		return nil
	})
}
