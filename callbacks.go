package streampass

import (
	"context"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/id"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/ttv"
)

// ──────────────────────────────────────────────────
// Stream lifecycle callbacks
// ──────────────────────────────────────────────────

// HandleFlow implements flow.Receiver. Each notification is applied in one
// transaction; an error leaves no partial state and tells the host to
// revert the triggering call.
func (e *Engine) HandleFlow(ctx context.Context, n flow.Notification) error {
	_, nested := joined(ctx)

	err := e.handleFlow(ctx, n)
	if err != nil && !nested {
		e.reject(ctx, n, err)
	}
	return err
}

func (e *Engine) handleFlow(ctx context.Context, n flow.Notification) error {
	if n.Host != e.cfg.Host {
		return invalid("host", "notification from unknown host %s", n.Host)
	}
	if n.Token != e.cfg.Token {
		return invalid("token", "token %s is not accepted", n.Token)
	}
	if n.Event == nil {
		return invalid("event", "missing lifecycle event")
	}
	if n.Event.Subscriber().IsZero() {
		return invalid("sender", "sender is required")
	}

	switch ev := n.Event.(type) {
	case flow.Created:
		if ev.FlowRate == nil {
			return invalid("flow_rate", "flow rate is required")
		}
		return e.atomic(ctx, "flow.created", func(ctx context.Context, ts *txState) error {
			return e.onCreated(ctx, ts, ev)
		})
	case flow.Updated:
		if ev.FlowRate == nil {
			return invalid("flow_rate", "flow rate is required")
		}
		return e.atomic(ctx, "flow.updated", func(ctx context.Context, ts *txState) error {
			return e.onUpdated(ctx, ts, ev)
		})
	case flow.Terminated:
		return e.atomic(ctx, "flow.terminated", func(ctx context.Context, ts *txState) error {
			return e.onTerminated(ctx, ts, ev)
		})
	default:
		return invalid("event", "unknown lifecycle event %T", n.Event)
	}
}

// OnFlowCreated is a convenience wrapper around HandleFlow.
func (e *Engine) OnFlowCreated(ctx context.Context, sender pass.Address, rate *uint256.Int) error {
	return e.HandleFlow(ctx, e.notification(flow.Created{Sender: sender, FlowRate: rate}))
}

// OnFlowUpdated is a convenience wrapper around HandleFlow.
func (e *Engine) OnFlowUpdated(ctx context.Context, sender pass.Address, previous, rate *uint256.Int) error {
	return e.HandleFlow(ctx, e.notification(flow.Updated{Sender: sender, PreviousFlowRate: previous, FlowRate: rate}))
}

// OnFlowTerminated is a convenience wrapper around HandleFlow.
func (e *Engine) OnFlowTerminated(ctx context.Context, sender pass.Address, lastRate *uint256.Int) error {
	return e.HandleFlow(ctx, e.notification(flow.Terminated{Sender: sender, LastFlowRate: lastRate}))
}

func (e *Engine) notification(ev flow.Event) flow.Notification {
	return flow.Notification{Host: e.cfg.Host, Token: e.cfg.Token, Event: ev}
}

// onCreated issues a pass on a subscriber's first stream, reactivates an
// owned pass on re-subscription, or restamps the active pass if one is
// already accruing.
func (e *Engine) onCreated(ctx context.Context, ts *txState, ev flow.Created) error {
	sender := ev.Sender
	annotate(ctx, attribute.String("streampass.sender", sender.String()))

	activeID, err := ts.tx.GetActivePass(ctx, sender)
	if err != nil {
		return err
	}
	if !activeID.IsNone() {
		p, err := ts.tx.GetPass(ctx, activeID)
		if err != nil {
			return err
		}
		delta, err := ttv.Restamp(p, ev.FlowRate, ts.now)
		if err != nil {
			return err
		}
		if err := ts.tx.UpdatePass(ctx, p); err != nil {
			return err
		}
		e.accrued(ts, p, delta)
		return nil
	}

	owned, err := ts.tx.ListPassesByOwner(ctx, sender)
	if err != nil {
		return err
	}

	if len(owned) == 0 {
		passID, err := ts.tx.NextPassID(ctx)
		if err != nil {
			return err
		}
		p := pass.New(passID, sender, ev.FlowRate, ts.now)
		if err := ts.tx.CreatePass(ctx, p); err != nil {
			return err
		}
		if err := ts.tx.SetActivePass(ctx, sender, passID); err != nil {
			return err
		}
		annotate(ctx, attribute.Int64("streampass.pass_id", int64(passID)))

		snap := p.Clone()
		ts.after(func(ctx context.Context) {
			e.logger.Info("pass minted", "pass_id", snap.ID, "owner", snap.Owner, "flow_rate", snap.LastFlowRate.Dec())
			e.plugins.EmitPassMinted(ctx, plugin.PassEvent{Meta: ts.meta(), Pass: snap, Subscriber: sender, Reason: plugin.ReasonCreated})
			e.plugins.EmitPassActivated(ctx, plugin.PassEvent{Meta: ts.meta(), Pass: snap, Subscriber: sender, Reason: plugin.ReasonCreated})
		})
		return nil
	}

	// Re-subscription reactivates the lowest-id owned pass.
	p := owned[0]
	if _, err := ttv.Activate(p, ev.FlowRate, ts.now); err != nil {
		return err
	}
	if err := ts.tx.UpdatePass(ctx, p); err != nil {
		return err
	}
	if err := ts.tx.SetActivePass(ctx, sender, p.ID); err != nil {
		return err
	}
	annotate(ctx, attribute.Int64("streampass.pass_id", int64(p.ID)))
	e.activated(ts, p, sender, plugin.ReasonResubscribed)
	return nil
}

// onUpdated accrues at the previous rate and switches to the new one.
func (e *Engine) onUpdated(ctx context.Context, ts *txState, ev flow.Updated) error {
	annotate(ctx, attribute.String("streampass.sender", ev.Sender.String()))

	activeID, err := ts.tx.GetActivePass(ctx, ev.Sender)
	if err != nil {
		return err
	}
	if activeID.IsNone() {
		return ErrNoActivePass
	}
	p, err := ts.tx.GetPass(ctx, activeID)
	if err != nil {
		return err
	}
	delta, err := ttv.Restamp(p, ev.FlowRate, ts.now)
	if err != nil {
		return err
	}
	if err := ts.tx.UpdatePass(ctx, p); err != nil {
		return err
	}
	annotate(ctx, attribute.Int64("streampass.pass_id", int64(p.ID)))
	e.accrued(ts, p, delta)
	return nil
}

// onTerminated accrues the final value and deactivates the pass. A sender
// with no active pass has already been handled.
func (e *Engine) onTerminated(ctx context.Context, ts *txState, ev flow.Terminated) error {
	annotate(ctx, attribute.String("streampass.sender", ev.Sender.String()))

	activeID, err := ts.tx.GetActivePass(ctx, ev.Sender)
	if err != nil {
		return err
	}
	if activeID.IsNone() {
		e.logger.Debug("terminate without active pass", "sender", ev.Sender)
		return nil
	}
	p, err := ts.tx.GetPass(ctx, activeID)
	if err != nil {
		return err
	}
	return e.deactivate(ctx, ts, p, ev.Sender, plugin.ReasonTerminated)
}

// deactivate clears the owner's pointer, accrues the final value and
// freezes p.
func (e *Engine) deactivate(ctx context.Context, ts *txState, p *pass.Pass, owner pass.Address, reason string) error {
	if err := ts.tx.SetActivePass(ctx, owner, pass.None); err != nil {
		return err
	}
	delta, err := ttv.Deactivate(p, ts.now)
	if err != nil {
		return err
	}
	if err := ts.tx.UpdatePass(ctx, p); err != nil {
		return err
	}
	annotate(ctx, attribute.Int64("streampass.pass_id", int64(p.ID)))
	e.accrued(ts, p, delta)

	snap := p.Clone()
	ts.after(func(ctx context.Context) {
		e.logger.Info("pass deactivated", "pass_id", snap.ID, "owner", owner, "reason", reason, "ttv", snap.TTV.Dec())
		e.plugins.EmitPassDeactivated(ctx, plugin.PassEvent{Meta: ts.meta(), Pass: snap, Subscriber: owner, Reason: reason})
	})
	return nil
}

func (e *Engine) activated(ts *txState, p *pass.Pass, owner pass.Address, reason string) {
	snap := p.Clone()
	ts.after(func(ctx context.Context) {
		e.logger.Info("pass activated", "pass_id", snap.ID, "owner", owner, "reason", reason, "flow_rate", snap.LastFlowRate.Dec())
		e.plugins.EmitPassActivated(ctx, plugin.PassEvent{Meta: ts.meta(), Pass: snap, Subscriber: owner, Reason: reason})
	})
}

func (e *Engine) accrued(ts *txState, p *pass.Pass, delta *uint256.Int) {
	if delta == nil || delta.IsZero() {
		return
	}
	ev := plugin.AccrualEvent{
		Meta:       ts.meta(),
		PassID:     p.ID,
		Subscriber: p.Owner,
		Delta:      new(uint256.Int).Set(delta),
		Total:      new(uint256.Int).Set(p.TTV),
	}
	ts.after(func(ctx context.Context) {
		e.logger.Debug("ttv accrued", "pass_id", ev.PassID, "delta", ev.Delta.Dec(), "total", ev.Total.Dec())
		e.plugins.EmitTTVAccrued(ctx, ev)
	})
}

func (e *Engine) reject(ctx context.Context, n flow.Notification, err error) {
	ev := plugin.RejectionEvent{Meta: plugin.NewMeta(id.Nil, e.now()), Err: err}
	if n.Event != nil {
		ev.Kind = n.Event.Kind()
		ev.Sender = n.Event.Subscriber()
	}
	e.logger.Warn("flow notification rejected",
		"kind", ev.Kind,
		"sender", ev.Sender,
		"error", err,
	)
	e.plugins.EmitFlowRejected(ctx, ev)
}
