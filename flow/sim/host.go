// Package sim provides an in-memory streaming protocol host.
//
// Host owns flow truth: it enforces one flow per (token, sender, receiver),
// and notifies registered receivers after each transition. A receiver
// error reverts a create or update. Deletions always persist.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/pass"
)

type flowKey struct {
	token, sender, receiver pass.Address
}

// Host is a flow.Protocol backed by a map.
type Host struct {
	address pass.Address
	logger  *slog.Logger

	mu        sync.Mutex
	flows     map[flowKey]*uint256.Int
	receivers map[pass.Address]flow.Receiver
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New creates a host identified by address.
func New(address pass.Address, opts ...Option) *Host {
	h := &Host{
		address:   address,
		logger:    slog.Default(),
		flows:     make(map[flowKey]*uint256.Int),
		receivers: make(map[pass.Address]flow.Receiver),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Address returns the host identity placed on every notification.
func (h *Host) Address() pass.Address { return h.address }

// Register routes notifications for flows into receiver to r.
func (h *Host) Register(receiver pass.Address, r flow.Receiver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.receivers[receiver] = r
}

// CreateFlow opens a flow and notifies the receiver.
func (h *Host) CreateFlow(ctx context.Context, token, sender, receiver pass.Address, rate *uint256.Int, userData []byte) error {
	if rate == nil || rate.IsZero() {
		return fmt.Errorf("%w: create with zero rate", flow.ErrInvalidRate)
	}
	if sender == receiver {
		return fmt.Errorf("%w: sender is receiver", flow.ErrInvalidRate)
	}
	k := flowKey{token, sender, receiver}

	h.mu.Lock()
	if _, ok := h.flows[k]; ok {
		h.mu.Unlock()
		return flow.ErrFlowExists
	}
	h.flows[k] = new(uint256.Int).Set(rate)
	r := h.receivers[receiver]
	h.mu.Unlock()

	err := h.dispatch(ctx, r, token, userData, flow.Created{Sender: sender, FlowRate: new(uint256.Int).Set(rate)})
	if err != nil {
		h.mu.Lock()
		delete(h.flows, k)
		h.mu.Unlock()
		return err
	}
	return nil
}

// UpdateFlow changes the rate of an existing flow and notifies the receiver.
func (h *Host) UpdateFlow(ctx context.Context, token, sender, receiver pass.Address, rate *uint256.Int, userData []byte) error {
	if rate == nil || rate.IsZero() {
		return fmt.Errorf("%w: update to zero rate, delete the flow instead", flow.ErrInvalidRate)
	}
	k := flowKey{token, sender, receiver}

	h.mu.Lock()
	prev, ok := h.flows[k]
	if !ok {
		h.mu.Unlock()
		return flow.ErrFlowNotFound
	}
	h.flows[k] = new(uint256.Int).Set(rate)
	r := h.receivers[receiver]
	h.mu.Unlock()

	ev := flow.Updated{
		Sender:           sender,
		PreviousFlowRate: new(uint256.Int).Set(prev),
		FlowRate:         new(uint256.Int).Set(rate),
	}
	if err := h.dispatch(ctx, r, token, userData, ev); err != nil {
		h.mu.Lock()
		h.flows[k] = prev
		h.mu.Unlock()
		return err
	}
	return nil
}

// DeleteFlow removes a flow and notifies the receiver. The flow stays
// deleted even if the receiver fails; the failure is returned wrapped in
// flow.ErrCallbackFailed.
func (h *Host) DeleteFlow(ctx context.Context, token, sender, receiver pass.Address) error {
	k := flowKey{token, sender, receiver}

	h.mu.Lock()
	prev, ok := h.flows[k]
	if !ok {
		h.mu.Unlock()
		return flow.ErrFlowNotFound
	}
	delete(h.flows, k)
	r := h.receivers[receiver]
	h.mu.Unlock()

	if err := h.dispatch(ctx, r, token, nil, flow.Terminated{Sender: sender, LastFlowRate: prev}); err != nil {
		h.logger.Warn("sim: terminate callback failed",
			"sender", sender,
			"receiver", receiver,
			"error", err,
		)
		return fmt.Errorf("%w: %w", flow.ErrCallbackFailed, err)
	}
	return nil
}

// GetFlow implements flow.Protocol.
func (h *Host) GetFlow(_ context.Context, token, sender, receiver pass.Address) (flow.Flow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f := flow.Flow{Token: token, Sender: sender, Receiver: receiver, FlowRate: new(uint256.Int)}
	if rate, ok := h.flows[flowKey{token, sender, receiver}]; ok {
		f.FlowRate.Set(rate)
		f.Exists = true
	}
	return f, nil
}

// Flows returns every live flow into receiver, ordered by sender.
func (h *Host) Flows(receiver pass.Address) []flow.Flow {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []flow.Flow
	for k, rate := range h.flows {
		if k.receiver != receiver {
			continue
		}
		out = append(out, flow.Flow{
			Token:    k.token,
			Sender:   k.sender,
			Receiver: k.receiver,
			FlowRate: new(uint256.Int).Set(rate),
			Exists:   true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sender < out[j].Sender })
	return out
}

func (h *Host) dispatch(ctx context.Context, r flow.Receiver, token pass.Address, userData []byte, ev flow.Event) error {
	if r == nil {
		return nil
	}
	return r.HandleFlow(ctx, flow.Notification{
		Host:     h.address,
		Token:    token,
		Event:    ev,
		UserData: userData,
	})
}
