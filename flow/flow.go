// Package flow describes the streaming-payment protocol as seen by the
// engine: the lifecycle notifications it receives and the two outbound
// calls it makes.
package flow

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/xraph/streampass/pass"
)

// Errors raised by a protocol host.
var (
	ErrFlowExists   = errors.New("flow: flow already exist")
	ErrFlowNotFound = errors.New("flow: flow does not exist")
	ErrInvalidRate  = errors.New("flow: invalid flow rate")
	// ErrCallbackFailed wraps a receiver error on a call that cannot be
	// reverted (flow deletion).
	ErrCallbackFailed = errors.New("flow: receiver callback failed")
)

// Flow is the protocol's record of one sender → receiver stream.
type Flow struct {
	Token    pass.Address `json:"token"`
	Sender   pass.Address `json:"sender"`
	Receiver pass.Address `json:"receiver"`
	FlowRate *uint256.Int `json:"flow_rate"`
	Exists   bool         `json:"exists"`
}

// Protocol is the outbound surface the engine calls.
type Protocol interface {
	// GetFlow returns the current flow. A missing flow is reported with
	// Exists = false and a nil error.
	GetFlow(ctx context.Context, token, sender, receiver pass.Address) (Flow, error)
	// DeleteFlow terminates a flow; ErrFlowNotFound if none exists.
	DeleteFlow(ctx context.Context, token, sender, receiver pass.Address) error
}

// Receiver handles lifecycle notifications from a protocol host.
type Receiver interface {
	HandleFlow(ctx context.Context, n Notification) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, n Notification) error

func (f ReceiverFunc) HandleFlow(ctx context.Context, n Notification) error { return f(ctx, n) }

// Notification is the envelope a host delivers to a receiver.
type Notification struct {
	Host     pass.Address
	Token    pass.Address
	Event    Event
	UserData []byte
}
