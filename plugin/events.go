package plugin

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/id"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/tier"
)

// Reasons attached to PassEvent.
const (
	ReasonCreated      = "created"
	ReasonResubscribed = "resubscribed"
	ReasonSwitched     = "switched"
	ReasonTerminated   = "terminated"
	ReasonTransferred  = "transferred"
)

// Meta accompanies every event.
type Meta struct {
	EventID   id.EventID
	ReceiptID id.ReceiptID
	At        time.Time
}

// NewMeta stamps a fresh event id.
func NewMeta(receipt id.ReceiptID, at time.Time) Meta {
	return Meta{EventID: id.NewEventID(), ReceiptID: receipt, At: at}
}

func (m Meta) fields(name string) map[string]any {
	return map[string]any{
		"event":      name,
		"event_id":   m.EventID.String(),
		"receipt_id": m.ReceiptID.String(),
		"at":         m.At.UTC().Format(time.RFC3339),
	}
}

// Event is implemented by every hook payload.
type Event interface {
	EventName() string
	EventMeta() Meta
	// Fields flattens the event into string-keyed values.
	Fields() map[string]any
}

// PassEvent describes a mint, activation or deactivation.
type PassEvent struct {
	Meta
	Name       string
	Pass       *pass.Pass
	Subscriber pass.Address
	Reason     string
}

func (e PassEvent) EventName() string { return e.Name }
func (e PassEvent) EventMeta() Meta   { return e.Meta }

func (e PassEvent) Fields() map[string]any {
	f := e.fields(e.Name)
	f["subscriber"] = e.Subscriber.String()
	f["reason"] = e.Reason
	if e.Pass != nil {
		f["pass_id"] = uint64(e.Pass.ID)
		f["active"] = e.Pass.Active
		f["ttv"] = e.Pass.TTV.Dec()
		f["flow_rate"] = e.Pass.LastFlowRate.Dec()
	}
	return f
}

// TransferEvent describes a pass ownership change.
type TransferEvent struct {
	Meta
	PassID pass.ID
	From   pass.Address
	To     pass.Address
	// WasActive is set when the pass was the sender's active pass.
	WasActive bool
	// StreamTerminated is set when the sender's stream was deleted.
	StreamTerminated bool
}

func (e TransferEvent) EventName() string { return EventPassTransferred }
func (e TransferEvent) EventMeta() Meta   { return e.Meta }

func (e TransferEvent) Fields() map[string]any {
	f := e.fields(EventPassTransferred)
	f["pass_id"] = uint64(e.PassID)
	f["from"] = e.From.String()
	f["to"] = e.To.String()
	f["was_active"] = e.WasActive
	f["stream_terminated"] = e.StreamTerminated
	return f
}

// AccrualEvent describes value folded into a pass.
type AccrualEvent struct {
	Meta
	PassID     pass.ID
	Subscriber pass.Address
	Delta      *uint256.Int
	Total      *uint256.Int
}

func (e AccrualEvent) EventName() string { return EventTTVAccrued }
func (e AccrualEvent) EventMeta() Meta   { return e.Meta }

func (e AccrualEvent) Fields() map[string]any {
	f := e.fields(EventTTVAccrued)
	f["pass_id"] = uint64(e.PassID)
	f["subscriber"] = e.Subscriber.String()
	f["delta"] = e.Delta.Dec()
	f["total"] = e.Total.Dec()
	return f
}

// ScheduleEvent describes a tier schedule replacement.
type ScheduleEvent struct {
	Meta
	Caller   pass.Address
	Previous tier.Schedule
	Current  tier.Schedule
}

func (e ScheduleEvent) EventName() string { return EventScheduleUpdated }
func (e ScheduleEvent) EventMeta() Meta   { return e.Meta }

func (e ScheduleEvent) Fields() map[string]any {
	f := e.fields(EventScheduleUpdated)
	f["caller"] = e.Caller.String()
	f["previous"] = e.Previous.String()
	f["current"] = e.Current.String()
	f["tiers"] = len(e.Current)
	return f
}

// OwnershipEvent describes an engine owner change.
type OwnershipEvent struct {
	Meta
	Previous pass.Address
	Current  pass.Address
}

func (e OwnershipEvent) EventName() string { return EventOwnershipTransferred }
func (e OwnershipEvent) EventMeta() Meta   { return e.Meta }

func (e OwnershipEvent) Fields() map[string]any {
	f := e.fields(EventOwnershipTransferred)
	f["previous"] = e.Previous.String()
	f["current"] = e.Current.String()
	return f
}

// RejectionEvent describes a refused lifecycle notification.
type RejectionEvent struct {
	Meta
	Kind   flow.Kind
	Sender pass.Address
	Err    error
}

func (e RejectionEvent) EventName() string { return EventFlowRejected }
func (e RejectionEvent) EventMeta() Meta   { return e.Meta }

func (e RejectionEvent) Fields() map[string]any {
	f := e.fields(EventFlowRejected)
	f["kind"] = string(e.Kind)
	f["sender"] = e.Sender.String()
	if e.Err != nil {
		f["error"] = e.Err.Error()
	}
	return f
}

// Event names.
const (
	EventPassMinted           = "pass.minted"
	EventPassActivated        = "pass.activated"
	EventPassDeactivated      = "pass.deactivated"
	EventPassTransferred      = "pass.transferred"
	EventTTVAccrued           = "ttv.accrued"
	EventScheduleUpdated      = "schedule.updated"
	EventOwnershipTransferred = "ownership.transferred"
	EventFlowRejected         = "flow.rejected"
)

type receiptKey struct{}

// ContextWithReceipt attaches the receipt of the current engine call.
func ContextWithReceipt(ctx context.Context, r id.ReceiptID) context.Context {
	return context.WithValue(ctx, receiptKey{}, r)
}

// ReceiptFromContext returns the receipt attached by ContextWithReceipt.
func ReceiptFromContext(ctx context.Context) (id.ReceiptID, bool) {
	r, ok := ctx.Value(receiptKey{}).(id.ReceiptID)
	return r, ok
}
