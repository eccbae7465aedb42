// Package audithook bridges streampass lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/streampass/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnPassMinted           = (*Extension)(nil)
	_ plugin.OnPassActivated        = (*Extension)(nil)
	_ plugin.OnPassDeactivated      = (*Extension)(nil)
	_ plugin.OnPassTransferred      = (*Extension)(nil)
	_ plugin.OnTTVAccrued           = (*Extension)(nil)
	_ plugin.OnScheduleUpdated      = (*Extension)(nil)
	_ plugin.OnOwnershipTransferred = (*Extension)(nil)
	_ plugin.OnFlowRejected         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges streampass lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Pass lifecycle hooks
// ──────────────────────────────────────────────────

// OnPassMinted implements plugin.OnPassMinted.
func (e *Extension) OnPassMinted(ctx context.Context, ev plugin.PassEvent) error {
	return e.recordPass(ctx, ActionPassMinted, ev)
}

// OnPassActivated implements plugin.OnPassActivated.
func (e *Extension) OnPassActivated(ctx context.Context, ev plugin.PassEvent) error {
	return e.recordPass(ctx, ActionPassActivated, ev)
}

// OnPassDeactivated implements plugin.OnPassDeactivated.
func (e *Extension) OnPassDeactivated(ctx context.Context, ev plugin.PassEvent) error {
	return e.recordPass(ctx, ActionPassDeactivated, ev)
}

// OnPassTransferred implements plugin.OnPassTransferred.
func (e *Extension) OnPassTransferred(ctx context.Context, ev plugin.TransferEvent) error {
	return e.record(ctx, ActionPassTransferred, SeverityInfo, OutcomeSuccess,
		ResourcePass, passResourceID(uint64(ev.PassID)), CategoryAccess, nil,
		"receipt_id", ev.ReceiptID.String(),
		"from", ev.From.String(),
		"to", ev.To.String(),
		"was_active", ev.WasActive,
		"stream_terminated", ev.StreamTerminated,
	)
}

// ──────────────────────────────────────────────────
// Value hooks
// ──────────────────────────────────────────────────

// OnTTVAccrued implements plugin.OnTTVAccrued.
func (e *Extension) OnTTVAccrued(ctx context.Context, ev plugin.AccrualEvent) error {
	return e.record(ctx, ActionTTVAccrued, SeverityInfo, OutcomeSuccess,
		ResourcePass, passResourceID(uint64(ev.PassID)), CategoryValue, nil,
		"receipt_id", ev.ReceiptID.String(),
		"subscriber", ev.Subscriber.String(),
		"delta", ev.Delta.Dec(),
		"total", ev.Total.Dec(),
	)
}

// ──────────────────────────────────────────────────
// Owner hooks
// ──────────────────────────────────────────────────

// OnScheduleUpdated implements plugin.OnScheduleUpdated.
func (e *Extension) OnScheduleUpdated(ctx context.Context, ev plugin.ScheduleEvent) error {
	return e.record(ctx, ActionScheduleUpdated, SeverityWarning, OutcomeSuccess,
		ResourceSchedule, "", CategoryGovernance, nil,
		"receipt_id", ev.ReceiptID.String(),
		"caller", ev.Caller.String(),
		"previous", ev.Previous.String(),
		"current", ev.Current.String(),
	)
}

// OnOwnershipTransferred implements plugin.OnOwnershipTransferred.
func (e *Extension) OnOwnershipTransferred(ctx context.Context, ev plugin.OwnershipEvent) error {
	return e.record(ctx, ActionOwnershipTransferred, SeverityCritical, OutcomeSuccess,
		ResourceEngine, ev.Current.String(), CategoryGovernance, nil,
		"receipt_id", ev.ReceiptID.String(),
		"previous", ev.Previous.String(),
		"current", ev.Current.String(),
	)
}

// ──────────────────────────────────────────────────
// Protocol hooks
// ──────────────────────────────────────────────────

// OnFlowRejected implements plugin.OnFlowRejected.
func (e *Extension) OnFlowRejected(ctx context.Context, ev plugin.RejectionEvent) error {
	return e.record(ctx, ActionFlowRejected, SeverityError, OutcomeFailure,
		ResourceFlow, ev.Sender.String(), CategoryProtocol, ev.Err,
		"kind", string(ev.Kind),
		"sender", ev.Sender.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) recordPass(ctx context.Context, action string, ev plugin.PassEvent) error {
	var resourceID string
	kv := []any{
		"receipt_id", ev.ReceiptID.String(),
		"subscriber", ev.Subscriber.String(),
		"reason", ev.Reason,
	}
	if ev.Pass != nil {
		resourceID = passResourceID(uint64(ev.Pass.ID))
		kv = append(kv,
			"owner", ev.Pass.Owner.String(),
			"ttv", ev.Pass.TTV.Dec(),
			"flow_rate", ev.Pass.LastFlowRate.Dec(),
		)
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourcePass, resourceID, CategoryAccess, nil, kv...)
}

func passResourceID(id uint64) string { return strconv.FormatUint(id, 10) }

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
