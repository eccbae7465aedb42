// Package plugin provides the extension points of a streampass engine.
// Plugins hook into pass lifecycle events; every hook runs after the
// triggering transaction has committed.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once the engine has migrated and seeded its store.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Pass hooks
// ──────────────────────────────────────────────────

// OnPassMinted is called when a subscriber's first stream issues a pass.
type OnPassMinted interface {
	Plugin
	OnPassMinted(ctx context.Context, e PassEvent) error
}

// OnPassActivated is called when a pass becomes its owner's active pass.
type OnPassActivated interface {
	Plugin
	OnPassActivated(ctx context.Context, e PassEvent) error
}

// OnPassDeactivated is called when a pass stops accruing.
type OnPassDeactivated interface {
	Plugin
	OnPassDeactivated(ctx context.Context, e PassEvent) error
}

// OnPassTransferred is called after a pass changes owner.
type OnPassTransferred interface {
	Plugin
	OnPassTransferred(ctx context.Context, e TransferEvent) error
}

// ──────────────────────────────────────────────────
// Value hooks
// ──────────────────────────────────────────────────

// OnTTVAccrued is called whenever streamed value is folded into a pass.
type OnTTVAccrued interface {
	Plugin
	OnTTVAccrued(ctx context.Context, e AccrualEvent) error
}

// ──────────────────────────────────────────────────
// Owner configuration hooks
// ──────────────────────────────────────────────────

// OnScheduleUpdated is called after the tier schedule is replaced.
type OnScheduleUpdated interface {
	Plugin
	OnScheduleUpdated(ctx context.Context, e ScheduleEvent) error
}

// OnOwnershipTransferred is called after the engine owner changes.
type OnOwnershipTransferred interface {
	Plugin
	OnOwnershipTransferred(ctx context.Context, e OwnershipEvent) error
}

// ──────────────────────────────────────────────────
// Protocol hooks
// ──────────────────────────────────────────────────

// OnFlowRejected is called when a lifecycle notification is refused.
// Nothing was written for the rejected call.
type OnFlowRejected interface {
	Plugin
	OnFlowRejected(ctx context.Context, e RejectionEvent) error
}
