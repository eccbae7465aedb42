package audithook

import "github.com/xraph/streampass/plugin"

// Action constants for audit events. They match the plugin event names.
const (
	// Pass actions
	ActionPassMinted      = plugin.EventPassMinted
	ActionPassActivated   = plugin.EventPassActivated
	ActionPassDeactivated = plugin.EventPassDeactivated
	ActionPassTransferred = plugin.EventPassTransferred

	// Value actions
	ActionTTVAccrued = plugin.EventTTVAccrued

	// Owner actions
	ActionScheduleUpdated      = plugin.EventScheduleUpdated
	ActionOwnershipTransferred = plugin.EventOwnershipTransferred

	// Protocol actions
	ActionFlowRejected = plugin.EventFlowRejected
)

// Resource constants for audit events.
const (
	ResourcePass     = "pass"
	ResourceSchedule = "schedule"
	ResourceEngine   = "engine"
	ResourceFlow     = "flow"
)

// Category constants for audit events.
const (
	CategoryAccess     = "access"
	CategoryValue      = "value"
	CategoryGovernance = "governance"
	CategoryProtocol   = "protocol"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
