package streampass

import (
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

// Re-export common types for convenience so users don't have to import
// the model packages.

// Address is re-exported from the pass package.
type Address = pass.Address

// PassID is re-exported from the pass package.
type PassID = pass.ID

// Schedule is re-exported from the tier package.
type Schedule = tier.Schedule

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export constructors
var (
	ParseAddress  = pass.ParseAddress
	ParseSchedule = tier.ParseSchedule
	ParseUnits    = types.ParseUnits
	FormatUnits   = types.FormatUnits
	Ether         = types.Ether
)
