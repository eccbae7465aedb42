// Package pass models the transferable access credential and the
// per-subscriber active-pass pointer.
package pass

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/xraph/streampass/types"
)

// ID is a pass token id. Ids are allocated from 1 upward and never reused.
type ID uint64

// None is the "no pass" sentinel.
const None ID = 0

// IsNone reports whether id is the sentinel.
func (id ID) IsNone() bool { return id == None }

// Pass is one issued credential.
//
// TTV holds value accrued up to LastUpdate. While Active, value keeps
// accruing at LastFlowRate per second; the accrued amount is folded in
// only when the rate changes or the pass is deactivated.
type Pass struct {
	types.Entity
	ID           ID           `json:"id"`
	Owner        Address      `json:"owner"`
	Active       bool         `json:"active"`
	TTV          *uint256.Int `json:"ttv"`
	LastUpdate   time.Time    `json:"last_update"`
	LastFlowRate *uint256.Int `json:"last_flow_rate"`
}

// New returns an active pass with zero TTV, stamped at now.
func New(id ID, owner Address, rate *uint256.Int, now time.Time) *Pass {
	now = now.UTC().Truncate(time.Second)
	return &Pass{
		Entity:       types.NewEntity(now),
		ID:           id,
		Owner:        owner,
		Active:       true,
		TTV:          new(uint256.Int),
		LastUpdate:   now,
		LastFlowRate: cloneInt(rate),
	}
}

// Clone returns a deep copy.
func (p *Pass) Clone() *Pass {
	if p == nil {
		return nil
	}
	c := *p
	c.TTV = cloneInt(p.TTV)
	c.LastFlowRate = cloneInt(p.LastFlowRate)
	return &c
}

// Account is a subscriber's pointer to their active pass.
type Account struct {
	Address      Address `json:"address"`
	ActivePassID ID      `json:"active_pass_id"`
}

// HasActive reports whether the account points at a pass.
func (a Account) HasActive() bool { return !a.ActivePassID.IsNone() }

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
