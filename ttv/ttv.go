// Package ttv accrues Time-Transmitted-Value on passes.
//
// Accrual is rate × elapsed whole seconds, computed with overflow-checked
// 256-bit arithmetic. Mutating helpers compute the full result before
// touching the pass, so an overflow leaves the pass unchanged.
package ttv

import (
	"errors"
	"time"

	"github.com/holiman/uint256"

	"github.com/xraph/streampass/pass"
)

// ErrOverflow is returned when accrual exceeds 256 bits.
var ErrOverflow = errors.New("ttv: accrual overflow")

// Elapsed returns whole seconds from from to to, or 0 if to is not after from.
func Elapsed(from, to time.Time) uint64 {
	d := to.Unix() - from.Unix()
	if d <= 0 {
		return 0
	}
	return uint64(d)
}

// Accrued returns rate × elapsed.
func Accrued(rate *uint256.Int, elapsed uint64) (*uint256.Int, error) {
	if rate == nil || rate.IsZero() || elapsed == 0 {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulOverflow(rate, uint256.NewInt(elapsed))
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Live projects the pass's value at now without modifying it. Inactive
// passes return their frozen TTV.
func Live(p *pass.Pass, now time.Time) (*uint256.Int, error) {
	stored := new(uint256.Int)
	if p.TTV != nil {
		stored.Set(p.TTV)
	}
	if !p.Active {
		return stored, nil
	}
	delta, err := Accrued(p.LastFlowRate, Elapsed(p.LastUpdate, now))
	if err != nil {
		return nil, err
	}
	if _, overflow := stored.AddOverflow(stored, delta); overflow {
		return nil, ErrOverflow
	}
	return stored, nil
}

// Accrue folds value streamed since LastUpdate into TTV and restamps
// LastUpdate to now. It returns the amount added.
func Accrue(p *pass.Pass, now time.Time) (*uint256.Int, error) {
	now = now.UTC().Truncate(time.Second)
	if !p.Active {
		return new(uint256.Int), nil
	}
	delta, err := Accrued(p.LastFlowRate, Elapsed(p.LastUpdate, now))
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	if p.TTV != nil {
		total.Set(p.TTV)
	}
	if _, overflow := total.AddOverflow(total, delta); overflow {
		return nil, ErrOverflow
	}

	p.TTV = total
	if now.After(p.LastUpdate) {
		p.LastUpdate = now
	}
	p.Touch(now)
	return delta, nil
}

// Restamp accrues and then switches the pass to rate.
func Restamp(p *pass.Pass, rate *uint256.Int, now time.Time) (*uint256.Int, error) {
	delta, err := Accrue(p, now)
	if err != nil {
		return nil, err
	}
	p.LastFlowRate = copyRate(rate)
	return delta, nil
}

// Deactivate accrues the final value and freezes the pass.
func Deactivate(p *pass.Pass, now time.Time) (*uint256.Int, error) {
	delta, err := Accrue(p, now)
	if err != nil {
		return nil, err
	}
	p.Active = false
	p.LastFlowRate = new(uint256.Int)
	return delta, nil
}

// Activate starts accruing on an inactive pass at rate from now. TTV is
// kept. Calling Activate on an active pass restamps it instead.
func Activate(p *pass.Pass, rate *uint256.Int, now time.Time) (*uint256.Int, error) {
	if p.Active {
		return Restamp(p, rate, now)
	}
	now = now.UTC().Truncate(time.Second)
	p.Active = true
	p.LastFlowRate = copyRate(rate)
	p.LastUpdate = now
	p.Touch(now)
	return new(uint256.Int), nil
}

func copyRate(rate *uint256.Int) *uint256.Int {
	if rate == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(rate)
}
