package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/types"
)

const (
	counterPass     = "pass"
	settingSchedule = "schedule"
	settingOwner    = "owner"
)

// ==================== Pass models ====================

// passModel stores uint256 values as base-10 strings; BSON has no
// 256-bit integer type.
type passModel struct {
	ID           int64     `bson:"_id"`
	Owner        string    `bson:"owner"`
	Active       bool      `bson:"active"`
	TTV          string    `bson:"ttv"`
	LastFlowRate string    `bson:"last_flow_rate"`
	LastUpdate   time.Time `bson:"last_update"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toPassModel(p *pass.Pass) *passModel {
	ttv, rate := "0", "0"
	if p.TTV != nil {
		ttv = p.TTV.Dec()
	}
	if p.LastFlowRate != nil {
		rate = p.LastFlowRate.Dec()
	}
	return &passModel{
		ID:           int64(p.ID),
		Owner:        string(p.Owner),
		Active:       p.Active,
		TTV:          ttv,
		LastFlowRate: rate,
		LastUpdate:   p.LastUpdate.UTC(),
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func fromPassModel(m *passModel) (*pass.Pass, error) {
	ttv, err := types.ParseBase(m.TTV)
	if err != nil {
		return nil, fmt.Errorf("streampass/mongo: pass %d ttv: %w", m.ID, err)
	}
	rate, err := types.ParseBase(m.LastFlowRate)
	if err != nil {
		return nil, fmt.Errorf("streampass/mongo: pass %d rate: %w", m.ID, err)
	}
	return &pass.Pass{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           pass.ID(m.ID),
		Owner:        pass.Address(m.Owner),
		Active:       m.Active,
		TTV:          ttv,
		LastUpdate:   m.LastUpdate.UTC(),
		LastFlowRate: rate,
	}, nil
}

// ==================== Account models ====================

type accountModel struct {
	Address      string `bson:"_id"`
	ActivePassID int64  `bson:"active_pass_id"`
}

// ==================== Setting models ====================

type settingModel struct {
	Key    string   `bson:"_id"`
	Value  string   `bson:"value,omitempty"`
	Values []string `bson:"values,omitempty"`
}

type counterModel struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}
