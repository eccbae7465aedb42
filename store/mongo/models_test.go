package mongo

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/streampass/pass"
)

func TestPassModelRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	owner := pass.MustParseAddress("0x00000000000000000000000000000000000000a1")
	p := pass.New(4, owner, uint256.NewInt(110000000), now)
	p.TTV = uint256.MustFromDecimal("123456789012345678901234567890")

	raw, err := bson.Marshal(toPassModel(p))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m passModel
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := fromPassModel(&m)
	if err != nil {
		t.Fatalf("fromPassModel: %v", err)
	}
	if got.ID != p.ID || got.Owner != owner || !got.Active {
		t.Errorf("identity mismatch: %+v", got)
	}
	if !got.TTV.Eq(p.TTV) {
		t.Errorf("ttv: got %s, want %s", got.TTV.Dec(), p.TTV.Dec())
	}
	if !got.LastUpdate.Equal(now) {
		t.Errorf("last update: got %v", got.LastUpdate)
	}
}

func TestFromPassModelRejectsGarbage(t *testing.T) {
	if _, err := fromPassModel(&passModel{ID: 1, TTV: "abc", LastFlowRate: "0"}); err == nil {
		t.Error("expected error for non-numeric ttv")
	}
	if _, err := fromPassModel(&passModel{ID: 1, TTV: "0", LastFlowRate: "-3"}); err == nil {
		t.Error("expected error for negative rate")
	}
}

func TestSettingModelOmitsEmpty(t *testing.T) {
	raw, err := bson.Marshal(settingModel{Key: settingOwner, Value: "0xabc"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["values"]; ok {
		t.Error("values should be omitted for owner setting")
	}
	if doc["_id"] != settingOwner {
		t.Errorf("_id: got %v", doc["_id"])
	}
}
