package model

import (
	"encoding/json"
	"testing"
)

func TestParseProducts(t *testing.T) {
	ps, err := ParseProducts("kinoko, takenoko")
	if err != nil {
		t.Fatalf("ParseProducts: %v", err)
	}
	if len(ps) != 2 || ps[0] != "kinoko" || ps[1] != "takenoko" {
		t.Errorf("got %v", ps)
	}
	if !ps.Valid("kinoko") || ps.Valid("chocoball") {
		t.Errorf("Valid misclassified products")
	}
}

func TestParseProducts_TooFew(t *testing.T) {
	if _, err := ParseProducts("kinoko"); err == nil {
		t.Fatal("expected error for single product")
	}
	if _, err := ParseProducts(""); err == nil {
		t.Fatal("expected error for empty list")
	}
}

func TestFillSnapshot_Defaults(t *testing.T) {
	ps := Products{"kinoko", "takenoko"}
	got := ps.FillSnapshot(map[string]int64{"kinoko": 4})
	if got["kinoko"] != 4 {
		t.Errorf("kinoko = %d, want 4", got["kinoko"])
	}
	if v, ok := got["takenoko"]; !ok || v != 0 {
		t.Errorf("takenoko = %d (present=%v), want 0 present", v, ok)
	}
}

func TestFillSnapshot_DropsUnknownKeys(t *testing.T) {
	ps := Products{"kinoko", "takenoko"}
	got := ps.FillSnapshot(map[string]int64{"kinoko": 1, "stale": 9})
	if _, ok := got["stale"]; ok {
		t.Error("unknown product leaked into snapshot")
	}
}

func TestOrderValidate(t *testing.T) {
	ps := Products{"kinoko", "takenoko"}
	o := &Order{OrderID: "order_1", Product: "takenoko"}
	if err := o.Validate(ps); err != nil {
		t.Errorf("valid order rejected: %v", err)
	}
	if err := (&Order{OrderID: "order_2", Product: "pocky"}).Validate(ps); err == nil {
		t.Error("unknown product accepted")
	}
	if err := (&Order{Product: "kinoko"}).Validate(ps); err == nil {
		t.Error("missing orderId accepted")
	}
}

func TestNewUpdate_EmbedsOrder(t *testing.T) {
	o := &Order{OrderID: "order_9", Product: "kinoko", Timestamp: NowISO()}
	msg := NewUpdate(map[string]int64{"kinoko": 1, "takenoko": 0}, o)

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type string `json:"type"`
		Data struct {
			Kinoko   int64  `json:"kinoko"`
			Takenoko int64  `json:"takenoko"`
			NewOrder *Order `json:"newOrder"`
		} `json:"data"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "update" {
		t.Errorf("type = %q, want update", decoded.Type)
	}
	if decoded.Data.Kinoko != 1 || decoded.Data.Takenoko != 0 {
		t.Errorf("counts = %d/%d", decoded.Data.Kinoko, decoded.Data.Takenoko)
	}
	if decoded.Data.NewOrder == nil || decoded.Data.NewOrder.OrderID != "order_9" {
		t.Errorf("newOrder missing or wrong: %+v", decoded.Data.NewOrder)
	}
	if decoded.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestNewUpdate_NoOrder(t *testing.T) {
	msg := NewUpdate(map[string]int64{"kinoko": 0, "takenoko": 2}, nil)
	if _, ok := msg.Data["newOrder"]; ok {
		t.Error("newOrder present without a triggering order")
	}
}
