package position

import (
	"errors"
	"testing"

	"cmx.com/pkg/riskparam"
)

func validRequest() OpenRequest {
	return OpenRequest{
		UserID:     "user_1",
		MarketID:   "GOLD-PERP",
		Category:   riskparam.CategoryPreciousMetals,
		Side:       SideLong,
		Size:       10,
		EntryPrice: 2650,
		Leverage:   15,
		Margin:     1766.67,
	}
}

func TestBook_OpenAndGet(t *testing.T) {
	book := NewBook(nil)

	pos, err := book.Open(validRequest())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if pos.ID == "" {
		t.Error("position should get a generated ID")
	}
	if pos.CurrentPrice != pos.EntryPrice {
		t.Errorf("CurrentPrice = %v, should initialize to EntryPrice %v",
			pos.CurrentPrice, pos.EntryPrice)
	}

	got, ok := book.Get(pos.ID)
	if !ok {
		t.Fatal("Get should find opened position")
	}
	if got.UserID != "user_1" || got.MarketID != "GOLD-PERP" {
		t.Errorf("unexpected position: %+v", got)
	}

	if book.Len() != 1 {
		t.Errorf("Len = %d, want 1", book.Len())
	}
}

func TestBook_OpenValidation(t *testing.T) {
	book := NewBook(nil)

	cases := []struct {
		name   string
		mutate func(*OpenRequest)
	}{
		{"empty user", func(r *OpenRequest) { r.UserID = "" }},
		{"empty market", func(r *OpenRequest) { r.MarketID = "" }},
		{"unknown category", func(r *OpenRequest) { r.Category = "crypto" }},
		{"zero side", func(r *OpenRequest) { r.Side = 0 }},
		{"zero size", func(r *OpenRequest) { r.Size = 0 }},
		{"negative entry", func(r *OpenRequest) { r.EntryPrice = -1 }},
		{"zero margin", func(r *OpenRequest) { r.Margin = 0 }},
		{"zero leverage", func(r *OpenRequest) { r.Leverage = 0 }},
	}

	for _, tc := range cases {
		req := validRequest()
		tc.mutate(&req)
		if _, err := book.Open(req); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("%s: Open should fail with ErrInvalidPosition, got %v", tc.name, err)
		}
	}

	if book.Len() != 0 {
		t.Errorf("invalid requests must not create positions, Len = %d", book.Len())
	}
}

func TestBook_CloseAndRemove(t *testing.T) {
	book := NewBook(nil)
	pos, _ := book.Open(validRequest())

	if !book.Close(pos.ID) {
		t.Error("Close should succeed for existing position")
	}
	if book.Close(pos.ID) {
		t.Error("second Close should report false")
	}

	pos2, _ := book.Open(validRequest())
	removed, ok := book.Remove(pos2.ID)
	if !ok || removed.ID != pos2.ID {
		t.Error("Remove should return the removed position")
	}
	if _, ok := book.Remove(pos2.ID); ok {
		t.Error("second Remove should report false")
	}
}

func TestBook_UpdateDerived(t *testing.T) {
	book := NewBook(nil)
	pos, _ := book.Open(validRequest())

	ok := book.UpdateDerived(pos.ID, 2625, -250, 1.9, 1457.5, 42)
	if !ok {
		t.Fatal("UpdateDerived should succeed for existing position")
	}

	got, _ := book.GetValue(pos.ID)
	if got.CurrentPrice != 2625 || got.UnrealizedPnl != -250 ||
		got.HealthFactor != 1.9 || got.LiquidationPrice != 1457.5 || got.LastUpdate != 42 {
		t.Errorf("derived fields not written back: %+v", got)
	}

	// 开仓条款不受影响
	if got.EntryPrice != 2650 || got.Margin != 1766.67 {
		t.Error("UpdateDerived must not touch open terms")
	}

	// 已移除仓位返回 false
	book.Remove(pos.ID)
	if book.UpdateDerived(pos.ID, 1, 1, 1, 1, 1) {
		t.Error("UpdateDerived should report false for removed position")
	}
}

func TestBook_GetValue(t *testing.T) {
	book := NewBook(nil)
	pos, _ := book.Open(validRequest())

	v, ok := book.GetValue(pos.ID)
	if !ok {
		t.Fatal("GetValue should find opened position")
	}

	// 值拷贝: 改动不回流
	v.Margin = 1
	got, _ := book.Get(pos.ID)
	if got.Margin != 1766.67 {
		t.Error("GetValue must return a copy")
	}

	if _, ok := book.GetValue("pos_missing"); ok {
		t.Error("GetValue should report false for unknown id")
	}
}

func TestBook_SnapshotValues_Isolated(t *testing.T) {
	book := NewBook(nil)
	pos, _ := book.Open(validRequest())

	snapshot := book.SnapshotValues()
	if len(snapshot) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(snapshot))
	}

	// 修改拷贝不能影响簿内仓位
	snapshot[0].CurrentPrice = 1
	snapshot[0].Margin = 1

	got, _ := book.Get(pos.ID)
	if got.CurrentPrice != 2650 || got.Margin != 1766.67 {
		t.Error("mutating snapshot copy leaked into the book")
	}
}

func TestPosition_NotionalAndEquity(t *testing.T) {
	pos := Position{
		Side:          SideLong,
		Size:          10,
		CurrentPrice:  2625,
		Margin:        1766.67,
		UnrealizedPnl: -250,
	}
	if pos.Notional() != 26250 {
		t.Errorf("Notional = %v, want 26250", pos.Notional())
	}
	if got := pos.Equity(); got != 1516.67 {
		t.Errorf("Equity = %v, want 1516.67", got)
	}
}

func TestSide_JSON(t *testing.T) {
	if SideLong.String() != "LONG" || SideShort.String() != "SHORT" {
		t.Error("Side String mismatch")
	}

	b, err := SideShort.MarshalJSON()
	if err != nil || string(b) != `"short"` {
		t.Errorf("MarshalJSON = %s, %v", b, err)
	}

	var s Side
	if err := s.UnmarshalJSON([]byte(`"long"`)); err != nil || s != SideLong {
		t.Errorf("UnmarshalJSON long failed: %v", err)
	}
	if err := s.UnmarshalJSON([]byte(`"sideways"`)); err == nil {
		t.Error("UnmarshalJSON should reject unknown side")
	}
}
