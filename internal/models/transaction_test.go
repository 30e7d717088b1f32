package models

import (
	"testing"
	"time"
)

func TestActionFromSubType(t *testing.T) {
	tests := []struct {
		in   string
		want LegAction
	}{
		{"Buy to Open", ActionBuyToOpen},
		{"Sell to Open", ActionSellToOpen},
		{"Buy to Close", ActionBuyToClose},
		{"Sell to Close", ActionSellToClose},
		{"  sell to open  ", ActionSellToOpen},
		{"BUY TO CLOSE", ActionBuyToClose},
		{"Assignment", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ActionFromSubType(tt.in); got != tt.want {
			t.Errorf("ActionFromSubType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLegActionPredicates(t *testing.T) {
	if !ActionBuyToOpen.IsOpening() || !ActionSellToOpen.IsOpening() {
		t.Error("open actions should report IsOpening")
	}
	if !ActionBuyToClose.IsClosing() || !ActionSellToClose.IsClosing() {
		t.Error("close actions should report IsClosing")
	}
	if ActionBuyToOpen.IsClosing() || ActionSellToClose.IsOpening() {
		t.Error("actions should not report the opposite direction")
	}
	if LegAction("hold").Valid() {
		t.Error("unknown action should not be valid")
	}
}

func TestIsSystemEvent(t *testing.T) {
	tests := []struct {
		name    string
		txnType string
		orderID string
		want    bool
	}{
		{"expiration", TxnTypeReceiveDeliver, "", true},
		{"trade", TxnTypeTrade, "100", false},
		{"receive deliver with order id", TxnTypeReceiveDeliver, "100", false},
		{"trade without order id", TxnTypeTrade, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := RawTransaction{Type: tt.txnType, OrderID: tt.orderID}
			if got := txn.IsSystemEvent(); got != tt.want {
				t.Errorf("IsSystemEvent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameInstrument(t *testing.T) {
	exp := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	lot := &PositionLot{
		Symbol:         "XYZ 240119P00450000",
		InstrumentType: InstrumentEquityOption,
		OptionType:     OptionTypePut,
		Strike:         450,
		Expiration:     exp,
	}
	leg := OrderLeg{
		Symbol:         "XYZ 240119P00450000",
		InstrumentType: InstrumentEquityOption,
		OptionType:     OptionTypePut,
		Strike:         450,
		Expiration:     exp,
	}
	if !leg.SameInstrument(lot) {
		t.Error("identical option legs should match")
	}

	other := leg
	other.Strike = 445
	if other.SameInstrument(lot) {
		t.Error("different strike should not match")
	}

	stockLot := &PositionLot{Symbol: "XYZ", InstrumentType: InstrumentEquity}
	stockLeg := OrderLeg{Symbol: "XYZ", InstrumentType: InstrumentEquity}
	if !stockLeg.SameInstrument(stockLot) {
		t.Error("matching stock symbols should match")
	}
}
