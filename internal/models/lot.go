package models

import (
	"fmt"
	"math"
	"time"
)

// SharesPerContract is the option contract multiplier.
const SharesPerContract = 100.0

// LotStatus tracks how much of a lot's original quantity remains open.
// Transitions are monotonic: open -> partial -> closed. Re-processing the
// same event set never moves a lot backwards.
type LotStatus string

const (
	// LotStatusOpen means no quantity has been closed yet.
	LotStatusOpen LotStatus = "open"
	// LotStatusPartial means some but not all quantity has been closed.
	LotStatusPartial LotStatus = "partial"
	// LotStatusClosed means remaining quantity is zero.
	LotStatusClosed LotStatus = "closed"
)

// validLotTransitions enumerates the allowed status moves. Self-transitions
// are allowed so re-derivation is idempotent.
var validLotTransitions = map[LotStatus][]LotStatus{
	LotStatusOpen:    {LotStatusOpen, LotStatusPartial, LotStatusClosed},
	LotStatusPartial: {LotStatusPartial, LotStatusClosed},
	LotStatusClosed:  {LotStatusClosed},
}

// CanTransitionLotStatus reports whether a lot status move is allowed.
func CanTransitionLotStatus(from, to LotStatus) bool {
	for _, s := range validLotTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DerivationType records why a lot was derived from another lot.
type DerivationType string

const (
	// DerivationAssignment marks stock delivered by an option assignment.
	DerivationAssignment DerivationType = "assignment"
	// DerivationExercise marks stock delivered by an option exercise.
	DerivationExercise DerivationType = "exercise"
)

// ClosingType records what kind of event closed lot quantity.
type ClosingType string

const (
	// ClosingManual is a user-initiated closing fill.
	ClosingManual ClosingType = "manual"
	// ClosingExpiration is an option expiring worthless (or cash settled).
	ClosingExpiration ClosingType = "expiration"
	// ClosingAssignment is a short option being assigned.
	ClosingAssignment ClosingType = "assignment"
	// ClosingExercise is a long option being exercised.
	ClosingExercise ClosingType = "exercise"
)

// PositionLot is the unit of ownership: the open quantity created by one
// opening event, matched against later closings. A lot belongs to exactly one
// chain. Derived lots (assignment/exercise stock) reference their parent by
// ID, never by pointer, so lineage survives serialization.
type PositionLot struct {
	ID                string         `json:"id"`
	Account           string         `json:"account"`
	Symbol            string         `json:"symbol"`
	Underlying        string         `json:"underlying"`
	InstrumentType    InstrumentType `json:"instrument_type"`
	OptionType        OptionType     `json:"option_type,omitempty"`
	Strike            float64        `json:"strike,omitempty"`
	Expiration        time.Time      `json:"expiration,omitempty"`
	ChainID           string         `json:"chain_id"`
	LegIndex          int            `json:"leg_index"`
	OpeningOrderID    string         `json:"opening_order_id"`
	OpeningTxnID      string         `json:"opening_transaction_id"`
	EntryPrice        float64        `json:"entry_price"`
	EntryDate         time.Time      `json:"entry_date"`
	OriginalQuantity  float64        `json:"original_quantity"`  // signed
	RemainingQuantity float64        `json:"remaining_quantity"` // signed, same sign or zero
	Status            LotStatus      `json:"status"`
	DerivedFromLotID  string         `json:"derived_from_lot_id,omitempty"`
	DerivationType    DerivationType `json:"derivation_type,omitempty"`
	Closings          []LotClosing   `json:"closings,omitempty"`
}

// LotClosing is one closing event applied against a lot.
type LotClosing struct {
	Quantity       float64     `json:"quantity"` // positive quantity closed
	Price          float64     `json:"price"`
	Date           time.Time   `json:"date"`
	Type           ClosingType `json:"type"`
	OrderID        string      `json:"order_id"`
	TransactionID  string      `json:"transaction_id,omitempty"`
	RealizedPnL    float64     `json:"realized_pnl"`
	ResultingLotID string      `json:"resulting_lot_id,omitempty"`
}

// Multiplier returns the per-unit dollar multiplier for the lot's instrument.
func (l *PositionLot) Multiplier() float64 {
	if l.InstrumentType == InstrumentEquityOption {
		return SharesPerContract
	}
	return 1.0
}

// IsShort reports whether the lot is a short position.
func (l *PositionLot) IsShort() bool {
	return l.OriginalQuantity < 0
}

// IsDerived reports whether the lot was created by an assignment or exercise.
func (l *PositionLot) IsDerived() bool {
	return l.DerivedFromLotID != ""
}

// ClosedQuantity returns the total positive quantity closed so far.
func (l *PositionLot) ClosedQuantity() float64 {
	var total float64
	for _, c := range l.Closings {
		total += c.Quantity
	}
	return total
}

// RealizedPnL returns the sum of realized P&L across the lot's closings.
func (l *PositionLot) RealizedPnL() float64 {
	var total float64
	for _, c := range l.Closings {
		total += c.RealizedPnL
	}
	return total
}

// statusForRemaining derives the status implied by the remaining quantity.
func (l *PositionLot) statusForRemaining() LotStatus {
	switch {
	case l.RemainingQuantity == 0:
		return LotStatusClosed
	case math.Abs(l.RemainingQuantity) < math.Abs(l.OriginalQuantity):
		return LotStatusPartial
	default:
		return LotStatusOpen
	}
}

// ApplyClosing consumes quantity from the lot and appends the closing record.
// The closing quantity must be positive and no greater than the lot's
// remaining absolute quantity; callers clamp before applying.
func (l *PositionLot) ApplyClosing(c LotClosing) error {
	if c.Quantity <= 0 {
		return fmt.Errorf("lot %s: closing quantity must be positive (got %v)", l.ID, c.Quantity)
	}
	remaining := math.Abs(l.RemainingQuantity)
	if c.Quantity > remaining+1e-9 {
		return fmt.Errorf("lot %s: closing quantity %v exceeds remaining %v", l.ID, c.Quantity, remaining)
	}
	sign := 1.0
	if l.IsShort() {
		sign = -1.0
	}
	l.RemainingQuantity -= sign * c.Quantity
	if math.Abs(l.RemainingQuantity) < 1e-9 {
		l.RemainingQuantity = 0
	}
	next := l.statusForRemaining()
	if !CanTransitionLotStatus(l.Status, next) {
		return fmt.Errorf("lot %s: invalid status transition %s -> %s", l.ID, l.Status, next)
	}
	l.Status = next
	l.Closings = append(l.Closings, c)
	return nil
}

// Validate checks the lot's structural invariants.
func (l *PositionLot) Validate() error {
	if l.OriginalQuantity == 0 {
		return fmt.Errorf("lot %s: original quantity must be nonzero", l.ID)
	}
	if l.RemainingQuantity != 0 && (l.RemainingQuantity > 0) != (l.OriginalQuantity > 0) {
		return fmt.Errorf("lot %s: remaining quantity %v has wrong sign for original %v",
			l.ID, l.RemainingQuantity, l.OriginalQuantity)
	}
	if math.Abs(l.RemainingQuantity) > math.Abs(l.OriginalQuantity)+1e-9 {
		return fmt.Errorf("lot %s: remaining quantity %v exceeds original %v",
			l.ID, l.RemainingQuantity, l.OriginalQuantity)
	}
	if closed := l.ClosedQuantity(); closed > math.Abs(l.OriginalQuantity)+1e-9 {
		return fmt.Errorf("lot %s: total closed quantity %v exceeds original %v",
			l.ID, closed, math.Abs(l.OriginalQuantity))
	}
	if got, want := l.Status, l.statusForRemaining(); got != want {
		return fmt.Errorf("lot %s: status %s inconsistent with remaining quantity (want %s)",
			l.ID, got, want)
	}
	if (l.DerivedFromLotID == "") != (l.DerivationType == "") {
		return fmt.Errorf("lot %s: derivation fields must be set together", l.ID)
	}
	return nil
}
