package models

import "time"

// OrderType classifies a reconstructed order by its role within a chain.
// Classification of user orders is deferred until lot matching has run;
// system orders are typed at construction.
type OrderType string

const (
	// OrderTypeOpening is an order with only opening legs that starts a chain.
	OrderTypeOpening OrderType = "opening"
	// OrderTypeClosing is an order with only closing legs against one chain.
	OrderTypeClosing OrderType = "closing"
	// OrderTypeRolling is an order that closes lots of a chain and opens
	// replacement lots within the same chain.
	OrderTypeRolling OrderType = "rolling"
	// OrderTypeSystem is a synthesized order for broker-generated events
	// (expiration, assignment, exercise) that carry no broker order id.
	OrderTypeSystem OrderType = "system"
)

// Order groups the fills that share one broker order identifier, or a
// synthesized system event pair. Created once per distinct order id.
type Order struct {
	ID          string     `json:"id"`
	Account     string     `json:"account"`
	ChainID     string     `json:"chain_id,omitempty"`
	Type        OrderType  `json:"type"`
	Legs        []OrderLeg `json:"legs"`
	Date        time.Time  `json:"date"` // earliest fill time within the order
	System      bool       `json:"system"`
	SystemEvent string     `json:"system_event,omitempty"` // Assignment | Exercise | Expiration
}

// OrderLeg is one distinct instrument+action within an order. Fills for the
// same instrument and action are merged: quantity summed, price treated as a
// single volume-weighted effective fill.
type OrderLeg struct {
	Symbol         string         `json:"symbol"`
	Underlying     string         `json:"underlying"`
	InstrumentType InstrumentType `json:"instrument_type"`
	OptionType     OptionType     `json:"option_type,omitempty"`
	Strike         float64        `json:"strike,omitempty"`
	Expiration     time.Time      `json:"expiration,omitempty"`
	Action         LegAction      `json:"action"`
	Quantity       float64        `json:"quantity"` // signed summed quantity
	Price          float64        `json:"price"`    // volume-weighted per-unit price
	Fees           float64        `json:"fees"`
	TransactionIDs []string       `json:"transaction_ids"`
	// LotIDs lists the lots this leg created or closed, filled in by the
	// inventory matcher. Empty for unlinked closing legs.
	LotIDs []string `json:"lot_ids,omitempty"`
	// Unlinked is set when a closing leg found no candidate open lot.
	Unlinked bool `json:"unlinked,omitempty"`
}

// OpeningLegs returns the legs of the order that open new lots.
func (o *Order) OpeningLegs() []*OrderLeg {
	var legs []*OrderLeg
	for i := range o.Legs {
		if o.Legs[i].Action.IsOpening() {
			legs = append(legs, &o.Legs[i])
		}
	}
	return legs
}

// ClosingLegs returns the legs of the order that close existing lots.
func (o *Order) ClosingLegs() []*OrderLeg {
	var legs []*OrderLeg
	for i := range o.Legs {
		if o.Legs[i].Action.IsClosing() {
			legs = append(legs, &o.Legs[i])
		}
	}
	return legs
}

// SameInstrument reports whether the leg refers to the same tradable
// instrument as the lot: identical symbol, and for options identical
// strike/expiration/type.
func (l *OrderLeg) SameInstrument(lot *PositionLot) bool {
	if l.Symbol != lot.Symbol || l.InstrumentType != lot.InstrumentType {
		return false
	}
	if l.InstrumentType != InstrumentEquityOption {
		return true
	}
	return l.OptionType == lot.OptionType &&
		l.Strike == lot.Strike &&
		l.Expiration.Equal(lot.Expiration)
}
