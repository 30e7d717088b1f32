// Package models defines the core data types for the trading ledger:
// raw broker transactions, reconstructed orders and legs, position lots,
// lot closings, and order chains.
package models

import (
	"strings"
	"time"
)

// InstrumentType identifies the kind of instrument a transaction or lot refers to.
type InstrumentType string

const (
	// InstrumentEquity represents common stock.
	InstrumentEquity InstrumentType = "equity"
	// InstrumentEquityOption represents a listed equity option contract.
	InstrumentEquityOption InstrumentType = "equity_option"
)

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypeCall represents a call option contract.
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract.
	OptionTypePut OptionType = "put"
)

// Transaction type constants as delivered by the broker feed.
const (
	// TxnTypeTrade is a user-initiated fill.
	TxnTypeTrade = "Trade"
	// TxnTypeReceiveDeliver covers system-generated events: expirations,
	// assignments, exercises, and their resulting stock movements.
	TxnTypeReceiveDeliver = "Receive Deliver"
)

// Transaction sub-type constants for Receive Deliver events.
const (
	SubTypeAssignment  = "Assignment"
	SubTypeExercise    = "Exercise"
	SubTypeExpiration  = "Expiration"
	SubTypeCashSettled = "Cash Settled Assignment"
)

// RawTransaction is an immutable broker event as delivered by the
// transaction feed. It is the source of truth for the ledger and is never
// mutated by the pipeline.
type RawTransaction struct {
	ID               string         `json:"id"`
	AccountNumber    string         `json:"account_number"`
	OrderID          string         `json:"order_id,omitempty"` // empty for system events
	Type             string         `json:"type"`
	SubType          string         `json:"sub_type"`
	Symbol           string         `json:"symbol"`
	UnderlyingSymbol string         `json:"underlying_symbol"`
	InstrumentType   InstrumentType `json:"instrument_type"`
	OptionType       OptionType     `json:"option_type,omitempty"`
	Strike           float64        `json:"strike,omitempty"`
	Expiration       time.Time      `json:"expiration,omitempty"`
	Quantity         float64        `json:"quantity"` // signed: positive buys, negative sells
	Price            float64        `json:"price"`    // per-unit execution price
	Fees             float64        `json:"fees"`
	ExecutedAt       time.Time      `json:"executed_at"`
}

// IsSystemEvent reports whether the transaction was generated by the broker
// rather than by a user order (expiration, assignment, exercise).
func (t *RawTransaction) IsSystemEvent() bool {
	return t.Type == TxnTypeReceiveDeliver && t.OrderID == ""
}

// IsOption reports whether the transaction refers to an option contract.
func (t *RawTransaction) IsOption() bool {
	return t.InstrumentType == InstrumentEquityOption
}

// LegAction describes the opening/closing direction of a fill or order leg.
type LegAction string

const (
	// ActionBuyToOpen opens a long lot.
	ActionBuyToOpen LegAction = "buy_to_open"
	// ActionSellToOpen opens a short lot.
	ActionSellToOpen LegAction = "sell_to_open"
	// ActionBuyToClose closes a short lot.
	ActionBuyToClose LegAction = "buy_to_close"
	// ActionSellToClose closes a long lot.
	ActionSellToClose LegAction = "sell_to_close"
)

// IsOpening reports whether the action opens a new lot.
func (a LegAction) IsOpening() bool {
	return a == ActionBuyToOpen || a == ActionSellToOpen
}

// IsClosing reports whether the action closes an existing lot.
func (a LegAction) IsClosing() bool {
	return a == ActionBuyToClose || a == ActionSellToClose
}

// Valid returns true if the LegAction is one of the defined constants.
func (a LegAction) Valid() bool {
	switch a {
	case ActionBuyToOpen, ActionSellToOpen, ActionBuyToClose, ActionSellToClose:
		return true
	default:
		return false
	}
}

// ActionFromSubType maps a broker trade sub-type string ("Buy to Open",
// "Sell to Close", ...) to a LegAction. The empty LegAction is returned for
// unrecognized sub-types.
func ActionFromSubType(subType string) LegAction {
	switch strings.ToLower(strings.TrimSpace(subType)) {
	case "buy to open":
		return ActionBuyToOpen
	case "sell to open":
		return ActionSellToOpen
	case "buy to close":
		return ActionBuyToClose
	case "sell to close":
		return ActionSellToClose
	default:
		return ""
	}
}
