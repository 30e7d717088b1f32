package models

import "time"

// ChainStatus summarizes the lifecycle of an order chain. Terminal statuses
// distinguish how the chain's lots were resolved.
type ChainStatus string

const (
	// ChainStatusOpen means no quantity has been closed yet.
	ChainStatusOpen ChainStatus = "open"
	// ChainStatusPartial means some but not all quantity has been closed.
	ChainStatusPartial ChainStatus = "partial"
	// ChainStatusClosed means all lots closed via manual fills.
	ChainStatusClosed ChainStatus = "closed"
	// ChainStatusAssigned means the chain terminated through an assignment.
	ChainStatusAssigned ChainStatus = "assigned"
	// ChainStatusExercised means the chain terminated through an exercise.
	ChainStatusExercised ChainStatus = "exercised"
	// ChainStatusExpired means every closing was an expiration.
	ChainStatusExpired ChainStatus = "expired"
	// ChainStatusMixed means terminal lots closed via more than one distinct
	// non-manual closing type.
	ChainStatusMixed ChainStatus = "mixed"
)

// Terminal reports whether the status is a terminal one.
func (s ChainStatus) Terminal() bool {
	switch s {
	case ChainStatusClosed, ChainStatusAssigned, ChainStatusExercised,
		ChainStatusExpired, ChainStatusMixed:
		return true
	default:
		return false
	}
}

// OrderChain is a strategy instance over time: the opening order, any rolls,
// and the orders that eventually close it. Lots are exclusively owned by one
// chain; derived lots inherit the parent's chain.
type OrderChain struct {
	ID         string      `json:"id"`
	Account    string      `json:"account"`
	Underlying string      `json:"underlying"`
	Strategy   string      `json:"strategy"`
	Status     ChainStatus `json:"status"`
	// LegCount is the number of distinct non-derived leg indexes; assignment
	// lineage does not add legs.
	LegCount int `json:"leg_count"`
	// OriginalQuantity and RemainingQuantity are in strategy units: the
	// largest per-leg absolute contract count across non-derived legs.
	OriginalQuantity  float64   `json:"original_quantity"`
	RemainingQuantity float64   `json:"remaining_quantity"`
	HasAssignment     bool      `json:"has_assignment"`
	RealizedPnL       float64   `json:"realized_pnl"`
	OpenedAt          time.Time `json:"opened_at"`
	ClosedAt          time.Time `json:"closed_at,omitempty"`
	// LastOrderAt is the date of the most recent order applied to the chain,
	// used for roll window checks.
	LastOrderAt time.Time `json:"last_order_at"`
	OrderIDs    []string  `json:"order_ids"`
	LotIDs      []string  `json:"lot_ids"`
	// OptionsOnly is false when the chain holds any non-derived stock lot.
	OptionsOnly bool `json:"options_only"`
}
