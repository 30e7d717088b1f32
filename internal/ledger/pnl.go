package ledger

import (
	"github.com/eddiefleurent/tradeledger/internal/models"
	"github.com/eddiefleurent/tradeledger/internal/util"
)

// realizedPnL computes the realized profit for closing qty units of a lot at
// the given price. For a short lot the entry credit is kept and the closing
// cost paid back; for a long lot the closing proceeds net against the entry
// cost. Options scale by the contract multiplier. Rounded to the cent so
// chain sums reconcile exactly.
func realizedPnL(lot *models.PositionLot, qty, closePrice float64) float64 {
	perUnit := closePrice - lot.EntryPrice
	if lot.IsShort() {
		perUnit = lot.EntryPrice - closePrice
	}
	return roundCents(perUnit * qty * lot.Multiplier())
}

// OpenPnL computes the unrealized P&L for a lot against an external mark.
// The signed remaining quantity carries the direction: short lots gain as the
// mark falls.
func OpenPnL(lot *models.PositionLot, mark float64) float64 {
	return roundCents((mark - lot.EntryPrice) * lot.RemainingQuantity * lot.Multiplier())
}

func roundCents(x float64) float64 {
	return util.RoundToTick(x, 0.01)
}
