package ledger

import (
	"fmt"
	"math"
	"strings"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// applySystemOrder settles a synthesized system order: expirations close the
// matching option lots; paired assignment/exercise orders close the option
// lots at zero and derive stock lots with explicit lineage. System orders
// never start or roll a chain.
func (r *run) applySystemOrder(o *models.Order) {
	opening := o.OpeningLegs()
	closing := o.ClosingLegs()

	if len(closing) == 0 {
		// Orphan stock delivery (option side missing from the feed). Already
		// flagged during order building; the shares still enter inventory.
		chain := r.openChain(o, opening)
		o.ChainID = chain.ID
		r.refreshTouchedChains(o)
		return
	}

	optLeg := closing[0]
	chain := r.resolveClosingChain(o, closing[:1])
	if chain == nil {
		// No open option lot to settle against, typically because the
		// opening trade predates the feed window. The option leg is flagged,
		// but the delivered shares are real inventory either way.
		r.markUnmatched(o, optLeg)
		if len(opening) > 0 {
			r.bookStandaloneDelivery(o, opening)
		}
		r.refreshTouchedChains(o)
		return
	}
	o.ChainID = chain.ID
	r.attachOrder(chain, o)

	ct := closingTypeForEvent(o.SystemEvent)
	closed := r.applySystemClosings(o, chain, optLeg, ct)

	switch {
	case len(opening) == 0:
	case len(closed) > 0:
		r.deriveStockLots(o, chain, opening[0], closed, ct)
	default:
		r.bookStandaloneDelivery(o, opening)
	}
	r.refreshTouchedChains(o)
}

// bookStandaloneDelivery opens delivered shares as an ordinary lot when their
// option side settled against nothing. Lineage is unknown, so the lot starts
// a fresh chain instead of deriving from an option lot.
func (r *run) bookStandaloneDelivery(o *models.Order, opening []*models.OrderLeg) {
	chain := r.openChain(o, opening)
	o.ChainID = chain.ID
	r.addIssue(models.Issue{
		Kind:       models.IssueMissingAssignmentPair,
		Account:    r.account,
		OrderID:    o.ID,
		Symbol:     opening[0].Symbol,
		Detail:     fmt.Sprintf("delivered %v shares of %s booked standalone; no open option lot to derive from", opening[0].Quantity, opening[0].Symbol),
		OccurredAt: o.Date,
	})
}

// closedSlice records one lot closing created by a system order, so derived
// lots can be linked back to it.
type closedSlice struct {
	lot        *models.PositionLot
	closingIdx int
	quantity   float64
}

// applySystemClosings closes the option leg against the chain's open lots,
// FIFO, creating closings of the given type. Assignment and exercise legs
// carry price zero, so the option leg's P&L equals its full entry
// credit/debit allocation.
func (r *run) applySystemClosings(o *models.Order, chain *models.OrderChain,
	leg *models.OrderLeg, ct models.ClosingType) []closedSlice {
	lots := r.matchingOpenLots(chain, leg)
	if len(lots) == 0 {
		r.markUnmatched(o, leg)
		return nil
	}

	var closed []closedSlice
	remaining := math.Abs(leg.Quantity)
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		qty := math.Min(remaining, math.Abs(lot.RemainingQuantity))
		c := models.LotClosing{
			Quantity:    qty,
			Price:       leg.Price,
			Date:        o.Date,
			Type:        ct,
			OrderID:     o.ID,
			RealizedPnL: realizedPnL(lot, qty, leg.Price),
		}
		if len(leg.TransactionIDs) > 0 {
			c.TransactionID = leg.TransactionIDs[0]
		}
		if err := lot.ApplyClosing(c); err != nil {
			r.logger.Printf("apply system closing on lot %s: %v", lot.ID, err)
			continue
		}
		leg.LotIDs = append(leg.LotIDs, lot.ID)
		closed = append(closed, closedSlice{lot: lot, closingIdx: len(lot.Closings) - 1, quantity: qty})
		remaining -= qty
	}
	if remaining > 1e-9 {
		r.addIssue(models.Issue{
			Kind:       models.IssueOverCloseQuantity,
			Account:    r.account,
			OrderID:    o.ID,
			Symbol:     leg.Symbol,
			Detail:     "system closing quantity exceeds open quantity; clamped",
			OccurredAt: o.Date,
		})
	}
	return closed
}

// deriveStockLots creates the stock lots delivered by an assignment or
// exercise. The stock quantity is split proportionally across the closed
// option lots; each derived lot inherits the parent's chain and leg index
// (lineage, not a new strategy leg), and the parent closing records the
// resulting lot id.
func (r *run) deriveStockLots(o *models.Order, chain *models.OrderChain,
	stockLeg *models.OrderLeg, closed []closedSlice, ct models.ClosingType) {
	var totalContracts float64
	for _, c := range closed {
		totalContracts += c.quantity
	}
	if totalContracts == 0 {
		return
	}
	perContract := stockLeg.Quantity / totalContracts

	dt := models.DerivationAssignment
	if ct == models.ClosingExercise {
		dt = models.DerivationExercise
	}
	stockTxnID := o.ID
	if len(stockLeg.TransactionIDs) > 0 {
		stockTxnID = stockLeg.TransactionIDs[0]
	}

	for _, c := range closed {
		qty := perContract * c.quantity
		lot := &models.PositionLot{
			ID:                derivedLotID(stockTxnID, c.lot.ID),
			Account:           r.account,
			Symbol:            stockLeg.Symbol,
			Underlying:        stockLeg.Underlying,
			InstrumentType:    stockLeg.InstrumentType,
			ChainID:           chain.ID,
			LegIndex:          c.lot.LegIndex,
			OpeningOrderID:    o.ID,
			OpeningTxnID:      stockTxnID,
			EntryPrice:        stockLeg.Price,
			EntryDate:         o.Date,
			OriginalQuantity:  qty,
			RemainingQuantity: qty,
			Status:            models.LotStatusOpen,
			DerivedFromLotID:  c.lot.ID,
			DerivationType:    dt,
		}
		r.addLot(lot)
		stockLeg.LotIDs = append(stockLeg.LotIDs, lot.ID)
		c.lot.Closings[c.closingIdx].ResultingLotID = lot.ID
	}
}

// closingTypeForEvent maps a system order's event label to a closing type.
func closingTypeForEvent(event string) models.ClosingType {
	switch strings.ToLower(event) {
	case "assignment":
		return models.ClosingAssignment
	case "exercise":
		return models.ClosingExercise
	default:
		return models.ClosingExpiration
	}
}
