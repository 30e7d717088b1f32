package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// buildOrders groups the normalized transactions into orders. User fills are
// grouped by broker order id with fills for the same instrument+action merged
// into one leg. System events (expiration, assignment, exercise) carry no
// order id and are synthesized into system orders, pairing option removals
// with their co-occurring stock deliveries.
func (r *run) buildOrders(txns []models.RawTransaction) []*models.Order {
	var userTxns, systemTxns []models.RawTransaction
	for _, t := range txns {
		if t.IsSystemEvent() {
			systemTxns = append(systemTxns, t)
		} else {
			userTxns = append(userTxns, t)
		}
	}

	orders := r.buildUserOrders(userTxns)
	orders = append(orders, r.buildSystemOrders(systemTxns)...)

	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].Date.Equal(orders[j].Date) {
			return orders[i].Date.Before(orders[j].Date)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders
}

func (r *run) buildUserOrders(txns []models.RawTransaction) []*models.Order {
	byOrder := make(map[string][]models.RawTransaction)
	var orderIDs []string
	for _, t := range txns {
		id := t.OrderID
		if id == "" {
			// Rare feed glitch: a user fill with no order id stands alone.
			id = "txn-" + t.ID
		}
		if _, ok := byOrder[id]; !ok {
			orderIDs = append(orderIDs, id)
		}
		byOrder[id] = append(byOrder[id], t)
	}

	orders := make([]*models.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if o := r.buildUserOrder(id, byOrder[id]); o != nil {
			orders = append(orders, o)
		}
	}
	return orders
}

func (r *run) buildUserOrder(orderID string, fills []models.RawTransaction) *models.Order {
	o := &models.Order{
		ID:      orderID,
		Account: r.account,
	}

	type legKey struct {
		symbol string
		action models.LegAction
	}
	legIndex := make(map[legKey]int)

	for _, t := range fills {
		action := models.ActionFromSubType(t.SubType)
		if !action.Valid() {
			r.addIssue(models.Issue{
				Kind:          models.IssueMalformedTransaction,
				Account:       r.account,
				TransactionID: t.ID,
				OrderID:       orderID,
				Symbol:        t.Symbol,
				Detail:        fmt.Sprintf("unrecognized trade sub-type %q", t.SubType),
				OccurredAt:    t.ExecutedAt,
			})
			continue
		}
		if o.Date.IsZero() || t.ExecutedAt.Before(o.Date) {
			o.Date = t.ExecutedAt
		}

		key := legKey{symbol: t.Symbol, action: action}
		idx, ok := legIndex[key]
		if !ok {
			idx = len(o.Legs)
			legIndex[key] = idx
			o.Legs = append(o.Legs, models.OrderLeg{
				Symbol:         t.Symbol,
				Underlying:     t.UnderlyingSymbol,
				InstrumentType: t.InstrumentType,
				OptionType:     t.OptionType,
				Strike:         t.Strike,
				Expiration:     t.Expiration,
				Action:         action,
			})
		}
		mergeFill(&o.Legs[idx], &t)
	}

	if len(o.Legs) == 0 {
		return nil
	}
	return o
}

// mergeFill folds one fill into a leg: quantity summed, price re-weighted by
// volume so downstream matching sees a single effective fill.
func mergeFill(leg *models.OrderLeg, t *models.RawTransaction) {
	prevAbs := math.Abs(leg.Quantity)
	fillAbs := math.Abs(t.Quantity)
	if prevAbs+fillAbs > 0 {
		leg.Price = (leg.Price*prevAbs + t.Price*fillAbs) / (prevAbs + fillAbs)
	}
	leg.Quantity += t.Quantity
	leg.Fees += t.Fees
	leg.TransactionIDs = append(leg.TransactionIDs, t.ID)
}

// buildSystemOrders synthesizes orders for order-id-less broker events.
// Expirations become single-leg closing orders. Assignment and exercise
// option removals are paired with the stock delivery that settles them; a
// removal with no pairing stock event within the window still closes the
// option, with a reconciliation warning.
func (r *run) buildSystemOrders(txns []models.RawTransaction) []*models.Order {
	var orders []*models.Order
	usedStock := make(map[int]bool)

	// Stock deliveries, indexed for pairing.
	var stockEvents []int
	for i, t := range txns {
		if !t.IsOption() {
			stockEvents = append(stockEvents, i)
		}
	}

	for _, t := range txns {
		if !t.IsOption() {
			continue
		}
		switch t.SubType {
		case models.SubTypeExpiration, models.SubTypeCashSettled:
			orders = append(orders, r.systemClosingOrder(&t, models.ClosingExpiration))
		case models.SubTypeAssignment, models.SubTypeExercise:
			pairIdx := r.findStockPair(&t, txns, stockEvents, usedStock)
			if pairIdx < 0 {
				r.addIssue(models.Issue{
					Kind:          models.IssueMissingAssignmentPair,
					Account:       r.account,
					TransactionID: t.ID,
					Symbol:        t.Symbol,
					Detail: fmt.Sprintf("%s of %s has no stock event within %s; closing option at 0 without derived lot",
						t.SubType, t.Symbol, r.cfg.PairWindow),
					OccurredAt: t.ExecutedAt,
				})
				ct := models.ClosingAssignment
				if t.SubType == models.SubTypeExercise {
					ct = models.ClosingExercise
				}
				orders = append(orders, r.systemClosingOrder(&t, ct))
				continue
			}
			usedStock[pairIdx] = true
			orders = append(orders, r.pairedSystemOrder(&t, &txns[pairIdx]))
		default:
			r.addIssue(models.Issue{
				Kind:          models.IssueMalformedTransaction,
				Account:       r.account,
				TransactionID: t.ID,
				Symbol:        t.Symbol,
				Detail:        fmt.Sprintf("unrecognized system sub-type %q", t.SubType),
				OccurredAt:    t.ExecutedAt,
			})
		}
	}

	// Stock deliveries that paired with nothing (e.g. the option side was
	// missing from the feed) still have to enter inventory, or share counts
	// drift. They become standalone system opening orders.
	for _, i := range stockEvents {
		if usedStock[i] {
			continue
		}
		t := txns[i]
		if t.SubType != models.SubTypeAssignment && t.SubType != models.SubTypeExercise {
			continue
		}
		r.addIssue(models.Issue{
			Kind:          models.IssueMissingAssignmentPair,
			Account:       r.account,
			TransactionID: t.ID,
			Symbol:        t.Symbol,
			Detail:        fmt.Sprintf("stock %s event for %s has no matching option removal", t.SubType, t.Symbol),
			OccurredAt:    t.ExecutedAt,
		})
		orders = append(orders, &models.Order{
			ID:          "sys-" + t.ID,
			Account:     r.account,
			Type:        models.OrderTypeSystem,
			System:      true,
			SystemEvent: t.SubType,
			Date:        t.ExecutedAt,
			Legs:        []models.OrderLeg{systemLeg(&t, openingActionForSign(t.Quantity))},
		})
	}

	return orders
}

// findStockPair locates the unused stock event closest in time to the option
// removal, within the pairing window and on the same underlying.
func (r *run) findStockPair(opt *models.RawTransaction, txns []models.RawTransaction,
	stockEvents []int, used map[int]bool) int {
	best := -1
	var bestGap time.Duration
	for _, i := range stockEvents {
		if used[i] {
			continue
		}
		s := txns[i]
		if s.UnderlyingSymbol != opt.UnderlyingSymbol {
			continue
		}
		gap := s.ExecutedAt.Sub(opt.ExecutedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > r.cfg.PairWindow {
			continue
		}
		if best < 0 || gap < bestGap {
			best = i
			bestGap = gap
		}
	}
	return best
}

func (r *run) systemClosingOrder(t *models.RawTransaction, ct models.ClosingType) *models.Order {
	leg := systemLeg(t, closingActionForSign(t.Quantity))
	return &models.Order{
		ID:          "sys-" + t.ID,
		Account:     r.account,
		Type:        models.OrderTypeSystem,
		System:      true,
		SystemEvent: string(ct),
		Date:        t.ExecutedAt,
		Legs:        []models.OrderLeg{leg},
	}
}

// pairedSystemOrder builds the two-leg system order for an assignment or
// exercise: the option removal (closed at price 0) plus the stock delivery.
func (r *run) pairedSystemOrder(opt, stock *models.RawTransaction) *models.Order {
	optLeg := systemLeg(opt, closingActionForSign(opt.Quantity))
	optLeg.Price = 0
	stockLeg := systemLeg(stock, openingActionForSign(stock.Quantity))
	date := opt.ExecutedAt
	if stock.ExecutedAt.Before(date) {
		date = stock.ExecutedAt
	}
	return &models.Order{
		ID:          "sys-" + opt.ID,
		Account:     r.account,
		Type:        models.OrderTypeSystem,
		System:      true,
		SystemEvent: opt.SubType,
		Date:        date,
		Legs:        []models.OrderLeg{optLeg, stockLeg},
	}
}

func systemLeg(t *models.RawTransaction, action models.LegAction) models.OrderLeg {
	return models.OrderLeg{
		Symbol:         t.Symbol,
		Underlying:     t.UnderlyingSymbol,
		InstrumentType: t.InstrumentType,
		OptionType:     t.OptionType,
		Strike:         t.Strike,
		Expiration:     t.Expiration,
		Action:         action,
		Quantity:       t.Quantity,
		Price:          t.Price,
		Fees:           t.Fees,
		TransactionIDs: []string{t.ID},
	}
}

func openingActionForSign(qty float64) models.LegAction {
	if qty < 0 {
		return models.ActionSellToOpen
	}
	return models.ActionBuyToOpen
}

func closingActionForSign(qty float64) models.LegAction {
	if qty < 0 {
		return models.ActionSellToClose
	}
	return models.ActionBuyToClose
}
