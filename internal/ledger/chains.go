package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// applyOrder routes one order through chain linking and lot matching. Orders
// arrive in time order; chain assignment happens before or alongside lot
// creation so independent trades on an identical instrument never collide.
func (r *run) applyOrder(o *models.Order) {
	if o.System {
		r.applySystemOrder(o)
		return
	}

	opening := o.OpeningLegs()
	closing := o.ClosingLegs()

	switch {
	case len(closing) == 0 && len(opening) > 0:
		chain := r.openChain(o, opening)
		o.Type = models.OrderTypeOpening
		o.ChainID = chain.ID

	case len(opening) == 0 && len(closing) > 0:
		chain := r.resolveClosingChain(o, closing)
		o.Type = models.OrderTypeClosing
		if chain != nil {
			o.ChainID = chain.ID
			r.attachOrder(chain, o)
		}
		r.applyClosings(o, chain, closing, models.ClosingManual)

	case len(opening) > 0 && len(closing) > 0:
		chain := r.resolveClosingChain(o, closing)
		if chain != nil && r.withinRollWindow(chain, o.Date) {
			// Roll: same chain closes matched lots and opens replacements.
			o.Type = models.OrderTypeRolling
			o.ChainID = chain.ID
			r.attachOrder(chain, o)
			r.applyClosings(o, chain, closing, models.ClosingManual)
			r.openLotsInChain(chain, o, opening)
		} else {
			// Outside the roll window the closings still settle against the
			// old chain, but the openings start a fresh strategy.
			r.applyClosings(o, chain, closing, models.ClosingManual)
			if chain != nil {
				r.attachOrder(chain, o)
			}
			fresh := r.openChain(o, opening)
			o.Type = models.OrderTypeOpening
			o.ChainID = fresh.ID
		}
	}

	r.refreshTouchedChains(o)
}

// withinRollWindow reports whether the order date falls within the
// configured window of the chain's most recent order.
func (r *run) withinRollWindow(chain *models.OrderChain, date time.Time) bool {
	gap := date.Sub(chain.LastOrderAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= r.cfg.RollWindow
}

// openChain starts a new chain from the order's opening legs. The chain id is
// derived deterministically from the account and opening order id so repeated
// rebuilds produce identical output.
func (r *run) openChain(o *models.Order, opening []*models.OrderLeg) *models.OrderChain {
	chain := &models.OrderChain{
		ID:          chainID(r.account, o.ID),
		Account:     r.account,
		Underlying:  opening[0].Underlying,
		Status:      models.ChainStatusOpen,
		OpenedAt:    o.Date,
		LastOrderAt: o.Date,
		OptionsOnly: true,
	}
	r.chains = append(r.chains, chain)
	r.chainByID[chain.ID] = chain
	r.attachOrder(chain, o)
	for i, leg := range opening {
		r.createLot(chain, o, leg, i)
	}
	return chain
}

// openLotsInChain adds roll replacement lots, continuing the chain's leg
// index sequence past its existing non-derived legs.
func (r *run) openLotsInChain(chain *models.OrderChain, o *models.Order, opening []*models.OrderLeg) {
	next := 0
	for _, lot := range r.lotsByChain[chain.ID] {
		if !lot.IsDerived() && lot.LegIndex >= next {
			next = lot.LegIndex + 1
		}
	}
	for i, leg := range opening {
		r.createLot(chain, o, leg, next+i)
	}
}

func (r *run) createLot(chain *models.OrderChain, o *models.Order, leg *models.OrderLeg, legIndex int) *models.PositionLot {
	txnID := o.ID
	if len(leg.TransactionIDs) > 0 {
		txnID = leg.TransactionIDs[0]
	}
	lot := &models.PositionLot{
		ID:                lotID(txnID, leg.Symbol),
		Account:           r.account,
		Symbol:            leg.Symbol,
		Underlying:        leg.Underlying,
		InstrumentType:    leg.InstrumentType,
		OptionType:        leg.OptionType,
		Strike:            leg.Strike,
		Expiration:        leg.Expiration,
		ChainID:           chain.ID,
		LegIndex:          legIndex,
		OpeningOrderID:    o.ID,
		OpeningTxnID:      txnID,
		EntryPrice:        leg.Price,
		EntryDate:         o.Date,
		OriginalQuantity:  leg.Quantity,
		RemainingQuantity: leg.Quantity,
		Status:            models.LotStatusOpen,
	}
	r.addLot(lot)
	leg.LotIDs = append(leg.LotIDs, lot.ID)
	return lot
}

// resolveClosingChain finds the chain whose open lots the order's closing
// legs settle against. When more than one chain qualifies the tie is broken
// by nearest order date, then nearest strike, and the ambiguity is logged as
// a reconciliation warning.
func (r *run) resolveClosingChain(o *models.Order, closing []*models.OrderLeg) *models.OrderChain {
	candidateSet := make(map[string]*models.OrderChain)
	for _, leg := range closing {
		for _, chain := range r.chains {
			if chain.Underlying != leg.Underlying {
				continue
			}
			if len(r.matchingOpenLots(chain, leg)) > 0 {
				candidateSet[chain.ID] = chain
			}
		}
	}
	if len(candidateSet) == 0 {
		return nil
	}
	if len(candidateSet) == 1 {
		for _, c := range candidateSet {
			return c
		}
	}

	candidates := make([]*models.OrderChain, 0, len(candidateSet))
	for _, c := range candidateSet {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := absDuration(o.Date.Sub(candidates[i].LastOrderAt)), absDuration(o.Date.Sub(candidates[j].LastOrderAt))
		if di != dj {
			return di < dj
		}
		si, sj := r.strikeDistance(candidates[i], closing), r.strikeDistance(candidates[j], closing)
		if si != sj {
			return si < sj
		}
		return candidates[i].ID < candidates[j].ID
	})

	chosen := candidates[0]
	r.addIssue(models.Issue{
		Kind:       models.IssueAmbiguousRollMatch,
		Account:    r.account,
		OrderID:    o.ID,
		Symbol:     closing[0].Symbol,
		Detail:     fmt.Sprintf("%d chains qualify for order %s; picked %s by nearest date/strike", len(candidates), o.ID, chosen.ID),
		OccurredAt: o.Date,
	})
	return chosen
}

// strikeDistance is the tie-break metric: the smallest absolute strike gap
// between the chain's open lots and the closing legs.
func (r *run) strikeDistance(chain *models.OrderChain, closing []*models.OrderLeg) float64 {
	best := math.MaxFloat64
	for _, lot := range r.lotsByChain[chain.ID] {
		if lot.RemainingQuantity == 0 {
			continue
		}
		for _, leg := range closing {
			if d := math.Abs(lot.Strike - leg.Strike); d < best {
				best = d
			}
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// matchingOpenLots returns the chain's open lots for the leg's instrument,
// FIFO by entry date (ties broken by creation sequence, which is itself
// deterministic).
func (r *run) matchingOpenLots(chain *models.OrderChain, leg *models.OrderLeg) []*models.PositionLot {
	var lots []*models.PositionLot
	for _, lot := range r.lotsByChain[chain.ID] {
		if lot.RemainingQuantity == 0 {
			continue
		}
		if leg.SameInstrument(lot) {
			lots = append(lots, lot)
		}
	}
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].EntryDate.Before(lots[j].EntryDate)
	})
	return lots
}

// applyClosings matches each closing leg against the target chain's open
// lots, oldest first, consuming min(lot remaining, leg quantity) per lot.
// Excess quantity is clamped and flagged; a leg with no candidates at all is
// left unlinked.
func (r *run) applyClosings(o *models.Order, chain *models.OrderChain, closing []*models.OrderLeg, ct models.ClosingType) {
	for _, leg := range closing {
		if chain == nil {
			r.markUnmatched(o, leg)
			continue
		}
		lots := r.matchingOpenLots(chain, leg)
		if len(lots) == 0 {
			r.markUnmatched(o, leg)
			continue
		}
		remaining := math.Abs(leg.Quantity)
		for _, lot := range lots {
			if remaining <= 0 {
				break
			}
			qty := math.Min(remaining, math.Abs(lot.RemainingQuantity))
			lc := models.LotClosing{
				Quantity:    qty,
				Price:       leg.Price,
				Date:        o.Date,
				Type:        ct,
				OrderID:     o.ID,
				RealizedPnL: realizedPnL(lot, qty, leg.Price),
			}
			if len(leg.TransactionIDs) > 0 {
				lc.TransactionID = leg.TransactionIDs[0]
			}
			if err := lot.ApplyClosing(lc); err != nil {
				// Clamping above makes this unreachable for well-formed lots.
				r.logger.Printf("apply closing on lot %s: %v", lot.ID, err)
				continue
			}
			leg.LotIDs = append(leg.LotIDs, lot.ID)
			remaining -= qty
		}
		if remaining > 1e-9 {
			r.addIssue(models.Issue{
				Kind:       models.IssueOverCloseQuantity,
				Account:    r.account,
				OrderID:    o.ID,
				Symbol:     leg.Symbol,
				Detail:     fmt.Sprintf("closing quantity %v exceeds open quantity by %v; clamped", math.Abs(leg.Quantity), remaining),
				OccurredAt: o.Date,
			})
		}
	}
}

func (r *run) markUnmatched(o *models.Order, leg *models.OrderLeg) {
	leg.Unlinked = true
	r.addIssue(models.Issue{
		Kind:       models.IssueUnmatchedClosing,
		Account:    r.account,
		OrderID:    o.ID,
		Symbol:     leg.Symbol,
		Detail:     fmt.Sprintf("no candidate open lot for closing leg %s qty %v", leg.Symbol, leg.Quantity),
		OccurredAt: o.Date,
	})
}

func (r *run) attachOrder(chain *models.OrderChain, o *models.Order) {
	for _, id := range chain.OrderIDs {
		if id == o.ID {
			return
		}
	}
	chain.OrderIDs = append(chain.OrderIDs, o.ID)
	if o.Date.After(chain.LastOrderAt) {
		chain.LastOrderAt = o.Date
	}
}

// refreshTouchedChains rederives status and aggregates for every chain the
// order touched.
func (r *run) refreshTouchedChains(o *models.Order) {
	seen := make(map[string]bool)
	refresh := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		if chain := r.chainByID[id]; chain != nil {
			r.refreshChain(chain)
		}
	}
	refresh(o.ChainID)
	for _, leg := range o.Legs {
		for _, lotID := range leg.LotIDs {
			if lot := r.lotByID[lotID]; lot != nil {
				refresh(lot.ChainID)
			}
		}
	}
}

// refreshChain rederives the chain's status, quantities, leg count, and
// realized P&L from its lots. Derived lots count toward status and P&L but
// not toward leg count or strategy-unit quantities.
func (r *run) refreshChain(chain *models.OrderChain) {
	lots := r.lotsByChain[chain.ID]

	legIndexes := make(map[int]bool)
	origByLeg := make(map[int]float64)
	remByLeg := make(map[int]float64)
	var realized float64
	anyClosings := false
	allClosed := true
	closingTypes := make(map[models.ClosingType]bool)
	var lastClose time.Time
	chain.OptionsOnly = true
	chain.HasAssignment = false

	for _, lot := range lots {
		realized += lot.RealizedPnL()
		if len(lot.Closings) > 0 {
			anyClosings = true
		}
		if lot.RemainingQuantity != 0 {
			allClosed = false
		}
		for _, c := range lot.Closings {
			closingTypes[c.Type] = true
			if c.Type == models.ClosingAssignment {
				chain.HasAssignment = true
			}
			if c.Date.After(lastClose) {
				lastClose = c.Date
			}
		}
		if lot.IsDerived() {
			if lot.DerivationType == models.DerivationAssignment {
				chain.HasAssignment = true
			}
			continue
		}
		if lot.InstrumentType == models.InstrumentEquity {
			chain.OptionsOnly = false
		}
		legIndexes[lot.LegIndex] = true
		origByLeg[lot.LegIndex] += math.Abs(lot.OriginalQuantity)
		remByLeg[lot.LegIndex] += math.Abs(lot.RemainingQuantity)
	}

	chain.LegCount = len(legIndexes)
	chain.OriginalQuantity = maxOverLegs(origByLeg)
	chain.RemainingQuantity = maxOverLegs(remByLeg)
	chain.RealizedPnL = roundCents(realized)

	chain.Status = deriveChainStatus(anyClosings, allClosed, closingTypes)
	if chain.Status.Terminal() {
		chain.ClosedAt = lastClose
	} else {
		chain.ClosedAt = time.Time{}
	}
}

func maxOverLegs(byLeg map[int]float64) float64 {
	var m float64
	for _, v := range byLeg {
		if v > m {
			m = v
		}
	}
	return m
}

// deriveChainStatus maps the chain's closing history to a status. Terminal
// chains resolve to the single non-manual closing type they saw, MIXED when
// there was more than one, and CLOSED when every closing was manual.
func deriveChainStatus(anyClosings, allClosed bool, types map[models.ClosingType]bool) models.ChainStatus {
	if !anyClosings {
		return models.ChainStatusOpen
	}
	if !allClosed {
		return models.ChainStatusPartial
	}
	nonManual := make([]models.ClosingType, 0, len(types))
	for t := range types {
		if t != models.ClosingManual {
			nonManual = append(nonManual, t)
		}
	}
	switch len(nonManual) {
	case 0:
		return models.ChainStatusClosed
	case 1:
		switch nonManual[0] {
		case models.ClosingAssignment:
			return models.ChainStatusAssigned
		case models.ClosingExercise:
			return models.ChainStatusExercised
		case models.ClosingExpiration:
			return models.ChainStatusExpired
		}
	}
	return models.ChainStatusMixed
}
