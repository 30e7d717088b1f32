package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

const testAccount = "5WT0001"

var (
	janExp = time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	febExp = time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)
)

func day(d, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

func occSymbol(underlying string, exp time.Time, ot models.OptionType, strike float64) string {
	cp := "C"
	if ot == models.OptionTypePut {
		cp = "P"
	}
	return fmt.Sprintf("%s %s%s%08d", underlying, exp.Format("060102"), cp, int(strike*1000))
}

func optionFill(id, orderID, subType string, qty, price float64, at time.Time, ot models.OptionType, strike float64, exp time.Time) models.RawTransaction {
	return models.RawTransaction{
		ID:               id,
		AccountNumber:    testAccount,
		OrderID:          orderID,
		Type:             models.TxnTypeTrade,
		SubType:          subType,
		Symbol:           occSymbol("XYZ", exp, ot, strike),
		UnderlyingSymbol: "XYZ",
		InstrumentType:   models.InstrumentEquityOption,
		OptionType:       ot,
		Strike:           strike,
		Expiration:       exp,
		Quantity:         qty,
		Price:            price,
		ExecutedAt:       at,
	}
}

func stockFill(id, orderID, subType string, qty, price float64, at time.Time) models.RawTransaction {
	return models.RawTransaction{
		ID:               id,
		AccountNumber:    testAccount,
		OrderID:          orderID,
		Type:             models.TxnTypeTrade,
		SubType:          subType,
		Symbol:           "XYZ",
		UnderlyingSymbol: "XYZ",
		InstrumentType:   models.InstrumentEquity,
		Quantity:         qty,
		Price:            price,
		ExecutedAt:       at,
	}
}

func systemOptionEvent(id, subType string, qty, price float64, at time.Time, ot models.OptionType, strike float64, exp time.Time) models.RawTransaction {
	t := optionFill(id, "", subType, qty, price, at, ot, strike, exp)
	t.Type = models.TxnTypeReceiveDeliver
	return t
}

func systemStockEvent(id, subType string, qty, price float64, at time.Time) models.RawTransaction {
	t := stockFill(id, "", subType, qty, price, at)
	t.Type = models.TxnTypeReceiveDeliver
	return t
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func rebuild(t *testing.T, txns ...models.RawTransaction) *Result {
	t.Helper()
	e := NewEngine(DefaultConfig, nil, discardLogger())
	res, err := e.Rebuild(testAccount, txns)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return res
}

func singleChain(t *testing.T, res *Result) models.OrderChain {
	t.Helper()
	if len(res.Chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(res.Chains))
	}
	return res.Chains[0]
}

func lotBySymbol(t *testing.T, res *Result, symbol string) models.PositionLot {
	t.Helper()
	for _, l := range res.Lots {
		if l.Symbol == symbol && !l.IsDerived() {
			return l
		}
	}
	t.Fatalf("no lot for symbol %s", symbol)
	return models.PositionLot{}
}

func derivedLot(t *testing.T, res *Result) models.PositionLot {
	t.Helper()
	for _, l := range res.Lots {
		if l.IsDerived() {
			return l
		}
	}
	t.Fatal("no derived lot in result")
	return models.PositionLot{}
}

func hasIssue(res *Result, kind models.IssueKind) bool {
	for _, i := range res.Issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// Vertical put credit spread opened and fully closed with its entry and exit
// prices netting to a $150 profit.
func TestRebuildVerticalSpreadClosed(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "100", "Sell to Open", -2, 1.50, day(2, 15), models.OptionTypePut, 450, janExp),
		optionFill("t2", "100", "Buy to Open", 2, 0.50, day(2, 15), models.OptionTypePut, 445, janExp),
		optionFill("t3", "200", "Buy to Close", 2, 0.35, day(12, 15), models.OptionTypePut, 450, janExp),
		optionFill("t4", "200", "Sell to Close", -2, 0.10, day(12, 15), models.OptionTypePut, 445, janExp),
	)

	chain := singleChain(t, res)
	if chain.Status != models.ChainStatusClosed {
		t.Errorf("chain status = %s, want %s", chain.Status, models.ChainStatusClosed)
	}
	if !almostEqual(chain.RealizedPnL, 150) {
		t.Errorf("chain realized pnl = %v, want 150", chain.RealizedPnL)
	}
	if chain.Strategy != "Bull Put Spread" {
		t.Errorf("chain strategy = %q, want Bull Put Spread", chain.Strategy)
	}
	if chain.LegCount != 2 {
		t.Errorf("chain leg count = %d, want 2", chain.LegCount)
	}
	if chain.RemainingQuantity != 0 || chain.OriginalQuantity != 2 {
		t.Errorf("chain quantities = %v/%v, want 0/2", chain.RemainingQuantity, chain.OriginalQuantity)
	}
	if len(res.Issues) != 0 {
		t.Errorf("unexpected issues: %+v", res.Issues)
	}

	shortLot := lotBySymbol(t, res, occSymbol("XYZ", janExp, models.OptionTypePut, 450))
	if !almostEqual(shortLot.RealizedPnL(), 230) {
		t.Errorf("short lot pnl = %v, want 230", shortLot.RealizedPnL())
	}
	longLot := lotBySymbol(t, res, occSymbol("XYZ", janExp, models.OptionTypePut, 445))
	if !almostEqual(longLot.RealizedPnL(), -80) {
		t.Errorf("long lot pnl = %v, want -80", longLot.RealizedPnL())
	}

	// Compute stats over the closed chain.
	if res.Stats.ChainsClosed != 1 || res.Stats.WinningChains != 1 {
		t.Errorf("stats = %+v, want 1 closed / 1 winning", res.Stats)
	}
	if !almostEqual(res.Stats.WinRate, 1.0) {
		t.Errorf("win rate = %v, want 1.0", res.Stats.WinRate)
	}
	if !almostEqual(res.Stats.RealizedPnL, 150) {
		t.Errorf("stats realized pnl = %v, want 150", res.Stats.RealizedPnL)
	}
}

// Short calls assigned: the option lot closes at price zero keeping the full
// entry credit, and a derived short stock lot enters inventory at the strike.
func TestRebuildAssignmentDerivesStockLot(t *testing.T) {
	callSym := occSymbol("XYZ", janExp, models.OptionTypeCall, 104)
	assignedAt := time.Date(2024, 1, 19, 22, 0, 0, 0, time.UTC)

	res := rebuild(t,
		optionFill("t1", "100", "Sell to Open", -4, 12.458825, day(2, 15), models.OptionTypeCall, 104, janExp),
		systemOptionEvent("t2", models.SubTypeAssignment, 4, 0, assignedAt, models.OptionTypeCall, 104, janExp),
		systemStockEvent("t3", models.SubTypeAssignment, -400, 104.00, assignedAt.Add(5*time.Second)),
		stockFill("t4", "300", "Buy to Close", 400, 104.91, day(22, 15)),
	)

	chain := singleChain(t, res)
	if chain.Status != models.ChainStatusAssigned {
		t.Errorf("chain status = %s, want %s", chain.Status, models.ChainStatusAssigned)
	}
	if !chain.HasAssignment {
		t.Error("chain should report an assignment")
	}
	if !almostEqual(chain.RealizedPnL, 4619.53) {
		t.Errorf("chain realized pnl = %v, want 4619.53", chain.RealizedPnL)
	}
	if chain.Strategy != "Short Call" {
		t.Errorf("chain strategy = %q, want Short Call", chain.Strategy)
	}

	optLot := lotBySymbol(t, res, callSym)
	if optLot.Status != models.LotStatusClosed {
		t.Errorf("option lot status = %s, want closed", optLot.Status)
	}
	if !almostEqual(optLot.RealizedPnL(), 4983.53) {
		t.Errorf("option lot pnl = %v, want 4983.53", optLot.RealizedPnL())
	}
	if len(optLot.Closings) != 1 {
		t.Fatalf("option lot closings = %d, want 1", len(optLot.Closings))
	}
	closing := optLot.Closings[0]
	if closing.Type != models.ClosingAssignment || closing.Price != 0 {
		t.Errorf("option closing = %+v, want assignment at price 0", closing)
	}

	stockLot := derivedLot(t, res)
	if stockLot.OriginalQuantity != -400 || stockLot.EntryPrice != 104.00 {
		t.Errorf("derived lot = %v @ %v, want -400 @ 104.00", stockLot.OriginalQuantity, stockLot.EntryPrice)
	}
	if stockLot.DerivedFromLotID != optLot.ID || stockLot.DerivationType != models.DerivationAssignment {
		t.Errorf("derived lot lineage = %s/%s, want parent %s via assignment",
			stockLot.DerivedFromLotID, stockLot.DerivationType, optLot.ID)
	}
	if stockLot.ChainID != chain.ID || stockLot.LegIndex != optLot.LegIndex {
		t.Error("derived lot should inherit the parent's chain and leg index")
	}
	if closing.ResultingLotID != stockLot.ID {
		t.Errorf("option closing resulting lot = %s, want %s", closing.ResultingLotID, stockLot.ID)
	}
	if !almostEqual(stockLot.RealizedPnL(), -364.00) {
		t.Errorf("stock lot pnl = %v, want -364.00", stockLot.RealizedPnL())
	}
	if stockLot.Status != models.LotStatusClosed {
		t.Errorf("stock lot status = %s, want closed", stockLot.Status)
	}

	// The derived stock lot does not add a strategy leg or strategy units.
	if chain.LegCount != 1 {
		t.Errorf("chain leg count = %d, want 1", chain.LegCount)
	}
	if chain.OriginalQuantity != 4 || chain.RemainingQuantity != 0 {
		t.Errorf("chain quantities = %v/%v, want 4/0", chain.OriginalQuantity, chain.RemainingQuantity)
	}
	if res.Stats.Assignments != 1 {
		t.Errorf("stats assignments = %d, want 1", res.Stats.Assignments)
	}
	if len(res.Issues) != 0 {
		t.Errorf("unexpected issues: %+v", res.Issues)
	}
}

// An assignment pair whose option removal finds no open lot (the opening
// trade predates the fetched history) still books the delivered shares as
// inventory instead of dropping them.
func TestRebuildAssignmentWithoutOptionLotKeepsShares(t *testing.T) {
	assignedAt := time.Date(2024, 1, 19, 22, 0, 0, 0, time.UTC)

	res := rebuild(t,
		systemOptionEvent("t1", models.SubTypeAssignment, 4, 0, assignedAt, models.OptionTypeCall, 104, janExp),
		systemStockEvent("t2", models.SubTypeAssignment, -400, 104.00, assignedAt.Add(5*time.Second)),
	)

	stockLot := lotBySymbol(t, res, "XYZ")
	if stockLot.OriginalQuantity != -400 || stockLot.EntryPrice != 104.00 {
		t.Errorf("stock lot = %v @ %v, want -400 @ 104.00", stockLot.OriginalQuantity, stockLot.EntryPrice)
	}
	if stockLot.IsDerived() {
		t.Error("standalone delivery must not claim option lineage")
	}

	chain := singleChain(t, res)
	if chain.Status != models.ChainStatusOpen {
		t.Errorf("chain status = %s, want %s", chain.Status, models.ChainStatusOpen)
	}
	if chain.OptionsOnly {
		t.Error("stock-only chain reported as options-only")
	}

	if !hasIssue(res, models.IssueUnmatchedClosing) {
		t.Error("expected an unmatched closing issue for the option removal")
	}
	if !hasIssue(res, models.IssueMissingAssignmentPair) {
		t.Error("expected a warning for the standalone share delivery")
	}
}

// Closing part of a position leaves the lots partial and the chain's strategy
// unit count reduced, not zeroed.
func TestRebuildPartialClose(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "400", "Sell to Open", -2, 1.50, day(2, 15), models.OptionTypePut, 450, janExp),
		optionFill("t2", "400", "Buy to Open", 2, 0.50, day(2, 15), models.OptionTypePut, 445, janExp),
		optionFill("t3", "401", "Buy to Close", 1, 0.35, day(10, 15), models.OptionTypePut, 450, janExp),
		optionFill("t4", "401", "Sell to Close", -1, 0.10, day(10, 15), models.OptionTypePut, 445, janExp),
	)

	chain := singleChain(t, res)
	if chain.Status != models.ChainStatusPartial {
		t.Errorf("chain status = %s, want %s", chain.Status, models.ChainStatusPartial)
	}
	if chain.RemainingQuantity != 1 {
		t.Errorf("chain remaining quantity = %v, want 1", chain.RemainingQuantity)
	}
	for _, lot := range res.Lots {
		if lot.Status != models.LotStatusPartial {
			t.Errorf("lot %s status = %s, want partial", lot.Symbol, lot.Status)
		}
	}
}

// Re-processing the identical transaction set must produce identical output,
// including generated ids.
func TestRebuildIsIdempotent(t *testing.T) {
	assignedAt := time.Date(2024, 1, 19, 22, 0, 0, 0, time.UTC)
	txns := []models.RawTransaction{
		optionFill("t1", "100", "Sell to Open", -4, 12.458825, day(2, 15), models.OptionTypeCall, 104, janExp),
		systemOptionEvent("t2", models.SubTypeAssignment, 4, 0, assignedAt, models.OptionTypeCall, 104, janExp),
		systemStockEvent("t3", models.SubTypeAssignment, -400, 104.00, assignedAt.Add(5*time.Second)),
		stockFill("t4", "300", "Buy to Close", 400, 104.91, day(22, 15)),
	}

	first := rebuild(t, txns...)
	second := rebuild(t, txns...)

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if string(a) != string(b) {
		t.Error("two rebuilds of the same transactions differ")
	}
}

// Independent trades on the same instrument stay in separate chains; a later
// closing is matched to the nearest chain with an ambiguity warning.
func TestRebuildChainDistinctness(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "500", "Sell to Open", -1, 1.00, day(2, 15), models.OptionTypePut, 100, febExp),
		optionFill("t2", "501", "Sell to Open", -1, 1.10, day(5, 15), models.OptionTypePut, 100, febExp),
		optionFill("t3", "502", "Buy to Close", 1, 0.50, day(6, 15), models.OptionTypePut, 100, febExp),
	)

	if len(res.Chains) != 2 {
		t.Fatalf("got %d chains, want 2", len(res.Chains))
	}
	if !hasIssue(res, models.IssueAmbiguousRollMatch) {
		t.Error("expected an ambiguous match warning")
	}

	// Chains come back ordered by opening date; the closing settles against
	// the one opened nearest the closing order.
	older, newer := res.Chains[0], res.Chains[1]
	if older.Status != models.ChainStatusOpen {
		t.Errorf("older chain status = %s, want open", older.Status)
	}
	if newer.Status != models.ChainStatusClosed {
		t.Errorf("newer chain status = %s, want closed", newer.Status)
	}
}

// A close-and-reopen order within the roll window extends the chain instead
// of starting a new one.
func TestRebuildRollExtendsChain(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "600", "Sell to Open", -1, 2.00, day(2, 15), models.OptionTypeCall, 110, febExp),
		optionFill("t2", "600", "Sell to Open", -1, 2.00, day(2, 15), models.OptionTypePut, 90, febExp),
		optionFill("t3", "601", "Buy to Close", 1, 1.00, day(12, 15), models.OptionTypeCall, 110, febExp),
		optionFill("t4", "601", "Sell to Open", -1, 1.80, day(12, 15), models.OptionTypeCall, 115, febExp),
	)

	chain := singleChain(t, res)
	if chain.Strategy != "Strangle" {
		t.Errorf("chain strategy = %q, want Strangle", chain.Strategy)
	}
	if len(chain.OrderIDs) != 2 {
		t.Errorf("chain order count = %d, want 2", len(chain.OrderIDs))
	}
	if chain.Status != models.ChainStatusPartial {
		t.Errorf("chain status = %s, want partial", chain.Status)
	}

	var rollOrder *models.Order
	for i := range res.Orders {
		if res.Orders[i].ID == "601" {
			rollOrder = &res.Orders[i]
		}
	}
	if rollOrder == nil {
		t.Fatal("roll order missing from result")
	}
	if rollOrder.Type != models.OrderTypeRolling {
		t.Errorf("roll order type = %s, want rolling", rollOrder.Type)
	}
	if rollOrder.ChainID != chain.ID {
		t.Error("roll order should stay in the original chain")
	}

	rolled := lotBySymbol(t, res, occSymbol("XYZ", febExp, models.OptionTypeCall, 115))
	if rolled.LegIndex != 2 {
		t.Errorf("replacement lot leg index = %d, want 2", rolled.LegIndex)
	}
}

// Beyond the roll window the same shape of order settles the old chain and
// starts a fresh one.
func TestRebuildRollWindowExpired(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "600", "Sell to Open", -1, 2.00, day(2, 15), models.OptionTypeCall, 110, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		optionFill("t2", "601", "Buy to Close", 1, 1.00, time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC), models.OptionTypeCall, 110, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		optionFill("t3", "601", "Sell to Open", -1, 1.80, time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC), models.OptionTypeCall, 115, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
	)

	if len(res.Chains) != 2 {
		t.Fatalf("got %d chains, want 2", len(res.Chains))
	}
	if res.Chains[0].Status != models.ChainStatusClosed {
		t.Errorf("old chain status = %s, want closed", res.Chains[0].Status)
	}
	if res.Chains[1].Status != models.ChainStatusOpen {
		t.Errorf("new chain status = %s, want open", res.Chains[1].Status)
	}
}

// An option expiring worthless closes its lot at zero via a system order.
func TestRebuildExpiration(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "100", "Sell to Open", -1, 1.50, day(2, 15), models.OptionTypePut, 450, janExp),
		systemOptionEvent("t2", models.SubTypeExpiration, 1, 0, janExp.Add(22*time.Hour), models.OptionTypePut, 450, janExp),
	)

	chain := singleChain(t, res)
	if chain.Status != models.ChainStatusExpired {
		t.Errorf("chain status = %s, want %s", chain.Status, models.ChainStatusExpired)
	}
	if !almostEqual(chain.RealizedPnL, 150) {
		t.Errorf("chain realized pnl = %v, want 150", chain.RealizedPnL)
	}
	if chain.HasAssignment {
		t.Error("expiration should not flag an assignment")
	}
}

// A short call opened while long stock is already held in the account is
// recognized as covered even though the stock lives in another chain.
func TestRebuildCoveredCallLookback(t *testing.T) {
	res := rebuild(t,
		stockFill("t1", "700", "Buy to Open", 100, 50.00, day(2, 15)),
		optionFill("t2", "701", "Sell to Open", -1, 1.20, day(3, 15), models.OptionTypeCall, 55, febExp),
	)

	if len(res.Chains) != 2 {
		t.Fatalf("got %d chains, want 2", len(res.Chains))
	}
	stockChain, callChain := res.Chains[0], res.Chains[1]
	if stockChain.Strategy != "Long Stock" {
		t.Errorf("stock chain strategy = %q, want Long Stock", stockChain.Strategy)
	}
	if stockChain.OptionsOnly {
		t.Error("stock chain should not be options-only")
	}
	if callChain.Strategy != "Covered Call" {
		t.Errorf("call chain strategy = %q, want Covered Call", callChain.Strategy)
	}
	if !callChain.OptionsOnly {
		t.Error("call chain should be options-only")
	}
}

// A closing with no candidate open lot anywhere is recorded, never dropped
// silently and never fatal.
func TestRebuildUnmatchedClosing(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "800", "Buy to Close", 1, 0.50, day(2, 15), models.OptionTypePut, 100, febExp),
	)

	if len(res.Chains) != 0 {
		t.Fatalf("got %d chains, want 0", len(res.Chains))
	}
	if !hasIssue(res, models.IssueUnmatchedClosing) {
		t.Error("expected an unmatched closing issue")
	}
	if len(res.Orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(res.Orders))
	}
	if !res.Orders[0].Legs[0].Unlinked {
		t.Error("closing leg should be marked unlinked")
	}
}

// Closing more quantity than is open clamps at the available amount and
// flags the excess.
func TestRebuildOverClose(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "900", "Sell to Open", -1, 1.50, day(2, 15), models.OptionTypePut, 450, janExp),
		optionFill("t2", "901", "Buy to Close", 2, 0.35, day(5, 15), models.OptionTypePut, 450, janExp),
	)

	if !hasIssue(res, models.IssueOverCloseQuantity) {
		t.Error("expected an over-close issue")
	}
	chain := singleChain(t, res)
	if chain.Status != models.ChainStatusClosed {
		t.Errorf("chain status = %s, want closed", chain.Status)
	}
	lot := lotBySymbol(t, res, occSymbol("XYZ", janExp, models.OptionTypePut, 450))
	if got := lot.ClosedQuantity(); got != 1 {
		t.Errorf("closed quantity = %v, want 1 (clamped)", got)
	}
}

// Transactions for a different account are structurally invalid input.
func TestRebuildRejectsForeignAccount(t *testing.T) {
	e := NewEngine(DefaultConfig, nil, discardLogger())
	txn := optionFill("t1", "100", "Sell to Open", -1, 1.50, day(2, 15), models.OptionTypePut, 450, janExp)
	txn.AccountNumber = "OTHER"
	if _, err := e.Rebuild(testAccount, []models.RawTransaction{txn}); err == nil {
		t.Error("Rebuild accepted a transaction for another account")
	}
	if _, err := e.Rebuild("", nil); err == nil {
		t.Error("Rebuild accepted an empty account")
	}
}

// Chain realized P&L must equal the sum of its lots' closings exactly.
func TestChainPnLReconciles(t *testing.T) {
	res := rebuild(t,
		optionFill("t1", "100", "Sell to Open", -2, 1.50, day(2, 15), models.OptionTypePut, 450, janExp),
		optionFill("t2", "100", "Buy to Open", 2, 0.50, day(2, 15), models.OptionTypePut, 445, janExp),
		optionFill("t3", "200", "Buy to Close", 2, 0.35, day(12, 15), models.OptionTypePut, 450, janExp),
		optionFill("t4", "200", "Sell to Close", -2, 0.10, day(12, 15), models.OptionTypePut, 445, janExp),
	)

	chain := singleChain(t, res)
	var sum float64
	for _, lot := range res.Lots {
		if lot.ChainID == chain.ID {
			sum += lot.RealizedPnL()
		}
	}
	if !almostEqual(chain.RealizedPnL, sum) {
		t.Errorf("chain pnl %v != lot closings sum %v", chain.RealizedPnL, sum)
	}
}

func TestOpenPnL(t *testing.T) {
	short := &models.PositionLot{
		InstrumentType:    models.InstrumentEquityOption,
		EntryPrice:        1.50,
		OriginalQuantity:  -2,
		RemainingQuantity: -2,
	}
	// Short option: mark below entry is a gain.
	if got := OpenPnL(short, 1.00); !almostEqual(got, 100) {
		t.Errorf("short open pnl = %v, want 100", got)
	}

	long := &models.PositionLot{
		InstrumentType:    models.InstrumentEquity,
		EntryPrice:        50,
		OriginalQuantity:  100,
		RemainingQuantity: 100,
	}
	if got := OpenPnL(long, 52.5); !almostEqual(got, 250) {
		t.Errorf("long open pnl = %v, want 250", got)
	}
}
