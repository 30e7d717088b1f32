package ledger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/tradeledger/internal/models"
	"github.com/eddiefleurent/tradeledger/internal/strategy"
)

// Config holds the tunable matching parameters. The roll window and coverage
// rule are broker conventions, not hard contracts, so they stay configurable.
type Config struct {
	// RollWindow bounds how far after a chain's last order a
	// close-and-reopen order still counts as a roll.
	RollWindow time.Duration
	// PairWindow bounds how far apart the option-removal and stock-delivery
	// halves of an assignment/exercise may execute.
	PairWindow time.Duration
	// MinCoverageRatio is the stock coverage required to label a short call
	// as covered. Zero means any nonzero coverage qualifies.
	MinCoverageRatio float64
}

// DefaultConfig is the default matching configuration.
var DefaultConfig = Config{
	RollWindow:       30 * 24 * time.Hour,
	PairWindow:       30 * time.Second,
	MinCoverageRatio: 0,
}

// Engine reconstructs a ledger for one account at a time. It is stateless
// across calls; every Rebuild derives from scratch.
type Engine struct {
	cfg        Config
	classifier *strategy.Classifier
	logger     *log.Logger
}

// NewEngine creates a reconstruction engine.
func NewEngine(cfg Config, classifier *strategy.Classifier, logger *log.Logger) *Engine {
	if cfg.RollWindow <= 0 {
		cfg.RollWindow = DefaultConfig.RollWindow
	}
	if cfg.PairWindow <= 0 {
		cfg.PairWindow = DefaultConfig.PairWindow
	}
	if logger == nil {
		logger = log.New(os.Stderr, "ledger: ", log.LstdFlags)
	}
	if classifier == nil {
		classifier = strategy.NewClassifier(strategy.DefaultRules())
	}
	return &Engine{cfg: cfg, classifier: classifier, logger: logger}
}

// Result is the reconstructed ledger snapshot for one account. Output is
// fully deterministic for a given transaction set: ordering is by time then
// id, and all generated ids are content-derived.
type Result struct {
	Account string               `json:"account"`
	Orders  []models.Order       `json:"orders"`
	Lots    []models.PositionLot `json:"lots"`
	Chains  []models.OrderChain  `json:"chains"`
	Issues  []models.Issue       `json:"issues"`
	Stats   Stats                `json:"stats"`
}

// Stats aggregates per-account ledger statistics.
type Stats struct {
	ChainsTotal   int     `json:"chains_total"`
	ChainsOpen    int     `json:"chains_open"`
	ChainsClosed  int     `json:"chains_closed"`
	WinningChains int     `json:"winning_chains"`
	LosingChains  int     `json:"losing_chains"`
	WinRate       float64 `json:"win_rate"`
	RealizedPnL   float64 `json:"realized_pnl"`
	Assignments   int     `json:"assignments"`
	IssueCount    int     `json:"issue_count"`
}

// run carries the mutable state of one rebuild pass.
type run struct {
	account     string
	cfg         Config
	logger      *log.Logger
	orders      []*models.Order
	lots        []*models.PositionLot
	lotByID     map[string]*models.PositionLot
	lotsByChain map[string][]*models.PositionLot
	chains      []*models.OrderChain
	chainByID   map[string]*models.OrderChain
	issues      []models.Issue
}

// Rebuild runs the full pipeline over the account's transactions and returns
// the reconstructed snapshot. All issues are non-fatal; an error is returned
// only for structurally invalid input.
func (e *Engine) Rebuild(account string, txns []models.RawTransaction) (*Result, error) {
	if account == "" {
		return nil, fmt.Errorf("rebuild: account is required")
	}
	for _, t := range txns {
		if t.AccountNumber != "" && t.AccountNumber != account {
			return nil, fmt.Errorf("rebuild: transaction %s belongs to account %s, not %s",
				t.ID, t.AccountNumber, account)
		}
	}

	r := &run{
		account:     account,
		cfg:         e.cfg,
		logger:      e.logger,
		lotByID:     make(map[string]*models.PositionLot),
		lotsByChain: make(map[string][]*models.PositionLot),
		chainByID:   make(map[string]*models.OrderChain),
	}

	normalized := r.normalize(txns)
	r.orders = r.buildOrders(normalized)
	for _, o := range r.orders {
		r.applyOrder(o)
	}
	e.classifyChains(r)

	return r.result(), nil
}

// classifyChains labels each chain from the leg set of its opening order.
// The label is fixed at chain creation; rolls do not change it.
func (e *Engine) classifyChains(r *run) {
	for _, chain := range r.chains {
		if len(chain.OrderIDs) == 0 {
			continue
		}
		openingOrderID := chain.OrderIDs[0]
		var legs []strategy.Leg
		var openDate time.Time
		for _, lot := range r.lotsByChain[chain.ID] {
			if lot.IsDerived() || lot.OpeningOrderID != openingOrderID {
				continue
			}
			legs = append(legs, strategy.Leg{
				Instrument: lot.InstrumentType,
				OptionType: lot.OptionType,
				Strike:     lot.Strike,
				Expiration: lot.Expiration,
				Quantity:   lot.OriginalQuantity,
			})
			openDate = lot.EntryDate
		}
		if len(legs) == 0 {
			continue
		}
		ctx := strategy.Context{
			CoverageRatio:    r.coverageRatio(chain, legs, openDate),
			MinCoverageRatio: e.cfg.MinCoverageRatio,
		}
		chain.Strategy = e.classifier.Classify(legs, ctx)
		if ctx.CoverageRatio > 0 {
			e.logger.Printf("chain %s: stock coverage ratio %.2f at classification", chain.ID, ctx.CoverageRatio)
		}
	}
}

// coverageRatio computes how much of a short call chain is covered by long
// stock in the same account and underlying: open stock lots entered at or
// before the chain's opening date, shares divided by shares-equivalent of
// the short calls.
func (r *run) coverageRatio(chain *models.OrderChain, legs []strategy.Leg, openDate time.Time) float64 {
	var shortCalls float64
	for _, leg := range legs {
		if leg.Instrument == models.InstrumentEquityOption &&
			leg.OptionType == models.OptionTypeCall && leg.Quantity < 0 {
			shortCalls += -leg.Quantity
		}
	}
	if shortCalls == 0 {
		return 0
	}
	var shares float64
	for _, lot := range r.lots {
		if lot.InstrumentType != models.InstrumentEquity ||
			lot.Underlying != chain.Underlying ||
			lot.ChainID == chain.ID {
			continue
		}
		if lot.RemainingQuantity <= 0 || lot.EntryDate.After(openDate) {
			continue
		}
		shares += lot.RemainingQuantity
	}
	return shares / (shortCalls * models.SharesPerContract)
}

func (r *run) result() *Result {
	res := &Result{
		Account: r.account,
		Orders:  make([]models.Order, 0, len(r.orders)),
		Lots:    make([]models.PositionLot, 0, len(r.lots)),
		Chains:  make([]models.OrderChain, 0, len(r.chains)),
		Issues:  r.issues,
	}
	for _, o := range r.orders {
		res.Orders = append(res.Orders, *o)
	}
	for _, l := range r.lots {
		res.Lots = append(res.Lots, *l)
	}
	for _, c := range r.chains {
		res.Chains = append(res.Chains, *c)
	}
	sort.SliceStable(res.Chains, func(i, j int) bool {
		if !res.Chains[i].OpenedAt.Equal(res.Chains[j].OpenedAt) {
			return res.Chains[i].OpenedAt.Before(res.Chains[j].OpenedAt)
		}
		return res.Chains[i].ID < res.Chains[j].ID
	})
	res.Stats = computeStats(res)
	return res
}

func computeStats(res *Result) Stats {
	s := Stats{ChainsTotal: len(res.Chains), IssueCount: len(res.Issues)}
	for _, c := range res.Chains {
		s.RealizedPnL += c.RealizedPnL
		if c.HasAssignment {
			s.Assignments++
		}
		if !c.Status.Terminal() {
			s.ChainsOpen++
			continue
		}
		s.ChainsClosed++
		if c.RealizedPnL > 0 {
			s.WinningChains++
		} else if c.RealizedPnL < 0 {
			s.LosingChains++
		}
	}
	s.RealizedPnL = roundCents(s.RealizedPnL)
	if s.ChainsClosed > 0 {
		s.WinRate = float64(s.WinningChains) / float64(s.ChainsClosed)
	}
	return s
}

func (r *run) addIssue(issue models.Issue) {
	r.issues = append(r.issues, issue)
}

func (r *run) addLot(lot *models.PositionLot) {
	r.lots = append(r.lots, lot)
	r.lotByID[lot.ID] = lot
	r.lotsByChain[lot.ChainID] = append(r.lotsByChain[lot.ChainID], lot)
}

// idNamespace seeds the deterministic UUIDs for lots and chains. Content
// derived ids keep repeated rebuilds byte-identical.
var idNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func chainID(account, openingOrderID string) string {
	return uuid.NewSHA1(idNamespace, []byte("chain:"+account+":"+openingOrderID)).String()
}

func lotID(txnID, symbol string) string {
	return uuid.NewSHA1(idNamespace, []byte("lot:"+txnID+":"+symbol)).String()
}

func derivedLotID(stockTxnID, parentLotID string) string {
	return uuid.NewSHA1(idNamespace, []byte("lot:derived:"+stockTxnID+":"+parentLotID)).String()
}
