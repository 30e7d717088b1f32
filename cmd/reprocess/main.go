// Command reprocess performs a one-shot ledger rebuild for a single account,
// reading transactions either from the live feed or from a JSON file, and
// prints the resulting chains and reconciliation report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/config"
	"github.com/eddiefleurent/tradeledger/internal/feed"
	"github.com/eddiefleurent/tradeledger/internal/ledger"
	"github.com/eddiefleurent/tradeledger/internal/storage"
	"github.com/eddiefleurent/tradeledger/internal/strategy"
)

func main() {
	var (
		configPath string
		account    string
		inputPath  string
		save       bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&account, "account", "", "Account to rebuild (required)")
	flag.StringVar(&inputPath, "input", "", "JSON file of raw transactions instead of the live feed")
	flag.BoolVar(&save, "save", false, "Persist the rebuilt snapshot to storage")
	flag.Parse()

	if account == "" {
		log.Fatal("-account is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stderr, "[REPROCESS] ", log.LstdFlags)

	var source feed.Source
	if inputPath != "" {
		mock := feed.NewMockSource()
		if err := mock.LoadTransactionsFile(inputPath); err != nil {
			logger.Fatalf("Failed to load transactions: %v", err)
		}
		source = mock
	} else {
		source = feed.NewCircuitBreakerSource(feed.NewClient(cfg.Feed.APIKey, cfg.Feed.APIEndpoint))
	}

	rules := strategy.DefaultRules()
	if cfg.Strategy.RulesPath != "" {
		rules, err = strategy.LoadRulesFile(cfg.Strategy.RulesPath)
		if err != nil {
			logger.Fatalf("Failed to load strategy rules: %v", err)
		}
	}

	engine := ledger.NewEngine(ledger.Config{
		RollWindow:       cfg.RollWindow(),
		PairWindow:       cfg.PairWindow(),
		MinCoverageRatio: cfg.Matching.MinCoverageRatio,
	}, strategy.NewClassifier(rules), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	since := time.Time{}
	if w := cfg.HistoryWindow(); w > 0 && inputPath == "" {
		since = time.Now().UTC().Add(-w)
	}

	txns, err := source.FetchTransactions(ctx, account, since)
	if err != nil {
		logger.Fatalf("Failed to fetch transactions: %v", err)
	}

	res, err := engine.Rebuild(account, txns)
	if err != nil {
		logger.Fatalf("Rebuild failed: %v", err)
	}

	printResult(res)

	if save {
		store, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			logger.Fatalf("Failed to open storage: %v", err)
		}
		if err := store.SaveResult(res); err != nil {
			logger.Fatalf("Failed to save snapshot: %v", err)
		}
		logger.Printf("Snapshot saved to %s", cfg.Storage.Path)
	}
}

func printResult(res *ledger.Result) {
	fmt.Printf("Account %s: %d orders, %d lots, %d chains\n",
		res.Account, len(res.Orders), len(res.Lots), len(res.Chains))
	fmt.Println()

	for _, c := range res.Chains {
		fmt.Printf("  %-12s %-22s %-9s legs=%d qty=%.0f/%.0f pnl=$%.2f\n",
			c.Underlying, c.Strategy, c.Status, c.LegCount,
			c.RemainingQuantity, c.OriginalQuantity, c.RealizedPnL)
	}

	fmt.Println()
	fmt.Printf("Chains: %d open, %d closed, win rate %.0f%%, realized P&L $%.2f\n",
		res.Stats.ChainsOpen, res.Stats.ChainsClosed, res.Stats.WinRate*100, res.Stats.RealizedPnL)

	if len(res.Issues) == 0 {
		fmt.Println("Reconciliation: clean")
		return
	}
	fmt.Printf("Reconciliation: %d issues\n", len(res.Issues))
	for _, issue := range res.Issues {
		fmt.Printf("  [%s] %s\n", issue.Kind, issue.Detail)
	}
}
