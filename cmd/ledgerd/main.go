// Command ledgerd runs the ledger service: it periodically fetches account
// transaction history, rebuilds each account's ledger, and serves the
// read-only API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/tradeledger/internal/api"
	"github.com/eddiefleurent/tradeledger/internal/config"
	"github.com/eddiefleurent/tradeledger/internal/feed"
	"github.com/eddiefleurent/tradeledger/internal/ledger"
	"github.com/eddiefleurent/tradeledger/internal/storage"
	"github.com/eddiefleurent/tradeledger/internal/strategy"
)

const syncTimeout = 5 * time.Minute

type service struct {
	cfg     *config.Config
	engine  *ledger.Engine
	source  feed.Source
	storage storage.Interface
	logger  *log.Logger
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[LEDGER] ", log.LstdFlags|log.Lshortfile)

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}

	rules := strategy.DefaultRules()
	if cfg.Strategy.RulesPath != "" {
		rules, err = strategy.LoadRulesFile(cfg.Strategy.RulesPath)
		if err != nil {
			logger.Fatalf("Failed to load strategy rules: %v", err)
		}
	}

	source := feed.NewCircuitBreakerSource(feed.NewClient(cfg.Feed.APIKey, cfg.Feed.APIEndpoint))
	engine := ledger.NewEngine(ledger.Config{
		RollWindow:       cfg.RollWindow(),
		PairWindow:       cfg.PairWindow(),
		MinCoverageRatio: cfg.Matching.MinCoverageRatio,
	}, strategy.NewClassifier(rules), logger)

	svc := &service{
		cfg:     cfg,
		engine:  engine,
		source:  source,
		storage: store,
		logger:  logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	scheduler := cron.New()
	if cfg.Sync.Schedule != "" {
		if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() { svc.syncAll(ctx) }); err != nil {
			logger.Fatalf("Invalid sync schedule %q: %v", cfg.Sync.Schedule, err)
		}
		scheduler.Start()
		logger.Printf("Sync scheduled: %s", cfg.Sync.Schedule)
	}
	if cfg.Sync.OnStart {
		go svc.syncAll(ctx)
	}

	apiLogger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		apiLogger.SetLevel(lvl)
	}
	server := api.NewServer(api.Config{Port: cfg.API.Port, AuthToken: cfg.API.AuthToken},
		store, source, apiLogger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case <-sigChan:
		logger.Println("Shutdown signal received, stopping...")
	case err := <-serverErr:
		if err != nil {
			logger.Printf("API server error: %v", err)
		}
	}

	cancel()
	stopCtx := scheduler.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API shutdown error: %v", err)
	}
	<-stopCtx.Done()
	logger.Println("Stopped")
}

// syncAll rebuilds every configured account. Accounts are independent, so
// they rebuild concurrently; a failure in one does not block the others.
func (s *service) syncAll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	since := time.Time{}
	if w := s.cfg.HistoryWindow(); w > 0 {
		since = time.Now().UTC().Add(-w)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, account := range s.cfg.Accounts {
		account := account
		g.Go(func() error {
			return s.syncAccount(ctx, account, since)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Printf("Sync finished with errors: %v", err)
		return
	}
	s.logger.Printf("Sync finished for %d accounts", len(s.cfg.Accounts))
}

func (s *service) syncAccount(ctx context.Context, account string, since time.Time) error {
	txns, err := s.source.FetchTransactions(ctx, account, since)
	if err != nil {
		s.logger.Printf("Account %s: fetch failed: %v", account, err)
		return err
	}

	res, err := s.engine.Rebuild(account, txns)
	if err != nil {
		s.logger.Printf("Account %s: rebuild failed: %v", account, err)
		return err
	}

	if err := s.storage.SaveResult(res); err != nil {
		s.logger.Printf("Account %s: save failed: %v", account, err)
		return err
	}

	s.logger.Printf("Account %s: %d transactions, %d chains, %d issues, realized P&L $%.2f",
		account, len(txns), res.Stats.ChainsTotal, res.Stats.IssueCount, res.Stats.RealizedPnL)
	return nil
}
