// Package api exposes the reconstructed ledger to UI and reporting layers
// as a read-only HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/tradeledger/internal/feed"
	"github.com/eddiefleurent/tradeledger/internal/ledger"
	"github.com/eddiefleurent/tradeledger/internal/models"
	"github.com/eddiefleurent/tradeledger/internal/storage"
)

// Server serves the read-only ledger API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	quotes    feed.QuoteSource
	logger    *logrus.Logger
	port      int
	authToken string
}

// Config holds the server settings.
type Config struct {
	Port      int
	AuthToken string
}

// ChainView is the list-endpoint projection of a chain, optionally enriched
// with open P&L. OpenPnL is nil when any open lot has no available mark.
type ChainView struct {
	models.OrderChain
	OpenPnL *float64 `json:"open_pnl,omitempty"`
}

// NewServer creates the API server over storage and an optional quote
// source (nil disables open P&L enrichment).
func NewServer(cfg Config, store storage.Interface, quotes feed.QuoteSource, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		quotes:    quotes,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/chains", s.handleListChains)
		r.Get("/chains/{chainID}", s.handleChainDetail)
		r.Get("/reconciliation", s.handleReconciliation)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != s.authToken {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("port", s.port).Info("ledger API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		s.writeError(w, http.StatusBadRequest, "account query parameter is required")
		return
	}

	filter := storage.ChainFilter{
		Underlying:  r.URL.Query().Get("underlying"),
		Status:      models.ChainStatus(r.URL.Query().Get("status")),
		OptionsOnly: r.URL.Query().Get("options_only") == "true",
	}

	chains := s.storage.ListChains(account, filter)
	views := make([]ChainView, 0, len(chains))
	for _, c := range chains {
		views = append(views, ChainView{OrderChain: c, OpenPnL: s.openPnL(r.Context(), account, &c)})
	}
	s.writeJSON(w, http.StatusOK, views)
}

// openPnL sums open P&L over the chain's open lots. A single missing mark
// makes the whole figure unknown rather than misleadingly partial.
func (s *Server) openPnL(ctx context.Context, account string, chain *models.OrderChain) *float64 {
	if s.quotes == nil {
		return nil
	}
	snap := s.storage.GetSnapshot(account)
	if snap == nil {
		return nil
	}
	var total float64
	found := false
	for _, lot := range snap.Lots {
		if lot.ChainID != chain.ID || lot.RemainingQuantity == 0 {
			continue
		}
		mark, err := s.quotes.GetMark(ctx, lot.Symbol)
		if err != nil {
			if !errors.Is(err, feed.ErrNoQuote) {
				s.logger.WithError(err).WithField("symbol", lot.Symbol).Warn("quote lookup failed")
			}
			return nil
		}
		total += ledger.OpenPnL(&lot, mark)
		found = true
	}
	if !found {
		return nil
	}
	return &total
}

func (s *Server) handleChainDetail(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainID")
	detail, err := s.storage.GetChainDetail(chainID)
	if err != nil {
		if errors.Is(err, storage.ErrChainNotFound) {
			s.writeError(w, http.StatusNotFound, "chain not found")
			return
		}
		s.logger.WithError(err).Error("chain detail lookup failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		s.writeError(w, http.StatusBadRequest, "account query parameter is required")
		return
	}
	issues := s.storage.Issues(account)
	if issues == nil {
		issues = []models.Issue{}
	}
	s.writeJSON(w, http.StatusOK, issues)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
