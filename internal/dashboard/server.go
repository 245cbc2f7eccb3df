// Package dashboard exposes the latest analytics snapshot over a small JSON
// HTTP API.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/jaewoongo/optfolio/internal/portfolio"
	"github.com/jaewoongo/optfolio/internal/snapshot"
)

// SnapshotSource is the read side of the snapshot store the server renders.
type SnapshotSource interface {
	Current() *snapshot.Snapshot
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	snapshots SnapshotSource
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// PortfolioView is the per-asset analytics response: the expiry-ordered
// position analytics plus portfolio-level aggregates.
type PortfolioView struct {
	Asset     string           `json:"asset"`
	RunID     string           `json:"runId"`
	FetchedAt time.Time        `json:"fetchedAt"`
	Expiries  portfolio.Result `json:"expiries"`
	Totals    portfolio.Totals `json:"totals"`
}

func NewServer(cfg Config, snapshots SnapshotSource, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		snapshots: snapshots,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/portfolio/{asset}", s.handleGetPortfolio)
	s.router.Get("/api/market", s.handleGetMarket)
	s.router.Get("/api/pool", s.handleGetPool)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Current()
	if snap == nil {
		http.Error(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	asset := chi.URLParam(r, "asset")
	result, ok := snap.Portfolios[asset]
	if !ok {
		http.Error(w, "Unknown asset", http.StatusNotFound)
		return
	}

	view := PortfolioView{
		Asset:     asset,
		RunID:     snap.RunID,
		FetchedAt: snap.FetchedAt,
		Expiries:  result,
		Totals:    result.Totals(),
	}
	s.writeJSON(w, view)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Current()
	if snap == nil {
		http.Error(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, map[string]any{
		"runId":     snap.RunID,
		"fetchedAt": snap.FetchedAt,
		"quotes":    snap.Quotes,
		"indices":   snap.Indices,
	})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Current()
	if snap == nil {
		http.Error(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, map[string]any{
		"runId":     snap.RunID,
		"fetchedAt": snap.FetchedAt,
		"pool":      snap.Pool,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	if snap := s.snapshots.Current(); snap != nil {
		health["lastRefresh"] = snap.FetchedAt.Unix()
	}

	s.writeJSON(w, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
