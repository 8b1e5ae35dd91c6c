// Package dashboard serves a read-only JSON view of the ledger: positions,
// their trade history, and the portfolio analytics roll-up.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kirkhalloran/oraclepm/internal/analytics"
	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/storage"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     storage.Interface
	engine    *analytics.Engine
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// PositionView is the JSON shape of one position plus its analytics row.
type PositionView struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Strategy     string    `json:"strategy"`
	Status       string    `json:"status"`
	Contracts    int       `json:"contracts"`
	Strike       float64   `json:"strike"`
	Expiration   string    `json:"expiration"`
	EntryDate    time.Time `json:"entry_date"`
	EntryPrice   float64   `json:"entry_price"`
	Mark         float64   `json:"mark"`
	NetPremium   float64   `json:"net_premium"`
	DTE          int       `json:"dte"`
	AgeDays      int       `json:"age_days"`
	PL           float64   `json:"pl"`
	ReturnPct    float64   `json:"return_pct"`
	AnnReturnPct float64   `json:"ann_return_pct"`
	IVChangePct  float64   `json:"iv_change_pct"`
	Delta        float64   `json:"delta"`
	ExposurePct  float64   `json:"exposure_pct"`
	RulesPassing bool      `json:"rules_passing"`
	IsProfit     bool      `json:"is_profit"`
}

type TradeView struct {
	ID          string    `json:"id"`
	TradeTime   time.Time `json:"trade_time"`
	Action      string    `json:"action"`
	Contracts   int       `json:"contracts"`
	Price       float64   `json:"price"`
	Commissions float64   `json:"commissions"`
	Fees        float64   `json:"fees"`
	Note        string    `json:"note,omitempty"`
}

func NewServer(cfg Config, store storage.Interface, engine *analytics.Engine, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		engine:    engine,
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

	s.router.Get("/api/positions", s.handleListPositions)
	s.router.Get("/api/positions/{id}", s.handleGetPosition)
	s.router.Get("/api/positions/{id}/trades", s.handleListTrades)
	s.router.Get("/api/summary", s.handleSummary)
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

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	var (
		positions []models.Position
		err       error
	)
	if r.URL.Query().Get("all") == "true" {
		positions, err = s.store.ListPositions(r.Context())
	} else {
		positions, err = s.store.ListMutablePositions(r.Context())
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to list positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		views = append(views, s.toView(&positions[i], now))
	}
	s.writeJSON(w, views)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pos, err := s.store.GetPosition(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrPositionNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Error("Failed to get position")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, s.toView(pos, time.Now().UTC()))
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetPosition(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrPositionNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Error("Failed to get position")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	trades, err := s.store.ListTrades(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list trades")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	views := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, TradeView{
			ID:          t.ID,
			TradeTime:   t.TradeTime,
			Action:      string(t.Action),
			Contracts:   t.Contracts,
			Price:       t.Price,
			Commissions: t.Commissions,
			Fees:        t.Fees,
			Note:        t.Note,
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListMutablePositions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	report := s.engine.Analyze(positions, time.Now().UTC())
	s.writeJSON(w, report.Summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	marketStatus := "closed"
	if isMarketOpen(time.Now()) {
		marketStatus = "open"
	}
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"market":    marketStatus,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) toView(pos *models.Position, now time.Time) PositionView {
	row := s.engine.AnalyzePosition(pos, now)
	return PositionView{
		ID:           pos.ID,
		Symbol:       pos.Symbol,
		Strategy:     string(pos.Strategy),
		Status:       string(pos.Status),
		Contracts:    pos.Contracts,
		Strike:       pos.Strike,
		Expiration:   pos.Expiration.Format("2006-01-02"),
		EntryDate:    pos.EntryDate,
		EntryPrice:   pos.EntryPrice,
		Mark:         pos.Mark,
		NetPremium:   pos.NetPremium(),
		DTE:          row.DTE,
		AgeDays:      row.AgeDays,
		PL:           row.PL,
		ReturnPct:    row.ReturnPct,
		AnnReturnPct: row.AnnReturnPct,
		IVChangePct:  row.IVChangePct,
		Delta:        pos.Delta,
		ExposurePct:  row.ExposurePct,
		RulesPassing: row.Rules.Passing(),
		IsProfit:     row.PL > 0,
	}
}

func isMarketOpen(now time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return false
	}
	nyTime := now.In(loc)

	if nyTime.Weekday() == time.Saturday || nyTime.Weekday() == time.Sunday {
		return false
	}

	totalMinutes := nyTime.Hour()*60 + nyTime.Minute()
	marketOpen := 9*60 + 30
	marketClose := 16 * 60
	return totalMinutes >= marketOpen && totalMinutes < marketClose
}
