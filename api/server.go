package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/internal/executor"
	"github.com/cwarner/sniper/internal/monitor"
	"github.com/cwarner/sniper/internal/repository"
	"github.com/cwarner/sniper/internal/watcher"
	"github.com/cwarner/sniper/pkg/models"
)

type trader interface {
	Execute(ctx context.Context, req executor.Request) (*models.TradeResult, error)
}

type store interface {
	GetTradeConfig(ctx context.Context) (*models.TradeConfig, error)
	TradeHistory(ctx context.Context, f repository.TradeFilter) ([]models.Trade, int64, error)
}

type monitorStatus interface {
	Status() monitor.Status
}

type watcherStatus interface {
	Status() watcher.Status
}

type Server struct {
	trader  trader
	store   store
	monitor monitorStatus
	watcher watcherStatus
	logger  *logrus.Logger
	port    string
	secret  string

	httpServer *http.Server
}

func NewServer(trader trader, store store, monitor monitorStatus, watcher watcherStatus, logger *logrus.Logger, port, authSecret string) *Server {
	return &Server{
		trader:  trader,
		store:   store,
		monitor: monitor,
		watcher: watcher,
		logger:  logger,
		port:    port,
		secret:  authSecret,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/trade/execute", s.requireAuth(s.handleTradeExecute))
	mux.HandleFunc("/api/config", s.requireAuth(s.handleConfig))
	mux.HandleFunc("/api/trades", s.requireAuth(s.handleTrades))
	mux.HandleFunc("/api/monitor/status", s.requireAuth(s.handleMonitorStatus))
	mux.Handle("/metrics", promhttp.Handler())

	handler := corsMiddleware(mux)

	s.httpServer = &http.Server{
		Addr:              ":" + s.port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("Starting API server on port %s", s.port)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"stream":    s.watcher.Status().StreamState,
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

type executeRequest struct {
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	QuoteAmount decimal.Decimal `json:"quoteAmount"`
	Quantity    decimal.Decimal `json:"quantity"`
	RefPrice    decimal.Decimal `json:"refPrice"`
}

func (s *Server) handleTradeExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	side := models.TradeSide(req.Side)
	switch side {
	case models.SideBuy, models.SideSell:
	default:
		http.Error(w, "side must be buy or sell", http.StatusBadRequest)
		return
	}
	if side == models.SideBuy && !req.QuoteAmount.IsPositive() {
		http.Error(w, "quoteAmount must be positive for buys", http.StatusBadRequest)
		return
	}
	if side == models.SideSell && !req.Quantity.IsPositive() {
		http.Error(w, "quantity must be positive for sells", http.StatusBadRequest)
		return
	}

	result, err := s.trader.Execute(r.Context(), executor.Request{
		Symbol:      req.Symbol,
		Side:        side,
		QuoteAmount: req.QuoteAmount,
		Quantity:    req.Quantity,
		RefPrice:    req.RefPrice,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := s.store.GetTradeConfig(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := repository.TradeFilter{
		Mode:   models.TradeMode(q.Get("mode")),
		Status: models.TradeStatus(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	trades, total, err := s.store.TradeHistory(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"total":  total,
	})
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"watcher": s.watcher.Status(),
		"monitor": s.monitor.Status(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
