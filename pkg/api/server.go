// Package api serves the relay's observability surface: REST endpoints
// for books, stats and recent trades, plus a WebSocket feed of executed
// trades. It only reads relay state; orders enter through the TCP line
// protocol, never through HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/jmoon-dev/greenwire/pkg/relay"
	"github.com/jmoon-dev/greenwire/pkg/storage"
	"github.com/jmoon-dev/greenwire/pkg/wire"
)

// StatsSource is the relay-side counter view the API reads.
type StatsSource interface {
	Snapshot() relay.Snapshot
}

// TradeSource serves the recent-trades endpoint. Nil when the tape is
// disabled.
type TradeSource interface {
	Recent(n int) ([]storage.TradeEntry, error)
}

// Server handles the REST API and WebSocket connections.
type Server struct {
	stats  StatsSource
	trades TradeSource
	router *mux.Router
	hub    *Hub
}

func NewServer(stats StatsSource, trades TradeSource) *Server {
	s := &Server{
		stats:  stats,
		trades: trades,
		router: mux.NewRouter(),
		hub:    NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/books", s.handleGetBooks).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves HTTP on addr. It blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleGetBooks(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()

	// Stable wire order, zero counts included.
	books := make([]BookInfo, 0, len(wire.Products))
	for _, p := range wire.Products {
		b := snap.Books[p.String()]
		books = append(books, BookInfo{Product: p.String(), Buys: b.Buys, Sells: b.Sells})
	}
	respondJSON(w, books)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.stats.Snapshot())
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	if s.trades == nil {
		respondError(w, http.StatusNotFound, "trade log disabled", "")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = n
	}

	entries, err := s.trades.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trade log read failed", err.Error())
		return
	}

	trades := make([]TradeInfo, len(entries))
	for i, e := range entries {
		trades[i] = TradeInfo{Seq: e.Seq, Product: e.Product, Timestamp: e.Time}
	}
	respondJSON(w, trades)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// BroadcastTrade pushes an executed trade to every WebSocket observer.
// Called from the relay's OnTrade hook.
func (s *Server) BroadcastTrade(product string) {
	s.hub.BroadcastJSON(WSTradeUpdate{
		Type:      "trade",
		Product:   product,
		Timestamp: time.Now().UnixMilli(),
	})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
