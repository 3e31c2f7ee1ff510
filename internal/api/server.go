// Package api exposes the game engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"

	"github.com/MJE43/rps-commit-reveal/internal/game"
)

var log = logging.Logger("api")

// Store is the part of the persistence backend the API reads directly.
type Store interface {
	Ping(ctx context.Context) error
	Events(ctx context.Context, gameID uint64) ([]game.Event, error)
}

// Options tunes the HTTP surface.
type Options struct {
	TokenName        string
	RequestTimeout   time.Duration
	IdempotencyCache int
	CORSOrigins      []string
}

// Server handles HTTP requests
type Server struct {
	engine       *game.Manager
	store        Store
	errorHandler *ErrorHandler
	idempotency  *idempotency
	opts         Options
	startTime    time.Time
}

// NewServer creates a new API server. store may be nil, in which case events
// are served from the engine's memory and readiness skips the storage check.
func NewServer(engine *game.Manager, store Store, opts Options) (*Server, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.CORSOrigins == nil {
		opts.CORSOrigins = []string{"*"}
	}
	idem, err := newIdempotency(opts.IdempotencyCache)
	if err != nil {
		return nil, err
	}
	return &Server{
		engine:       engine,
		store:        store,
		errorHandler: NewErrorHandler(),
		idempotency:  idem,
		opts:         opts,
		startTime:    time.Now(),
	}, nil
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.idempotency.Middleware)

		r.Post("/hash", s.handleHash)
		r.Get("/config", s.handleConfig)

		r.Post("/games", s.handleCreateGame)
		r.Get("/games", s.handleListGames)
		r.Post("/commit", s.handleCommitMove)
		r.Post("/reveal", s.handleRevealLast)
		r.Route("/games/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetGame)
			r.Post("/commit", s.handleCommit)
			r.Post("/reveal", s.handleReveal)
			r.Post("/cancel", s.handleCancel)
			r.Post("/forfeit", s.handleForfeit)
			r.Get("/winner", s.handleWinner)
			r.Get("/events", s.handleEvents)
		})

		r.Get("/counter", s.handleCounter)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/jackpot", s.handleJackpot)
		r.Get("/players/{addr}", s.handlePlayer)

		r.Route("/token", func(r chi.Router) {
			r.Post("/mint", s.handleMint)
			r.Post("/approve", s.handleApprove)
			r.Get("/balance/{addr}", s.handleBalance)
			r.Get("/allowance/{owner}/{spender}", s.handleAllowance)
		})
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorw("encode response", "err", err)
	}
}
