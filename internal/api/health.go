package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rcrowley/go-metrics"
	"github.com/shopspring/decimal"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse is the body of GET /health.
type HealthCheckResponse struct {
	Status    HealthStatus           `json:"status"`
	CheckedAt time.Time              `json:"checked_at"`
	Uptime    string                 `json:"uptime"`
	Build     VersionInfo            `json:"build"`
	Checks    map[string]HealthCheck `json:"checks"`
	Engine    EngineSnapshot         `json:"engine"`
	Runtime   RuntimeSnapshot        `json:"runtime"`
	RequestID string                 `json:"request_id,omitempty"`
}

type HealthCheck struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Took    string       `json:"took"`
}

// EngineSnapshot summarises the game engine for operators.
type EngineSnapshot struct {
	GameCounter uint64          `json:"game_counter"`
	OpenGame    uint64          `json:"open_game,omitempty"`
	Jackpot     decimal.Decimal `json:"jackpot"`
	Escrowed    decimal.Decimal `json:"escrowed"`
	TotalSupply decimal.Decimal `json:"total_supply"`
}

type RuntimeSnapshot struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

type probeResponse struct {
	OK        bool      `json:"ok"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Uptime    string    `json:"uptime,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// runChecks probes every dependency and folds them into one status. Any
// unhealthy check makes the whole service unhealthy.
func (s *Server) runChecks(ctx context.Context) (HealthStatus, map[string]HealthCheck) {
	checks := map[string]HealthCheck{
		"engine":  timed(s.checkEngine),
		"storage": timed(func() (HealthStatus, string) { return s.checkStorage(ctx) }),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		if c.Status == HealthStatusUnhealthy {
			return HealthStatusUnhealthy, checks
		}
		if c.Status == HealthStatusDegraded {
			overall = HealthStatusDegraded
		}
	}
	return overall, checks
}

func timed(fn func() (HealthStatus, string)) HealthCheck {
	start := time.Now()
	status, msg := fn()
	return HealthCheck{Status: status, Message: msg, Took: time.Since(start).String()}
}

func (s *Server) checkEngine() (HealthStatus, string) {
	if s.engine == nil {
		return HealthStatusUnhealthy, "engine not initialized"
	}
	if s.engine.Ledger().Address() != s.engine.Config().TokenLedgerAddress {
		return HealthStatusUnhealthy, "token ledger address mismatch"
	}
	return HealthStatusHealthy, ""
}

func (s *Server) checkStorage(ctx context.Context) (HealthStatus, string) {
	if s.store == nil {
		return HealthStatusDegraded, "no durable storage attached"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		return HealthStatusUnhealthy, err.Error()
	}
	return HealthStatusHealthy, ""
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status, checks := s.runChecks(r.Context())
	code := http.StatusOK
	if status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	resp := HealthCheckResponse{
		Status:    status,
		CheckedAt: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Build:     GetVersionInfo(),
		Checks:    checks,
		Runtime:   runtimeSnapshot(),
		RequestID: middleware.GetReqID(r.Context()),
	}
	if s.engine != nil {
		cfg := s.engine.Config()
		resp.Engine = EngineSnapshot{
			GameCounter: s.engine.GameCounter(),
			Jackpot:     s.engine.Jackpot(),
			Escrowed:    s.engine.BalanceOf(cfg.EscrowAccount),
			TotalSupply: s.engine.Ledger().TotalSupply(),
		}
		if g, ok := s.engine.OpenGame(); ok {
			resp.Engine.OpenGame = g.ID
		}
	}
	s.writeJSON(w, code, resp)
}

// handleReadiness succeeds once the engine is wired and storage answers.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, checks := s.runChecks(r.Context())
	resp := probeResponse{
		OK:        status != HealthStatusUnhealthy,
		CheckedAt: time.Now().UTC(),
		RequestID: middleware.GetReqID(r.Context()),
	}
	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
		for name, c := range checks {
			if c.Status == HealthStatusUnhealthy {
				resp.Message = name + ": " + c.Message
			}
		}
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, probeResponse{
		OK:        true,
		CheckedAt: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// handleMetrics dumps the engine's go-metrics registry as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	metrics.WriteJSONOnce(s.engine.Metrics().Registry(), w)
}

func runtimeSnapshot() RuntimeSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeSnapshot{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		NumGC:      m.NumGC,
	}
}
