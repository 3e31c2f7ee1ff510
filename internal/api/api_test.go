package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/store"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

type testServer struct {
	srv     *Server
	handler http.Handler
	engine  *game.Manager
	clk     *clock.Mock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := game.DefaultConfig()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	backend := store.NewMemory()
	engine, err := game.NewManager(cfg, token.NewMemoryLedger("RPS", cfg.TokenLedgerAddress),
		game.WithClock(clk), game.WithPersister(backend))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	srv, err := NewServer(engine, backend, Options{TokenName: "RPS", IdempotencyCache: 16})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testServer{srv: srv, handler: srv.Routes(), engine: engine, clk: clk}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}

func (ts *testServer) fund(t *testing.T, accounts ...string) {
	t.Helper()
	for _, a := range accounts {
		expectStatus(t, ts.do(t, "POST", "/api/v1/token/mint", MintRequest{To: a, Amount: decimal.NewFromInt(1000)}), http.StatusOK)
		expectStatus(t, ts.do(t, "POST", "/api/v1/token/approve", ApproveRequest{Owner: a, Amount: decimal.NewFromInt(1000)}), http.StatusOK)
	}
}

type secret struct {
	move  string
	nonce commit.Nonce
	hash  string
}

func newSecret(t *testing.T, move commit.Move) secret {
	t.Helper()
	n, err := commit.NewNonce()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	return secret{move: move.String(), nonce: n, hash: commit.HashMove(move, n).Hex()}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/health", "/health/ready", "/health/live", "/version"} {
		w := ts.do(t, "GET", path, nil)
		expectStatus(t, w, http.StatusOK)
		if w.Header().Get("X-Engine-Version") == "" {
			t.Errorf("%s: missing X-Engine-Version", path)
		}
	}

	var health HealthCheckResponse
	decodeBody(t, ts.do(t, "GET", "/health", nil), &health)
	if health.Status != HealthStatusHealthy {
		t.Fatalf("health = %s, checks %+v", health.Status, health.Checks)
	}
}

func TestHashEndpointMatchesCommitPackage(t *testing.T) {
	ts := newTestServer(t)
	nonce, _ := commit.NewNonce()
	w := ts.do(t, "POST", "/api/v1/hash", HashRequest{Move: "scissors", Nonce: nonce.Hex()})
	expectStatus(t, w, http.StatusOK)

	var resp HashResponse
	decodeBody(t, w, &resp)
	if resp.Hash != commit.HashMove(commit.Scissors, nonce) {
		t.Fatalf("hash mismatch: %s", resp.Hash.Hex())
	}

	w = ts.do(t, "POST", "/api/v1/hash", HashRequest{Move: "lizard", Nonce: nonce.Hex()})
	expectStatus(t, w, http.StatusBadRequest)
	if got := w.Header().Get("X-Error-Type"); got != ErrTypeValidation {
		t.Fatalf("error type = %q", got)
	}
}

func TestFullGameOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.fund(t, "alice", "bob")

	w := ts.do(t, "POST", "/api/v1/games", CreateGameRequest{PlayerA: "alice", PlayerB: "bob"})
	expectStatus(t, w, http.StatusCreated)
	var g game.Game
	decodeBody(t, w, &g)
	base := fmt.Sprintf("/api/v1/games/%d", g.ID)

	sa, sb := newSecret(t, commit.Rock), newSecret(t, commit.Scissors)
	expectStatus(t, ts.do(t, "POST", base+"/commit", CommitRequest{Player: "alice", Hash: sa.hash}), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", base+"/commit", CommitRequest{Player: "bob", Hash: sb.hash}), http.StatusOK)

	// winner is not available before settlement
	w = ts.do(t, "GET", base+"/winner", nil)
	expectStatus(t, w, http.StatusConflict)
	if got := w.Header().Get("X-Error-Type"); got != ErrTypeGameNotSettled {
		t.Fatalf("error type = %q", got)
	}

	// wrong nonce is a hash mismatch and leaves the game untouched
	other, _ := commit.NewNonce()
	w = ts.do(t, "POST", base+"/reveal", RevealRequest{Player: "alice", Move: sa.move, Nonce: other.Hex()})
	expectStatus(t, w, http.StatusBadRequest)
	if got := w.Header().Get("X-Error-Type"); got != ErrTypeHashMismatch {
		t.Fatalf("error type = %q", got)
	}

	expectStatus(t, ts.do(t, "POST", base+"/reveal", RevealRequest{Player: "alice", Move: sa.move, Nonce: sa.nonce.Hex()}), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", "/api/v1/reveal", RevealRequest{Player: "bob", Move: sb.move, Nonce: sb.nonce.Hex()}), http.StatusOK)

	var winner game.WinnerResult
	w = ts.do(t, "GET", base+"/winner", nil)
	expectStatus(t, w, http.StatusOK)
	decodeBody(t, w, &winner)
	if winner.Winner != "alice" || winner.Draw {
		t.Fatalf("winner = %+v", winner)
	}

	var bal BalanceResponse
	decodeBody(t, ts.do(t, "GET", "/api/v1/token/balance/alice", nil), &bal)
	if !bal.Balance.Equal(decimal.NewFromInt(1099)) {
		t.Fatalf("alice balance = %s", bal.Balance)
	}

	var jp JackpotResponse
	decodeBody(t, ts.do(t, "GET", "/api/v1/jackpot", nil), &jp)
	if !jp.Jackpot.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("jackpot = %s", jp.Jackpot)
	}

	var lb LeaderboardResponse
	decodeBody(t, ts.do(t, "GET", "/api/v1/leaderboard", nil), &lb)
	if len(lb.Standings) != 1 || lb.Standings[0].Account != "alice" || lb.Standings[0].Wins != 1 {
		t.Fatalf("leaderboard = %+v", lb.Standings)
	}

	var events EventsResponse
	decodeBody(t, ts.do(t, "GET", base+"/events", nil), &events)
	if len(events.Events) == 0 || events.Events[len(events.Events)-1].Type != game.EventGameSettled {
		t.Fatalf("events = %+v", events.Events)
	}

	var counter CounterResponse
	decodeBody(t, ts.do(t, "GET", "/api/v1/counter", nil), &counter)
	if counter.GameCounter != 1 {
		t.Fatalf("counter = %d", counter.GameCounter)
	}

	var p PlayerResponse
	decodeBody(t, ts.do(t, "GET", "/api/v1/players/alice", nil), &p)
	if p.ConsecutiveWins != 1 || p.TotalWins != 1 {
		t.Fatalf("player = %+v", p)
	}
}

func TestMatchmakingOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.fund(t, "alice", "bob")

	sa, sb := newSecret(t, commit.Paper), newSecret(t, commit.Paper)
	w := ts.do(t, "POST", "/api/v1/commit", CommitRequest{Player: "alice", Hash: sa.hash})
	expectStatus(t, w, http.StatusOK)
	var g game.Game
	decodeBody(t, w, &g)
	if g.Phase != game.PhaseCreated {
		t.Fatalf("phase = %s", g.Phase)
	}

	var counter CounterResponse
	decodeBody(t, ts.do(t, "GET", "/api/v1/counter", nil), &counter)
	if counter.OpenGame != g.ID {
		t.Fatalf("open game = %d, want %d", counter.OpenGame, g.ID)
	}

	w = ts.do(t, "POST", "/api/v1/commit", CommitRequest{Player: "bob", Hash: sb.hash})
	expectStatus(t, w, http.StatusOK)
	decodeBody(t, w, &g)
	if g.Phase != game.PhaseReveal {
		t.Fatalf("phase after join = %s", g.Phase)
	}

	expectStatus(t, ts.do(t, "POST", "/api/v1/reveal", RevealRequest{Player: "alice", Move: sa.move, Nonce: sa.nonce.Hex()}), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", "/api/v1/reveal", RevealRequest{Player: "bob", Move: sb.move, Nonce: sb.nonce.Hex()}), http.StatusOK)

	var winner game.WinnerResult
	decodeBody(t, ts.do(t, "GET", fmt.Sprintf("/api/v1/games/%d/winner", g.ID), nil), &winner)
	if !winner.Draw {
		t.Fatalf("expected draw, got %+v", winner)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.fund(t, "alice")

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		status   int
		wantType string
	}{
		{"unknown game", "GET", "/api/v1/games/42", nil, http.StatusNotFound, ErrTypeGameNotFound},
		{"bad id", "GET", "/api/v1/games/abc", nil, http.StatusBadRequest, ErrTypeValidation},
		{"same player twice", "POST", "/api/v1/games", CreateGameRequest{PlayerA: "alice", PlayerB: "alice"}, http.StatusBadRequest, ErrTypeDuplicateParticipant},
		{"unfunded opponent", "POST", "/api/v1/games", CreateGameRequest{PlayerA: "alice", PlayerB: "carol"}, http.StatusPaymentRequired, ErrTypeInsufficientAllowance},
		{"missing player", "POST", "/api/v1/commit", CommitRequest{Hash: "0x" + strings.Repeat("ab", 32)}, http.StatusBadRequest, ErrTypeValidation},
		{"short hash", "POST", "/api/v1/commit", CommitRequest{Player: "alice", Hash: "0x1234"}, http.StatusBadRequest, ErrTypeValidation},
		{"unknown field", "POST", "/api/v1/games", map[string]string{"player": "alice"}, http.StatusBadRequest, ErrTypeValidation},
		{"zero mint", "POST", "/api/v1/token/mint", MintRequest{To: "alice", Amount: decimal.Zero}, http.StatusBadRequest, ErrTypeInvalidAmount},
		{"bad phase filter", "GET", "/api/v1/games?phase=bogus", nil, http.StatusBadRequest, ErrTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.body)
			expectStatus(t, w, tt.status)
			var ee EngineError
			decodeBody(t, w, &ee)
			if ee.Type != tt.wantType {
				t.Fatalf("type = %q, want %q", ee.Type, tt.wantType)
			}
			if ee.RequestID == "" {
				t.Errorf("missing request id")
			}
		})
	}
}

func TestForfeitDeadlineOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.fund(t, "alice", "bob")
	g, err := ts.engine.CreateGame(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	base := fmt.Sprintf("/api/v1/games/%d", g.ID)
	sa, sb := newSecret(t, commit.Rock), newSecret(t, commit.Paper)
	expectStatus(t, ts.do(t, "POST", base+"/commit", CommitRequest{Player: "alice", Hash: sa.hash}), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", base+"/commit", CommitRequest{Player: "bob", Hash: sb.hash}), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", base+"/reveal", RevealRequest{Player: "alice", Move: sa.move, Nonce: sa.nonce.Hex()}), http.StatusOK)

	w := ts.do(t, "POST", base+"/forfeit", PlayerRequest{Player: "alice"})
	expectStatus(t, w, http.StatusTooEarly)

	ts.clk.Add(ts.engine.Config().RevealTimeout + time.Second)
	w = ts.do(t, "POST", base+"/forfeit", PlayerRequest{Player: "alice"})
	expectStatus(t, w, http.StatusOK)
	decodeBody(t, w, &g)
	if g.Outcome != game.OutcomeForfeit || g.Winner != "alice" {
		t.Fatalf("game = %+v", g)
	}
}

func TestIdempotentReplay(t *testing.T) {
	ts := newTestServer(t)
	body := MintRequest{To: "alice", Amount: decimal.NewFromInt(10)}

	first := ts.do(t, "POST", "/api/v1/token/mint", body, IdempotencyHeader, "mint-1")
	expectStatus(t, first, http.StatusOK)
	second := ts.do(t, "POST", "/api/v1/token/mint", body, IdempotencyHeader, "mint-1")
	expectStatus(t, second, http.StatusOK)
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("second request was not replayed")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", first.Body.String(), second.Body.String())
	}
	if got := ts.engine.BalanceOf("alice"); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("mint applied twice: balance %s", got)
	}

	expectStatus(t, ts.do(t, "POST", "/api/v1/token/mint", body, IdempotencyHeader, "mint-2"), http.StatusOK)
	if got := ts.engine.BalanceOf("alice"); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("distinct key not applied: balance %s", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.fund(t, "alice", "bob")
	if _, err := ts.engine.CreateGame(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	w := ts.do(t, "GET", "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	var out map[string]map[string]interface{}
	decodeBody(t, w, &out)
	created, ok := out["rps.games.created"]
	if !ok {
		t.Fatalf("metrics missing rps.games.created: %v", out)
	}
	if created["count"].(float64) != 1 {
		t.Fatalf("games created = %v", created["count"])
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "OPTIONS", "/api/v1/games", nil, "Origin", "http://localhost:3000")
	expectStatus(t, w, http.StatusOK)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestUserAgent(t *testing.T) {
	old := GitCommit
	defer func() { GitCommit = old }()

	GitCommit = "0123456789abcdef"
	if got, want := UserAgent("rps-client"), "rps-client/"+EngineVersion+" (0123456)"; got != want {
		t.Fatalf("UserAgent = %q, want %q", got, want)
	}
	GitCommit = "dev"
	if got := UserAgent("rpsd"); got != "rpsd/"+EngineVersion+" (dev)" {
		t.Fatalf("UserAgent = %q", got)
	}
}
