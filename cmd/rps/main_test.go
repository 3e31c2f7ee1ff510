package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/MJE43/rps-commit-reveal/internal/api"
	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/secrets"
	"github.com/MJE43/rps-commit-reveal/internal/store"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

func TestMain(m *testing.M) {
	pterm.DisableOutput()
	keyring.MockInit()
	os.Exit(m.Run())
}

type harness struct {
	t      *testing.T
	engine *game.Manager
	url    string
	vault  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := game.DefaultConfig()
	backend := store.NewMemory()
	engine, err := game.NewManager(cfg, token.NewMemoryLedger("RPS", cfg.TokenLedgerAddress), game.WithPersister(backend))
	require.NoError(t, err)
	srv, err := api.NewServer(engine, backend, api.Options{IdempotencyCache: 16})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &harness{t: t, engine: engine, url: ts.URL, vault: filepath.Join(t.TempDir(), "pending.json")}
}

func (h *harness) run(args ...string) error {
	h.t.Helper()
	root := newRootCmd()
	root.SetArgs(append([]string{"--daemon", h.url, "--vault-file", h.vault, "--keyring-service", "rps-cli-test", "--retries", "1"}, args...))
	return root.ExecuteContext(context.Background())
}

func TestPlayAndRevealFromVault(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("mint", "alice", "500"))
	require.NoError(t, h.run("mint", "bob", "500"))

	require.NoError(t, h.run("play", "rock", "--player", "alice"))
	require.NoError(t, h.run("play", "scissors", "--player", "bob"))

	v := secrets.NewVault("rps-cli-test", h.vault)
	p, err := v.Load("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.GameID)

	require.NoError(t, h.run("reveal", "--player", "alice"))
	require.NoError(t, h.run("reveal", "1", "--player", "bob"))

	_, err = v.Load("alice")
	require.ErrorIs(t, err, secrets.ErrNotFound)

	w, err := h.engine.GetWinner(1)
	require.NoError(t, err)
	require.Equal(t, "alice", w.Winner)
	require.True(t, h.engine.BalanceOf("alice").Equal(decimal.NewFromInt(599)))

	require.NoError(t, h.run("winner"))
	require.NoError(t, h.run("leaderboard"))
	require.NoError(t, h.run("game"))
	require.NoError(t, h.run("game", "1", "--events"))
	require.NoError(t, h.run("player", "alice"))
	require.NoError(t, h.run("jackpot"))
}

func TestRevealWithExplicitSecret(t *testing.T) {
	h := newHarness(t)
	for _, p := range []string{"alice", "bob"} {
		require.NoError(t, h.run("mint", p, "500"))
		require.NoError(t, h.run("approve", p, "100"))
	}
	require.NoError(t, h.run("create", "alice", "bob"))
	require.NoError(t, h.run("commit", "1", "paper", "--player", "alice"))
	require.NoError(t, h.run("commit", "1", "paper", "--player", "bob"))

	v := secrets.NewVault("rps-cli-test", h.vault)
	pa, err := v.Load("alice")
	require.NoError(t, err)
	pb, err := v.Load("bob")
	require.NoError(t, err)

	require.NoError(t, h.run("reveal", "1", "--player", "alice", "--move", "paper", "--nonce", pa.Nonce.Hex()))
	require.NoError(t, h.run("reveal", "--player", "bob", "--move", pb.Move.String(), "--nonce", pb.Nonce.Hex()))

	w, err := h.engine.GetWinner(1)
	require.NoError(t, err)
	require.True(t, w.Draw)
}

func TestCLIErrors(t *testing.T) {
	h := newHarness(t)

	require.Error(t, h.run("reveal", "--player", "nobody"))
	require.Error(t, h.run("reveal", "--player", "alice", "--move", "rock"))
	require.Error(t, h.run("play", "none", "--player", "alice"))
	require.Error(t, h.run("cancel", "x", "--player", "alice"))
	require.Error(t, h.run("mint", "alice", "lots"))

	err := h.run("play", "rock", "--player", "alice")
	require.Error(t, err)
	require.Contains(t, describe(err), "insufficient_balance")
}

func TestLocalCommands(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("nonce"))
	require.NoError(t, h.run("hash", "rock"))
	require.NoError(t, h.run("hash", "paper", "--nonce", "0x0000000000000000000000000000000000000000000000000000000000000001"))
	require.Error(t, h.run("hash", "lizard"))
	require.NoError(t, h.run("version"))
}
