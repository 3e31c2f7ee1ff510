package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newManager(t *testing.T, b Backend) *game.Manager {
	t.Helper()
	cfg := game.DefaultConfig()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	m, err := game.NewManager(cfg, token.NewMemoryLedger("RPS", cfg.TokenLedgerAddress),
		game.WithClock(clk), game.WithPersister(b))
	require.NoError(t, err)
	return m
}

// playRound funds alice and bob and settles one game that alice wins.
func playRound(t *testing.T, m *game.Manager) game.Game {
	t.Helper()
	ctx := context.Background()
	escrow := m.Config().EscrowAccount
	for _, a := range []string{"alice", "bob"} {
		require.NoError(t, m.Mint(ctx, a, dec(1000)))
		require.NoError(t, m.Approve(ctx, a, escrow, dec(1000)))
	}
	g, err := m.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)

	na, err := commit.NewNonce()
	require.NoError(t, err)
	nb, err := commit.NewNonce()
	require.NoError(t, err)
	_, err = m.Commit(ctx, g.ID, "alice", commit.HashMove(commit.Paper, na))
	require.NoError(t, err)
	_, err = m.Commit(ctx, g.ID, "bob", commit.HashMove(commit.Rock, nb))
	require.NoError(t, err)
	_, err = m.Reveal(ctx, g.ID, "alice", commit.Paper, na)
	require.NoError(t, err)
	g, err = m.Reveal(ctx, g.ID, "bob", commit.Rock, nb)
	require.NoError(t, err)
	require.Equal(t, game.PhaseSettled, g.Phase)
	return g
}

func assertRestored(t *testing.T, b Backend, settled game.Game) {
	t.Helper()
	st, err := b.Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, uint64(1), st.GameCounter)
	require.Len(t, st.Games, 1)
	got := st.Games[0]
	require.Equal(t, settled.ID, got.ID)
	require.Equal(t, game.PhaseSettled, got.Phase)
	require.Equal(t, game.OutcomeWin, got.Outcome)
	require.Equal(t, "alice", got.Winner)
	require.Equal(t, commit.Paper, got.Seats[0].Move)
	require.Equal(t, settled.Seats[1].Hash, got.Seats[1].Hash)
	require.True(t, got.Payout.Equal(dec(199)))
	require.True(t, got.SettledAt.Equal(settled.SettledAt))
	require.True(t, st.Jackpot.Equal(dec(1)))
	require.True(t, st.TotalSupply.Equal(dec(2000)))
	require.True(t, st.Balances["alice"].Equal(dec(1099)))
	require.True(t, st.Balances["bob"].Equal(dec(900)))
	require.NotEmpty(t, st.Allowances)

	fresh := newManager(t, NewMemory())
	require.NoError(t, fresh.Restore(st))
	w, err := fresh.GetWinner(settled.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", w.Winner)
	require.True(t, fresh.BalanceOf("alice").Equal(dec(1099)))
	require.True(t, fresh.Jackpot().Equal(dec(1)))
	require.Equal(t, []game.Standing{{Account: "alice", Wins: 1}}, fresh.GetLeaderboard())

	events, err := b.Events(context.Background(), settled.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	require.Equal(t, game.EventGameCreated, events[0].Type)
	require.Equal(t, game.EventGameSettled, events[len(events)-1].Type)
}

func TestBackendsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		open func(t *testing.T) Backend
	}{
		{"memory", func(*testing.T) Backend { return NewMemory() }},
		{"sqlite-mem", func(t *testing.T) Backend {
			b, err := NewSQLite(":memory:")
			require.NoError(t, err)
			return b
		}},
		{"sqlite-file", func(t *testing.T) Backend {
			b, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "rps.db"))
			require.NoError(t, err)
			return b
		}},
		{"leveldb", func(t *testing.T) Backend {
			b, err := Open(DriverLevelDB, filepath.Join(t.TempDir(), "rps.ldb"))
			require.NoError(t, err)
			return b
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.open(t)
			defer b.Close()
			require.NoError(t, b.Ping(context.Background()))

			settled := playRound(t, newManager(t, b))
			assertRestored(t, b, settled)
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rps.db")
	b, err := NewSQLite(path)
	require.NoError(t, err)
	settled := playRound(t, newManager(t, b))
	require.NoError(t, b.Close())

	b, err = NewSQLite(path)
	require.NoError(t, err)
	defer b.Close()
	assertRestored(t, b, settled)
}

func TestLevelDBEventSequenceContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rps.ldb")
	b, err := NewLevelDB(path)
	require.NoError(t, err)
	m := newManager(t, b)
	settled := playRound(t, m)
	before, err := b.Events(context.Background(), settled.ID)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = NewLevelDB(path)
	require.NoError(t, err)
	defer b.Close()
	st, err := b.Load(context.Background())
	require.NoError(t, err)

	m = newManager(t, b)
	require.NoError(t, m.Restore(st))
	_, err = m.CreateGame(context.Background(), "bob", "alice")
	require.NoError(t, err)

	after, err := b.Events(context.Background(), settled.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)

	st, err = b.Load(context.Background())
	require.NoError(t, err)
	last := st.Events[len(st.Events)-1]
	require.Equal(t, game.EventGameCreated, last.Type)
	require.Equal(t, uint64(2), last.GameID)
}

func TestClosedMemoryRejectsWrites(t *testing.T) {
	b := NewMemory()
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Apply(context.Background(), &game.Receipt{}), errClosed)
	require.ErrorIs(t, b.Ping(context.Background()), errClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "")
	require.Error(t, err)
}

func TestIsBusyErr(t *testing.T) {
	require.False(t, isBusyErr(nil))
	require.True(t, isBusyErr(errString("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, isBusyErr(errString("UNIQUE constraint failed")))
}

type errString string

func (e errString) Error() string { return string(e) }
