package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

// Memory folds receipts into process memory. Nothing survives a restart.
type Memory struct {
	mu         sync.Mutex
	games      map[uint64]game.Game
	players    map[string]game.Player
	events     []game.Event
	jackpot    decimal.Decimal
	counter    uint64
	balances   map[string]decimal.Decimal
	allowances map[[2]string]decimal.Decimal
	supply     decimal.Decimal
	closed     bool
}

func NewMemory() *Memory {
	return &Memory{
		games:      make(map[uint64]game.Game),
		players:    make(map[string]game.Player),
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[[2]string]decimal.Decimal),
	}
}

func (m *Memory) Apply(_ context.Context, r *game.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	for _, g := range r.Games {
		m.games[g.ID] = g
	}
	for _, p := range r.Players {
		m.players[p.Account] = p
	}
	m.events = append(m.events, r.Events...)
	m.jackpot = r.Jackpot
	m.counter = r.GameCounter
	for acct, bal := range r.Ledger.Balances {
		m.balances[acct] = bal
	}
	for _, a := range r.Ledger.Allowances {
		m.allowances[[2]string{a.Owner, a.Spender}] = a.Amount
	}
	m.supply = r.Ledger.TotalSupply
	return nil
}

func (m *Memory) Load(context.Context) (*game.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	st := &game.State{
		Jackpot:     m.jackpot,
		GameCounter: m.counter,
		Balances:    make(map[string]decimal.Decimal, len(m.balances)),
		TotalSupply: m.supply,
		Events:      append([]game.Event(nil), m.events...),
	}
	for _, g := range m.games {
		st.Games = append(st.Games, g)
	}
	sort.Slice(st.Games, func(i, j int) bool { return st.Games[i].ID < st.Games[j].ID })
	for _, p := range m.players {
		st.Players = append(st.Players, p)
	}
	sort.Slice(st.Players, func(i, j int) bool { return st.Players[i].Account < st.Players[j].Account })
	for acct, bal := range m.balances {
		st.Balances[acct] = bal
	}
	for k, amt := range m.allowances {
		st.Allowances = append(st.Allowances, token.AllowanceEntry{Owner: k[0], Spender: k[1], Amount: amt})
	}
	sortAllowances(st.Allowances)
	return st, nil
}

func (m *Memory) Events(_ context.Context, gameID uint64) ([]game.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []game.Event
	for _, ev := range m.events {
		if ev.GameID == gameID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func sortAllowances(a []token.AllowanceEntry) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].Owner != a[j].Owner {
			return a[i].Owner < a[j].Owner
		}
		return a[i].Spender < a[j].Spender
	})
}
