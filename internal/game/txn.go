package game

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// txn stages one mutating call. Records are cloned on first touch; ledger
// writes are journaled from snap. Nothing is visible to readers until commit.
type txn struct {
	m    *Manager
	ctx  context.Context
	now  time.Time
	snap int

	games    map[uint64]*Game
	players  map[string]*Player
	jackpot  decimal.Decimal
	counter  uint64
	openGame uint64
	winSeq   uint64
	wins     []string
	events   []Event
	after    []func()
}

func (m *Manager) begin(ctx context.Context) *txn {
	return &txn{
		m:        m,
		ctx:      ctx,
		now:      m.clock.Now().UTC(),
		snap:     m.ledger.Snapshot(),
		games:    make(map[uint64]*Game),
		players:  make(map[string]*Player),
		jackpot:  m.jackpot,
		counter:  m.counter,
		openGame: m.openGame,
		winSeq:   m.leaderboard.seq,
	}
}

func (tx *txn) game(id uint64) (*Game, error) {
	if g, ok := tx.games[id]; ok {
		return g, nil
	}
	g, ok := tx.m.games[id]
	if !ok {
		return nil, errors.Wrapf(ErrGameNotFound, "game %d", id)
	}
	c := g.clone()
	tx.games[id] = c
	return c, nil
}

func (tx *txn) newGame() *Game {
	tx.counter++
	g := &Game{
		ID:          tx.counter,
		Wager:       tx.m.cfg.WagerAmount,
		Fee:         tx.m.cfg.FeeAmount,
		Payout:      decimal.Zero,
		JackpotPaid: decimal.Zero,
		CreatedAt:   tx.now,
	}
	tx.games[g.ID] = g
	return g
}

func (tx *txn) player(account string) *Player {
	if p, ok := tx.players[account]; ok {
		return p
	}
	var p *Player
	if existing, ok := tx.m.players[account]; ok {
		p = existing.clone()
	} else {
		p = &Player{Account: account, FirstSeen: tx.now}
	}
	tx.players[account] = p
	return p
}

// lastGame reads player's most recent game without staging the record.
func (tx *txn) lastGame(account string) uint64 {
	if p, ok := tx.players[account]; ok {
		return p.LastGame
	}
	if p, ok := tx.m.players[account]; ok {
		return p.LastGame
	}
	return 0
}

func (tx *txn) recordWin(p *Player) {
	p.TotalWins++
	if p.WinSeq == 0 {
		tx.winSeq++
		p.WinSeq = tx.winSeq
	}
	tx.wins = append(tx.wins, p.Account)
}

// onCommit defers fn until the call has been committed.
func (tx *txn) onCommit(fn func()) {
	tx.after = append(tx.after, fn)
}

func (tx *txn) emit(typ EventType, gameID uint64, account string, kv ...string) {
	tx.events = append(tx.events, newEvent(typ, gameID, account, tx.now, kv...))
}

// escrow pulls the wager for seat idx into the escrow account.
func (tx *txn) escrow(g *Game, idx int) error {
	cfg := tx.m.cfg
	seat := &g.Seats[idx]
	if err := tx.m.ledger.TransferFrom(cfg.EscrowAccount, seat.Player, cfg.EscrowAccount, g.Wager); err != nil {
		return err
	}
	seat.Escrowed = true
	return nil
}

// pay moves amount out of escrow. Zero amounts are skipped.
func (tx *txn) pay(to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	return tx.m.ledger.Transfer(tx.m.cfg.EscrowAccount, to, amount)
}

func (tx *txn) rollback() {
	tx.m.ledger.RevertToSnapshot(tx.snap)
}

func (tx *txn) receipt() *Receipt {
	r := &Receipt{
		Jackpot:     tx.jackpot,
		GameCounter: tx.counter,
		Ledger:      tx.m.ledger.Changes(tx.snap),
		Events:      tx.events,
	}
	ids := make([]uint64, 0, len(tx.games))
	for id := range tx.games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		r.Games = append(r.Games, *tx.games[id])
	}
	accts := make([]string, 0, len(tx.players))
	for a := range tx.players {
		accts = append(accts, a)
	}
	sort.Strings(accts)
	for _, a := range accts {
		r.Players = append(r.Players, *tx.players[a])
	}
	return r
}

// commit persists the receipt and then publishes the staged records. If the
// persister fails the ledger is rolled back and nothing changes.
func (tx *txn) commit() (*Receipt, error) {
	m := tx.m
	r := tx.receipt()
	if m.persister != nil {
		if err := m.persister.Apply(tx.ctx, r); err != nil {
			tx.rollback()
			return nil, errors.Wrap(err, "game: persist receipt")
		}
	}
	m.ledger.Finalise()

	for id, g := range tx.games {
		m.games[id] = g
	}
	for a, p := range tx.players {
		m.players[a] = p
	}
	for _, a := range tx.wins {
		m.leaderboard.RecordWin(a)
	}
	for _, ev := range tx.events {
		m.events[ev.GameID] = append(m.events[ev.GameID], ev)
	}
	m.jackpot = tx.jackpot
	m.counter = tx.counter
	m.openGame = tx.openGame

	for _, fn := range tx.after {
		fn()
	}
	jf, _ := m.jackpot.Float64()
	m.metrics.Jackpot.Update(jf)
	if m.openGame != 0 {
		m.metrics.OpenGames.Update(1)
	} else {
		m.metrics.OpenGames.Update(0)
	}
	return r, nil
}
