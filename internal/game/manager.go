// Package game runs two-player commit-reveal rock-paper-scissors wagers.
//
// A Manager owns every game, the per-player streak counters, the jackpot pool
// and the leaderboard. All mutating calls are serialized behind one lock and
// are atomic: a call either commits its ledger transfers, record updates and
// receipt together, or returns an error and leaves no trace.
package game

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

var log = logging.Logger("game")

// Manager is the game session manager.
type Manager struct {
	cfg       Config
	ledger    token.Ledger
	clock     clock.Clock
	persister Persister
	metrics   *Metrics

	mu          sync.RWMutex
	games       map[uint64]*Game
	players     map[string]*Player
	events      map[uint64][]Event
	leaderboard *Leaderboard
	jackpot     decimal.Decimal
	counter     uint64
	openGame    uint64
}

type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithPersister makes every committed call durable through p.
func WithPersister(p Persister) Option {
	return func(m *Manager) { m.persister = p }
}

func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager validates cfg and binds it to ledger.
func NewManager(cfg Config, ledger token.Ledger, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, errors.New("game: token ledger is required")
	}
	if ledger.Address() != cfg.TokenLedgerAddress {
		return nil, errors.Errorf("game: ledger address %q does not match configured %q", ledger.Address(), cfg.TokenLedgerAddress)
	}
	m := &Manager{
		cfg:         cfg,
		ledger:      ledger,
		clock:       clock.New(),
		games:       make(map[uint64]*Game),
		players:     make(map[string]*Player),
		events:      make(map[uint64][]Event),
		leaderboard: NewLeaderboard(),
		jackpot:     decimal.Zero,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	return m, nil
}

func (m *Manager) Config() Config       { return m.cfg }
func (m *Manager) Ledger() token.Ledger { return m.ledger }
func (m *Manager) Metrics() *Metrics    { return m.metrics }

// update runs fn as one atomic call.
func (m *Manager) update(ctx context.Context, op string, fn func(tx *txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin(ctx)
	if err := fn(tx); err != nil {
		tx.rollback()
		m.metrics.Rejected.Inc(1)
		log.Debugw("call rejected", "op", op, "err", err)
		return err
	}
	if _, err := tx.commit(); err != nil {
		log.Errorw("commit failed", "op", op, "err", err)
		return err
	}
	return nil
}

func checkAccount(accounts ...string) error {
	for _, a := range accounts {
		if strings.TrimSpace(a) == "" {
			return ErrInvalidAccount
		}
	}
	return nil
}

// checkPlayer rejects blank accounts and the escrow account, which never
// holds a seat.
func (m *Manager) checkPlayer(accounts ...string) error {
	if err := checkAccount(accounts...); err != nil {
		return err
	}
	for _, a := range accounts {
		if a == m.cfg.EscrowAccount {
			return errors.Wrapf(ErrInvalidAccount, "%s is the escrow account", a)
		}
	}
	return nil
}

// CreateGame pairs two players directly and escrows both wagers. If either
// escrow leg fails no game is created.
func (m *Manager) CreateGame(ctx context.Context, playerA, playerB string) (Game, error) {
	if err := m.checkPlayer(playerA, playerB); err != nil {
		return Game{}, err
	}
	if playerA == playerB {
		return Game{}, errors.Wrap(ErrDuplicateParticipant, playerA)
	}
	var out Game
	err := m.update(ctx, "create", func(tx *txn) error {
		g := tx.newGame()
		g.Seats[0] = Seat{Player: playerA}
		g.Seats[1] = Seat{Player: playerB}
		for i := range g.Seats {
			if err := tx.escrow(g, i); err != nil {
				return errors.Wrapf(err, "escrow %s", g.Seats[i].Player)
			}
			tx.player(g.Seats[i].Player).LastGame = g.ID
		}
		g.Phase = PhaseCommit
		g.Deadline = tx.now.Add(m.cfg.CommitTimeout)
		tx.emit(EventGameCreated, g.ID, playerA, "opponent", playerB, "wager", g.Wager.String())
		tx.onCommit(func() { m.metrics.GamesCreated.Inc(1) })
		out = *g
		return nil
	})
	if err == nil {
		log.Infow("game created", "game", out.ID, "a", playerA, "b", playerB)
	}
	return out, err
}

// CommitMove is the matchmaking entry point. The caller's wager is escrowed
// and their hash stored. With no open game a new one is opened and the caller
// waits for a peer; otherwise the caller joins the open game and both
// commitments being present moves it straight to the reveal phase.
func (m *Manager) CommitMove(ctx context.Context, player string, hash common.Hash) (Game, error) {
	if err := m.checkPlayer(player); err != nil {
		return Game{}, err
	}
	var out Game
	err := m.update(ctx, "commit_move", func(tx *txn) error {
		if tx.openGame != 0 {
			g, err := tx.game(tx.openGame)
			if err != nil {
				return err
			}
			if g.Seats[0].Player == player {
				return errors.Wrapf(ErrAlreadyCommitted, "%s is waiting for an opponent in game %d", player, g.ID)
			}
			g.Seats[1] = Seat{Player: player}
			if err := tx.escrow(g, 1); err != nil {
				return errors.Wrapf(err, "escrow %s", player)
			}
			g.Phase = PhaseCommit
			tx.emit(EventGameJoined, g.ID, player)
			if err := tx.registerCommitment(g, player, hash); err != nil {
				return err
			}
			tx.openGame = 0
			tx.player(player).LastGame = g.ID
			out = *g
			return nil
		}

		g := tx.newGame()
		g.Seats[0] = Seat{Player: player}
		if err := tx.escrow(g, 0); err != nil {
			return errors.Wrapf(err, "escrow %s", player)
		}
		g.Phase = PhaseCreated
		g.Deadline = tx.now.Add(m.cfg.CommitTimeout)
		tx.emit(EventGameCreated, g.ID, player, "wager", g.Wager.String())
		tx.storeCommitment(g, 0, hash)
		tx.openGame = g.ID
		tx.player(player).LastGame = g.ID
		tx.onCommit(func() { m.metrics.GamesCreated.Inc(1) })
		out = *g
		return nil
	})
	if err == nil {
		log.Infow("move committed", "game", out.ID, "player", player, "phase", out.Phase.String())
	}
	return out, err
}

// Commit stores player's hash for a game created with CreateGame.
func (m *Manager) Commit(ctx context.Context, gameID uint64, player string, hash common.Hash) (Game, error) {
	var out Game
	err := m.update(ctx, "commit", func(tx *txn) error {
		g, err := tx.game(gameID)
		if err != nil {
			return err
		}
		if err := tx.registerCommitment(g, player, hash); err != nil {
			return err
		}
		out = *g
		return nil
	})
	return out, err
}

// Reveal discloses player's move. The second reveal settles the game.
func (m *Manager) Reveal(ctx context.Context, gameID uint64, player string, move commit.Move, nonce commit.Nonce) (Game, error) {
	var out Game
	err := m.update(ctx, "reveal", func(tx *txn) error {
		g, err := tx.game(gameID)
		if err != nil {
			return err
		}
		if err := tx.revealCommitment(g, player, move, nonce); err != nil {
			return err
		}
		out = *g
		return nil
	})
	if err == nil && out.Phase == PhaseSettled {
		log.Infow("game settled", "game", out.ID, "outcome", out.Outcome.String(), "winner", out.Winner,
			"payout", out.Payout.String(), "jackpot_paid", out.JackpotPaid.String())
	}
	return out, err
}

// RevealMoveForLastGame reveals in the most recent game player entered. The
// lookup and the reveal run in the same call.
func (m *Manager) RevealMoveForLastGame(ctx context.Context, player string, move commit.Move, nonce commit.Nonce) (Game, error) {
	var out Game
	err := m.update(ctx, "reveal_last", func(tx *txn) error {
		id := tx.lastGame(player)
		if id == 0 {
			return errors.Wrapf(ErrGameNotFound, "%s has not entered a game", player)
		}
		g, err := tx.game(id)
		if err != nil {
			return err
		}
		if err := tx.revealCommitment(g, player, move, nonce); err != nil {
			return err
		}
		out = *g
		return nil
	})
	if err == nil && out.Phase == PhaseSettled {
		log.Infow("game settled", "game", out.ID, "outcome", out.Outcome.String(), "winner", out.Winner,
			"payout", out.Payout.String(), "jackpot_paid", out.JackpotPaid.String())
	}
	return out, err
}

// Cancel ends a game without a winner and refunds every escrowed wager. A
// matchmaking game still waiting for a peer can be cancelled by its opener at
// any time. A commit phase game can be cancelled by either player once the
// commit deadline passed. A reveal phase game with no reveals can be
// cancelled once the reveal deadline passed.
func (m *Manager) Cancel(ctx context.Context, gameID uint64, player string) (Game, error) {
	var out Game
	err := m.update(ctx, "cancel", func(tx *txn) error {
		g, err := tx.game(gameID)
		if err != nil {
			return err
		}
		if g.seat(player) < 0 {
			return errors.Wrapf(ErrNotParticipant, "%s in game %d", player, g.ID)
		}
		switch g.Phase {
		case PhaseSettled, PhaseCancelled:
			return errors.Wrapf(ErrAlreadySettled, "game %d", g.ID)
		case PhaseCreated:
			tx.openGame = 0
		case PhaseCommit:
			if tx.now.Before(g.Deadline) {
				return errors.Wrapf(ErrDeadlineNotReached, "commit deadline %s", g.Deadline)
			}
		case PhaseReveal:
			if tx.now.Before(g.Deadline) {
				return errors.Wrapf(ErrDeadlineNotReached, "reveal deadline %s", g.Deadline)
			}
			if g.reveals() > 0 {
				return errors.Wrapf(ErrInvalidPhase, "game %d has a reveal, claim the forfeit instead", g.ID)
			}
		}
		if err := tx.apply(g, planRefund(g, tx.jackpot)); err != nil {
			return err
		}
		out = *g
		return nil
	})
	if err == nil {
		log.Infow("game cancelled", "game", gameID, "by", player)
	}
	return out, err
}

// ClaimForfeit ends a reveal phase game whose deadline passed. With exactly
// one reveal the revealed player wins as in a normal decisive game. With no
// reveals both wagers are refunded.
func (m *Manager) ClaimForfeit(ctx context.Context, gameID uint64, player string) (Game, error) {
	var out Game
	err := m.update(ctx, "forfeit", func(tx *txn) error {
		g, err := tx.game(gameID)
		if err != nil {
			return err
		}
		idx := g.seat(player)
		if idx < 0 {
			return errors.Wrapf(ErrNotParticipant, "%s in game %d", player, g.ID)
		}
		if g.Phase.Terminal() {
			return errors.Wrapf(ErrAlreadySettled, "game %d", g.ID)
		}
		if g.Phase != PhaseReveal {
			return errors.Wrapf(ErrInvalidPhase, "game %d is in %s phase", g.ID, g.Phase)
		}
		if tx.now.Before(g.Deadline) {
			return errors.Wrapf(ErrDeadlineNotReached, "reveal deadline %s", g.Deadline)
		}

		if g.reveals() == 0 {
			if err := tx.apply(g, planRefund(g, tx.jackpot)); err != nil {
				return err
			}
			out = *g
			return nil
		}
		if !g.Seats[idx].Revealed {
			return errors.Wrapf(ErrRevealRequired, "%s in game %d", player, g.ID)
		}
		if err := tx.apply(g, tx.planWin(g, OutcomeForfeit, idx)); err != nil {
			return err
		}
		tx.emit(EventForfeitClaimed, g.ID, player)
		out = *g
		return nil
	})
	if err == nil {
		log.Infow("forfeit claimed", "game", gameID, "by", player, "outcome", out.Outcome.String())
	}
	return out, err
}

// GetWinner reports the result of a settled game. Repeated calls return the
// same answer.
func (m *Manager) GetWinner(gameID uint64) (WinnerResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok || g.Phase != PhaseSettled {
		return WinnerResult{}, errors.Wrapf(ErrGameNotSettled, "game %d", gameID)
	}
	return WinnerResult{
		GameID:  g.ID,
		Winner:  g.Winner,
		Draw:    g.Outcome == OutcomeDraw,
		Outcome: g.Outcome,
	}, nil
}

func (m *Manager) GetGame(gameID uint64) (Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok {
		return Game{}, errors.Wrapf(ErrGameNotFound, "game %d", gameID)
	}
	return *g, nil
}

// ListGames returns games newest first.
func (m *Manager) ListGames(f Filter) []Game {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Game, 0, limit)
	for id := m.counter; id > 0 && len(out) < limit; id-- {
		g, ok := m.games[id]
		if !ok {
			continue
		}
		if f.Phase != 0 && g.Phase != f.Phase {
			continue
		}
		if f.Player != "" && g.seat(f.Player) < 0 {
			continue
		}
		out = append(out, *g)
	}
	return out
}

// OpenGame returns the matchmaking game waiting for a peer, if any.
func (m *Manager) OpenGame() (Game, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.openGame == 0 {
		return Game{}, false
	}
	return *m.games[m.openGame], true
}

// GameCounter is the id of the most recently created game.
func (m *Manager) GameCounter() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counter
}

func (m *Manager) Jackpot() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jackpot
}

func (m *Manager) Player(account string) (Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[account]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// GetLeaderboard returns (account, wins) rows, most wins first.
func (m *Manager) GetLeaderboard() []Standing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leaderboard.Standings()
}

// Events returns the event log of a game in emission order. Token events are
// filed under game 0.
func (m *Manager) Events(gameID uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[gameID]
	out := make([]Event, len(evs))
	copy(out, evs)
	return out
}

// Mint creates tokens for to.
func (m *Manager) Mint(ctx context.Context, to string, amount decimal.Decimal) error {
	if err := checkAccount(to); err != nil {
		return err
	}
	return m.update(ctx, "mint", func(tx *txn) error {
		if err := m.ledger.Mint(to, amount); err != nil {
			return err
		}
		tx.emit(EventTokensMinted, 0, to, "amount", amount.String())
		return nil
	})
}

// Approve lets spender move up to amount of owner's tokens. Players approve
// the escrow account before entering a game. The escrow account itself
// cannot grant allowances.
func (m *Manager) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) error {
	if err := checkAccount(owner, spender); err != nil {
		return err
	}
	if owner == m.cfg.EscrowAccount {
		return errors.Wrapf(ErrInvalidAccount, "%s is the escrow account", owner)
	}
	return m.update(ctx, "approve", func(tx *txn) error {
		if err := m.ledger.Approve(owner, spender, amount); err != nil {
			return err
		}
		tx.emit(EventApproval, 0, owner, "spender", spender, "amount", amount.String())
		return nil
	})
}

func (m *Manager) BalanceOf(account string) decimal.Decimal {
	return m.ledger.BalanceOf(account)
}

func (m *Manager) Allowance(owner, spender string) decimal.Decimal {
	return m.ledger.Allowance(owner, spender)
}

type ledgerRestorer interface {
	Restore(balances map[string]decimal.Decimal, allowances []token.AllowanceEntry, supply decimal.Decimal)
}

// Restore replaces the in-memory state with st, usually loaded from storage.
func (m *Manager) Restore(st *State) error {
	if st == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.games = make(map[uint64]*Game, len(st.Games))
	m.players = make(map[string]*Player, len(st.Players))
	m.events = make(map[uint64][]Event)
	m.leaderboard = NewLeaderboard()
	m.openGame = 0

	for i := range st.Games {
		g := st.Games[i]
		m.games[g.ID] = &g
		if g.Phase == PhaseCreated && g.ID > m.openGame {
			m.openGame = g.ID
		}
	}
	players := append([]Player(nil), st.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].WinSeq < players[j].WinSeq })
	for i := range players {
		p := players[i]
		m.players[p.Account] = &p
		m.leaderboard.set(&p)
	}
	for _, ev := range st.Events {
		m.events[ev.GameID] = append(m.events[ev.GameID], ev)
	}
	m.jackpot = st.Jackpot
	m.counter = st.GameCounter

	if r, ok := m.ledger.(ledgerRestorer); ok {
		r.Restore(st.Balances, st.Allowances, st.TotalSupply)
	} else if len(st.Balances) > 0 {
		return errors.New("game: ledger cannot restore persisted balances")
	}
	log.Infow("state restored", "games", len(m.games), "players", len(m.players), "jackpot", m.jackpot.String())
	return nil
}
