package game

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
)

// Phase is a game's position in its lifecycle.
type Phase uint8

const (
	// PhaseCreated is a matchmaking game holding one player waiting for a peer.
	PhaseCreated Phase = iota + 1
	PhaseCommit
	PhaseReveal
	PhaseSettled
	PhaseCancelled
)

var phaseNames = map[Phase]string{
	PhaseCreated:   "created",
	PhaseCommit:    "commit",
	PhaseReveal:    "reveal",
	PhaseSettled:   "settled",
	PhaseCancelled: "cancelled",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseSettled || p == PhaseCancelled
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("game: unknown phase %q", s)
}

// Outcome describes how a game ended.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeWin
	OutcomeDraw
	// OutcomeForfeit is a win awarded because the opponent failed to reveal.
	OutcomeForfeit
	// OutcomeRefund returns every escrowed wager without a winner.
	OutcomeRefund
)

var outcomeNames = map[Outcome]string{
	OutcomePending: "pending",
	OutcomeWin:     "win",
	OutcomeDraw:    "draw",
	OutcomeForfeit: "forfeit",
	OutcomeRefund:  "refund",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(text []byte) error {
	for k, name := range outcomeNames {
		if name == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("game: unknown outcome %q", text)
}

// Seat is one participant's slot: identity, escrow flag and commitment.
type Seat struct {
	Player    string      `json:"player"`
	Escrowed  bool        `json:"escrowed"`
	Hash      common.Hash `json:"hash"`
	Committed bool        `json:"committed"`
	Revealed  bool        `json:"revealed"`
	Move      commit.Move `json:"move"`
}

// Game is one two-player round. Records are retained after settlement.
type Game struct {
	ID          uint64          `json:"id"`
	Seats       [2]Seat         `json:"seats"`
	Wager       decimal.Decimal `json:"wager"`
	Fee         decimal.Decimal `json:"fee"`
	Phase       Phase           `json:"phase"`
	Outcome     Outcome         `json:"outcome"`
	Winner      string          `json:"winner,omitempty"`
	Payout      decimal.Decimal `json:"payout"`
	JackpotPaid decimal.Decimal `json:"jackpot_paid"`
	CreatedAt   time.Time       `json:"created_at"`
	Deadline    time.Time       `json:"deadline"`
	SettledAt   time.Time       `json:"settled_at,omitempty"`
}

func (g *Game) clone() *Game {
	c := *g
	return &c
}

// seat returns the index of account in the game, or -1.
func (g *Game) seat(account string) int {
	for i := range g.Seats {
		if g.Seats[i].Player != "" && g.Seats[i].Player == account {
			return i
		}
	}
	return -1
}

// Players lists the seated accounts.
func (g *Game) Players() []string {
	out := make([]string, 0, 2)
	for _, s := range g.Seats {
		if s.Player != "" {
			out = append(out, s.Player)
		}
	}
	return out
}

func (g *Game) commits() int {
	n := 0
	for _, s := range g.Seats {
		if s.Committed {
			n++
		}
	}
	return n
}

func (g *Game) reveals() int {
	n := 0
	for _, s := range g.Seats {
		if s.Revealed {
			n++
		}
	}
	return n
}

// Player is per-account engine state. It is created on first interaction and
// never deleted. WinSeq orders players on the leaderboard by their first
// recorded win and is zero until then.
type Player struct {
	Account         string    `json:"account"`
	ConsecutiveWins int       `json:"consecutive_wins"`
	TotalWins       uint64    `json:"total_wins"`
	WinSeq          uint64    `json:"win_seq,omitempty"`
	LastGame        uint64    `json:"last_game"`
	FirstSeen       time.Time `json:"first_seen"`
}

func (p *Player) clone() *Player {
	c := *p
	return &c
}

// WinnerResult answers GetWinner. Draw is set and Winner empty for drawn games.
type WinnerResult struct {
	GameID  uint64  `json:"game_id"`
	Winner  string  `json:"winner,omitempty"`
	Draw    bool    `json:"draw"`
	Outcome Outcome `json:"outcome"`
}

// Filter narrows ListGames.
type Filter struct {
	Phase  Phase
	Player string
	Limit  int
}
