package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/token"
)

// EventType names a state change recorded in a receipt.
type EventType string

const (
	EventGameCreated    EventType = "game_created"
	EventGameJoined     EventType = "game_joined"
	EventMoveCommitted  EventType = "move_committed"
	EventMoveRevealed   EventType = "move_revealed"
	EventGameSettled    EventType = "game_settled"
	EventJackpotPaid    EventType = "jackpot_paid"
	EventGameCancelled  EventType = "game_cancelled"
	EventForfeitClaimed EventType = "forfeit_claimed"
	EventTokensMinted   EventType = "tokens_minted"
	EventApproval       EventType = "approval"
)

// Event is an append-only log line attached to a receipt.
type Event struct {
	ID      string            `json:"id"`
	Type    EventType         `json:"type"`
	GameID  uint64            `json:"game_id,omitempty"`
	Account string            `json:"account,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	At      time.Time         `json:"at"`
}

func newEvent(typ EventType, gameID uint64, account string, at time.Time, kv ...string) Event {
	ev := Event{
		ID:      uuid.New().String(),
		Type:    typ,
		GameID:  gameID,
		Account: account,
		At:      at,
	}
	if len(kv) > 0 {
		ev.Data = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			ev.Data[kv[i]] = kv[i+1]
		}
	}
	return ev
}

// Receipt is the full changeset produced by one successful mutating call.
// Games and Players hold the post-state of every touched record.
type Receipt struct {
	Games       []Game          `json:"games,omitempty"`
	Players     []Player        `json:"players,omitempty"`
	Jackpot     decimal.Decimal `json:"jackpot"`
	GameCounter uint64          `json:"game_counter"`
	Ledger      token.Changes   `json:"ledger"`
	Events      []Event         `json:"events,omitempty"`
}

// Persister durably records receipts. A Manager only commits a call's effects
// in memory after Apply returns nil.
type Persister interface {
	Apply(ctx context.Context, r *Receipt) error
}

// State is everything needed to rebuild a Manager after a restart.
type State struct {
	Games       []Game
	Players     []Player
	Events      []Event
	Jackpot     decimal.Decimal
	GameCounter uint64
	Balances    map[string]decimal.Decimal
	Allowances  []token.AllowanceEntry
	TotalSupply decimal.Decimal
}
