package game

import (
	"github.com/shopspring/decimal"
)

type transfer struct {
	To     string
	Amount decimal.Decimal
}

// settlement is the full effect of ending a game, computed before anything is
// written so the caller can apply it as one unit.
type settlement struct {
	Outcome      Outcome
	Winner       string
	Loser        string
	Transfers    []transfer
	Fee          decimal.Decimal
	Payout       decimal.Decimal
	JackpotPaid  decimal.Decimal
	JackpotAfter decimal.Decimal
	// WinnerStreak is the winner's consecutive wins after this game.
	WinnerStreak int
	RecordWin    bool
}

// planDecisive settles a win (or a forfeit, which pays identically). The fee
// is kept in escrow as jackpot; the jackpot check runs after the fee is added
// and after the winner's streak is incremented.
func planDecisive(cfg Config, g *Game, outcome Outcome, winner, loser string, winnerStreak int, jackpot decimal.Decimal) settlement {
	pot := g.Wager.Mul(decimal.NewFromInt(2))
	fee := g.Fee
	net := pot.Sub(fee)

	s := settlement{
		Outcome:      outcome,
		Winner:       winner,
		Loser:        loser,
		Fee:          fee,
		Payout:       net,
		JackpotPaid:  decimal.Zero,
		JackpotAfter: jackpot.Add(fee),
		WinnerStreak: winnerStreak + 1,
		RecordWin:    true,
	}
	s.Transfers = append(s.Transfers, transfer{To: winner, Amount: net})

	if s.WinnerStreak >= cfg.MinConsecutiveWins && s.JackpotAfter.GreaterThanOrEqual(cfg.MinJackpotAmount) {
		s.JackpotPaid = s.JackpotAfter
		s.JackpotAfter = decimal.Zero
		s.WinnerStreak = 0
		s.Transfers = append(s.Transfers, transfer{To: winner, Amount: s.JackpotPaid})
	}
	return s
}

// planDraw returns both wagers in full. No fee is charged and no streak moves.
func planDraw(g *Game, jackpot decimal.Decimal) settlement {
	s := planRefund(g, jackpot)
	s.Outcome = OutcomeDraw
	return s
}

// planRefund returns every escrowed wager.
func planRefund(g *Game, jackpot decimal.Decimal) settlement {
	s := settlement{
		Outcome:      OutcomeRefund,
		Fee:          decimal.Zero,
		Payout:       decimal.Zero,
		JackpotPaid:  decimal.Zero,
		JackpotAfter: jackpot,
	}
	for _, seat := range g.Seats {
		if seat.Escrowed {
			s.Transfers = append(s.Transfers, transfer{To: seat.Player, Amount: g.Wager})
		}
	}
	return s
}
