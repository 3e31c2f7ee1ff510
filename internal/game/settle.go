package game

import (
	"github.com/pkg/errors"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
)

// settle resolves a fully revealed game.
func (tx *txn) settle(g *Game) error {
	start := tx.m.clock.Now()
	res, err := commit.Resolve(g.Seats[0].Move, g.Seats[1].Move)
	if err != nil {
		return errors.Wrapf(err, "resolve game %d", g.ID)
	}

	var s settlement
	switch res {
	case commit.FirstWins:
		s = tx.planWin(g, OutcomeWin, 0)
	case commit.SecondWins:
		s = tx.planWin(g, OutcomeWin, 1)
	default:
		s = planDraw(g, tx.jackpot)
	}
	if err := tx.apply(g, s); err != nil {
		return err
	}
	tx.onCommit(func() { tx.m.metrics.SettleTime.Update(tx.m.clock.Since(start)) })
	return nil
}

func (tx *txn) planWin(g *Game, outcome Outcome, winner int) settlement {
	w := g.Seats[winner].Player
	l := g.Seats[1-winner].Player
	return planDecisive(tx.m.cfg, g, outcome, w, l, tx.player(w).ConsecutiveWins, tx.jackpot)
}

// apply executes a settlement against the ledger and the staged records.
func (tx *txn) apply(g *Game, s settlement) error {
	for _, t := range s.Transfers {
		if err := tx.pay(t.To, t.Amount); err != nil {
			return errors.Wrapf(err, "settle game %d", g.ID)
		}
	}
	tx.jackpot = s.JackpotAfter

	if s.RecordWin {
		wp := tx.player(s.Winner)
		wp.ConsecutiveWins = s.WinnerStreak
		tx.recordWin(wp)
		tx.player(s.Loser).ConsecutiveWins = 0
	}

	g.Outcome = s.Outcome
	g.Winner = s.Winner
	g.Payout = s.Payout
	g.JackpotPaid = s.JackpotPaid
	g.SettledAt = tx.now
	m := tx.m.metrics

	switch s.Outcome {
	case OutcomeRefund:
		g.Phase = PhaseCancelled
		tx.emit(EventGameCancelled, g.ID, "", "refund", g.Wager.String())
		tx.onCommit(func() { m.GamesCancelled.Inc(1) })
		return nil
	case OutcomeDraw:
		tx.onCommit(func() { m.Draws.Inc(1) })
	case OutcomeForfeit:
		tx.onCommit(func() { m.Forfeits.Inc(1) })
	}
	g.Phase = PhaseSettled
	tx.emit(EventGameSettled, g.ID, s.Winner,
		"outcome", s.Outcome.String(),
		"payout", s.Payout.String(),
		"fee", s.Fee.String(),
	)
	if s.JackpotPaid.IsPositive() {
		tx.emit(EventJackpotPaid, g.ID, s.Winner, "amount", s.JackpotPaid.String())
		tx.onCommit(func() { m.JackpotPayouts.Inc(1) })
	}
	tx.onCommit(func() { m.GamesSettled.Inc(1) })
	return nil
}
