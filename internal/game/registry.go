package game

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
)

// registerCommitment stores player's hash. Once both seats hold a hash the
// game moves to the reveal phase with a fresh deadline.
func (tx *txn) registerCommitment(g *Game, player string, hash common.Hash) error {
	idx := g.seat(player)
	if idx < 0 {
		return errors.Wrapf(ErrNotParticipant, "%s in game %d", player, g.ID)
	}
	if g.Phase != PhaseCommit {
		return errors.Wrapf(ErrInvalidPhase, "game %d is in %s phase", g.ID, g.Phase)
	}
	if g.Seats[idx].Committed {
		return errors.Wrapf(ErrAlreadyCommitted, "%s in game %d", player, g.ID)
	}
	tx.storeCommitment(g, idx, hash)

	if g.commits() == len(g.Seats) {
		g.Phase = PhaseReveal
		g.Deadline = tx.now.Add(tx.m.cfg.RevealTimeout)
	}
	return nil
}

func (tx *txn) storeCommitment(g *Game, idx int, hash common.Hash) {
	seat := &g.Seats[idx]
	seat.Hash = hash
	seat.Committed = true
	tx.emit(EventMoveCommitted, g.ID, seat.Player, "hash", hash.Hex())
	tx.onCommit(func() { tx.m.metrics.Commits.Inc(1) })
}

// revealCommitment checks move and nonce against the stored hash. The second
// successful reveal settles the game.
func (tx *txn) revealCommitment(g *Game, player string, move commit.Move, nonce commit.Nonce) error {
	idx := g.seat(player)
	if idx < 0 {
		return errors.Wrapf(ErrNotParticipant, "%s in game %d", player, g.ID)
	}
	if g.Phase != PhaseReveal {
		return errors.Wrapf(ErrInvalidPhase, "game %d is in %s phase", g.ID, g.Phase)
	}
	seat := &g.Seats[idx]
	if seat.Revealed {
		return errors.Wrapf(ErrAlreadyRevealed, "%s in game %d", player, g.ID)
	}
	if !move.Valid() {
		return errors.Wrapf(ErrInvalidMove, "%d", uint8(move))
	}
	if !commit.Verify(seat.Hash, move, nonce) {
		tx.m.metrics.HashMismatches.Inc(1)
		return errors.Wrapf(ErrHashMismatch, "%s in game %d", player, g.ID)
	}
	seat.Revealed = true
	seat.Move = move
	tx.emit(EventMoveRevealed, g.ID, player, "move", move.String())
	tx.onCommit(func() { tx.m.metrics.Reveals.Inc(1) })

	if g.reveals() == len(g.Seats) {
		return tx.settle(g)
	}
	return nil
}
