package game

import (
	"errors"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

var (
	ErrInvalidPhase          = errors.New("game: operation not allowed in current phase")
	ErrNotParticipant        = errors.New("game: account is not a participant")
	ErrDuplicateParticipant  = errors.New("game: a game needs two distinct players")
	ErrAlreadyCommitted      = errors.New("game: move already committed")
	ErrAlreadyRevealed       = errors.New("game: move already revealed")
	ErrHashMismatch          = errors.New("game: reveal does not match commitment")
	ErrGameNotSettled        = errors.New("game: game is not settled")
	ErrDeadlineNotReached    = errors.New("game: deadline has not passed")
	ErrAlreadySettled        = errors.New("game: game already reached a terminal state")
	ErrGameNotFound          = errors.New("game: game not found")
	ErrRevealRequired        = errors.New("game: only a player who revealed can claim a forfeit")
	ErrInvalidAccount        = errors.New("game: account is required")
	ErrInsufficientBalance   = token.ErrInsufficientBalance
	ErrInsufficientAllowance = token.ErrInsufficientAllowance
	ErrInvalidAmount         = token.ErrInvalidAmount
	ErrInvalidMove           = commit.ErrInvalidMove
)
