package commit

import (
	"fmt"
	"strings"
)

// Move is a player's hand. The zero value means no move has been revealed.
type Move uint8

const (
	None Move = iota
	Rock
	Paper
	Scissors
)

// ErrInvalidMove is returned for tags outside Rock..Scissors.
var ErrInvalidMove = fmt.Errorf("commit: invalid move")

// Valid reports whether m is one of the three playable moves.
func (m Move) Valid() bool {
	return m >= Rock && m <= Scissors
}

func (m Move) String() string {
	switch m {
	case None:
		return "none"
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	default:
		return fmt.Sprintf("move(%d)", uint8(m))
	}
}

// ParseMove accepts a move name (case-insensitive) or its numeric tag.
func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r", "1":
		return Rock, nil
	case "paper", "p", "2":
		return Paper, nil
	case "scissors", "s", "3":
		return Scissors, nil
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidMove, s)
}

func (m Move) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Move) UnmarshalText(text []byte) error {
	if len(text) == 0 || string(text) == "none" {
		*m = None
		return nil
	}
	parsed, err := ParseMove(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// beats maps each move to the one it defeats.
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// Result is the outcome of one round from the first player's point of view.
type Result int

const (
	Draw Result = iota
	FirstWins
	SecondWins
)

func (r Result) String() string {
	switch r {
	case FirstWins:
		return "first"
	case SecondWins:
		return "second"
	default:
		return "draw"
	}
}

// Resolve decides a round between two revealed moves.
func Resolve(first, second Move) (Result, error) {
	if !first.Valid() || !second.Valid() {
		return Draw, ErrInvalidMove
	}
	switch {
	case first == second:
		return Draw, nil
	case beats[first] == second:
		return FirstWins, nil
	default:
		return SecondWins, nil
	}
}
