package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/game"
)

// EngineError is the JSON body of every non-2xx response.
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return e.Message
}

// Wire error types. Clients switch on these rather than on messages.
const (
	// Input validation errors
	ErrTypeValidation           = "validation_error"
	ErrTypeInvalidMove          = "invalid_move"
	ErrTypeInvalidAmount        = "invalid_amount"
	ErrTypeInvalidAccount       = "invalid_account"
	ErrTypeDuplicateParticipant = "duplicate_participant"

	// Game rule errors
	ErrTypeGameNotFound       = "game_not_found"
	ErrTypeInvalidPhase       = "invalid_phase"
	ErrTypeNotParticipant     = "not_participant"
	ErrTypeAlreadyCommitted   = "already_committed"
	ErrTypeAlreadyRevealed    = "already_revealed"
	ErrTypeHashMismatch       = "hash_mismatch"
	ErrTypeGameNotSettled     = "game_not_settled"
	ErrTypeDeadlineNotReached = "deadline_not_reached"
	ErrTypeAlreadySettled     = "already_settled"
	ErrTypeRevealRequired     = "reveal_required"

	// Ledger errors
	ErrTypeInsufficientBalance   = "insufficient_balance"
	ErrTypeInsufficientAllowance = "insufficient_allowance"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory groups error types for the X-Error-Category header.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategoryLedger     ErrorCategory = "ledger"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidMove, ErrTypeInvalidAmount, ErrTypeInvalidAccount, ErrTypeDuplicateParticipant:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeInvalidPhase, ErrTypeNotParticipant, ErrTypeAlreadyCommitted,
		ErrTypeAlreadyRevealed, ErrTypeHashMismatch, ErrTypeGameNotSettled, ErrTypeDeadlineNotReached,
		ErrTypeAlreadySettled, ErrTypeRevealRequired:
		return CategoryGame
	case ErrTypeInsufficientBalance, ErrTypeInsufficientAllowance:
		return CategoryLedger
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
	GoVersion     string `json:"go_version,omitempty"`
}

// HashRequest asks the server to compute a commitment for thin clients.
type HashRequest struct {
	Move  string `json:"move"`
	Nonce string `json:"nonce"`
}

type HashResponse struct {
	Hash common.Hash `json:"hash"`
	Move commit.Move `json:"move"`
}

type CreateGameRequest struct {
	PlayerA string `json:"player_a"`
	PlayerB string `json:"player_b"`
}

// CommitRequest carries a commitment. Player is the caller identity.
type CommitRequest struct {
	Player string `json:"player"`
	Hash   string `json:"hash"`
}

type RevealRequest struct {
	Player string `json:"player"`
	Move   string `json:"move"`
	Nonce  string `json:"nonce"`
}

// PlayerRequest identifies the caller of cancel and forfeit.
type PlayerRequest struct {
	Player string `json:"player"`
}

type MintRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type ApproveRequest struct {
	Owner   string          `json:"owner"`
	Spender string          `json:"spender"`
	Amount  decimal.Decimal `json:"amount"`
}

type GamesResponse struct {
	Games []game.Game `json:"games"`
	Count int         `json:"count"`
}

type EventsResponse struct {
	GameID uint64       `json:"game_id"`
	Events []game.Event `json:"events"`
}

type CounterResponse struct {
	GameCounter uint64 `json:"game_counter"`
	OpenGame    uint64 `json:"open_game,omitempty"`
}

type LeaderboardResponse struct {
	Standings []game.Standing `json:"standings"`
}

type JackpotResponse struct {
	Jackpot            decimal.Decimal `json:"jackpot"`
	MinJackpotAmount   decimal.Decimal `json:"min_jackpot_amount"`
	MinConsecutiveWins int             `json:"min_consecutive_wins"`
}

type PlayerResponse struct {
	game.Player
	Balance   decimal.Decimal `json:"balance"`
	Allowance decimal.Decimal `json:"allowance"`
}

type BalanceResponse struct {
	Account string          `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

type AllowanceResponse struct {
	Owner     string          `json:"owner"`
	Spender   string          `json:"spender"`
	Allowance decimal.Decimal `json:"allowance"`
}

// ConfigResponse exposes the immutable engine configuration.
type ConfigResponse struct {
	game.Config
	TokenName     string `json:"token_name"`
	EngineVersion string `json:"engine_version"`
}
