package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is fixed when the Manager is constructed.
type Config struct {
	// TokenLedgerAddress identifies the token the wagers are denominated in.
	TokenLedgerAddress string `json:"token_ledger_address"`
	// EscrowAccount holds escrowed wagers and the jackpot pool. Players
	// approve it as spender before entering a game.
	EscrowAccount      string          `json:"escrow_account"`
	WagerAmount        decimal.Decimal `json:"wager_amount"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
	MinConsecutiveWins int             `json:"min_consecutive_wins"`
	MinJackpotAmount   decimal.Decimal `json:"min_jackpot_amount"`
	CommitTimeout      time.Duration   `json:"commit_timeout"`
	RevealTimeout      time.Duration   `json:"reveal_timeout"`
}

// DefaultConfig returns the deployed wager and fee. The streak threshold,
// jackpot minimum and phase timeouts were never deployment parameters; the
// values here are local defaults.
func DefaultConfig() Config {
	return Config{
		TokenLedgerAddress: "rps-token",
		EscrowAccount:      "rps-engine",
		WagerAmount:        decimal.NewFromInt(100),
		FeeAmount:          decimal.NewFromInt(1),
		MinConsecutiveWins: 3,
		MinJackpotAmount:   decimal.NewFromInt(10),
		CommitTimeout:      10 * time.Minute,
		RevealTimeout:      10 * time.Minute,
	}
}

// Pot is the total escrowed by both seats.
func (c Config) Pot() decimal.Decimal {
	return c.WagerAmount.Mul(decimal.NewFromInt(2))
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.TokenLedgerAddress) == "" {
		return fmt.Errorf("game: token ledger address is required")
	}
	if strings.TrimSpace(c.EscrowAccount) == "" {
		return fmt.Errorf("game: escrow account is required")
	}
	if !c.WagerAmount.IsPositive() {
		return fmt.Errorf("game: wager amount must be positive, got %s", c.WagerAmount)
	}
	if c.FeeAmount.IsNegative() {
		return fmt.Errorf("game: fee amount must not be negative, got %s", c.FeeAmount)
	}
	if c.FeeAmount.GreaterThan(c.Pot()) {
		return fmt.Errorf("game: fee %s exceeds pot %s", c.FeeAmount, c.Pot())
	}
	if c.MinConsecutiveWins < 1 {
		return fmt.Errorf("game: min consecutive wins must be at least 1, got %d", c.MinConsecutiveWins)
	}
	if c.MinJackpotAmount.IsNegative() {
		return fmt.Errorf("game: min jackpot amount must not be negative, got %s", c.MinJackpotAmount)
	}
	if c.CommitTimeout <= 0 || c.RevealTimeout <= 0 {
		return fmt.Errorf("game: phase timeouts must be positive")
	}
	return nil
}
