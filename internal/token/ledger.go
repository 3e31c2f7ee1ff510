// Package token provides the fungible token ledger the game engine escrows
// wagers against. Semantics follow ERC-20: balances, allowances granted by an
// owner to a spender, and TransferFrom consuming allowance.
package token

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrInvalidAccount        = errors.New("token: account is required")
)

// Ledger is the interface the engine needs from a token. Snapshot and
// RevertToSnapshot let a caller undo every write made since the snapshot so
// multi-leg settlements apply all-or-nothing.
type Ledger interface {
	Name() string
	Address() string
	BalanceOf(account string) decimal.Decimal
	Allowance(owner, spender string) decimal.Decimal
	TotalSupply() decimal.Decimal

	Approve(owner, spender string, amount decimal.Decimal) error
	Transfer(from, to string, amount decimal.Decimal) error
	TransferFrom(spender, from, to string, amount decimal.Decimal) error
	Mint(to string, amount decimal.Decimal) error

	Snapshot() int
	RevertToSnapshot(id int)
	// Changes lists the balances and allowances written since snapshot id.
	Changes(id int) Changes
	// Finalise drops the journal. Snapshots taken before it become invalid.
	Finalise()
}

// Changes lists the ledger entries touched by a committed operation.
type Changes struct {
	Balances    map[string]decimal.Decimal `json:"balances,omitempty"`
	Allowances  []AllowanceEntry           `json:"allowances,omitempty"`
	TotalSupply decimal.Decimal            `json:"total_supply"`
}

// AllowanceEntry is one owner/spender grant.
type AllowanceEntry struct {
	Owner   string          `json:"owner"`
	Spender string          `json:"spender"`
	Amount  decimal.Decimal `json:"amount"`
}

// Empty reports whether no balance or allowance changed.
func (c Changes) Empty() bool {
	return len(c.Balances) == 0 && len(c.Allowances) == 0
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}
