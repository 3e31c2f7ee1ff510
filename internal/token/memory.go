package token

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

type allowanceKey struct {
	owner   string
	spender string
}

// journalEntry records the previous value of one slot so it can be restored.
type journalEntry struct {
	balance   *string
	allowance *allowanceKey
	supply    bool
	prev      decimal.Decimal
}

// MemoryLedger is an in-process Ledger. It is safe for concurrent use, but
// snapshot ids are only meaningful to a single writer at a time.
type MemoryLedger struct {
	name    string
	address string

	mu         sync.RWMutex
	balances   map[string]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
	supply     decimal.Decimal
	journal    []journalEntry
}

// NewMemoryLedger creates an empty ledger identified by address.
func NewMemoryLedger(name, address string) *MemoryLedger {
	return &MemoryLedger{
		name:       name,
		address:    address,
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
		supply:     decimal.Zero,
	}
}

func (l *MemoryLedger) Name() string    { return l.name }
func (l *MemoryLedger) Address() string { return l.address }

// Restore replaces the ledger contents, typically with state loaded from disk.
func (l *MemoryLedger) Restore(balances map[string]decimal.Decimal, allowances []AllowanceEntry, supply decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[string]decimal.Decimal, len(balances))
	for k, v := range balances {
		l.balances[k] = v
	}
	l.allowances = make(map[allowanceKey]decimal.Decimal, len(allowances))
	for _, a := range allowances {
		l.allowances[allowanceKey{a.Owner, a.Spender}] = a.Amount
	}
	l.supply = supply
	l.journal = nil
}

func (l *MemoryLedger) BalanceOf(account string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account)
}

func (l *MemoryLedger) Allowance(owner, spender string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.allowances[allowanceKey{owner, spender}]; ok {
		return v
	}
	return decimal.Zero
}

func (l *MemoryLedger) TotalSupply() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// Accounts returns every account holding a balance entry, sorted.
func (l *MemoryLedger) Accounts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.balances))
	for k := range l.balances {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (l *MemoryLedger) Approve(owner, spender string, amount decimal.Decimal) error {
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(spender) == "" {
		return ErrInvalidAccount
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowanceLocked(allowanceKey{owner, spender}, amount)
	return nil
}

func (l *MemoryLedger) Transfer(from, to string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == "" || to == "" {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

func (l *MemoryLedger) TransferFrom(spender, from, to string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if spender == "" || from == "" || to == "" {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{from, spender}
	allowed := l.allowances[key]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s allowed %s to spend %s, need %s", ErrInsufficientAllowance, from, spender, allowed, amount)
	}
	if l.balanceLocked(from).LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance, from, l.balanceLocked(from), amount)
	}
	l.setAllowanceLocked(key, allowed.Sub(amount))
	return l.moveLocked(from, to, amount)
}

func (l *MemoryLedger) Mint(to string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == "" {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setBalanceLocked(to, l.balanceLocked(to).Add(amount))
	l.journal = append(l.journal, journalEntry{supply: true, prev: l.supply})
	l.supply = l.supply.Add(amount)
	return nil
}

func (l *MemoryLedger) Snapshot() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.journal)
}

func (l *MemoryLedger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		e := l.journal[i]
		switch {
		case e.supply:
			l.supply = e.prev
		case e.balance != nil:
			l.balances[*e.balance] = e.prev
		case e.allowance != nil:
			l.allowances[*e.allowance] = e.prev
		}
	}
	l.journal = l.journal[:id]
}

func (l *MemoryLedger) Changes(id int) Changes {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ch := Changes{Balances: make(map[string]decimal.Decimal), TotalSupply: l.supply}
	if id < 0 || id > len(l.journal) {
		id = 0
	}
	seen := make(map[allowanceKey]bool)
	for _, e := range l.journal[id:] {
		switch {
		case e.balance != nil:
			ch.Balances[*e.balance] = l.balances[*e.balance]
		case e.allowance != nil:
			if !seen[*e.allowance] {
				seen[*e.allowance] = true
				k := *e.allowance
				ch.Allowances = append(ch.Allowances, AllowanceEntry{Owner: k.owner, Spender: k.spender, Amount: l.allowances[k]})
			}
		}
	}
	return ch
}

func (l *MemoryLedger) Finalise() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = nil
}

func (l *MemoryLedger) balanceLocked(account string) decimal.Decimal {
	if v, ok := l.balances[account]; ok {
		return v
	}
	return decimal.Zero
}

func (l *MemoryLedger) moveLocked(from, to string, amount decimal.Decimal) error {
	have := l.balanceLocked(from)
	if have.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance, from, have, amount)
	}
	l.setBalanceLocked(from, have.Sub(amount))
	l.setBalanceLocked(to, l.balanceLocked(to).Add(amount))
	return nil
}

func (l *MemoryLedger) setBalanceLocked(account string, v decimal.Decimal) {
	acct := account
	l.journal = append(l.journal, journalEntry{balance: &acct, prev: l.balanceLocked(account)})
	l.balances[account] = v
}

func (l *MemoryLedger) setAllowanceLocked(key allowanceKey, v decimal.Decimal) {
	k := key
	prev := l.allowances[key]
	l.journal = append(l.journal, journalEntry{allowance: &k, prev: prev})
	l.allowances[key] = v
}
