package token

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestMintAndTransfer(t *testing.T) {
	l := NewMemoryLedger("RPS Token", "0xtoken")

	require.NoError(t, l.Mint("alice", d(500)))
	require.True(t, l.TotalSupply().Equal(d(500)))

	require.NoError(t, l.Transfer("alice", "bob", d(200)))
	require.True(t, l.BalanceOf("alice").Equal(d(300)))
	require.True(t, l.BalanceOf("bob").Equal(d(200)))

	err := l.Transfer("bob", "alice", d(201))
	require.True(t, errors.Is(err, ErrInsufficientBalance), "got %v", err)
	require.True(t, l.BalanceOf("bob").Equal(d(200)))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewMemoryLedger("RPS Token", "0xtoken")
	require.NoError(t, l.Mint("alice", d(1000)))

	err := l.TransferFrom("engine", "alice", "engine", d(100))
	require.True(t, errors.Is(err, ErrInsufficientAllowance), "got %v", err)

	require.NoError(t, l.Approve("alice", "engine", d(150)))
	require.NoError(t, l.TransferFrom("engine", "alice", "engine", d(100)))
	require.True(t, l.Allowance("alice", "engine").Equal(d(50)))
	require.True(t, l.BalanceOf("engine").Equal(d(100)))

	err = l.TransferFrom("engine", "alice", "engine", d(100))
	require.True(t, errors.Is(err, ErrInsufficientAllowance), "got %v", err)
}

func TestTransferFromInsufficientBalance(t *testing.T) {
	l := NewMemoryLedger("RPS Token", "0xtoken")
	require.NoError(t, l.Mint("alice", d(10)))
	require.NoError(t, l.Approve("alice", "engine", d(100)))

	err := l.TransferFrom("engine", "alice", "engine", d(100))
	require.True(t, errors.Is(err, ErrInsufficientBalance), "got %v", err)
	require.True(t, l.Allowance("alice", "engine").Equal(d(100)), "allowance must be untouched on failure")
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	l := NewMemoryLedger("RPS Token", "0xtoken")
	require.ErrorIs(t, l.Mint("alice", d(0)), ErrInvalidAmount)
	require.ErrorIs(t, l.Transfer("alice", "bob", d(-1)), ErrInvalidAmount)
	require.ErrorIs(t, l.Approve("alice", "bob", d(-1)), ErrInvalidAmount)
	require.ErrorIs(t, l.Mint("", d(1)), ErrInvalidAccount)
}

func TestSnapshotRevert(t *testing.T) {
	l := NewMemoryLedger("RPS Token", "0xtoken")
	require.NoError(t, l.Mint("alice", d(300)))
	require.NoError(t, l.Approve("alice", "engine", d(300)))
	l.Finalise()

	snap := l.Snapshot()
	require.NoError(t, l.TransferFrom("engine", "alice", "engine", d(100)))
	require.NoError(t, l.Transfer("engine", "bob", d(100)))
	require.NoError(t, l.Mint("carol", d(7)))
	l.RevertToSnapshot(snap)

	require.True(t, l.BalanceOf("alice").Equal(d(300)))
	require.True(t, l.BalanceOf("engine").IsZero())
	require.True(t, l.BalanceOf("bob").IsZero())
	require.True(t, l.BalanceOf("carol").IsZero())
	require.True(t, l.Allowance("alice", "engine").Equal(d(300)))
	require.True(t, l.TotalSupply().Equal(d(300)))
	require.True(t, l.Changes(snap).Empty())
}

func TestChangesReportsTouchedEntries(t *testing.T) {
	l := NewMemoryLedger("RPS Token", "0xtoken")
	require.NoError(t, l.Mint("alice", d(300)))
	require.NoError(t, l.Approve("alice", "engine", d(100)))
	require.NoError(t, l.Approve("alice", "engine", d(120)))

	ch := l.Changes(0)
	require.Len(t, ch.Balances, 1)
	require.True(t, ch.Balances["alice"].Equal(d(300)))
	require.Len(t, ch.Allowances, 1)
	require.True(t, ch.Allowances[0].Amount.Equal(d(120)))
	require.True(t, ch.TotalSupply.Equal(d(300)))

	snap := l.Snapshot()
	require.NoError(t, l.Approve("bob", "engine", d(1)))
	since := l.Changes(snap)
	require.Len(t, since.Allowances, 1)
	require.Equal(t, "bob", since.Allowances[0].Owner)
	require.Empty(t, since.Balances)

	l.Finalise()
	require.True(t, l.Changes(0).Empty())
}

func TestRestore(t *testing.T) {
	l := NewMemoryLedger("RPS Token", "0xtoken")
	l.Restore(map[string]decimal.Decimal{"alice": d(42)}, []AllowanceEntry{{Owner: "alice", Spender: "engine", Amount: d(5)}}, d(42))

	require.True(t, l.BalanceOf("alice").Equal(d(42)))
	require.True(t, l.Allowance("alice", "engine").Equal(d(5)))
	require.Equal(t, []string{"alice"}, l.Accounts())
}
