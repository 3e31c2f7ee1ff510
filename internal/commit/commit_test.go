package commit

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestHashMoveDeterministic(t *testing.T) {
	nonce := common.HexToHash("0x5f1e7c0d2a4b6e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f")
	for _, m := range []Move{Rock, Paper, Scissors} {
		a := HashMove(m, nonce)
		b := HashMove(m, nonce)
		if a != b {
			t.Fatalf("%s: hash not deterministic: %s != %s", m, a.Hex(), b.Hex())
		}
	}
}

func TestHashMovePacking(t *testing.T) {
	nonce := common.HexToHash("0x01")
	want := crypto.Keccak256Hash(append([]byte{byte(Paper)}, nonce.Bytes()...))
	if got := HashMove(Paper, nonce); got != want {
		t.Fatalf("expected %s, got %s", want.Hex(), got.Hex())
	}
}

func TestHashMoveDistinctNonces(t *testing.T) {
	seen := make(map[common.Hash]bool)
	for i := 0; i < 256; i++ {
		n, err := NewNonce()
		if err != nil {
			t.Fatalf("NewNonce: %v", err)
		}
		h := HashMove(Rock, n)
		if seen[h] {
			t.Fatalf("collision after %d nonces", i)
		}
		seen[h] = true
	}
}

func TestHashMoveDistinctMoves(t *testing.T) {
	n, _ := NewNonce()
	if HashMove(Rock, n) == HashMove(Paper, n) || HashMove(Paper, n) == HashMove(Scissors, n) {
		t.Fatal("different moves produced the same commitment")
	}
}

func TestVerify(t *testing.T) {
	n, _ := NewNonce()
	h := HashMove(Scissors, n)

	if !Verify(h, Scissors, n) {
		t.Fatal("expected matching reveal to verify")
	}
	if Verify(h, Rock, n) {
		t.Fatal("wrong move verified")
	}
	other, _ := NewNonce()
	if Verify(h, Scissors, other) {
		t.Fatal("wrong nonce verified")
	}
	if Verify(HashMove(None, n), None, n) {
		t.Fatal("none must never verify")
	}
}

func TestResolveTable(t *testing.T) {
	tests := []struct {
		a, b Move
		want Result
	}{
		{Rock, Rock, Draw},
		{Rock, Paper, SecondWins},
		{Rock, Scissors, FirstWins},
		{Paper, Rock, FirstWins},
		{Paper, Paper, Draw},
		{Paper, Scissors, SecondWins},
		{Scissors, Rock, SecondWins},
		{Scissors, Paper, FirstWins},
		{Scissors, Scissors, Draw},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Resolve(%s, %s): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestResolveSymmetric(t *testing.T) {
	moves := []Move{Rock, Paper, Scissors}
	for _, a := range moves {
		for _, b := range moves {
			ab, _ := Resolve(a, b)
			ba, _ := Resolve(b, a)
			switch ab {
			case Draw:
				if ba != Draw {
					t.Errorf("%s/%s not symmetric", a, b)
				}
			case FirstWins:
				if ba != SecondWins {
					t.Errorf("%s/%s not symmetric", a, b)
				}
			case SecondWins:
				if ba != FirstWins {
					t.Errorf("%s/%s not symmetric", a, b)
				}
			}
		}
	}
}

func TestResolveInvalid(t *testing.T) {
	if _, err := Resolve(None, Rock); err != ErrInvalidMove {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
	if _, err := Resolve(Rock, Move(9)); err != ErrInvalidMove {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
}

func TestParseMove(t *testing.T) {
	for in, want := range map[string]Move{"rock": Rock, "PAPER": Paper, " s ": Scissors, "1": Rock, "3": Scissors} {
		got, err := ParseMove(in)
		if err != nil || got != want {
			t.Errorf("ParseMove(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMove("lizard"); err == nil {
		t.Error("expected error for unknown move")
	}
}

func TestParseNonce(t *testing.T) {
	n, _ := NewNonce()
	parsed, err := ParseNonce(n.Hex())
	if err != nil {
		t.Fatalf("ParseNonce: %v", err)
	}
	if !bytes.Equal(parsed.Bytes(), n.Bytes()) {
		t.Fatal("round trip mismatch")
	}
	if _, err := ParseNonce("0x1234"); err == nil {
		t.Fatal("expected short nonce to fail")
	}
	if _, err := ParseHash("zz"); err == nil {
		t.Fatal("expected bad hex to fail")
	}
}
