// Package commit implements the hiding and binding commitment used by players
// to lock in a move before their opponent reveals theirs.
//
// A commitment is keccak256(uint8(move) ‖ nonce) where nonce is 32 bytes. This
// is the same packing as solidityKeccak256(["uint8","bytes32"], [move, nonce]),
// so hashes computed by wallets and browser clients verify here unchanged.
package commit

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// NonceLength is the width of a nonce in bytes.
const NonceLength = common.HashLength

// Nonce is the secret blinding value a player keeps until reveal.
type Nonce = common.Hash

// NewNonce returns a fresh random nonce.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, fmt.Errorf("commit: read random nonce: %w", err)
	}
	return n, nil
}

// ParseNonce decodes a 0x-prefixed 32 byte hex string.
func ParseNonce(s string) (Nonce, error) {
	return parseHash(s, "nonce")
}

// ParseHash decodes a 0x-prefixed 32 byte hex commitment.
func ParseHash(s string) (common.Hash, error) {
	return parseHash(s, "hash")
}

func parseHash(s, what string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit: invalid %s: %w", what, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("commit: %s must be %d bytes, got %d", what, common.HashLength, len(raw))
	}
	return common.BytesToHash(raw), nil
}

// HashMove computes the commitment for move and nonce. It is pure and deterministic.
func HashMove(move Move, nonce Nonce) common.Hash {
	buf := make([]byte, 0, 1+NonceLength)
	buf = append(buf, byte(move))
	buf = append(buf, nonce.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// Verify reports whether hash was produced from move and nonce.
func Verify(hash common.Hash, move Move, nonce Nonce) bool {
	return move.Valid() && HashMove(move, nonce) == hash
}
