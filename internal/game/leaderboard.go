package game

import "sort"

// Standing is one leaderboard row.
type Standing struct {
	Account string `json:"account"`
	Wins    uint64 `json:"wins"`
}

type boardEntry struct {
	wins uint64
	seq  uint64
}

// Leaderboard ranks players by total wins, highest first. Ties keep the order
// in which players recorded their first win. Players without a win are not
// listed. It is guarded by the owning Manager's lock.
type Leaderboard struct {
	entries map[string]boardEntry
	seq     uint64
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{entries: make(map[string]boardEntry)}
}

// RecordWin increments account's win count, registering it if new, and
// returns the account's registration sequence.
func (l *Leaderboard) RecordWin(account string) uint64 {
	e, ok := l.entries[account]
	if !ok {
		l.seq++
		e.seq = l.seq
	}
	e.wins++
	l.entries[account] = e
	return e.seq
}

// set installs a player's persisted totals.
func (l *Leaderboard) set(p *Player) {
	if p.WinSeq == 0 || p.TotalWins == 0 {
		return
	}
	l.entries[p.Account] = boardEntry{wins: p.TotalWins, seq: p.WinSeq}
	if p.WinSeq > l.seq {
		l.seq = p.WinSeq
	}
}

// Wins returns the recorded wins of account.
func (l *Leaderboard) Wins(account string) uint64 {
	return l.entries[account].wins
}

// TotalWins sums wins across all players.
func (l *Leaderboard) TotalWins() uint64 {
	var n uint64
	for _, e := range l.entries {
		n += e.wins
	}
	return n
}

func (l *Leaderboard) Len() int { return len(l.entries) }

// Standings returns the ranked table.
func (l *Leaderboard) Standings() []Standing {
	type row struct {
		Standing
		seq uint64
	}
	rows := make([]row, 0, len(l.entries))
	for acct, e := range l.entries {
		rows = append(rows, row{Standing{Account: acct, Wins: e.wins}, e.seq})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]Standing, len(rows))
	for i, r := range rows {
		out[i] = r.Standing
	}
	return out
}
