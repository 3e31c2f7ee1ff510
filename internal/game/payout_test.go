package game

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPlanDecisive(t *testing.T) {
	cfg := DefaultConfig()
	g := &Game{ID: 1, Wager: dec(100), Fee: dec(1)}

	tests := []struct {
		name        string
		streak      int
		jackpot     int64
		wantStreak  int
		wantPaid    int64
		wantJackpot int64
		wantLegs    int
	}{
		{"first win", 0, 0, 1, 0, 1, 1},
		{"streak below threshold", 1, 50, 2, 0, 51, 1},
		{"streak hits threshold", 2, 50, 0, 51, 0, 2},
		{"pool below minimum", 5, 5, 6, 0, 6, 1},
		{"pool reaches minimum with fee", 2, 9, 0, 10, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := planDecisive(cfg, g, OutcomeWin, "w", "l", tt.streak, dec(tt.jackpot))
			if !s.Payout.Equal(dec(199)) {
				t.Fatalf("payout = %s, want 199", s.Payout)
			}
			if s.WinnerStreak != tt.wantStreak {
				t.Errorf("streak = %d, want %d", s.WinnerStreak, tt.wantStreak)
			}
			if !s.JackpotPaid.Equal(dec(tt.wantPaid)) {
				t.Errorf("jackpot paid = %s, want %d", s.JackpotPaid, tt.wantPaid)
			}
			if !s.JackpotAfter.Equal(dec(tt.wantJackpot)) {
				t.Errorf("jackpot after = %s, want %d", s.JackpotAfter, tt.wantJackpot)
			}
			if len(s.Transfers) != tt.wantLegs {
				t.Errorf("transfers = %d, want %d", len(s.Transfers), tt.wantLegs)
			}
			if !s.RecordWin {
				t.Error("decisive settlements record a win")
			}
		})
	}
}

func TestPlanDecisiveConservesValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConsecutiveWins = 1
	cfg.MinJackpotAmount = decimal.Zero
	g := &Game{ID: 1, Wager: dec(100), Fee: dec(7)}

	s := planDecisive(cfg, g, OutcomeForfeit, "w", "l", 0, dec(30))
	out := decimal.Zero
	for _, tr := range s.Transfers {
		out = out.Add(tr.Amount)
	}
	// pot + prior pool leaves escrow entirely
	if !out.Equal(dec(230)) {
		t.Fatalf("paid out %s, want 230", out)
	}
	if s.Outcome != OutcomeForfeit {
		t.Fatalf("outcome = %s", s.Outcome)
	}
}

func TestPlanRefund(t *testing.T) {
	g := &Game{ID: 1, Wager: dec(100)}
	g.Seats[0] = Seat{Player: "a", Escrowed: true}
	g.Seats[1] = Seat{Player: "b"}

	s := planRefund(g, dec(4))
	if len(s.Transfers) != 1 || s.Transfers[0].To != "a" {
		t.Fatalf("unexpected transfers: %+v", s.Transfers)
	}
	if !s.JackpotAfter.Equal(dec(4)) || s.RecordWin {
		t.Fatal("refunds must not touch the pool or the leaderboard")
	}

	g.Seats[1].Escrowed = true
	d := planDraw(g, dec(4))
	if d.Outcome != OutcomeDraw || len(d.Transfers) != 2 {
		t.Fatalf("unexpected draw plan: %+v", d)
	}
}
