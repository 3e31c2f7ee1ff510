package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"

	"github.com/MJE43/rps-commit-reveal/internal/client"
	"github.com/MJE43/rps-commit-reveal/internal/game"
)

// describe turns daemon errors into one readable line.
func describe(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Engine.Message != "" {
		return fmt.Sprintf("%s (%s)", apiErr.Engine.Message, apiErr.Type())
	}
	return err.Error()
}

func phaseColor(p game.Phase) string {
	switch p {
	case game.PhaseSettled:
		return pterm.LightGreen(p.String())
	case game.PhaseCancelled:
		return pterm.LightRed(p.String())
	case game.PhaseReveal:
		return pterm.LightYellow(p.String())
	default:
		return pterm.LightCyan(p.String())
	}
}

func seatLine(s game.Seat) string {
	if s.Player == "" {
		return pterm.Gray("(waiting)")
	}
	state := "joined"
	switch {
	case s.Revealed:
		state = "revealed " + s.Move.String()
	case s.Committed:
		state = "committed " + s.Hash.Hex()[:10] + "…"
	}
	return fmt.Sprintf("%s  %s", s.Player, pterm.Gray(state))
}

func renderGame(g game.Game) {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase:    %s\n", phaseColor(g.Phase))
	fmt.Fprintf(&b, "Wager:    %s (fee %s)\n", g.Wager, g.Fee)
	fmt.Fprintf(&b, "Seat A:   %s\n", seatLine(g.Seats[0]))
	fmt.Fprintf(&b, "Seat B:   %s\n", seatLine(g.Seats[1]))
	if !g.Deadline.IsZero() && !g.Phase.Terminal() {
		fmt.Fprintf(&b, "Deadline: %s\n", g.Deadline.Local().Format(time.RFC3339))
	}
	if g.Phase.Terminal() {
		fmt.Fprintf(&b, "Outcome:  %s\n", g.Outcome)
		if g.Winner != "" {
			fmt.Fprintf(&b, "Winner:   %s (+%s)\n", pterm.LightGreen(g.Winner), g.Payout)
		}
		if g.JackpotPaid.IsPositive() {
			fmt.Fprintf(&b, "Jackpot:  %s\n", g.JackpotPaid)
		}
	}
	pterm.DefaultBox.
		WithTitle(pterm.LightYellow(fmt.Sprintf("GAME #%d", g.ID))).
		WithTitleTopCenter().
		WithLeftPadding(2).WithRightPadding(2).
		Println(strings.TrimRight(b.String(), "\n"))
}

func renderGames(games []game.Game) error {
	data := pterm.TableData{{"ID", "Phase", "Player A", "Player B", "Outcome", "Winner"}}
	for _, g := range games {
		data = append(data, []string{
			fmt.Sprint(g.ID),
			phaseColor(g.Phase),
			g.Seats[0].Player,
			g.Seats[1].Player,
			g.Outcome.String(),
			g.Winner,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderStandings(standings []game.Standing) error {
	if len(standings) == 0 {
		pterm.Info.Println("no winners yet")
		return nil
	}
	data := pterm.TableData{{"#", "Account", "Wins"}}
	for i, s := range standings {
		data = append(data, []string{fmt.Sprint(i + 1), s.Account, fmt.Sprint(s.Wins)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
