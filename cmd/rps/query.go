package main

import (
	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/MJE43/rps-commit-reveal/internal/api"
	"github.com/MJE43/rps-commit-reveal/internal/game"
)

func winnerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "winner [game-id]",
		Short: "Show the winner of a game, the latest one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			var id uint64
			if len(args) == 1 {
				if id, err = parseGameID(args[0]); err != nil {
					return err
				}
			} else {
				counter, err := c.Counter(cmd.Context())
				if err != nil {
					return err
				}
				if counter.GameCounter == 0 {
					pterm.Info.Println("no games played yet")
					return nil
				}
				id = counter.GameCounter
			}
			w, err := c.Winner(cmd.Context(), id)
			if err != nil {
				return err
			}
			switch {
			case w.Draw:
				pterm.Info.Printfln("game #%d ended in a draw", w.GameID)
			case w.Winner == "":
				pterm.Info.Printfln("game #%d ended without a winner (%s)", w.GameID, w.Outcome)
			default:
				pterm.Success.Printfln("game #%d won by %s (%s)", w.GameID, w.Winner, w.Outcome)
			}
			return nil
		},
	}
}

func gameCmd(a *app) *cobra.Command {
	var (
		phase  string
		player string
		limit  int
		events bool
	)
	cmd := &cobra.Command{
		Use:   "game [game-id]",
		Short: "Show one game, or list games newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if len(args) == 0 {
				f := game.Filter{Player: player, Limit: limit}
				if phase != "" {
					if f.Phase, err = game.ParsePhase(phase); err != nil {
						return err
					}
				}
				games, err := c.ListGames(ctx, f)
				if err != nil {
					return err
				}
				return renderGames(games)
			}

			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			g, err := c.Game(ctx, id)
			if err != nil {
				return err
			}
			renderGame(g)
			if !events {
				return nil
			}
			evs, err := c.Events(ctx, id)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"Time", "Event", "Account"}}
			for _, ev := range evs {
				data = append(data, []string{ev.At.Local().Format("15:04:05"), string(ev.Type), ev.Account})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "filter by phase (created, commit, reveal, settled, cancelled)")
	cmd.Flags().StringVar(&player, "player", "", "filter by participant")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum games to list")
	cmd.Flags().BoolVar(&events, "events", false, "also print the game's event log")
	return cmd
}

func leaderboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show players ranked by wins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			standings, err := c.Leaderboard(cmd.Context())
			if err != nil {
				return err
			}
			return renderStandings(standings)
		},
	}
}

func jackpotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "jackpot",
		Short: "Show the jackpot pool and its payout rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			j, err := c.Jackpot(cmd.Context())
			if err != nil {
				return err
			}
			pterm.Info.Printfln("jackpot %s, paid to a winner on %d consecutive wins once it reaches %s",
				j.Jackpot, j.MinConsecutiveWins, j.MinJackpotAmount)
			return nil
		},
	}
}

func playerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "player <account>",
		Short: "Show a player's streak, wins and token position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			p, err := c.Player(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return pterm.DefaultTable.WithData(pterm.TableData{
				{"Account", p.Account},
				{"Balance", p.Balance.String()},
				{"Allowance", p.Allowance.String()},
				{"Total wins", pterm.Sprint(p.TotalWins)},
				{"Streak", pterm.Sprint(p.ConsecutiveWins)},
				{"Last game", pterm.Sprint(p.LastGame)},
			}).Render()
		},
	}
}

func balanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Show a token balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			bal, err := c.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pterm.Printfln("%s %s", args[0], bal)
			return nil
		},
	}
}

func mintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <account> <amount>",
		Short: "Mint tokens to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			bal, err := c.Mint(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("minted %s to %s, balance %s", amount, args[0], bal)
			return nil
		},
	}
}

func approveCmd(a *app) *cobra.Command {
	var spender string
	cmd := &cobra.Command{
		Use:   "approve <owner> <amount>",
		Short: "Allow a spender, the engine escrow by default, to move tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			allowance, err := c.Approve(cmd.Context(), args[0], spender, amount)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("%s allowance is now %s", args[0], allowance)
			return nil
		},
	}
	cmd.Flags().StringVar(&spender, "spender", "", "spender account, defaults to the engine escrow")
	return cmd
}

func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and daemon versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			local := api.GetVersionInfo()
			pterm.Printfln("client %s %s %s", local.EngineVersion, local.GitCommit, local.BuildTime)
			c, err := a.client()
			if err != nil {
				return err
			}
			remote, err := c.Version(cmd.Context())
			if err != nil {
				pterm.Warning.Printfln("daemon unreachable: %s", describe(err))
				return nil
			}
			pterm.Printfln("daemon %s %s %s", remote.EngineVersion, remote.GitCommit, remote.BuildTime)
			return nil
		},
	}
}
