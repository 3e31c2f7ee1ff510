package main

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/secrets"
)

func parseGameID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("invalid game id %q", s)
	}
	return id, nil
}

func hashCmd() *cobra.Command {
	var rawNonce string
	cmd := &cobra.Command{
		Use:   "hash <move>",
		Short: "Compute a move commitment locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			move, err := commit.ParseMove(args[0])
			if err != nil {
				return err
			}
			var nonce commit.Nonce
			if rawNonce == "" {
				if nonce, err = commit.NewNonce(); err != nil {
					return err
				}
			} else if nonce, err = commit.ParseNonce(rawNonce); err != nil {
				return err
			}
			pterm.Printfln("move:  %s", move)
			pterm.Printfln("nonce: %s", nonce.Hex())
			pterm.Printfln("hash:  %s", commit.HashMove(move, nonce).Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&rawNonce, "nonce", "", "32 byte hex nonce, random when omitted")
	return cmd
}

func nonceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nonce",
		Short: "Print a fresh random nonce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := commit.NewNonce()
			if err != nil {
				return err
			}
			pterm.Println(n.Hex())
			return nil
		},
	}
}

func createCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <player-a> <player-b>",
		Short: "Open a game between two named players and escrow both wagers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			g, err := c.CreateGame(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			renderGame(g)
			return nil
		},
	}
}

// commitAndStore draws a nonce, sends the commitment through send and
// remembers the secret in the vault.
func (a *app) commitAndStore(player string, move commit.Move, send func(commit.Nonce) (game.Game, error)) error {
	nonce, err := commit.NewNonce()
	if err != nil {
		return err
	}
	g, err := send(nonce)
	if err != nil {
		return err
	}
	if err := a.vault().Save(player, secrets.Pending{GameID: g.ID, Move: move, Nonce: nonce}); err != nil {
		pterm.Warning.Printfln("committed to game #%d but could not store the reveal secret: %v", g.ID, err)
		pterm.Warning.Printfln("keep this to reveal later: move=%s nonce=%s", move, nonce.Hex())
		return err
	}
	renderGame(g)
	pterm.Success.Printfln("%s committed to game #%d; reveal with: rps reveal --player %s", player, g.ID, player)
	return nil
}

func playCmd(a *app) *cobra.Command {
	var (
		player  string
		approve bool
	)
	cmd := &cobra.Command{
		Use:   "play <rock|paper|scissors>",
		Short: "Approve the wager, commit a move through matchmaking and keep the secret for reveal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			move, err := commit.ParseMove(args[0])
			if err != nil {
				return err
			}
			if !move.Valid() {
				return errors.Errorf("cannot play %s", move)
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if approve {
				cfg, err := c.EngineConfig(ctx)
				if err != nil {
					return err
				}
				if _, err := c.Approve(ctx, player, "", cfg.WagerAmount); err != nil {
					return err
				}
			}
			return a.commitAndStore(player, move, func(n commit.Nonce) (game.Game, error) {
				return c.CommitMove(ctx, player, commit.HashMove(move, n))
			})
		},
	}
	cmd.Flags().StringVarP(&player, "player", "p", "", "player account")
	cmd.Flags().BoolVar(&approve, "approve", true, "approve the engine for one wager before committing")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}

func commitCmd(a *app) *cobra.Command {
	var player string
	cmd := &cobra.Command{
		Use:   "commit <game-id> <move>",
		Short: "Commit a move to a game created for you",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			move, err := commit.ParseMove(args[1])
			if err != nil {
				return err
			}
			if !move.Valid() {
				return errors.Errorf("cannot commit %s", move)
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			return a.commitAndStore(player, move, func(n commit.Nonce) (game.Game, error) {
				return c.Commit(cmd.Context(), id, player, commit.HashMove(move, n))
			})
		},
	}
	cmd.Flags().StringVarP(&player, "player", "p", "", "player account")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}

func revealCmd(a *app) *cobra.Command {
	var (
		player   string
		rawMove  string
		rawNonce string
	)
	cmd := &cobra.Command{
		Use:   "reveal [game-id]",
		Short: "Reveal a committed move, from the vault unless --move and --nonce are given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				id    uint64
				move  commit.Move
				nonce commit.Nonce
				err   error
			)
			if len(args) == 1 {
				if id, err = parseGameID(args[0]); err != nil {
					return err
				}
			}
			fromVault := rawMove == "" && rawNonce == ""
			switch {
			case fromVault:
				p, err := a.vault().Load(player)
				if errors.Is(err, secrets.ErrNotFound) {
					return errors.Errorf("no pending reveal stored for %s; pass --move and --nonce", player)
				}
				if err != nil {
					return err
				}
				if id != 0 && id != p.GameID {
					return errors.Errorf("stored reveal for %s is for game #%d, not #%d", player, p.GameID, id)
				}
				id, move, nonce = p.GameID, p.Move, p.Nonce
			case rawMove == "" || rawNonce == "":
				return errors.New("--move and --nonce must be given together")
			default:
				if move, err = commit.ParseMove(rawMove); err != nil {
					return err
				}
				if nonce, err = commit.ParseNonce(rawNonce); err != nil {
					return err
				}
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			var g game.Game
			if id == 0 {
				g, err = c.RevealLast(cmd.Context(), player, move, nonce)
			} else {
				g, err = c.Reveal(cmd.Context(), id, player, move, nonce)
			}
			if err != nil {
				return err
			}
			if fromVault {
				if err := a.vault().Delete(player); err != nil {
					pterm.Warning.Printfln("revealed but could not clear the vault: %v", err)
				}
			}
			renderGame(g)
			return nil
		},
	}
	cmd.Flags().StringVarP(&player, "player", "p", "", "player account")
	cmd.Flags().StringVar(&rawMove, "move", "", "move to reveal")
	cmd.Flags().StringVar(&rawNonce, "nonce", "", "nonce used in the commitment")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}

func cancelCmd(a *app) *cobra.Command {
	return gameActionCmd(a, "cancel", "Cancel a game and refund escrowed wagers", func(cmd *cobra.Command, id uint64, player string) (game.Game, error) {
		c, err := a.client()
		if err != nil {
			return game.Game{}, err
		}
		return c.Cancel(cmd.Context(), id, player)
	})
}

func forfeitCmd(a *app) *cobra.Command {
	return gameActionCmd(a, "forfeit", "Claim the pot after the opponent missed the reveal deadline", func(cmd *cobra.Command, id uint64, player string) (game.Game, error) {
		c, err := a.client()
		if err != nil {
			return game.Game{}, err
		}
		return c.ClaimForfeit(cmd.Context(), id, player)
	})
}

func gameActionCmd(a *app, use, short string, fn func(cmd *cobra.Command, id uint64, player string) (game.Game, error)) *cobra.Command {
	var player string
	cmd := &cobra.Command{
		Use:   use + " <game-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			g, err := fn(cmd, id, player)
			if err != nil {
				return err
			}
			if p, err := a.vault().Load(player); err == nil && p.GameID == id {
				_ = a.vault().Delete(player)
			}
			renderGame(g)
			return nil
		},
	}
	cmd.Flags().StringVarP(&player, "player", "p", "", "player account")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}
