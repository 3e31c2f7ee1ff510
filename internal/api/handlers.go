package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/game"
)

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	var req HashRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	move, nonce, err := parseSecret(req.Move, req.Nonce)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HashResponse{Hash: commit.HashMove(move, nonce), Move: move})
}

func parseSecret(rawMove, rawNonce string) (commit.Move, commit.Nonce, error) {
	move, err := commit.ParseMove(rawMove)
	if err != nil {
		return 0, commit.Nonce{}, invalid("move", "%v", err)
	}
	nonce, err := commit.ParseNonce(rawNonce)
	if err != nil {
		return 0, commit.Nonce{}, invalid("nonce", "%v", err)
	}
	return move, nonce, nil
}

func parseCommit(req CommitRequest) (common.Hash, error) {
	if err := requireAccount("player", req.Player); err != nil {
		return common.Hash{}, err
	}
	h, err := commit.ParseHash(req.Hash)
	if err != nil {
		return common.Hash{}, invalid("hash", "%v", err)
	}
	if h == (common.Hash{}) {
		return common.Hash{}, invalid("hash", "must not be zero")
	}
	return h, nil
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.engine.CreateGame(r.Context(), req.PlayerA, req.PlayerB)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, g)
}

// handleCommitMove is the matchmaking commit: join the open game or open one.
func (s *Server) handleCommitMove(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	h, err := parseCommit(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.engine.CommitMove(r.Context(), req.Player, h)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req CommitRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	h, err := parseCommit(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.engine.Commit(r.Context(), id, req.Player, h)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) decodeReveal(r *http.Request) (RevealRequest, commit.Move, commit.Nonce, error) {
	var req RevealRequest
	if err := decode(r, &req); err != nil {
		return req, 0, commit.Nonce{}, err
	}
	if err := requireAccount("player", req.Player); err != nil {
		return req, 0, commit.Nonce{}, err
	}
	move, nonce, err := parseSecret(req.Move, req.Nonce)
	return req, move, nonce, err
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, move, nonce, err := s.decodeReveal(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.engine.Reveal(r.Context(), id, req.Player, move, nonce)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

// handleRevealLast reveals in the caller's most recent game.
func (s *Server) handleRevealLast(w http.ResponseWriter, r *http.Request) {
	req, move, nonce, err := s.decodeReveal(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.engine.RevealMoveForLastGame(r.Context(), req.Player, move, nonce)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) playerAction(w http.ResponseWriter, r *http.Request, fn func(id uint64, player string) (game.Game, error)) {
	id, err := gameIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req PlayerRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireAccount("player", req.Player); err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := fn(id, req.Player)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.playerAction(w, r, func(id uint64, player string) (game.Game, error) {
		return s.engine.Cancel(r.Context(), id, player)
	})
}

func (s *Server) handleForfeit(w http.ResponseWriter, r *http.Request) {
	s.playerAction(w, r, func(id uint64, player string) (game.Game, error) {
		return s.engine.ClaimForfeit(r.Context(), id, player)
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.engine.GetGame(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	games := s.engine.ListGames(f)
	s.writeJSON(w, http.StatusOK, GamesResponse{Games: games, Count: len(games)})
}

func (s *Server) handleWinner(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.GetWinner(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleEvents serves the durable event log when a store is attached.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.engine.GetGame(id); err != nil {
		s.fail(w, r, err)
		return
	}
	var events []game.Event
	if s.store != nil {
		if events, err = s.store.Events(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		events = s.engine.Events(id)
	}
	if events == nil {
		events = []game.Event{}
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{GameID: id, Events: events})
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	resp := CounterResponse{GameCounter: s.engine.GameCounter()}
	if g, ok := s.engine.OpenGame(); ok {
		resp.OpenGame = g.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings := s.engine.GetLeaderboard()
	if standings == nil {
		standings = []game.Standing{}
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{Standings: standings})
}

func (s *Server) handleJackpot(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	s.writeJSON(w, http.StatusOK, JackpotResponse{
		Jackpot:            s.engine.Jackpot(),
		MinJackpotAmount:   cfg.MinJackpotAmount,
		MinConsecutiveWins: cfg.MinConsecutiveWins,
	})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	p, ok := s.engine.Player(addr)
	if !ok {
		p = game.Player{Account: addr}
	}
	s.writeJSON(w, http.StatusOK, PlayerResponse{
		Player:    p,
		Balance:   s.engine.BalanceOf(addr),
		Allowance: s.engine.Allowance(addr, s.engine.Config().EscrowAccount),
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.Mint(r.Context(), req.To, req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{Account: req.To, Balance: s.engine.BalanceOf(req.To)})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Spender == "" {
		req.Spender = s.engine.Config().EscrowAccount
	}
	if err := s.engine.Approve(r.Context(), req.Owner, req.Spender, req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AllowanceResponse{
		Owner:     req.Owner,
		Spender:   req.Spender,
		Allowance: s.engine.Allowance(req.Owner, req.Spender),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	s.writeJSON(w, http.StatusOK, BalanceResponse{Account: addr, Balance: s.engine.BalanceOf(addr)})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, spender := chi.URLParam(r, "owner"), chi.URLParam(r, "spender")
	s.writeJSON(w, http.StatusOK, AllowanceResponse{
		Owner:     owner,
		Spender:   spender,
		Allowance: s.engine.Allowance(owner, spender),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ConfigResponse{
		Config:        s.engine.Config(),
		TokenName:     s.opts.TokenName,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}
