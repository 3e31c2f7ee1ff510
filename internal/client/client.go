// Package client is a typed HTTP client for the rpsd daemon.
//
// Transport failures and 5xx responses are retried with exponential backoff.
// Every mutating call carries a fresh Idempotency-Key so a retried POST is
// applied at most once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/api"
	"github.com/MJE43/rps-commit-reveal/internal/commit"
	"github.com/MJE43/rps-commit-reveal/internal/game"
)

// Config holds configuration for the daemon client.
type Config struct {
	// BaseURL is the daemon address, e.g. "http://127.0.0.1:8545".
	BaseURL string

	// MaxRetries is the maximum number of retry attempts. Defaults to 3.
	MaxRetries uint64

	// BaseRetryDelay is the initial backoff. Defaults to 200ms.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the backoff. Defaults to 5s.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	HTTPClient *http.Client
}

type Client struct {
	config Config
	base   *url.URL
	http   *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8545"
	}
	if !strings.Contains(cfg.BaseURL, "://") {
		cfg.BaseURL = "http://" + cfg.BaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "rps: base url %q", cfg.BaseURL)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 200 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{config: cfg, base: base, http: hc}, nil
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.config.BaseRetryDelay)
	b = retry.WithCappedDuration(c.config.MaxRetryDelay, b)
	return retry.WithMaxRetries(c.config.MaxRetries, b)
}

// do sends one logical request, retrying transient failures, and decodes a
// 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "rps: marshal request")
		}
	}
	idemKey := ""
	if method == http.MethodPost {
		idemKey = uuid.NewString()
	}

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.once(ctx, method, path, payload, idemKey, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.IsRetryable() {
				return retry.RetryableError(err)
			}
			return err
		}
		if err != nil && ctx.Err() == nil {
			// transport failure
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, idemKey string, out interface{}) error {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return errors.Wrap(err, "rps: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", api.UserAgent("rps-client"))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set(api.IdempotencyHeader, idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "rps: http request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "rps: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		_ = json.Unmarshal(raw, &apiErr.Engine)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "rps: decode %s %s", method, path)
	}
	return nil
}

func gamePath(id uint64, suffix string) string {
	return fmt.Sprintf("/api/v1/games/%d%s", id, suffix)
}

// Hash asks the daemon to compute a commitment.
func (c *Client) Hash(ctx context.Context, move commit.Move, nonce commit.Nonce) (common.Hash, error) {
	var resp api.HashResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/hash", api.HashRequest{Move: move.String(), Nonce: nonce.Hex()}, &resp)
	return resp.Hash, err
}

func (c *Client) CreateGame(ctx context.Context, playerA, playerB string) (game.Game, error) {
	var g game.Game
	err := c.do(ctx, http.MethodPost, "/api/v1/games", api.CreateGameRequest{PlayerA: playerA, PlayerB: playerB}, &g)
	return g, err
}

// CommitMove enters matchmaking with hash.
func (c *Client) CommitMove(ctx context.Context, player string, hash common.Hash) (game.Game, error) {
	var g game.Game
	err := c.do(ctx, http.MethodPost, "/api/v1/commit", api.CommitRequest{Player: player, Hash: hash.Hex()}, &g)
	return g, err
}

func (c *Client) Commit(ctx context.Context, id uint64, player string, hash common.Hash) (game.Game, error) {
	var g game.Game
	err := c.do(ctx, http.MethodPost, gamePath(id, "/commit"), api.CommitRequest{Player: player, Hash: hash.Hex()}, &g)
	return g, err
}

func (c *Client) Reveal(ctx context.Context, id uint64, player string, move commit.Move, nonce commit.Nonce) (game.Game, error) {
	var g game.Game
	req := api.RevealRequest{Player: player, Move: move.String(), Nonce: nonce.Hex()}
	err := c.do(ctx, http.MethodPost, gamePath(id, "/reveal"), req, &g)
	return g, err
}

// RevealLast reveals in the player's most recent game.
func (c *Client) RevealLast(ctx context.Context, player string, move commit.Move, nonce commit.Nonce) (game.Game, error) {
	var g game.Game
	req := api.RevealRequest{Player: player, Move: move.String(), Nonce: nonce.Hex()}
	err := c.do(ctx, http.MethodPost, "/api/v1/reveal", req, &g)
	return g, err
}

func (c *Client) Cancel(ctx context.Context, id uint64, player string) (game.Game, error) {
	var g game.Game
	err := c.do(ctx, http.MethodPost, gamePath(id, "/cancel"), api.PlayerRequest{Player: player}, &g)
	return g, err
}

func (c *Client) ClaimForfeit(ctx context.Context, id uint64, player string) (game.Game, error) {
	var g game.Game
	err := c.do(ctx, http.MethodPost, gamePath(id, "/forfeit"), api.PlayerRequest{Player: player}, &g)
	return g, err
}

func (c *Client) Game(ctx context.Context, id uint64) (game.Game, error) {
	var g game.Game
	err := c.do(ctx, http.MethodGet, gamePath(id, ""), nil, &g)
	return g, err
}

// ListGames returns games newest first. Zero values leave a filter unset.
func (c *Client) ListGames(ctx context.Context, f game.Filter) ([]game.Game, error) {
	q := url.Values{}
	if f.Phase != 0 {
		q.Set("phase", f.Phase.String())
	}
	if f.Player != "" {
		q.Set("player", f.Player)
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprint(f.Limit))
	}
	path := "/api/v1/games"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp api.GamesResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Games, err
}

func (c *Client) Winner(ctx context.Context, id uint64) (game.WinnerResult, error) {
	var w game.WinnerResult
	err := c.do(ctx, http.MethodGet, gamePath(id, "/winner"), nil, &w)
	return w, err
}

func (c *Client) Events(ctx context.Context, id uint64) ([]game.Event, error) {
	var resp api.EventsResponse
	err := c.do(ctx, http.MethodGet, gamePath(id, "/events"), nil, &resp)
	return resp.Events, err
}

func (c *Client) Counter(ctx context.Context) (api.CounterResponse, error) {
	var resp api.CounterResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/counter", nil, &resp)
	return resp, err
}

func (c *Client) Leaderboard(ctx context.Context) ([]game.Standing, error) {
	var resp api.LeaderboardResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/leaderboard", nil, &resp)
	return resp.Standings, err
}

func (c *Client) Jackpot(ctx context.Context) (api.JackpotResponse, error) {
	var resp api.JackpotResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/jackpot", nil, &resp)
	return resp, err
}

func (c *Client) Player(ctx context.Context, account string) (api.PlayerResponse, error) {
	var resp api.PlayerResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/players/"+url.PathEscape(account), nil, &resp)
	return resp, err
}

func (c *Client) Mint(ctx context.Context, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	var resp api.BalanceResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/token/mint", api.MintRequest{To: to, Amount: amount}, &resp)
	return resp.Balance, err
}

// Approve grants spender an allowance over owner's tokens. An empty spender
// means the engine's escrow account.
func (c *Client) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) (decimal.Decimal, error) {
	var resp api.AllowanceResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/token/approve", api.ApproveRequest{Owner: owner, Spender: spender, Amount: amount}, &resp)
	return resp.Allowance, err
}

func (c *Client) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	var resp api.BalanceResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/token/balance/"+url.PathEscape(account), nil, &resp)
	return resp.Balance, err
}

func (c *Client) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	var resp api.AllowanceResponse
	path := "/api/v1/token/allowance/" + url.PathEscape(owner) + "/" + url.PathEscape(spender)
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Allowance, err
}

func (c *Client) EngineConfig(ctx context.Context) (api.ConfigResponse, error) {
	var resp api.ConfigResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/config", nil, &resp)
	return resp, err
}

func (c *Client) Version(ctx context.Context) (api.VersionInfo, error) {
	var v api.VersionInfo
	err := c.do(ctx, http.MethodGet, "/version", nil, &v)
	return v, err
}
