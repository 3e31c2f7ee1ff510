// Package config loads the rpsd daemon configuration from TOML with
// environment overrides.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/logging"
	"github.com/MJE43/rps-commit-reveal/internal/store"
)

// Environment overrides, applied after the file.
const (
	EnvAddr        = "RPS_ADDR"
	EnvStoreDriver = "RPS_STORE_DRIVER"
	EnvStorePath   = "RPS_STORE_PATH"
	EnvLogLevel    = "RPS_LOG_LEVEL"
	EnvLogFile     = "RPS_LOG_FILE"
)

type Config struct {
	Server ServerConfig   `toml:"server"`
	Engine EngineConfig   `toml:"engine"`
	Token  TokenConfig    `toml:"token"`
	Store  StoreConfig    `toml:"store"`
	Log    logging.Config `toml:"log"`
}

type ServerConfig struct {
	Addr             string        `toml:"addr"`
	ReadTimeout      time.Duration `toml:"read_timeout"`
	WriteTimeout     time.Duration `toml:"write_timeout"`
	RequestTimeout   time.Duration `toml:"request_timeout"`
	ShutdownTimeout  time.Duration `toml:"shutdown_timeout"`
	IdempotencyCache int           `toml:"idempotency_cache"`
	CORSOrigins      []string      `toml:"cors_origins"`
}

type EngineConfig struct {
	EscrowAccount      string          `toml:"escrow_account"`
	WagerAmount        decimal.Decimal `toml:"wager_amount"`
	FeeAmount          decimal.Decimal `toml:"fee_amount"`
	MinConsecutiveWins int             `toml:"min_consecutive_wins"`
	MinJackpotAmount   decimal.Decimal `toml:"min_jackpot_amount"`
	CommitTimeout      time.Duration   `toml:"commit_timeout"`
	RevealTimeout      time.Duration   `toml:"reveal_timeout"`
}

// TokenConfig describes the ledger the engine escrows against. InitialSupply
// is minted to Treasury when the daemon boots on an empty store.
type TokenConfig struct {
	Name          string          `toml:"name"`
	Address       string          `toml:"address"`
	Treasury      string          `toml:"treasury"`
	InitialSupply decimal.Decimal `toml:"initial_supply"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// Default returns the configuration of a fresh local deployment.
func Default() Config {
	g := game.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:             "127.0.0.1:8545",
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			RequestTimeout:   60 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			IdempotencyCache: 1024,
			CORSOrigins:      []string{"*"},
		},
		Engine: EngineConfig{
			EscrowAccount:      g.EscrowAccount,
			WagerAmount:        g.WagerAmount,
			FeeAmount:          g.FeeAmount,
			MinConsecutiveWins: g.MinConsecutiveWins,
			MinJackpotAmount:   g.MinJackpotAmount,
			CommitTimeout:      g.CommitTimeout,
			RevealTimeout:      g.RevealTimeout,
		},
		Token: TokenConfig{
			Name:          "RPS Token",
			Address:       g.TokenLedgerAddress,
			Treasury:      "treasury",
			InitialSupply: decimal.RequireFromString("10000000000000000000000"),
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			Path:   "rps.db",
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config: decode %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, errors.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the RPS_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvStoreDriver); ok && v != "" {
		c.Store.Driver = v
	}
	if v, ok := lookup(EnvStorePath); ok && v != "" {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Log.File = v
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("config: server.request_timeout must be positive")
	}
	if err := c.Game().Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.Token.Name == "" {
		return errors.New("config: token.name is required")
	}
	if c.Token.InitialSupply.IsNegative() {
		return errors.New("config: token.initial_supply must not be negative")
	}
	if c.Token.InitialSupply.IsPositive() && c.Token.Treasury == "" {
		return errors.New("config: token.treasury is required to mint the initial supply")
	}
	switch strings.ToLower(c.Store.Driver) {
	case store.DriverSQLite, "sqlite3", store.DriverLevelDB:
		if c.Store.Path == "" {
			return errors.Errorf("config: store.path is required for %s", c.Store.Driver)
		}
	case store.DriverMemory:
	default:
		return errors.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return c.Log.Validate()
}

// Game converts the engine and token sections into the engine config.
func (c Config) Game() game.Config {
	return game.Config{
		TokenLedgerAddress: c.Token.Address,
		EscrowAccount:      c.Engine.EscrowAccount,
		WagerAmount:        c.Engine.WagerAmount,
		FeeAmount:          c.Engine.FeeAmount,
		MinConsecutiveWins: c.Engine.MinConsecutiveWins,
		MinJackpotAmount:   c.Engine.MinJackpotAmount,
		CommitTimeout:      c.Engine.CommitTimeout,
		RevealTimeout:      c.Engine.RevealTimeout,
	}
}
