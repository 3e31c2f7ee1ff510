// Package store persists engine receipts so a daemon can restart without
// losing games, players, token balances or the jackpot pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/MJE43/rps-commit-reveal/internal/game"
)

var log = logging.Logger("store")

var errClosed = errors.New("store: closed")

// Drivers accepted by Open.
const (
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
	DriverMemory  = "memory"
)

// Backend is a durable receipt sink that can replay itself into a game.State.
type Backend interface {
	game.Persister
	Load(ctx context.Context) (*game.State, error)
	Events(ctx context.Context, gameID uint64) ([]game.Event, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend named by driver rooted at path.
func Open(driver, path string) (Backend, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return NewSQLite(path)
	case DriverLevelDB:
		return NewLevelDB(path)
	case DriverMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
