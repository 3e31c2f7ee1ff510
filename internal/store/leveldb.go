package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

// Key layout. Numeric components are zero padded so iteration is ordered.
var (
	prefixGame      = []byte("rps-game-")
	prefixPlayer    = []byte("rps-player-")
	prefixBalance   = []byte("rps-balance-")
	prefixAllowance = []byte("rps-allow-")
	prefixEvent     = []byte("rps-event-")

	keyJackpot  = []byte("rps-meta-jackpot")
	keyCounter  = []byte("rps-meta-counter")
	keySupply   = []byte("rps-meta-supply")
	keyEventSeq = []byte("rps-meta-eventseq")
)

func gameKey(id uint64) []byte { return []byte(fmt.Sprintf("%s%020d", prefixGame, id)) }

func playerKey(account string) []byte { return append(append([]byte{}, prefixPlayer...), account...) }

func balanceKey(account string) []byte { return append(append([]byte{}, prefixBalance...), account...) }

func allowanceKey(owner, spender string) []byte {
	return []byte(fmt.Sprintf("%s%s-%s", prefixAllowance, owner, spender))
}

func eventPrefix(gameID uint64) []byte { return []byte(fmt.Sprintf("%s%020d-", prefixEvent, gameID)) }

func eventKey(gameID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix(gameID), seq))
}

type storedEvent struct {
	Seq   uint64     `json:"seq"`
	Event game.Event `json:"event"`
}

// LevelDB persists receipts as JSON values in a goleveldb key space.
type LevelDB struct {
	db *leveldb.DB

	mu  sync.Mutex // guards seq across concurrent Apply calls
	seq uint64
}

// NewLevelDB opens the database directory at path, recovering it if the
// manifest is corrupted. An empty path opens an in-memory store.
func NewLevelDB(path string) (*LevelDB, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, &opt.Options{
			OpenFilesCacheCapacity: 64,
			BlockCacheCapacity:     16 * opt.MiB,
			WriteBuffer:            8 * opt.MiB,
			Filter:                 filter.NewBloomFilter(10),
		})
		if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
			log.Warnw("leveldb corrupted, recovering", "path", path, "err", err)
			db, err = leveldb.RecoverFile(path, nil)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb %q", path)
	}
	s := &LevelDB{db: db}
	if raw, err := db.Get(keyEventSeq, nil); err == nil {
		if s.seq, err = strconv.ParseUint(string(raw), 10, 64); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "event sequence")
		}
	} else if err != leveldb.ErrNotFound {
		db.Close()
		return nil, errors.Wrap(err, "event sequence")
	}
	return s, nil
}

// Apply writes a receipt as a single synced batch.
func (s *LevelDB) Apply(ctx context.Context, r *game.Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	for i := range r.Games {
		if err := putJSON(batch, gameKey(r.Games[i].ID), &r.Games[i]); err != nil {
			return err
		}
	}
	for i := range r.Players {
		if err := putJSON(batch, playerKey(r.Players[i].Account), &r.Players[i]); err != nil {
			return err
		}
	}
	for acct, bal := range r.Ledger.Balances {
		batch.Put(balanceKey(acct), []byte(bal.String()))
	}
	for i := range r.Ledger.Allowances {
		a := &r.Ledger.Allowances[i]
		if err := putJSON(batch, allowanceKey(a.Owner, a.Spender), a); err != nil {
			return err
		}
	}
	seq := s.seq
	for _, ev := range r.Events {
		seq++
		if err := putJSON(batch, eventKey(ev.GameID, seq), &storedEvent{Seq: seq, Event: ev}); err != nil {
			return err
		}
	}
	batch.Put(keyEventSeq, []byte(strconv.FormatUint(seq, 10)))
	batch.Put(keyJackpot, []byte(r.Jackpot.String()))
	batch.Put(keyCounter, []byte(strconv.FormatUint(r.GameCounter, 10)))
	batch.Put(keySupply, []byte(r.Ledger.TotalSupply.String()))

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "write batch")
	}
	s.seq = seq
	return nil
}

func putJSON(batch *leveldb.Batch, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	batch.Put(key, raw)
	return nil
}

// Load reads every record from a consistent snapshot.
func (s *LevelDB) Load(ctx context.Context) (*game.State, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	defer snap.Release()

	st := &game.State{Balances: make(map[string]decimal.Decimal)}
	if st.Jackpot, err = getDecimal(snap, keyJackpot); err != nil {
		return nil, errors.Wrap(err, "jackpot")
	}
	if st.TotalSupply, err = getDecimal(snap, keySupply); err != nil {
		return nil, errors.Wrap(err, "total supply")
	}
	if raw, err := snap.Get(keyCounter, nil); err == nil {
		if st.GameCounter, err = strconv.ParseUint(string(raw), 10, 64); err != nil {
			return nil, errors.Wrap(err, "game counter")
		}
	} else if err != leveldb.ErrNotFound {
		return nil, errors.Wrap(err, "game counter")
	}

	err = scan(snap, prefixGame, func(_, v []byte) error {
		var g game.Game
		if err := json.Unmarshal(v, &g); err != nil {
			return err
		}
		st.Games = append(st.Games, g)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "games")
	}
	err = scan(snap, prefixPlayer, func(_, v []byte) error {
		var p game.Player
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		st.Players = append(st.Players, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "players")
	}
	err = scan(snap, prefixBalance, func(k, v []byte) error {
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		st.Balances[string(k[len(prefixBalance):])] = d
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "balances")
	}
	err = scan(snap, prefixAllowance, func(_, v []byte) error {
		var a token.AllowanceEntry
		if err := json.Unmarshal(v, &a); err != nil {
			return err
		}
		st.Allowances = append(st.Allowances, a)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "allowances")
	}
	sortAllowances(st.Allowances)

	events, err := collectEvents(snap, prefixEvent)
	if err != nil {
		return nil, err
	}
	st.Events = events
	return st, nil
}

// Events returns one game's events in insertion order.
func (s *LevelDB) Events(_ context.Context, gameID uint64) ([]game.Event, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	defer snap.Release()
	return collectEvents(snap, eventPrefix(gameID))
}

func collectEvents(snap *leveldb.Snapshot, prefix []byte) ([]game.Event, error) {
	var stored []storedEvent
	err := scan(snap, prefix, func(_, v []byte) error {
		var se storedEvent
		if err := json.Unmarshal(v, &se); err != nil {
			return err
		}
		stored = append(stored, se)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "events")
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })
	out := make([]game.Event, len(stored))
	for i := range stored {
		out[i] = stored[i].Event
	}
	return out, nil
}

func scan(snap *leveldb.Snapshot, prefix []byte, fn func(k, v []byte) error) error {
	it := snap.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return errors.Wrapf(err, "key %s", it.Key())
		}
	}
	return it.Error()
}

func getDecimal(snap *leveldb.Snapshot, key []byte) (decimal.Decimal, error) {
	raw, err := snap.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(raw))
}

func (s *LevelDB) Ping(context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}
