package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	metaJackpot = "jackpot"
	metaCounter = "game_counter"
	metaSupply  = "total_supply"
)

// SQLite persists receipts into a single SQLite file in WAL mode.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens or creates the database at path and runs pending migrations.
// Use ":memory:" for a throwaway database.
func NewSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite serialises writers; one connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrations fs")
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return errors.Wrap(err, "goose provider")
	}
	results, err := p.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "run migrations")
	}
	for _, r := range results {
		log.Debugw("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Apply writes a receipt in one transaction. Busy or locked errors are retried
// with exponential backoff.
func (s *SQLite) Apply(ctx context.Context, r *game.Receipt) error {
	b := retry.WithMaxRetries(5, retry.WithCappedDuration(500*time.Millisecond, retry.NewExponential(20*time.Millisecond)))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.applyTx(ctx, r)
		if isBusyErr(err) {
			log.Debugw("sqlite busy, retrying", "err", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *SQLite) applyTx(ctx context.Context, r *game.Receipt) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreDone(tx.Rollback()))
		}
	}()

	for i := range r.Games {
		if err = upsertGame(ctx, tx, &r.Games[i]); err != nil {
			return err
		}
	}
	for i := range r.Players {
		if err = upsertPlayer(ctx, tx, &r.Players[i]); err != nil {
			return err
		}
	}
	if err = putMeta(ctx, tx, metaJackpot, r.Jackpot.String()); err != nil {
		return err
	}
	if err = putMeta(ctx, tx, metaCounter, fmt.Sprint(r.GameCounter)); err != nil {
		return err
	}
	if err = putMeta(ctx, tx, metaSupply, r.Ledger.TotalSupply.String()); err != nil {
		return err
	}
	for acct, bal := range r.Ledger.Balances {
		if _, err = tx.ExecContext(ctx, `INSERT INTO token_balances(account, balance) VALUES(?, ?)
			ON CONFLICT(account) DO UPDATE SET balance = excluded.balance`, acct, bal.String()); err != nil {
			return errors.Wrapf(err, "balance %s", acct)
		}
	}
	for _, a := range r.Ledger.Allowances {
		if _, err = tx.ExecContext(ctx, `INSERT INTO token_allowances(owner, spender, amount) VALUES(?, ?, ?)
			ON CONFLICT(owner, spender) DO UPDATE SET amount = excluded.amount`, a.Owner, a.Spender, a.Amount.String()); err != nil {
			return errors.Wrapf(err, "allowance %s/%s", a.Owner, a.Spender)
		}
	}
	for i := range r.Events {
		if err = insertEvent(ctx, tx, &r.Events[i]); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func upsertGame(ctx context.Context, tx *sql.Tx, g *game.Game) error {
	seats, err := json.Marshal(g.Seats)
	if err != nil {
		return errors.Wrapf(err, "encode seats of game %d", g.ID)
	}
	var settled sql.NullTime
	if !g.SettledAt.IsZero() {
		settled = sql.NullTime{Time: g.SettledAt.UTC(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO games
		(id, player_a, player_b, phase, outcome, winner, wager, fee, payout, jackpot_paid, seats_json, created_at, deadline, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			player_a = excluded.player_a,
			player_b = excluded.player_b,
			phase = excluded.phase,
			outcome = excluded.outcome,
			winner = excluded.winner,
			payout = excluded.payout,
			jackpot_paid = excluded.jackpot_paid,
			seats_json = excluded.seats_json,
			deadline = excluded.deadline,
			settled_at = excluded.settled_at`,
		int64(g.ID), g.Seats[0].Player, g.Seats[1].Player, g.Phase.String(), g.Outcome.String(), g.Winner,
		g.Wager.String(), g.Fee.String(), g.Payout.String(), g.JackpotPaid.String(), string(seats),
		g.CreatedAt.UTC(), g.Deadline.UTC(), settled)
	return errors.Wrapf(err, "upsert game %d", g.ID)
}

func upsertPlayer(ctx context.Context, tx *sql.Tx, p *game.Player) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO players
		(account, consecutive_wins, total_wins, win_seq, last_game, first_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			consecutive_wins = excluded.consecutive_wins,
			total_wins = excluded.total_wins,
			win_seq = excluded.win_seq,
			last_game = excluded.last_game`,
		p.Account, p.ConsecutiveWins, int64(p.TotalWins), int64(p.WinSeq), int64(p.LastGame), p.FirstSeen.UTC())
	return errors.Wrapf(err, "upsert player %s", p.Account)
}

func putMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO engine_meta(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Wrapf(err, "meta %s", key)
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *game.Event) error {
	data := []byte("{}")
	if len(ev.Data) > 0 {
		var err error
		if data, err = json.Marshal(ev.Data); err != nil {
			return errors.Wrapf(err, "encode event %s", ev.ID)
		}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO events(id, type, game_id, account, data_json, at)
		VALUES(?, ?, ?, ?, ?, ?)`, ev.ID, string(ev.Type), int64(ev.GameID), ev.Account, string(data), ev.At.UTC())
	return errors.Wrapf(err, "insert event %s", ev.ID)
}

// Load reads the full engine state.
func (s *SQLite) Load(ctx context.Context) (*game.State, error) {
	st := &game.State{Balances: make(map[string]decimal.Decimal)}

	meta, err := s.meta(ctx)
	if err != nil {
		return nil, err
	}
	if st.Jackpot, err = parseDecimal(meta[metaJackpot]); err != nil {
		return nil, errors.Wrap(err, "jackpot")
	}
	if st.TotalSupply, err = parseDecimal(meta[metaSupply]); err != nil {
		return nil, errors.Wrap(err, "total supply")
	}
	if v := meta[metaCounter]; v != "" {
		if _, err := fmt.Sscan(v, &st.GameCounter); err != nil {
			return nil, errors.Wrap(err, "game counter")
		}
	}

	if st.Games, err = s.games(ctx); err != nil {
		return nil, err
	}
	if st.Players, err = s.players(ctx); err != nil {
		return nil, err
	}
	if err := s.balances(ctx, st.Balances); err != nil {
		return nil, err
	}
	if st.Allowances, err = s.allowances(ctx); err != nil {
		return nil, err
	}
	if st.Events, err = s.queryEvents(ctx, `SELECT id, type, game_id, account, data_json, at FROM events ORDER BY seq`); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLite) meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM engine_meta`)
	if err != nil {
		return nil, errors.Wrap(err, "query meta")
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "scan meta")
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLite) games(ctx context.Context) ([]game.Game, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, phase, outcome, winner, wager, fee, payout, jackpot_paid,
		seats_json, created_at, deadline, settled_at FROM games ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query games")
	}
	defer rows.Close()

	var out []game.Game
	for rows.Next() {
		var (
			g                               game.Game
			id                              int64
			phase, outcome, seats           string
			wager, fee, payout, jackpotPaid string
			settled                         sql.NullTime
		)
		if err := rows.Scan(&id, &phase, &outcome, &g.Winner, &wager, &fee, &payout, &jackpotPaid,
			&seats, &g.CreatedAt, &g.Deadline, &settled); err != nil {
			return nil, errors.Wrap(err, "scan game")
		}
		g.ID = uint64(id)
		if err := g.Phase.UnmarshalText([]byte(phase)); err != nil {
			return nil, errors.Wrapf(err, "game %d", id)
		}
		if err := g.Outcome.UnmarshalText([]byte(outcome)); err != nil {
			return nil, errors.Wrapf(err, "game %d", id)
		}
		if err := json.Unmarshal([]byte(seats), &g.Seats); err != nil {
			return nil, errors.Wrapf(err, "seats of game %d", id)
		}
		for dst, src := range map[*decimal.Decimal]string{&g.Wager: wager, &g.Fee: fee, &g.Payout: payout, &g.JackpotPaid: jackpotPaid} {
			if *dst, err = parseDecimal(src); err != nil {
				return nil, errors.Wrapf(err, "amounts of game %d", id)
			}
		}
		if settled.Valid {
			g.SettledAt = settled.Time
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLite) players(ctx context.Context) ([]game.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account, consecutive_wins, total_wins, win_seq, last_game, first_seen
		FROM players ORDER BY account`)
	if err != nil {
		return nil, errors.Wrap(err, "query players")
	}
	defer rows.Close()

	var out []game.Player
	for rows.Next() {
		var (
			p                    game.Player
			total, seq, lastGame int64
		)
		if err := rows.Scan(&p.Account, &p.ConsecutiveWins, &total, &seq, &lastGame, &p.FirstSeen); err != nil {
			return nil, errors.Wrap(err, "scan player")
		}
		p.TotalWins, p.WinSeq, p.LastGame = uint64(total), uint64(seq), uint64(lastGame)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) balances(ctx context.Context, into map[string]decimal.Decimal) error {
	rows, err := s.db.QueryContext(ctx, `SELECT account, balance FROM token_balances`)
	if err != nil {
		return errors.Wrap(err, "query balances")
	}
	defer rows.Close()
	for rows.Next() {
		var acct, bal string
		if err := rows.Scan(&acct, &bal); err != nil {
			return errors.Wrap(err, "scan balance")
		}
		d, err := parseDecimal(bal)
		if err != nil {
			return errors.Wrapf(err, "balance of %s", acct)
		}
		into[acct] = d
	}
	return rows.Err()
}

func (s *SQLite) allowances(ctx context.Context) ([]token.AllowanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner, spender, amount FROM token_allowances ORDER BY owner, spender`)
	if err != nil {
		return nil, errors.Wrap(err, "query allowances")
	}
	defer rows.Close()
	var out []token.AllowanceEntry
	for rows.Next() {
		var a token.AllowanceEntry
		var amt string
		if err := rows.Scan(&a.Owner, &a.Spender, &amt); err != nil {
			return nil, errors.Wrap(err, "scan allowance")
		}
		if a.Amount, err = parseDecimal(amt); err != nil {
			return nil, errors.Wrapf(err, "allowance %s/%s", a.Owner, a.Spender)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Events returns the persisted events of one game in insertion order.
func (s *SQLite) Events(ctx context.Context, gameID uint64) ([]game.Event, error) {
	return s.queryEvents(ctx, `SELECT id, type, game_id, account, data_json, at FROM events
		WHERE game_id = ? ORDER BY seq`, int64(gameID))
}

func (s *SQLite) queryEvents(ctx context.Context, q string, args ...any) ([]game.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()
	var out []game.Event
	for rows.Next() {
		var (
			ev     game.Event
			typ    string
			gameID int64
			data   string
		)
		if err := rows.Scan(&ev.ID, &typ, &gameID, &ev.Account, &data, &ev.At); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		ev.Type, ev.GameID = game.EventType(typ), uint64(gameID)
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
				return nil, errors.Wrapf(err, "event %s data", ev.ID)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close checkpoints the WAL and closes the database.
func (s *SQLite) Close() error {
	var err error
	if s.path != ":memory:" {
		_, err = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	}
	return multierr.Append(err, s.db.Close())
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
