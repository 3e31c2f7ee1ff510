// Package daemon owns the storage backend, the game engine and the HTTP
// listener of a running rpsd process.
package daemon

import (
	"context"
	"net"
	"net/http"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/rps-commit-reveal/internal/api"
	"github.com/MJE43/rps-commit-reveal/internal/config"
	"github.com/MJE43/rps-commit-reveal/internal/game"
	"github.com/MJE43/rps-commit-reveal/internal/store"
	"github.com/MJE43/rps-commit-reveal/internal/token"
)

var log = logging.Logger("rpsd")

// Daemon is constructed with New, started with Start or Run and stopped with
// Shutdown.
type Daemon struct {
	cfg     config.Config
	backend store.Backend
	engine  *game.Manager
	api     *api.Server

	httpServer *http.Server
	ln         net.Listener
}

// Option customises a Daemon.
type Option func(*options)

type options struct {
	clock    clock.Clock
	listener net.Listener
}

// WithClock replaces the engine's wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithListener serves on ln instead of binding server.addr.
func WithListener(ln net.Listener) Option {
	return func(o *options) { o.listener = ln }
}

// New opens the configured store, restores the engine from it and mints the
// initial token supply when the store is empty. It does not bind a socket.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Daemon, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	backend, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	d, err := build(ctx, cfg, backend, o)
	if err != nil {
		return nil, multierr.Append(err, backend.Close())
	}
	return d, nil
}

func build(ctx context.Context, cfg config.Config, backend store.Backend, o options) (*Daemon, error) {
	st, err := backend.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "rpsd: load state")
	}

	engineOpts := []game.Option{game.WithPersister(backend)}
	if o.clock != nil {
		engineOpts = append(engineOpts, game.WithClock(o.clock))
	}
	engine, err := game.NewManager(cfg.Game(), token.NewMemoryLedger(cfg.Token.Name, cfg.Token.Address), engineOpts...)
	if err != nil {
		return nil, err
	}
	if err := engine.Restore(st); err != nil {
		return nil, err
	}

	if firstBoot(st) && cfg.Token.InitialSupply.IsPositive() {
		if err := engine.Mint(ctx, cfg.Token.Treasury, cfg.Token.InitialSupply); err != nil {
			return nil, errors.Wrap(err, "rpsd: mint initial supply")
		}
		log.Infow("minted initial supply", "treasury", cfg.Token.Treasury, "amount", cfg.Token.InitialSupply.String())
	}

	srv, err := api.NewServer(engine, backend, api.Options{
		TokenName:        cfg.Token.Name,
		RequestTimeout:   cfg.Server.RequestTimeout,
		IdempotencyCache: cfg.Server.IdempotencyCache,
		CORSOrigins:      cfg.Server.CORSOrigins,
	})
	if err != nil {
		return nil, err
	}
	return &Daemon{cfg: cfg, backend: backend, engine: engine, api: srv, ln: o.listener}, nil
}

func firstBoot(st *game.State) bool {
	return st == nil || (st.GameCounter == 0 && st.TotalSupply.IsZero() && len(st.Balances) == 0)
}

func (d *Daemon) Engine() *game.Manager { return d.engine }

// Addr is the bound listener address, or the configured one before Start.
func (d *Daemon) Addr() string {
	if d.ln != nil {
		return d.ln.Addr().String()
	}
	return d.cfg.Server.Addr
}

// Start binds the listener and serves in a goroutine. It returns once the
// socket is bound.
func (d *Daemon) Start() error {
	if err := d.listen(); err != nil {
		return err
	}
	go func() {
		if err := d.serve(); err != nil {
			log.Errorw("http server stopped", "error", err)
		}
	}()
	return nil
}

func (d *Daemon) listen() error {
	if d.httpServer != nil {
		return errors.New("rpsd: already started")
	}
	if d.ln == nil {
		ln, err := net.Listen("tcp", d.cfg.Server.Addr)
		if err != nil {
			return errors.Wrapf(err, "rpsd: listen %s", d.cfg.Server.Addr)
		}
		d.ln = ln
	}
	d.httpServer = &http.Server{
		Handler:      d.api.Routes(),
		ReadTimeout:  d.cfg.Server.ReadTimeout,
		WriteTimeout: d.cfg.Server.WriteTimeout,
	}
	log.Infow("listening", "addr", d.Addr(), "store", d.cfg.Store.Driver, "games", d.engine.GameCounter())
	return nil
}

// serve blocks until the server stops. A graceful Shutdown is not an error.
func (d *Daemon) serve() error {
	if err := d.httpServer.Serve(d.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "rpsd: serve")
	}
	return nil
}

// Run serves until ctx is done or the server fails, then shuts down within
// the configured shutdown timeout. A serve failure is returned.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.listen(); err != nil {
		return multierr.Append(err, d.backend.Close())
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.serve)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
		defer cancel()
		return d.Shutdown(sctx)
	})
	return g.Wait()
}

// Shutdown stops the HTTP server and closes the store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var err error
	if d.httpServer != nil {
		err = multierr.Append(err, d.httpServer.Shutdown(ctx))
	}
	err = multierr.Append(err, d.backend.Close())
	log.Infow("stopped", "error", err)
	return err
}
