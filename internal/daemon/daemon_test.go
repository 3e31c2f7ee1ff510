package daemon

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/rps-commit-reveal/internal/config"
	"github.com/MJE43/rps-commit-reveal/internal/store"
)

func testConfig(t *testing.T, driver string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Store.Driver = driver
	switch driver {
	case store.DriverSQLite:
		cfg.Store.Path = filepath.Join(t.TempDir(), "rps.db")
	case store.DriverLevelDB:
		cfg.Store.Path = filepath.Join(t.TempDir(), "rps.ldb")
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestInitialSupplyMintedOnce(t *testing.T) {
	for _, driver := range []string{store.DriverSQLite, store.DriverLevelDB} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t, driver)

			d, err := New(ctx, cfg)
			require.NoError(t, err)
			require.True(t, d.Engine().BalanceOf(cfg.Token.Treasury).Equal(cfg.Token.InitialSupply))
			require.NoError(t, d.Engine().Mint(ctx, "alice", decimal.NewFromInt(5)))
			require.NoError(t, d.Shutdown(ctx))

			d, err = New(ctx, cfg)
			require.NoError(t, err)
			defer d.Shutdown(ctx)
			require.True(t, d.Engine().BalanceOf(cfg.Token.Treasury).Equal(cfg.Token.InitialSupply))
			require.True(t, d.Engine().BalanceOf("alice").Equal(decimal.NewFromInt(5)))
			require.True(t, d.Engine().Ledger().TotalSupply().Equal(cfg.Token.InitialSupply.Add(decimal.NewFromInt(5))))
		})
	}
}

func TestZeroSupplySkipsMint(t *testing.T) {
	cfg := testConfig(t, store.DriverMemory)
	cfg.Token.InitialSupply = decimal.Zero

	d, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer d.Shutdown(context.Background())
	require.True(t, d.Engine().Ledger().TotalSupply().IsZero())
}

func TestStartServesAPI(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, testConfig(t, store.DriverMemory))
	require.NoError(t, err)
	require.NoError(t, d.Start())
	require.Error(t, d.Start())

	resp, err := http.Get("http://" + d.Addr() + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, d.Shutdown(ctx))
	_, err = http.Get("http://" + d.Addr() + "/health/live")
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	d, err := New(context.Background(), testConfig(t, store.DriverMemory))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

// brokenListener fails every Accept.
type brokenListener struct{ net.Listener }

func (l brokenListener) Accept() (net.Conn, error) {
	return nil, errors.New("accept failed")
}

func TestRunReturnsServeError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d, err := New(context.Background(), testConfig(t, store.DriverMemory), WithListener(brokenListener{ln}))
	require.NoError(t, err)
	require.Equal(t, ln.Addr().String(), d.Addr())

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "accept failed")
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after the server failed")
	}
	require.Error(t, d.Start(), "a stopped daemon cannot be restarted")
}

func TestNewRejectsBadStore(t *testing.T) {
	cfg := testConfig(t, store.DriverMemory)
	cfg.Store.Driver = "postgres"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}
