// Command rps runs the rock-paper-scissors wager daemon and talks to it.
//
//	rps serve --config rps.toml
//	rps play rock --player alice
//	rps reveal --player alice
//
// Build with version information:
//
//	go build -ldflags "-X github.com/MJE43/rps-commit-reveal/internal/api.GitCommit=$(git rev-parse HEAD) \
//	  -X github.com/MJE43/rps-commit-reveal/internal/api.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/rps
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/MJE43/rps-commit-reveal/internal/client"
	"github.com/MJE43/rps-commit-reveal/internal/secrets"
)

const (
	envDaemon = "RPS_DAEMON"
	envVault  = "RPS_VAULT_FILE"
)

// app carries the persistent flags shared by every subcommand.
type app struct {
	daemonURL  string
	vaultFile  string
	service    string
	maxRetries uint64
}

func (a *app) client() (*client.Client, error) {
	return client.New(client.Config{BaseURL: a.daemonURL, MaxRetries: a.maxRetries})
}

func (a *app) vault() *secrets.Vault {
	return secrets.NewVault(a.service, a.vaultFile)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rps",
		Short:         "Commit-reveal rock-paper-scissors wager engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	daemon := os.Getenv(envDaemon)
	if daemon == "" {
		daemon = "http://127.0.0.1:8545"
	}
	vaultFile := os.Getenv(envVault)
	if vaultFile == "" {
		vaultFile = secrets.DefaultFallbackPath()
	}
	root.PersistentFlags().StringVar(&a.daemonURL, "daemon", daemon, "daemon base URL")
	root.PersistentFlags().StringVar(&a.vaultFile, "vault-file", vaultFile, "fallback file for pending reveals when no OS keyring is available")
	root.PersistentFlags().StringVar(&a.service, "keyring-service", secrets.DefaultService, "OS keyring service name")
	root.PersistentFlags().Uint64Var(&a.maxRetries, "retries", 3, "retries for transient daemon failures")

	root.AddCommand(
		serveCmd(),
		hashCmd(),
		nonceCmd(),
		createCmd(a),
		playCmd(a),
		commitCmd(a),
		revealCmd(a),
		cancelCmd(a),
		forfeitCmd(a),
		winnerCmd(a),
		gameCmd(a),
		leaderboardCmd(a),
		jackpotCmd(a),
		playerCmd(a),
		balanceCmd(a),
		mintCmd(a),
		approveCmd(a),
		versionCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Error.Println(describe(err))
		stop()
		os.Exit(1)
	}
}
