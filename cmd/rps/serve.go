package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/MJE43/rps-commit-reveal/internal/api"
	"github.com/MJE43/rps-commit-reveal/internal/config"
	"github.com/MJE43/rps-commit-reveal/internal/daemon"
	"github.com/MJE43/rps-commit-reveal/internal/logging"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		driver     string
		path       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game engine daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if driver != "" {
				cfg.Store.Driver = driver
			}
			if path != "" {
				cfg.Store.Path = path
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			closer, err := logging.Setup(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closer.Close()) }()

			d, err := daemon.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			pterm.DefaultBox.WithTitle(pterm.LightYellow("rpsd " + api.EngineVersion)).WithTitleTopCenter().Println(
				pterm.Sprintfln("API:    http://%s/api/v1", cfg.Server.Addr) +
					pterm.Sprintfln("Store:  %s %s", cfg.Store.Driver, cfg.Store.Path) +
					pterm.Sprintf("Wager:  %s (fee %s)", cfg.Engine.WagerAmount, cfg.Engine.FeeAmount))
			return d.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().StringVar(&driver, "store", "", "store driver (sqlite, leveldb, memory)")
	cmd.Flags().StringVar(&path, "store-path", "", "store path, overrides store.path")
	return cmd
}
