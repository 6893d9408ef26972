package cmd

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/unihub/unihub/auth"
	"github.com/unihub/unihub/bridge"
	"github.com/unihub/unihub/client"
	"github.com/unihub/unihub/config"
	"github.com/unihub/unihub/db"
	"github.com/unihub/unihub/pkg/clierr"
	"github.com/unihub/unihub/storage"
)

// Execute runs the CLI. Cancelling ctx aborts in-flight requests.
func Execute(ctx context.Context) {
	rootCmd := createRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		err = classify(err)
		log.Error().Err(err).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", err)
		os.Exit(clierr.ExitCode(err))
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "unihub",
		Short:         "Command-line client for the UniHub campus API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file (default $HOME/.unihub/config.yaml)")
	flags.String("env-file", "", "Path to a .env file (default $HOME/.unihub/.env)")
	flags.String("base-url", "", "Base URL of the API")
	flags.Duration("timeout", client.DefaultTimeout, "Timeout for each HTTP request")
	flags.String("store", "", "Device store backend [sqlite, bolt, memory]")
	flags.String("store-path", "", "Path of the device store file")

	rootCmd.AddCommand(
		loginCmd(),
		logoutCmd(),
		tokenCmd(),
		getCmd(),
		postCmd(),
		bridgeCmd(),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

// app bundles everything a command needs, built from the resolved configuration.
type app struct {
	cfg    *config.Config
	store  *storage.DeviceStore
	tokens *auth.Service
	jar    *client.PersistentJar
	client *client.Client
	bridge *bridge.Cache

	closers []func() error
}

func setup(cmd *cobra.Command) (*app, error) {
	src := config.Sources{Flags: cmd.Flags()}
	src.ConfigFile, _ = cmd.Flags().GetString("config")
	src.EnvFile, _ = cmd.Flags().GetString("env-file")

	cfg, err := config.Load(src)
	if err != nil {
		return nil, clierr.New(clierr.Validation, err.Error(), err)
	}

	a := &app{cfg: cfg}
	a.store = a.openStore()
	a.tokens = auth.NewService(a.store)
	// The session cookie is the refresh credential, so it has to outlive the process.
	a.jar, err = client.NewPersistentJar(cmd.Context(), a.store, storage.KeySessionCookies, cfg.BaseURL)
	if err != nil {
		a.Close()
		return nil, clierr.New(clierr.Validation, err.Error(), err)
	}
	a.client, err = client.New(cfg.BaseURL,
		client.WithTimeout(cfg.Timeout),
		client.WithTokenSource(a.tokens),
		client.WithCookieJar(a.jar),
		client.WithUserAgent("unihub/"+version),
	)
	if err != nil {
		a.Close()
		return nil, clierr.New(clierr.Validation, err.Error(), err)
	}
	a.bridge = bridge.NewCache(a.probe(),
		bridge.WithPollInterval(cfg.Bridge.PollInterval),
		bridge.WithPollAttempts(cfg.Bridge.PollAttempts),
	)
	return a, nil
}

// openStore opens the configured backend. The store is best effort, so a
// backend that cannot be opened degrades to memory instead of failing the command.
func (a *app) openStore() *storage.DeviceStore {
	switch a.cfg.Store.Backend {
	case "sqlite":
		db.Path = a.cfg.Store.Path
		if err := db.InitDB(); err != nil {
			log.Warn().Err(err).Str("path", db.Path).Msg("Device store unavailable, keeping values in memory")
			break
		}
		a.closers = append(a.closers, db.CloseDB)
		return storage.New(db.NewKVRepository(db.GetDB()))
	case "bolt":
		b, err := storage.OpenBolt(a.cfg.Store.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", a.cfg.Store.Path).Msg("Device store unavailable, keeping values in memory")
			break
		}
		a.closers = append(a.closers, b.Close)
		return storage.New(b)
	}
	return storage.New(storage.NewMemoryBackend())
}

func (a *app) probe() bridge.Probe {
	if a.cfg.Bridge.URL != "" {
		p := bridge.NewBrowserProbe(a.cfg.Bridge.URL, a.cfg.Bridge.Headless)
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		return p
	}
	return bridge.NewEnvProbe(func() string { return a.cfg.Bridge.InitData })
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Msg("Failed to release resource")
		}
	}
	a.closers = nil
}

// classify turns an arbitrary command error into a typed CLI error.
func classify(err error) error {
	var ce *clierr.Error
	if err == nil || errors.As(err, &ce) {
		return err
	}

	var se *client.StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, client.ErrRefreshFailed), client.IsUnauthorized(err):
		return clierr.New(clierr.Auth, "not logged in or session expired; run 'unihub login'", err)
	case errors.As(err, &se) && se.StatusCode == 404:
		return clierr.New(clierr.NotFound, err.Error(), err)
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return clierr.New(clierr.Network, err.Error(), err)
	case errors.As(err, &se):
		return clierr.New(clierr.Network, err.Error(), err)
	}
	return clierr.New(clierr.Internal, err.Error(), err)
}
