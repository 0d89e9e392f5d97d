package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/katieblackabee/upquack/internal/checker"
	"github.com/katieblackabee/upquack/internal/config"
	"github.com/katieblackabee/upquack/internal/console"
	"github.com/katieblackabee/upquack/internal/domains"
	"github.com/katieblackabee/upquack/internal/logging"
	"github.com/katieblackabee/upquack/internal/storage"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "upquack",
		Short:        "Terminal uptime monitor",
		Long:         "Upquack checks a list of URLs on a fixed interval and shows whether they are up.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "upquack.yaml", "path to the config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start monitoring with the interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a target without starting the monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return offline(configPath, "add "+args[0])
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a target without starting the monitor",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return offline(configPath, "rm "+args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List targets with their last known status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return offline(configPath, "list")
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the recent checks of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return offline(configPath, "history "+args[0])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("upquack %s\n", Version)
		},
	}

	rootCmd.AddCommand(runCmd, addCmd, removeCmd, listCmd, historyCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	gateway storage.Gateway
	store   *domains.Store
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(logging.Options{
		Dir:        cfg.Log.Dir,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	gateway, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DataDir)
	if err != nil {
		logger.Error("storage_open_failed", zap.Error(err))
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	store, err := domains.Open(ctx, gateway, logger,
		domains.WithSaveRetry(uint(cfg.Storage.SaveAttempts), cfg.Storage.GetSaveRetryDelay()),
	)
	if err != nil {
		gateway.Close()
		logger.Error("store_open_failed", zap.Error(err))
		if errors.Is(err, storage.ErrCorruptStore) {
			return nil, fmt.Errorf("%w (fix or move the files in %s)", err, cfg.Storage.DataDir)
		}
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, gateway: gateway, store: store}, nil
}

func (a *app) close() {
	a.store.Close()
	if err := a.gateway.Close(); err != nil {
		a.logger.Warn("storage_close_failed", zap.Error(err))
	}
	a.logger.Sync()
}

// seed adds the targets listed in the config that are not monitored yet.
func (a *app) seed() {
	for _, t := range a.cfg.Targets {
		_, err := a.store.Add(t.URL)
		switch {
		case err == nil, errors.Is(err, domains.ErrDuplicateURL):
		default:
			a.logger.Warn("seed_target_failed", zap.String("url", t.URL), zap.Error(err))
			fmt.Fprintf(os.Stderr, "skipping configured target %s: %v\n", t.URL, err)
		}
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	a.seed()

	probe := checker.NewHTTPChecker(checker.HTTPCheckerConfig{
		Timeout:   a.cfg.Monitor.GetTimeout(),
		UserAgent: a.cfg.Monitor.UserAgent,
	})
	defer probe.Close()

	sched := checker.NewScheduler(a.store, probe, a.logger, checker.SchedulerConfig{
		Interval:    a.cfg.Monitor.GetInterval(),
		Concurrency: a.cfg.Monitor.Concurrency,
		Timeout:     a.cfg.Monitor.GetTimeout(),
	})
	sched.Start()
	defer sched.Stop()

	a.logger.Info("upquack_started", zap.String("version", Version))

	c := console.New(a.store, sched, a.logger)
	if err := c.Run(ctx, os.Stdin, os.Stdout); err != nil {
		a.logger.Error("console_failed", zap.Error(err))
		return err
	}

	a.logger.Info("upquack_stopping")
	return nil
}

// offline runs one console command against the persisted state without
// probing anything.
func offline(configPath, line string) error {
	a, err := setup(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := console.New(a.store, nil, a.logger).Exec(line, os.Stdout); err != nil {
		return err
	}
	return a.store.PersistErr()
}
