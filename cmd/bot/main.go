package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ykvlv/levelbot/internal/app"
	"github.com/ykvlv/levelbot/internal/config"
	"github.com/ykvlv/levelbot/internal/logger"
	"github.com/ykvlv/levelbot/internal/store"
)

// rootCmd runs the bot
var rootCmd = &cobra.Command{
	Use:           "bot",
	Short:         "Telegram level bot",
	Long:          "Awards XP for chat activity and answers prefixed commands.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBot,
}

// migrateCmd applies database migrations and exits
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("config error: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, fmt.Errorf("logger init error: %w", err)
	}
	return cfg, log, nil
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	// Ensure logger flush; ignore sync error (common on some platforms).
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("app init failed", zap.Error(err))
		return err
	}
	if err := application.Run(cmd.Context()); err != nil {
		log.Error("app run failed", zap.Error(err))
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	repo, err := store.OpenSQLite(cmd.Context(), cfg.DBPath)
	if err != nil {
		log.Error("migrate failed", zap.Error(err))
		return err
	}
	log.Info("migrations applied", zap.String("path", cfg.DBPath))
	return repo.Close()
}
