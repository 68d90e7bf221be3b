package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smartshop-backend/pkg/config"
	"smartshop-backend/pkg/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "smartshop",
	Short:         "Shopping assistant backend",
	Long:          `smartshop routes chat messages to shopping agents, tracks prices across Taiwanese shops and turns Gmail receipts into expenses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, background workers and chat transports",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE:  runMigrate,
}

var refreshPricesCmd = &cobra.Command{
	Use:   "refresh-prices",
	Short: "Run one price aggregation round for every active tracking entry",
	RunE:  runRefreshPrices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or env)")
	rootCmd.AddCommand(serveCmd, migrateCmd, refreshPricesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Debug: cfg.LogDebug, Pretty: cfg.LogPretty})
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer a.shutdown()

	a.startBackground(ctx)
	return a.handler.Start(ctx, ":"+cfg.Port)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := openDatabase(cfg); err != nil {
		return err
	}
	log.Info().Msg("database schema is up to date")
	return nil
}

func runRefreshPrices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer a.shutdown()

	summary, err := a.priceUsecase.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh prices: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "products=%d updated=%d failed=%d notified=%d\n",
		summary.Products, summary.Updated, summary.Failed, summary.Notified)
	return nil
}
