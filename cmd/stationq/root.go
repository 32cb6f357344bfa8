// README: Root cobra command and shared flags.
package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"stationq/internal/config"
	"stationq/internal/infra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "stationq",
	Short:        "Station FIFO dispatch service",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDB connects to Postgres for the maintenance commands, which need it
// whether or not the service itself journals.
func openDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required (STATIONQ_DB__DSN)")
	}
	return infra.NewDB(ctx, cfg.DB.DSN)
}
