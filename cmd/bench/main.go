// README: Benchmark runner for the dispatch API; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

// benchEnvPrefix scopes the environment overrides: STATIONQ_BENCH_BASE_URL,
// STATIONQ_BENCH_SPREAD_METERS and so on.
const benchEnvPrefix = "STATIONQ_BENCH_"

type Config struct {
	BaseURL        string        `koanf:"base_url"`
	DSN            string        `koanf:"dsn"`
	RedisAddr      string        `koanf:"redis_addr"`
	ApplyMigration bool          `koanf:"apply_migration"`
	Strict         bool          `koanf:"strict"`
	Timeout        time.Duration `koanf:"timeout"`
	Concurrency    int           `koanf:"concurrency"`
	Duration       time.Duration `koanf:"duration"`
	// Station the functional cases queue drivers at; must exist in the
	// server's catalog.
	StationID  string  `koanf:"station"`
	StationLat float64 `koanf:"station_lat"`
	StationLng float64 `koanf:"station_lng"`
	// SpreadMeters bounds how far random drivers land from a station.
	SpreadMeters float64 `koanf:"spread_meters"`
}

func defaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:8080",
		Timeout:      60 * time.Second,
		Concurrency:  20,
		Duration:     10 * time.Second,
		StationID:    "Ameerpet",
		StationLat:   17.3005372696588,
		StationLng:   78.39926408384103,
		SpreadMeters: 1000,
	}
}

// envConfig applies STATIONQ_BENCH_ overrides on top of the defaults. Flags
// are registered with the result, so a flag beats the environment.
func envConfig() (Config, error) {
	cfg := defaultConfig()
	k := koanf.New(".")
	err := k.Load(env.Provider(benchEnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, benchEnvPrefix))
	}), nil)
	if err != nil {
		return cfg, err
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, fmt.Errorf("bench environment: %w", err)
	}
	return cfg, nil
}

func newBenchCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bench",
		Short:        "Run functional, mirror and load checks against a running stationq",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			sum := Summarize(NewRunner(*cfg).RunAll(ctx))
			fmt.Printf("\n== Summary ==\n%s\n", sum)
			if sum.Failed(cfg.Strict) {
				return fmt.Errorf("%d failed, %d pending", sum.Fail, sum.Pending)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "API base URL")
	f.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Postgres DSN (journal checks)")
	f.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address (mirror checks)")
	f.BoolVar(&cfg.ApplyMigration, "apply-migration", cfg.ApplyMigration, "apply migrations before tests")
	f.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail on pending tests")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "total timeout")
	f.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "concurrency for perf tests")
	f.DurationVar(&cfg.Duration, "duration", cfg.Duration, "duration of each perf test")
	f.StringVar(&cfg.StationID, "station", cfg.StationID, "station id used by functional cases")
	f.Float64Var(&cfg.StationLat, "station-lat", cfg.StationLat, "station latitude")
	f.Float64Var(&cfg.StationLng, "station-lng", cfg.StationLng, "station longitude")
	f.Float64Var(&cfg.SpreadMeters, "spread", cfg.SpreadMeters, "max distance of random drivers from a station, meters")
	return cmd
}

func main() {
	cfg, err := envConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := newBenchCmd(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}
