// Command gotoken-loadtest drives concurrent issue, verify and refresh load
// against a goToken engine and reports latency percentiles.
//
// Settings come from flags, GOTOKEN_LOADTEST_* environment variables or an
// optional loadtest.yaml in the working directory, in that order of
// precedence. Without a Redis address an embedded miniredis is used.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type settings struct {
	Users       int           `mapstructure:"users"`
	Concurrency int           `mapstructure:"concurrency"`
	Ops         int           `mapstructure:"ops"`
	RedisAddr   string        `mapstructure:"redis-addr"`
	AccessTTL   time.Duration `mapstructure:"access-ttl"`
	JTISamples  int           `mapstructure:"jti-samples"`
	Metrics     bool          `mapstructure:"metrics"`
	OTel        bool          `mapstructure:"otel"`
	Verbose     bool          `mapstructure:"verbose"`
}

func (s settings) validate() error {
	if s.Users <= 0 || s.Concurrency <= 0 || s.Ops <= 0 {
		return fmt.Errorf("users, concurrency and ops must be > 0")
	}
	if s.AccessTTL < time.Second {
		return fmt.Errorf("access-ttl must be >= 1s")
	}
	if s.JTISamples < 0 {
		return fmt.Errorf("jti-samples must be >= 0")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "gotoken-loadtest",
		Short:         "Load test the goToken engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := v.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return fmt.Errorf("read config: %w", err)
				}
			}

			var s settings
			if err := v.Unmarshal(&s); err != nil {
				return fmt.Errorf("decode settings: %w", err)
			}
			if err := s.validate(); err != nil {
				return err
			}

			logger, err := newLogger(s.Verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return run(cmd.Context(), s, logger)
		},
	}

	flags := cmd.Flags()
	flags.Int("users", 10000, "number of users to seed with one token pair each")
	flags.Int("concurrency", 256, "number of concurrent workers")
	flags.Int("ops", 200000, "operations per phase")
	flags.String("redis-addr", "", "redis address; empty starts an embedded miniredis")
	flags.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	flags.Int("jti-samples", 1000000, "number of jtis generated for the collision check")
	flags.Bool("metrics", false, "print engine counters in Prometheus text format")
	flags.Bool("otel", false, "print engine metrics as collected through the OpenTelemetry exporter")
	flags.Bool("verbose", false, "enable debug logging")

	v.SetConfigName("loadtest")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("GOTOKEN_LOADTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
