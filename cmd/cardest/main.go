package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dshills/cardest/internal/config"
	"github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/metrics"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

// app holds the state shared by every command once flags are parsed.
type app struct {
	configFile  string
	logLevel    string
	showMetrics bool

	cfg      *config.Config
	logger   log.Logger
	registry *prometheus.Registry
}

func (a *app) setup() error {
	cfg := config.DefaultConfig()
	if a.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(a.configFile); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = log.Configure(cfg.Log)

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		if err := metrics.Register(a.registry); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command) error {
	if !a.showMetrics || a.registry == nil {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), renderMetrics(families))
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cardest",
		Short:         "Cardinality estimation for query plans",
		Long:          "cardest derives row counts and column statistics for the groups of a query memo.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to configuration file (JSON or TOML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.showMetrics, "metrics", false, "Print collected metrics after the command")

	root.AddCommand(newEstimateCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newSnapshotCmd(a))
	root.AddCommand(newFeaturesCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration problems and 1 for everything else.
func exitCode(err error) int {
	switch errors.CodeCategory(errors.GetError(err).Code) {
	case errors.CodeCategory(errors.ConfigFileError), errors.CodeCategory(errors.InvalidParameterValue):
		return 2
	}
	return 1
}
