package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dshills/cardest/internal/fixture"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/sql/cardinality"
	"github.com/dshills/cardest/internal/statscache"
)

// loadScenario reads and builds a fixture, overlaying the statistics of
// an optional snapshot file.
func (a *app) loadScenario(path, statsPath string) (*fixture.Scenario, error) {
	f, err := fixture.Load(path)
	if err != nil {
		return nil, err
	}
	sc, err := f.BuildWith(a.cfg.CacheOptions())
	if err != nil {
		return nil, err
	}
	if statsPath != "" {
		snap, err := statscache.LoadSnapshotFile(statsPath)
		if err != nil {
			return nil, err
		}
		if err := snap.Apply(sc.Cache, sc.Catalog); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

func newEstimateCmd(a *app) *cobra.Command {
	var (
		statsPath string
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "estimate <fixture.yaml>",
		Short: "Estimate every group of a fixture plan",
		Long: `Builds the memo described by a fixture, estimates it bottom up and prints
the row count of every group. Expectations in the fixture are checked and
any mismatch fails the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.loadScenario(args[0], statsPath)
			if err != nil {
				return err
			}
			logger := a.logger.With(log.String("fixture", sc.Fixture.Name))
			if err := sc.Estimate(a.cfg.Session(), logger); err != nil {
				return errors.Wrap(err, "estimation failed")
			}

			mismatches, err := sc.Check()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGroups(sc, mismatches, verbose))
			if len(mismatches) > 0 {
				return errors.Newf("%d expectation(s) not met", len(mismatches))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&statsPath, "stats", "", "Statistics snapshot applied on top of the fixture's own")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print column statistics of every group")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var statsPath string
	cmd := &cobra.Command{
		Use:   "check <fixture.yaml>",
		Short: "Check whether statistics are good enough for join reordering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.loadScenario(args[0], statsPath)
			if err != nil {
				return err
			}
			ctx := cardinality.NewContext(sc.Fixture.Session.Apply(a.cfg.Session()), sc.Cache, a.logger)
			scans := cardinality.Scans(sc.Memo)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tables scanned: %d\n", len(scans))
			if rows := cardinality.MaxTableRowCount(ctx, scans); rows >= 0 {
				fmt.Fprintf(out, "largest table: %.0f rows\n", rows)
			} else {
				fmt.Fprintln(out, "largest table: unknown")
			}
			if reason, unsafe := cardinality.CheckJoinOrderSafety(ctx, scans); unsafe {
				fmt.Fprintf(out, "join reorder: disabled (%s)\n", reason)
			} else {
				fmt.Fprintln(out, "join reorder: allowed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&statsPath, "stats", "", "Statistics snapshot applied on top of the fixture's own")
	return cmd
}
