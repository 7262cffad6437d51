package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/cardest/internal/feature"
)

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "Show feature flags and their current state",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), feature.DebugString())
		},
	}
}
