package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func registerResultsCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect training results in the container",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Print the metrics of the newest result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				snap := a.results.LatestMetrics(ctx)
				switch {
				case snap.IsNoMetrics():
					fmt.Fprintln(cmd.OutOrStdout(), "no results yet")
					return nil
				case len(snap) == 0:
					return errors.New("latest results could not be read")
				}
				printMetrics(cmd.OutOrStdout(), "latest", snap)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Print the metrics of every result, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				refs := a.results.ListResultBlobs(ctx)
				all := a.results.AllResults(ctx)
				if len(all) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no results yet")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d result files readable\n", len(all), len(refs))
				for i, snap := range all {
					printMetrics(cmd.OutOrStdout(), fmt.Sprintf("#%d", i+1), snap)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "raw",
		Short: "Print the newest result file verbatim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				text, ok := a.results.LatestRawResultText(ctx)
				if !ok {
					return errors.New("no result file found")
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	})

	root.AddCommand(cmd)
}
