package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func registerCleanCommand(root *cobra.Command) {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete every result and model file in the container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("clean deletes all results and models; pass --yes to confirm")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n := a.results.DeleteAllResultsAndModels(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d result and model files\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")

	root.AddCommand(cmd)
}
