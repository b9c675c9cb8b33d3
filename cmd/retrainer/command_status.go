package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/kiranshivaraju/retrainer/pkg/models"
	"github.com/spf13/cobra"
)

func registerStatusCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "status <jobID>",
		Short: "Show the status of a retraining job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				st, err := a.jobs.Status(ctx, models.JobID(args[0]))
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "status: %s\n", st.StatusCode)
				if st.Details != "" {
					fmt.Fprintf(out, "details: %s\n", st.Details)
				}

				names := make([]string, 0, len(st.Results))
				for name := range st.Results {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					ref := st.Results[name]
					fmt.Fprintf(out, "%s: %s%s\n", name, ref.BaseLocation, ref.RelativeLocation)
				}
				return nil
			})
		},
	}
	root.AddCommand(cmd)
}
