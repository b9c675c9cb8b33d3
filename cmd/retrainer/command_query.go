package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/retrainer/internal/results"
	"github.com/kiranshivaraju/retrainer/pkg/sqlquery"
	"github.com/spf13/cobra"
)

var errNoStoredQuery = fmt.Errorf("%w: no stored query, run 'retrainer query store <file>' first", results.ErrNotFound)

func registerQueryCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Manage the stored retraining query",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "store <file>",
		Short: "Upload a SQL file as the stored query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.results.StoreQuery(ctx, args[0])
				if _, ok := a.results.LoadQuery(ctx); !ok {
					return errors.New("query was not stored, see log for details")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s as %s\n", args[0], results.QueryBlobName)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored query and the dates it contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				q, ok := a.results.LoadQuery(ctx)
				if !ok {
					return errNoStoredQuery
				}
				fmt.Fprintln(cmd.OutOrStdout(), q)
				fmt.Fprintf(cmd.OutOrStdout(), "dates: %v\n", sqlquery.Rewriter{}.Dates(q))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-date <YYYY-MM-DD>",
		Short: "Replace every date in the stored query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				q, ok := a.results.LoadQuery(ctx)
				if !ok {
					return errNoStoredQuery
				}
				rewritten, err := sqlquery.Rewriter{}.ReplaceDate(q, args[0])
				if err != nil {
					return err
				}
				if err := a.results.SaveQuery(ctx, rewritten); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rewritten)
				return nil
			})
		},
	})

	root.AddCommand(cmd)
}
