package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "retrainer",
		Short: "Retrain a hosted model and redeploy it when its metrics improve",
		Long: "retrainer uploads or locates a training set, runs a batch retraining job, compares the new " +
			"metrics with the previous run and repoints the scoring endpoints at the new model when it is better.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	registerRunCommand(root)
	registerServeCommand(root)
	registerStatusCommand(root)
	registerResultsCommand(root)
	registerCleanCommand(root)
	registerQueryCommand(root)

	return root
}
