package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kiranshivaraju/retrainer/internal/retrain"
	"github.com/kiranshivaraju/retrainer/pkg/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type runOptions struct {
	file           string
	blob           string
	useQuery       bool
	queryDate      string
	source         string
	params         map[string]string
	paramsFile     string
	metric         string
	minImprovement float64
	force          bool
	secondary      bool
}

func registerRunCommand(root *cobra.Command) {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one retraining job and deploy the model if it improved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runRetrain(ctx, a, opts, cmd.OutOrStdout())
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.file, "file", "", "Local training file to upload (csv, tsv)")
	f.StringVar(&opts.blob, "blob", "", "Training blob already in the container")
	f.BoolVar(&opts.useQuery, "query", false, "Send the stored query to the experiment")
	f.StringVar(&opts.queryDate, "query-date", "", "Replace every date in the query with this YYYY-MM-DD date")
	f.StringVar(&opts.source, "source", "", "Data source: uploaded_file or external_query (inferred when empty)")
	f.StringToStringVar(&opts.params, "param", nil, "Global parameter as key=value (repeatable)")
	f.StringVar(&opts.paramsFile, "params-file", "", "YAML file of global parameters")
	f.StringVar(&opts.metric, "metric", "AUC", "Metric used to decide whether to deploy")
	f.Float64Var(&opts.minImprovement, "min-improvement", 0.02, "Minimum relative improvement required to deploy")
	f.BoolVar(&opts.force, "force", false, "Deploy regardless of the metric comparison")
	f.BoolVar(&opts.secondary, "secondary", false, "Also deploy to the secondary publish endpoint")

	cmd.MarkFlagsMutuallyExclusive("file", "blob")

	root.AddCommand(cmd)
}

func runRetrain(ctx context.Context, a *app, opts *runOptions, out io.Writer) error {
	params, err := globalParameters(opts.paramsFile, opts.params)
	if err != nil {
		return err
	}

	endpoints := []models.PublishEndpoint{a.cfg.PrimaryEndpoint()}
	if opts.secondary {
		ep, ok := a.cfg.SecondaryEndpoint()
		if !ok {
			return fmt.Errorf("--secondary needs RETRAINER_PUBLISH2_URL and RETRAINER_PUBLISH2_KEY")
		}
		endpoints = append(endpoints, ep)
	}

	var source models.DataSource
	if opts.source != "" {
		if source, err = models.ParseDataSource(opts.source); err != nil {
			return err
		}
	}

	report, err := a.service().Run(ctx, retrain.RunParams{
		Source:           source,
		TrainingFile:     opts.file,
		TrainingBlob:     opts.blob,
		UseStoredQuery:   opts.useQuery,
		QueryDate:        opts.queryDate,
		GlobalParameters: params,
		Metric:           opts.metric,
		MinImprovement:   opts.minImprovement,
		Force:            opts.force,
		Endpoints:        endpoints,
		OnStatus: func(st models.JobStatus) {
			fmt.Fprintf(out, "status: %s\n", st)
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "job %s finished, model %s\n", report.JobID, report.ModelName)
	printMetrics(out, "previous", report.Prior)
	printMetrics(out, "new", report.Metrics)
	for _, o := range report.Outcomes {
		if o.Reason != "" {
			fmt.Fprintf(out, "%s: %s (%s)\n", o.Endpoint, o.Kind, o.Reason)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", o.Endpoint, o.Kind)
	}
	fmt.Fprintf(out, "outcome: %s\n", report.Outcome())
	return nil
}

// globalParameters merges the params file with --param flags; flags win.
func globalParameters(path string, flags map[string]string) (map[string]string, error) {
	out := make(map[string]string)
	if path != "" {
		fromFile, err := loadParamsFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			out[k] = v
		}
	}
	for k, v := range flags {
		out[k] = v
	}
	return out, nil
}

// loadParamsFile reads a flat YAML mapping of global parameters.
// Scalar values are rendered as strings; nested values are rejected.
func loadParamsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing params file %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("params file %s: %q must be a scalar", path, k)
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func printMetrics(out io.Writer, label string, snap models.MetricsSnapshot) {
	if len(snap) == 0 {
		fmt.Fprintf(out, "%s metrics: none\n", label)
		return
	}
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "%s metrics:\n", label)
	for _, name := range names {
		fmt.Fprintf(out, "  %s = %g\n", name, snap[name])
	}
}
