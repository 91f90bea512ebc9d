package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognicore/taxoprep/pkg/taxoprep/labels"
	"github.com/cognicore/taxoprep/pkg/taxoprep/loader"
)

type rootOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "taxoprep",
		Short:        "Prepare hierarchically labeled product text for classification",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(prepareCmd(opts))
	rootCmd.AddCommand(inspectCmd(opts))
	rootCmd.AddCommand(batchesCmd(opts))
	rootCmd.AddCommand(cacheCmd(opts))

	return rootCmd
}

func prepareCmd(opts *rootOptions) *cobra.Command {
	var (
		schemeName string
		level      int
	)

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Materialize the train/valid/test split for a label scheme",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scheme, err := parseTarget(schemeName, level)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.prep.Materialize(ctx, scheme, level)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:        %s\n", s.Key)
			fmt.Fprintf(out, "run:        %s\n", s.RunID)
			fmt.Fprintf(out, "cached:     %v\n", s.Cached)
			fmt.Fprintf(out, "max_length: %d\n", s.MaxLength)
			fmt.Fprintf(out, "train:      %d\n", s.Train.Len())
			fmt.Fprintf(out, "valid:      %d\n", s.Valid.Len())
			fmt.Fprintf(out, "test:       %d\n", s.Test.Len())
			return nil
		},
	}

	addTargetFlags(cmd, &schemeName, &level)
	return cmd
}

func inspectCmd(opts *rootOptions) *cobra.Command {
	var writeHierarchy bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the taxonomy tables of the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, writeHierarchy)
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.prep.Index()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "records:  %d\n", a.ds.Len())
			fmt.Fprintf(out, "depth:    %d\n", idx.Depth())
			for d := 0; d < idx.Depth(); d++ {
				fmt.Fprintf(out, "level %d:  %d names\n", d, idx.LevelCount(d))
			}
			fmt.Fprintf(out, "sections: %d\n", idx.NumSections())
			if writeHierarchy {
				fmt.Fprintf(out, "hierarchy written to %s\n", a.cfg.HierarchyPath())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&writeHierarchy, "write-hierarchy", false, "write the hierarchy YAML next to the artifacts")
	return cmd
}

func batchesCmd(opts *rootOptions) *cobra.Command {
	var (
		schemeName string
		level      int
		stageName  string
	)

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Iterate the batches of a training stage and print their counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scheme, err := parseTarget(schemeName, level)
			if err != nil {
				return err
			}
			stage, err := loader.ParseStage(stageName)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.prep.Materialize(ctx, scheme, level)
			if err != nil {
				return err
			}

			l := loader.New(s, loader.Options{
				BatchSize: a.cfg.Loader.BatchSize,
				Workers:   a.cfg.Loader.Workers,
				Seed:      a.cfg.Loader.Seed,
				Metrics:   a.metrics,
			})
			its, err := l.Iterators(stage)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, it := range its {
				batches, examples := 0, 0
				err := it.Each(ctx, func(b loader.Batch) error {
					batches++
					examples += b.Len()
					return nil
				})
				if err != nil {
					return fmt.Errorf("iterating %s: %w", it.Name(), err)
				}
				fmt.Fprintf(out, "%-5s shuffled=%-5v batches=%d examples=%d\n", it.Name(), it.Shuffled(), batches, examples)
			}
			return nil
		},
	}

	addTargetFlags(cmd, &schemeName, &level)
	cmd.Flags().StringVar(&stageName, "stage", string(loader.Fit), "training stage (fit or test)")
	return cmd
}

func cacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached splits",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached splits",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			manifests, err := a.store.ListManifests(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(manifests) == 0 {
				fmt.Fprintln(out, "No cached splits. Use 'taxoprep prepare' to create one.")
				return nil
			}
			for _, m := range manifests {
				fmt.Fprintf(out, "%-22s %s  %s  records=%d\n",
					m.Key, m.RunID, m.CreatedAt.Format("2006-01-02 15:04:05"), m.Records())
			}
			return nil
		},
	})

	var (
		schemeName string
		level      int
	)
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Invalidate one cached split",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, err := parseTarget(schemeName, level)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			key := a.prep.Key(scheme, level)
			if err := a.cache.Invalidate(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", key)
			return nil
		},
	}
	addTargetFlags(clearCmd, &schemeName, &level)
	cmd.AddCommand(clearCmd)

	return cmd
}

func addTargetFlags(cmd *cobra.Command, scheme *string, level *int) {
	cmd.Flags().StringVar(scheme, "scheme", "flat", "label scheme (flat, level or section)")
	cmd.Flags().IntVar(level, "level", labels.AllLevels, "taxonomy depth for the level scheme (0-based)")
}

func parseTarget(name string, level int) (labels.Scheme, error) {
	scheme, err := labels.ParseScheme(name)
	if err != nil {
		return 0, err
	}
	if scheme == labels.Level && level < 0 {
		return 0, fmt.Errorf("--level is required for the level scheme")
	}
	return scheme, nil
}
