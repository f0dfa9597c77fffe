package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/export"
	"github.com/xkilldash9x/cohortgraph/internal/observability"
	"github.com/xkilldash9x/cohortgraph/internal/sinks"
)

// sinkFactory connects the downstream sinks for a run. It is injected so tests can
// avoid live databases and brokers.
type sinkFactory func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*sinks.Runner, func(), error)

var sinksFromConfig sinkFactory = sinks.FromConfig

type buildOptions struct {
	graphOptions
	input     string
	outDir    string
	compress  bool
	graphName string
	skipSinks bool
}

// newBuildCmd creates and configures the `build` command.
func newBuildCmd(factory sinkFactory) *cobra.Command {
	var opts buildOptions

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the cohort graph and export it",
		Long: `Reads the cleaned visit table, builds the patient, visit and concept graph, writes
the tensor container and the node and edge lists to the export directory, then
delivers the result to every enabled sink (Postgres, Neo4j, S3, NATS, metrics).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			opts.bridgeSet = cmd.Flags().Changed("bridge-label-gaps")
			if cmd.Flags().Changed("compress") {
				cfg.SetExportCompress(opts.compress)
			}
			return runBuild(ctx, cmd.OutOrStdout(), observability.GetLogger(), cfg, opts, factory)
		},
	}

	buildCmd.Flags().StringVarP(&opts.input, "input", "i", "", "cleaned visit table (overrides input.path)")
	buildCmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "export directory (overrides export.dir)")
	buildCmd.Flags().BoolVar(&opts.compress, "compress", false, "brotli-compress the tensor container")
	buildCmd.Flags().StringVar(&opts.rulesFile, "rules", "", "rule catalog YAML file (overrides rules_file)")
	buildCmd.Flags().StringVar(&opts.graphName, "graph-name", "", "name the graph is stored under in the sinks (overrides graph.name)")
	buildCmd.Flags().BoolVar(&opts.bridgeLabelGaps, "bridge-label-gaps", false, "link the visits around a row dropped for a missing label")
	buildCmd.Flags().BoolVar(&opts.skipSinks, "skip-sinks", false, "export only; do not deliver to the configured sinks")
	return buildCmd
}

// runBuild contains the core, testable logic of the build command.
func runBuild(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.Interface, opts buildOptions, factory sinkFactory) error {
	start := time.Now()
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	if opts.input != "" {
		cfg.SetInputPath(opts.input)
	}
	if opts.outDir != "" {
		cfg.SetExportDir(opts.outDir)
	}
	graphName := opts.graphName
	if graphName == "" {
		graphName = cfg.Graph().Name
	}

	g, err := buildGraph(cfg, opts.graphOptions, logger)
	if err != nil {
		return err
	}
	manifest, err := export.NewExporter(cfg.Export(), logger).Export(g)
	if err != nil {
		return err
	}

	if err := printManifest(out, runID, manifest); err != nil {
		return err
	}

	if opts.skipSinks {
		logger.Info("Sinks skipped.")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runner, cleanup, err := factory(ctx, cfg, logger)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()
	if err != nil {
		return fmt.Errorf("failed to connect sinks: %w", err)
	}
	return runner.Run(ctx, sinks.Delivery{
		RunID:    runID,
		Graph:    graphName,
		Manifest: manifest,
		Elapsed:  time.Since(start),
		Finished: time.Now(),
	})
}

func printManifest(out io.Writer, runID string, m *export.Manifest) error {
	if _, err := fmt.Fprintf(out, "run %s\n%s\n", runID, m.Summary); err != nil {
		return err
	}
	for _, f := range m.Files {
		if _, err := fmt.Fprintf(out, "  %s  %d bytes  sha256:%s\n", f.Path, f.Bytes, f.SHA256); err != nil {
			return err
		}
	}
	return nil
}
