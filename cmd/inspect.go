package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
	"github.com/xkilldash9x/cohortgraph/internal/observability"
)

type inspectOptions struct {
	graphOptions
	input   string
	patient string
	format  string
	output  string
}

// newInspectCmd creates the `inspect` command.
func newInspectCmd() *cobra.Command {
	var opts inspectOptions

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Build the graph in memory and print its summary or one patient's timeline",
		Long: `Without --patient, prints node and edge counts. With --patient, extracts the
patient's subgraph (its visits in temporal order, the next_visit chain and every
concept reached) and writes it as GraphML or as plain text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			opts.bridgeSet = cmd.Flags().Changed("bridge-label-gaps")

			if opts.output == "" {
				return runInspect(cmd.OutOrStdout(), observability.GetLogger(), cfg, opts)
			}
			var buf bytes.Buffer
			if err := runInspect(&buf, observability.GetLogger(), cfg, opts); err != nil {
				return err
			}
			return writeFile(opts.output, buf.Bytes())
		},
	}

	inspectCmd.Flags().StringVarP(&opts.input, "input", "i", "", "cleaned visit table (overrides input.path)")
	inspectCmd.Flags().StringVarP(&opts.patient, "patient", "p", "", "source patient identifier (RID) to extract")
	inspectCmd.Flags().StringVarP(&opts.format, "format", "f", "graphml", "timeline output format: graphml or text")
	inspectCmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to a file instead of stdout")
	inspectCmd.Flags().StringVar(&opts.rulesFile, "rules", "", "rule catalog YAML file (overrides rules_file)")
	inspectCmd.Flags().BoolVar(&opts.bridgeLabelGaps, "bridge-label-gaps", false, "link the visits around a row dropped for a missing label")
	return inspectCmd
}

func runInspect(out io.Writer, logger *zap.Logger, cfg config.Interface, opts inspectOptions) error {
	if opts.format != "graphml" && opts.format != "text" {
		return fmt.Errorf("unsupported format %q (want graphml or text)", opts.format)
	}
	if opts.input != "" {
		cfg.SetInputPath(opts.input)
	}

	g, err := buildGraph(cfg, opts.graphOptions, logger)
	if err != nil {
		return err
	}

	if opts.patient == "" {
		_, err := fmt.Fprintln(out, g.Summary())
		return err
	}

	index, ok := g.FindPatient(opts.patient)
	if !ok {
		return fmt.Errorf("patient %q not found in %s", opts.patient, cfg.Input().Path)
	}
	tl, err := g.PatientTimeline(index)
	if err != nil {
		return err
	}
	if opts.format == "text" {
		return writeTimelineText(out, g, tl)
	}
	return tl.WriteGraphML(out)
}

func writeTimelineText(out io.Writer, g *knowledgegraph.Graph, tl *knowledgegraph.Timeline) error {
	p := tl.Patient
	if _, err := fmt.Fprintf(out, "%s\n", g.DisplayName(schemas.NodePatient, p.Index)); err != nil {
		return err
	}
	for _, v := range tl.Visits {
		if _, err := fmt.Fprintf(out, "  t=%g  %s\n", v.VisitTime, g.DisplayName(schemas.NodeVisit, v.Index)); err != nil {
			return err
		}
	}
	for _, l := range tl.Links {
		if _, err := fmt.Fprintf(out, "  %s -[%s]-> %s\n",
			g.DisplayName(l.Source, l.SourceIndex), l.Relation, g.DisplayName(schemas.NodeConcept, int(l.Concept))); err != nil {
			return err
		}
	}
	return nil
}

// writeFile creates path only once its content is complete.
func writeFile(path string, content []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
