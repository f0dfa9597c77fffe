package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/cohortgraph/internal/rules"
)

// newRulesCmd creates the `rules` command.
func newRulesCmd() *cobra.Command {
	var rulesFile string
	var format string

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective concept catalog and bridge rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			set, err := loadRules(cfg, rulesFile)
			if err != nil {
				return err
			}
			switch format {
			case "yaml":
				data, err := set.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			case "table":
				return writeRuleTable(cmd.OutOrStdout(), set)
			default:
				return fmt.Errorf("unsupported format %q (want table or yaml)", format)
			}
		},
	}

	rulesCmd.Flags().StringVar(&rulesFile, "rules", "", "rule catalog YAML file (overrides rules_file)")
	rulesCmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or yaml")
	return rulesCmd
}

func writeRuleTable(out io.Writer, set *rules.Set) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONCEPT")
	for _, c := range set.Catalog().Concepts() {
		fmt.Fprintf(tw, "%d\t%s\n", c.ID, c.Name)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RULE\tSOURCE\tCONDITION\tEDGE")
	for _, r := range set.Rules() {
		fmt.Fprintf(tw, "%s\t%s\t%s %s %g\t%s\n", r.Name, r.Source, r.Field, r.Op, r.Threshold, r.Key())
	}
	return tw.Flush()
}
