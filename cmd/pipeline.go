package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/internal/cohort"
	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/engine"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
	"github.com/xkilldash9x/cohortgraph/internal/rules"
)

// graphOptions are the per-invocation overrides shared by build and inspect.
type graphOptions struct {
	rulesFile       string
	bridgeLabelGaps bool
	bridgeSet       bool
}

// loadRules resolves the rule set: an explicit file wins over the configuration.
func loadRules(cfg config.Interface, rulesFile string) (*rules.Set, error) {
	if rulesFile != "" {
		return rules.LoadFile(rulesFile)
	}
	return rules.FromConfig(cfg)
}

// buildGraph runs the read, aggregate, bridge and assemble stages.
func buildGraph(cfg config.Interface, opts graphOptions, logger *zap.Logger) (*knowledgegraph.Graph, error) {
	ruleSet, err := loadRules(cfg, opts.rulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	in := cfg.Input()
	columns, err := cohort.ColumnsFromConfig(in.Columns)
	if err != nil {
		return nil, err
	}
	var delimiter rune
	if r := []rune(in.Delimiter); len(r) == 1 {
		delimiter = r[0]
	}
	table, err := cohort.Open(in.Path, columns, delimiter)
	if err != nil {
		return nil, err
	}
	logger.Info("Cohort table loaded.",
		zap.String("source", table.Source()),
		zap.Int("rows", table.Len()),
		zap.Int("patients", len(table.Patients())),
	)

	engineOpts := engine.OptionsFromConfig(cfg.Graph())
	if opts.bridgeSet {
		engineOpts.BridgeLabelGaps = opts.bridgeLabelGaps
	}
	return engine.New(ruleSet, engineOpts, logger).Build(table)
}
