package engine

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/cohort"
	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
	"github.com/xkilldash9x/cohortgraph/internal/rules"
)

// Options tunes graph construction.
type Options struct {
	// BridgeLabelGaps links the visits on either side of a row dropped for a missing
	// label instead of breaking the temporal chain there.
	BridgeLabelGaps bool
}

// OptionsFromConfig maps the graph section of the configuration onto Options.
func OptionsFromConfig(cfg config.GraphConfig) Options {
	return Options{BridgeLabelGaps: cfg.BridgeLabelGaps}
}

// Engine turns a cohort table into a heterogeneous graph. An Engine holds only
// immutable configuration; every Build call gets its own construction state, so one
// Engine may be shared.
type Engine struct {
	rules  *rules.Set
	opts   Options
	logger *zap.Logger
}

// New creates an Engine that bridges to concepts with ruleSet.
func New(ruleSet *rules.Set, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ruleSet == nil {
		ruleSet = rules.Default()
	}
	return &Engine{
		rules:  ruleSet,
		opts:   opts,
		logger: logger.With(zap.String("component", "graph_engine")),
	}
}

// Build runs one deterministic construction pass over table and returns the assembled
// graph. Nothing is returned on error.
func (e *Engine) Build(table *cohort.Table) (*knowledgegraph.Graph, error) {
	b := newBuilder(e)
	for _, pr := range table.Patients() {
		if err := b.addPatient(pr); err != nil {
			return nil, err
		}
	}

	g, err := knowledgegraph.Assemble(b.parts(), e.logger)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Cohort graph constructed.", g.Summary().Fields()...)
	return g, nil
}

// builder owns all mutable state of a single construction pass.
type builder struct {
	engine    *Engine
	logger    *zap.Logger
	patients  []knowledgegraph.PatientNode
	visits    []knowledgegraph.VisitNode
	edges     map[schemas.EdgeKey]*knowledgegraph.EdgeSet
	edgeOrder []schemas.EdgeKey
	dropped   []knowledgegraph.DroppedRow
	nextVisit int
}

func newBuilder(e *Engine) *builder {
	b := &builder{
		engine: e,
		logger: e.logger,
		edges:  make(map[schemas.EdgeKey]*knowledgegraph.EdgeSet),
	}
	keys := append([]schemas.EdgeKey{schemas.HasVisitKey, schemas.NextVisitKey}, e.rules.EdgeKeys()...)
	for _, k := range keys {
		if _, exists := b.edges[k]; exists {
			continue
		}
		b.edges[k] = knowledgegraph.NewEdgeSet(k)
		b.edgeOrder = append(b.edgeOrder, k)
	}
	return b
}

// timedRow pairs a row with its parsed visit time for sorting.
type timedRow struct {
	row  cohort.Row
	time float64
}

func (b *builder) addPatient(pr cohort.PatientRows) error {
	if len(pr.Rows) == 0 {
		return fmt.Errorf("patient %q has no rows", pr.ID)
	}
	ordered := make([]timedRow, 0, len(pr.Rows))
	for _, r := range pr.Rows {
		t, err := r.VisitTime()
		if err != nil {
			// A row that never becomes a visit may lack a time; its place in the
			// chain is unknown, so it leaves the chain untouched.
			if _, ok := ParseDiagnosis(r.Raw(cohort.FieldLabel)); !ok {
				b.drop(pr.ID, r, "missing label and visit time; gap position unknown")
				continue
			}
			return err
		}
		ordered = append(ordered, timedRow{row: r, time: t})
	}
	// Stable: rows sharing a visit time keep their file order.
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].time < ordered[j].time })

	baseline := pr.Rows[0]
	if len(ordered) > 0 {
		baseline = ordered[0].row
	}
	features, err := patientFeatures(baseline)
	if err != nil {
		return err
	}

	pIdx := len(b.patients)
	b.patients = append(b.patients, knowledgegraph.PatientNode{
		Index:     pIdx,
		PatientID: pr.ID,
		Features:  features,
	})
	if err := b.bridge(schemas.NodePatient, pIdx, baseline); err != nil {
		return err
	}

	prev := -1
	for _, tr := range ordered {
		label, ok := ParseDiagnosis(tr.row.Raw(cohort.FieldLabel))
		if !ok {
			b.drop(pr.ID, tr.row, "missing or unparseable label")
			if !b.engine.opts.BridgeLabelGaps {
				prev = -1
			}
			continue
		}

		vf, err := visitFeatures(tr.row)
		if err != nil {
			return err
		}

		vIdx := b.nextVisit
		b.nextVisit++
		b.visits = append(b.visits, knowledgegraph.VisitNode{
			Index:        vIdx,
			PatientIndex: pIdx,
			VisitTime:    tr.time,
			Row:          tr.row.Number,
			Features:     vf,
			Label:        label,
		})

		b.edges[schemas.HasVisitKey].Add(pIdx, vIdx)
		if prev >= 0 {
			b.edges[schemas.NextVisitKey].Add(prev, vIdx)
		}
		prev = vIdx

		if err := b.bridge(schemas.NodeVisit, vIdx, tr.row); err != nil {
			return err
		}
	}
	return nil
}

// bridge evaluates the rules for one record and records an edge per firing.
func (b *builder) bridge(source schemas.NodeType, index int, row cohort.Row) error {
	firings, err := b.engine.rules.Evaluate(source, row)
	if err != nil {
		return err
	}
	for _, f := range firings {
		b.edges[f.Key].Add(index, int(f.Concept))
		b.logger.Debug("Rule fired.",
			zap.String("rule", f.Rule),
			zap.String("source", string(source)),
			zap.Int("index", index),
			zap.Int("concept", int(f.Concept)))
	}
	return nil
}

func (b *builder) drop(patientID string, row cohort.Row, reason string) {
	b.dropped = append(b.dropped, knowledgegraph.DroppedRow{PatientID: patientID, Row: row.Number, Reason: reason})
	b.logger.Warn("Visit row dropped.",
		zap.String("patient_id", patientID),
		zap.Int("row", row.Number),
		zap.String("label", row.Raw(cohort.FieldLabel)),
		zap.String("reason", reason))
}

func (b *builder) parts() knowledgegraph.Parts {
	edges := make([]*knowledgegraph.EdgeSet, 0, len(b.edgeOrder))
	for _, k := range b.edgeOrder {
		edges = append(edges, b.edges[k])
	}
	return knowledgegraph.Parts{
		Patients: b.patients,
		Visits:   b.visits,
		Concepts: b.engine.rules.Catalog().Concepts(),
		Edges:    edges,
		Dropped:  b.dropped,
	}
}
