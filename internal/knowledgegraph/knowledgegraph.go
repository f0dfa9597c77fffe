package knowledgegraph

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

// PatientFeatureNames labels the columns of a patient feature vector.
var PatientFeatureNames = []string{"age", "sex_female", "education_years", "genetic_risk_count"}

// VisitFeatureNames labels the columns of a visit feature vector. Volumes are ICV-normalized.
var VisitFeatureNames = []string{
	"hippocampal_volume_icv", "ventricles_volume_icv", "whole_brain_volume_icv",
	"entorhinal_volume_icv", "fusiform_volume_icv", "mid_temporal_volume_icv",
	"cognitive_score_a", "cognitive_score_b", "biomarker_fdg", "biomarker_av45",
}

// PatientNode is one patient with its static baseline features.
type PatientNode struct {
	Index     int
	PatientID string
	Features  []float64
}

// VisitNode is one labelled visit.
type VisitNode struct {
	Index        int
	PatientIndex int
	VisitTime    float64
	// Row is the 1-based data row of the source table the visit came from.
	Row      int
	Features []float64
	Label    schemas.Diagnosis
}

// DroppedRow records an input row that produced no visit node.
type DroppedRow struct {
	PatientID string
	Row       int
	Reason    string
}

// EdgeSet holds every edge of one typed relation as two parallel index slices.
type EdgeSet struct {
	Key schemas.EdgeKey
	Src []int
	Dst []int
}

// NewEdgeSet returns an empty, non-nil edge set for key.
func NewEdgeSet(key schemas.EdgeKey) *EdgeSet {
	return &EdgeSet{Key: key, Src: []int{}, Dst: []int{}}
}

// Add appends the edge src -> dst.
func (e *EdgeSet) Add(src, dst int) {
	e.Src = append(e.Src, src)
	e.Dst = append(e.Dst, dst)
}

// Len is the number of edges in the set.
func (e *EdgeSet) Len() int { return len(e.Src) }

// Parts are the collections produced by graph construction, before assembly.
type Parts struct {
	Patients []PatientNode
	Visits   []VisitNode
	Concepts []schemas.Concept
	Edges    []*EdgeSet
	Dropped  []DroppedRow
}

// Graph is the assembled, integrity-checked cohort graph. Both export forms are derived
// from a Graph value and nothing else.
type Graph struct {
	Patients []PatientNode
	Visits   []VisitNode
	Concepts []schemas.Concept
	// Edges keeps relation order: has_visit, next_visit, then the rule relations.
	Edges   []*EdgeSet
	Dropped []DroppedRow
}

// Assemble merges the parts into one graph and verifies referential integrity.
func Assemble(p Parts, logger *zap.Logger) (*Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Graph{
		Patients: p.Patients,
		Visits:   p.Visits,
		Concepts: p.Concepts,
		Edges:    p.Edges,
		Dropped:  p.Dropped,
	}
	if err := g.Verify(); err != nil {
		logger.Error("Graph failed integrity check.", zap.Error(err))
		return nil, err
	}
	logger.Named("assembler").Debug("Graph assembled.", g.Summary().Fields()...)
	return g, nil
}

// NodeCount returns the number of nodes of type t.
func (g *Graph) NodeCount(t schemas.NodeType) int {
	switch t {
	case schemas.NodePatient:
		return len(g.Patients)
	case schemas.NodeVisit:
		return len(g.Visits)
	case schemas.NodeConcept:
		return len(g.Concepts)
	}
	return 0
}

// EdgeSet looks up the edges of one relation.
func (g *Graph) EdgeSet(key schemas.EdgeKey) (*EdgeSet, bool) {
	for _, e := range g.Edges {
		if e.Key == key {
			return e, true
		}
	}
	return nil, false
}

// EdgeCount is the total number of edges across all relations.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, e := range g.Edges {
		n += e.Len()
	}
	return n
}

// RelationCount pairs an edge key with its edge count.
type RelationCount struct {
	Key   schemas.EdgeKey
	Count int
}

// Summary is the per-type node and per-relation edge count of a graph.
type Summary struct {
	Patients int
	Visits   int
	Concepts int
	Edges    []RelationCount
	Dropped  int
}

// Summary counts nodes by type and edges by relation.
func (g *Graph) Summary() Summary {
	s := Summary{
		Patients: len(g.Patients),
		Visits:   len(g.Visits),
		Concepts: len(g.Concepts),
		Dropped:  len(g.Dropped),
		Edges:    make([]RelationCount, 0, len(g.Edges)),
	}
	for _, e := range g.Edges {
		s.Edges = append(s.Edges, RelationCount{Key: e.Key, Count: e.Len()})
	}
	return s
}

// Fields renders the summary as structured log fields.
func (s Summary) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Int("patients", s.Patients),
		zap.Int("visits", s.Visits),
		zap.Int("concepts", s.Concepts),
		zap.Int("dropped_rows", s.Dropped),
	}
	for _, e := range s.Edges {
		fields = append(fields, zap.Int(e.Key.String(), e.Count))
	}
	return fields
}

func (s Summary) String() string {
	out := fmt.Sprintf("patients=%d visits=%d concepts=%d dropped=%d", s.Patients, s.Visits, s.Concepts, s.Dropped)
	for _, e := range s.Edges {
		out += fmt.Sprintf(" %s=%d", e.Key, e.Count)
	}
	return out
}
