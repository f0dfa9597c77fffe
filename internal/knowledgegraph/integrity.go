package knowledgegraph

import (
	"fmt"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

// IntegrityError reports a graph that violates an internal invariant: a non-dense node
// index, an edge endpoint outside its node type's range, or a malformed edge set.
type IntegrityError struct {
	Key    schemas.EdgeKey
	Detail string
}

func (e *IntegrityError) Error() string {
	if e.Key == (schemas.EdgeKey{}) {
		return "graph integrity violation: " + e.Detail
	}
	return fmt.Sprintf("graph integrity violation in %s: %s", e.Key, e.Detail)
}

// Verify checks index density, feature widths and referential closure of every edge.
func (g *Graph) Verify() error {
	for i, p := range g.Patients {
		if p.Index != i {
			return &IntegrityError{Detail: fmt.Sprintf("patient at position %d has index %d", i, p.Index)}
		}
		if len(p.Features) != len(PatientFeatureNames) {
			return &IntegrityError{Detail: fmt.Sprintf("patient %d has %d features, want %d", i, len(p.Features), len(PatientFeatureNames))}
		}
	}
	for i, v := range g.Visits {
		if v.Index != i {
			return &IntegrityError{Detail: fmt.Sprintf("visit at position %d has index %d", i, v.Index)}
		}
		if len(v.Features) != len(VisitFeatureNames) {
			return &IntegrityError{Detail: fmt.Sprintf("visit %d has %d features, want %d", i, len(v.Features), len(VisitFeatureNames))}
		}
		if v.PatientIndex < 0 || v.PatientIndex >= len(g.Patients) {
			return &IntegrityError{Detail: fmt.Sprintf("visit %d belongs to unknown patient %d", i, v.PatientIndex)}
		}
		if !v.Label.Valid() {
			return &IntegrityError{Detail: fmt.Sprintf("visit %d has invalid label %d", i, int(v.Label))}
		}
	}
	for i, c := range g.Concepts {
		if int(c.ID) != i {
			return &IntegrityError{Detail: fmt.Sprintf("concept at position %d has id %d", i, c.ID)}
		}
	}

	seen := make(map[schemas.EdgeKey]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e == nil {
			return &IntegrityError{Detail: "nil edge set"}
		}
		if seen[e.Key] {
			return &IntegrityError{Key: e.Key, Detail: "relation appears twice"}
		}
		seen[e.Key] = true

		if len(e.Src) != len(e.Dst) {
			return &IntegrityError{Key: e.Key, Detail: fmt.Sprintf("%d sources but %d destinations", len(e.Src), len(e.Dst))}
		}
		srcLimit, ok := g.typeLimit(e.Key.Src)
		if !ok {
			return &IntegrityError{Key: e.Key, Detail: fmt.Sprintf("unknown source type %q", e.Key.Src)}
		}
		dstLimit, ok := g.typeLimit(e.Key.Dst)
		if !ok {
			return &IntegrityError{Key: e.Key, Detail: fmt.Sprintf("unknown destination type %q", e.Key.Dst)}
		}
		for j := range e.Src {
			if e.Src[j] < 0 || e.Src[j] >= srcLimit {
				return &IntegrityError{Key: e.Key, Detail: fmt.Sprintf("edge %d source %d outside [0,%d)", j, e.Src[j], srcLimit)}
			}
			if e.Dst[j] < 0 || e.Dst[j] >= dstLimit {
				return &IntegrityError{Key: e.Key, Detail: fmt.Sprintf("edge %d destination %d outside [0,%d)", j, e.Dst[j], dstLimit)}
			}
		}
	}
	return nil
}

func (g *Graph) typeLimit(t schemas.NodeType) (int, bool) {
	switch t {
	case schemas.NodePatient, schemas.NodeVisit, schemas.NodeConcept:
		return g.NodeCount(t), true
	}
	return 0, false
}
