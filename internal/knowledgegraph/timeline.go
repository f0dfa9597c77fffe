package knowledgegraph

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

// ConceptLink is a rule edge from a patient or visit to a concept.
type ConceptLink struct {
	Source      schemas.NodeType
	SourceIndex int
	Relation    schemas.RelationType
	Concept     schemas.ConceptID
}

// Timeline is the subgraph around one patient: the patient, its visits in temporal
// order, the next_visit chain and every concept reached from either.
type Timeline struct {
	Patient   PatientNode
	Visits    []VisitNode
	NextVisit [][2]int
	Links     []ConceptLink
	Concepts  []schemas.Concept
}

// FindPatient resolves a source patient identifier to its dense index.
func (g *Graph) FindPatient(patientID string) (int, bool) {
	for _, p := range g.Patients {
		if p.PatientID == patientID {
			return p.Index, true
		}
	}
	return 0, false
}

// PatientTimeline extracts the subgraph of the patient at index.
func (g *Graph) PatientTimeline(index int) (*Timeline, error) {
	if index < 0 || index >= len(g.Patients) {
		return nil, fmt.Errorf("patient index %d out of range [0,%d)", index, len(g.Patients))
	}

	tl := &Timeline{Patient: g.Patients[index]}
	owned := make(map[int]bool)
	if hv, ok := g.EdgeSet(schemas.HasVisitKey); ok {
		for j := range hv.Src {
			if hv.Src[j] == index {
				owned[hv.Dst[j]] = true
				tl.Visits = append(tl.Visits, g.Visits[hv.Dst[j]])
			}
		}
	}
	sort.Slice(tl.Visits, func(i, j int) bool { return tl.Visits[i].Index < tl.Visits[j].Index })

	reached := make(map[schemas.ConceptID]bool)
	for _, e := range g.Edges {
		switch {
		case e.Key == schemas.NextVisitKey:
			for j := range e.Src {
				if owned[e.Src[j]] {
					tl.NextVisit = append(tl.NextVisit, [2]int{e.Src[j], e.Dst[j]})
				}
			}
		case e.Key.Dst == schemas.NodeConcept:
			for j := range e.Src {
				if (e.Key.Src == schemas.NodePatient && e.Src[j] == index) ||
					(e.Key.Src == schemas.NodeVisit && owned[e.Src[j]]) {
					c := schemas.ConceptID(e.Dst[j])
					tl.Links = append(tl.Links, ConceptLink{Source: e.Key.Src, SourceIndex: e.Src[j], Relation: e.Key.Relation, Concept: c})
					reached[c] = true
				}
			}
		}
	}

	for _, c := range g.Concepts {
		if reached[c.ID] {
			tl.Concepts = append(tl.Concepts, c)
		}
	}
	return tl, nil
}
