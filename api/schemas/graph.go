// File: api/schemas/graph.go
package schemas

import (
	"fmt"
	"strconv"
	"strings"
)

// -- Canonical Cohort Graph Data Model --

// NodeType represents the kind of entity a node stands for in the cohort graph.
type NodeType string

const (
	NodePatient NodeType = "patient"
	NodeVisit   NodeType = "visit"
	NodeConcept NodeType = "concept"
)

// NodeTypes lists every node type in canonical export order.
var NodeTypes = []NodeType{NodePatient, NodeVisit, NodeConcept}

// RelationType names the semantic type of a directed edge.
type RelationType string

const (
	RelationHasVisit     RelationType = "has_visit"      // Patient owns a Visit.
	RelationNextVisit    RelationType = "next_visit"     // Visit is followed by the next Visit of the same patient.
	RelationHasRisk      RelationType = "has_risk"       // Patient carries a risk Concept.
	RelationShowsSignsOf RelationType = "shows_signs_of" // Visit shows signs of a Concept.
)

// EdgeKey identifies a typed relation: (source type, relation, destination type).
type EdgeKey struct {
	Src      NodeType     `json:"src"`
	Relation RelationType `json:"relation"`
	Dst      NodeType     `json:"dst"`
}

// String renders the key the way heterogeneous graph libraries print edge types.
func (k EdgeKey) String() string {
	return fmt.Sprintf("%s__%s__%s", k.Src, k.Relation, k.Dst)
}

var (
	HasVisitKey  = EdgeKey{Src: NodePatient, Relation: RelationHasVisit, Dst: NodeVisit}
	NextVisitKey = EdgeKey{Src: NodeVisit, Relation: RelationNextVisit, Dst: NodeVisit}
)

// Diagnosis is the three-valued clinical label attached to every visit.
type Diagnosis int

const (
	DiagnosisCN       Diagnosis = 0 // cognitively normal
	DiagnosisMCI      Diagnosis = 1 // mild cognitive impairment
	DiagnosisDementia Diagnosis = 2
)

// Valid reports whether d is one of the three known classes.
func (d Diagnosis) Valid() bool {
	return d >= DiagnosisCN && d <= DiagnosisDementia
}

func (d Diagnosis) String() string {
	switch d {
	case DiagnosisCN:
		return "CN"
	case DiagnosisMCI:
		return "MCI"
	case DiagnosisDementia:
		return "AD"
	default:
		return "?"
	}
}

// ConceptID is the fixed integer identity of a concept node. Ids are dense, 0..n-1.
type ConceptID int

// Concept is a symbolic node from the configured catalog.
type Concept struct {
	ID   ConceptID `json:"id" yaml:"id"`
	Name string    `json:"name" yaml:"name"`
}

// -- Tabular Form Records --

// NodeRecord is one row of the flat node list used for property graph bulk import.
type NodeRecord struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Name     string   `json:"name"`
	Features string   `json:"features"`
}

// EdgeRecord is one row of the flat edge list.
type EdgeRecord struct {
	Src  string       `json:"src"`
	Dst  string       `json:"dst"`
	Type RelationType `json:"type"`
}

// nodeIDPrefixes maps node types to the prefix of their tabular ids.
var nodeIDPrefixes = map[NodeType]string{
	NodePatient: "Patient_",
	NodeVisit:   "Visit_",
	NodeConcept: "Concept_",
}

// NodeRecordID derives the tabular id of a node from its type-local dense index.
func NodeRecordID(t NodeType, index int) string {
	return nodeIDPrefixes[t] + strconv.Itoa(index)
}

// ParseNodeRecordID is the inverse of NodeRecordID.
func ParseNodeRecordID(id string) (NodeType, int, error) {
	for _, t := range NodeTypes {
		prefix := nodeIDPrefixes[t]
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err != nil || idx < 0 {
			return "", 0, fmt.Errorf("malformed node id %q", id)
		}
		return t, idx, nil
	}
	return "", 0, fmt.Errorf("unknown node id prefix in %q", id)
}
