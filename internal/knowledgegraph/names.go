package knowledgegraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

// FormatFeatures renders a feature vector as "[a,b,...]" using the shortest
// representation that round-trips each value.
func FormatFeatures(fs []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range fs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// DisplayName is the human readable label of a node.
func (g *Graph) DisplayName(t schemas.NodeType, index int) string {
	switch t {
	case schemas.NodePatient:
		p := g.Patients[index]
		sex := "M"
		if p.Features[1] == 1 {
			sex = "F"
		}
		return fmt.Sprintf("Patient %d (RID %s, %s)", index, p.PatientID, sex)
	case schemas.NodeVisit:
		v := g.Visits[index]
		return fmt.Sprintf("Visit %d [%s]", index, v.Label)
	case schemas.NodeConcept:
		return g.Concepts[index].Name
	}
	return ""
}

// Features returns the feature vector of a node. Concept nodes carry a one-hot row.
func (g *Graph) Features(t schemas.NodeType, index int) []float64 {
	switch t {
	case schemas.NodePatient:
		return g.Patients[index].Features
	case schemas.NodeVisit:
		return g.Visits[index].Features
	case schemas.NodeConcept:
		row := make([]float64, len(g.Concepts))
		row[index] = 1
		return row
	}
	return nil
}
