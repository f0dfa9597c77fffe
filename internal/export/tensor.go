// File: internal/export/tensor.go
package export

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
)

// TensorFormat identifies the layout of the serialized tensor container.
const TensorFormat = "cohortgraph.hetero/v1"

// NodeTensor is the dense feature matrix of one node type. X is nil when the type has
// no nodes, since a matrix cannot have zero rows.
type NodeTensor struct {
	Type         schemas.NodeType
	Count        int
	FeatureNames []string
	X            *mat.Dense
	// Y is the label vector; only set for visits.
	Y []int64
}

// EdgeTensor is the 2xE index pair of one relation.
type EdgeTensor struct {
	Key schemas.EdgeKey
	Src []int64
	Dst []int64
}

// TensorGraph is the grouped-by-type form of the graph.
type TensorGraph struct {
	Nodes    []NodeTensor
	Edges    []EdgeTensor
	Concepts []schemas.Concept
}

// Node returns the tensor of type t.
func (tg *TensorGraph) Node(t schemas.NodeType) (*NodeTensor, bool) {
	for i := range tg.Nodes {
		if tg.Nodes[i].Type == t {
			return &tg.Nodes[i], true
		}
	}
	return nil, false
}

// Edge returns the index pair of relation key.
func (tg *TensorGraph) Edge(key schemas.EdgeKey) (*EdgeTensor, bool) {
	for i := range tg.Edges {
		if tg.Edges[i].Key == key {
			return &tg.Edges[i], true
		}
	}
	return nil, false
}

// BuildTensor derives the tensor form from the assembled graph.
func BuildTensor(g *knowledgegraph.Graph) *TensorGraph {
	tg := &TensorGraph{Concepts: append([]schemas.Concept(nil), g.Concepts...)}

	conceptNames := make([]string, len(g.Concepts))
	for i, c := range g.Concepts {
		conceptNames[i] = c.Name
	}
	widths := map[schemas.NodeType][]string{
		schemas.NodePatient: knowledgegraph.PatientFeatureNames,
		schemas.NodeVisit:   knowledgegraph.VisitFeatureNames,
		schemas.NodeConcept: conceptNames,
	}

	for _, t := range schemas.NodeTypes {
		n := g.NodeCount(t)
		names := widths[t]
		nt := NodeTensor{Type: t, Count: n, FeatureNames: append([]string(nil), names...)}
		if n > 0 && len(names) > 0 {
			data := make([]float64, 0, n*len(names))
			for i := 0; i < n; i++ {
				data = append(data, g.Features(t, i)...)
			}
			nt.X = mat.NewDense(n, len(names), data)
		}
		if t == schemas.NodeVisit {
			nt.Y = make([]int64, n)
			for i, v := range g.Visits {
				nt.Y[i] = int64(v.Label)
			}
		}
		tg.Nodes = append(tg.Nodes, nt)
	}

	for _, e := range g.Edges {
		et := EdgeTensor{Key: e.Key, Src: make([]int64, e.Len()), Dst: make([]int64, e.Len())}
		for j := range e.Src {
			et.Src[j] = int64(e.Src[j])
			et.Dst[j] = int64(e.Dst[j])
		}
		tg.Edges = append(tg.Edges, et)
	}
	return tg
}

// Row returns feature row i of the node tensor.
func (nt *NodeTensor) Row(i int) ([]float64, error) {
	if i < 0 || i >= nt.Count || nt.X == nil {
		return nil, fmt.Errorf("%s row %d out of range [0,%d)", nt.Type, i, nt.Count)
	}
	return mat.Row(nil, i, nt.X), nil
}
