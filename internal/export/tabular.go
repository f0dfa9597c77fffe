package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
)

var (
	nodeHeader = []string{"id", "type", "name", "features"}
	edgeHeader = []string{"src", "dst", "type"}
)

// Tabular is the flat node list and edge list of the graph.
type Tabular struct {
	Nodes []schemas.NodeRecord
	Edges []schemas.EdgeRecord
}

// BuildTabular derives the tabular form from the assembled graph. Nodes are listed by
// type (patients, visits, concepts) then index; edges follow relation order.
func BuildTabular(g *knowledgegraph.Graph) *Tabular {
	tab := &Tabular{
		Nodes: make([]schemas.NodeRecord, 0, len(g.Patients)+len(g.Visits)+len(g.Concepts)),
		Edges: make([]schemas.EdgeRecord, 0, g.EdgeCount()),
	}
	for _, t := range schemas.NodeTypes {
		for i := 0; i < g.NodeCount(t); i++ {
			tab.Nodes = append(tab.Nodes, schemas.NodeRecord{
				ID:       schemas.NodeRecordID(t, i),
				Type:     t,
				Name:     g.DisplayName(t, i),
				Features: knowledgegraph.FormatFeatures(g.Features(t, i)),
			})
		}
	}
	for _, e := range g.Edges {
		for j := range e.Src {
			tab.Edges = append(tab.Edges, schemas.EdgeRecord{
				Src:  schemas.NodeRecordID(e.Key.Src, e.Src[j]),
				Dst:  schemas.NodeRecordID(e.Key.Dst, e.Dst[j]),
				Type: e.Key.Relation,
			})
		}
	}
	return tab
}

// WriteNodes writes the node list as CSV with a header row.
func WriteNodes(w io.Writer, nodes []schemas.NodeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(nodeHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := cw.Write([]string{n.ID, string(n.Type), n.Name, n.Features}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEdges writes the edge list as CSV with a header row.
func WriteEdges(w io.Writer, edges []schemas.EdgeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(edgeHeader); err != nil {
		return err
	}
	for _, e := range edges {
		if err := cw.Write([]string{e.Src, e.Dst, string(e.Type)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadNodes parses a node list written by WriteNodes.
func ReadNodes(r io.Reader) ([]schemas.NodeRecord, error) {
	records, err := readCSV(r, nodeHeader)
	if err != nil {
		return nil, err
	}
	out := make([]schemas.NodeRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, schemas.NodeRecord{ID: rec[0], Type: schemas.NodeType(rec[1]), Name: rec[2], Features: rec[3]})
	}
	return out, nil
}

// ReadEdges parses an edge list written by WriteEdges.
func ReadEdges(r io.Reader) ([]schemas.EdgeRecord, error) {
	records, err := readCSV(r, edgeHeader)
	if err != nil {
		return nil, err
	}
	out := make([]schemas.EdgeRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, schemas.EdgeRecord{Src: rec[0], Dst: rec[1], Type: schemas.RelationType(rec[2])})
	}
	return out, nil
}

func readCSV(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header row")
	}
	for i, h := range header {
		if records[0][i] != h {
			return nil, fmt.Errorf("unexpected header %v, want %v", records[0], header)
		}
	}
	return records[1:], nil
}
