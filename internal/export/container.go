package export

import (
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	jsoniter "github.com/json-iterator/go"
	"gonum.org/v1/gonum/mat"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -- Wire Shape --

type matrixDoc struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type nodeDoc struct {
	Type         schemas.NodeType `json:"type"`
	NumNodes     int              `json:"num_nodes"`
	FeatureNames []string         `json:"feature_names"`
	X            matrixDoc        `json:"x"`
	Y            []int64          `json:"y,omitempty"`
}

type edgeDoc struct {
	Src       schemas.NodeType     `json:"src"`
	Relation  schemas.RelationType `json:"relation"`
	Dst       schemas.NodeType     `json:"dst"`
	EdgeIndex [2][]int64           `json:"edge_index"`
}

type containerDoc struct {
	Format   string            `json:"format"`
	Nodes    []nodeDoc         `json:"node_types"`
	Edges    []edgeDoc         `json:"edge_types"`
	Concepts []schemas.Concept `json:"concepts"`
}

func toDoc(tg *TensorGraph) containerDoc {
	doc := containerDoc{Format: TensorFormat, Concepts: tg.Concepts}
	for _, nt := range tg.Nodes {
		m := matrixDoc{Rows: nt.Count, Cols: len(nt.FeatureNames), Data: []float64{}}
		if nt.X != nil {
			m.Data = append(m.Data, nt.X.RawMatrix().Data...)
		}
		doc.Nodes = append(doc.Nodes, nodeDoc{
			Type:         nt.Type,
			NumNodes:     nt.Count,
			FeatureNames: nt.FeatureNames,
			X:            m,
			Y:            nt.Y,
		})
	}
	for _, et := range tg.Edges {
		doc.Edges = append(doc.Edges, edgeDoc{
			Src:       et.Key.Src,
			Relation:  et.Key.Relation,
			Dst:       et.Key.Dst,
			EdgeIndex: [2][]int64{et.Src, et.Dst},
		})
	}
	return doc
}

func fromDoc(doc containerDoc) (*TensorGraph, error) {
	if doc.Format != TensorFormat {
		return nil, fmt.Errorf("unsupported tensor container format %q", doc.Format)
	}
	tg := &TensorGraph{Concepts: doc.Concepts}
	for _, nd := range doc.Nodes {
		if nd.X.Rows != nd.NumNodes || len(nd.X.Data) != nd.X.Rows*nd.X.Cols {
			return nil, fmt.Errorf("node type %s: matrix shape %dx%d does not match %d values for %d nodes",
				nd.Type, nd.X.Rows, nd.X.Cols, len(nd.X.Data), nd.NumNodes)
		}
		nt := NodeTensor{Type: nd.Type, Count: nd.NumNodes, FeatureNames: nd.FeatureNames, Y: nd.Y}
		if nd.X.Rows > 0 && nd.X.Cols > 0 {
			nt.X = mat.NewDense(nd.X.Rows, nd.X.Cols, nd.X.Data)
		}
		if nd.Type == schemas.NodeVisit && nt.Y == nil {
			nt.Y = []int64{}
		}
		tg.Nodes = append(tg.Nodes, nt)
	}
	for _, ed := range doc.Edges {
		if len(ed.EdgeIndex[0]) != len(ed.EdgeIndex[1]) {
			return nil, fmt.Errorf("edge type %s__%s__%s: unbalanced edge index", ed.Src, ed.Relation, ed.Dst)
		}
		src, dst := ed.EdgeIndex[0], ed.EdgeIndex[1]
		if src == nil {
			src = []int64{}
		}
		if dst == nil {
			dst = []int64{}
		}
		tg.Edges = append(tg.Edges, EdgeTensor{
			Key: schemas.EdgeKey{Src: ed.Src, Relation: ed.Relation, Dst: ed.Dst},
			Src: src,
			Dst: dst,
		})
	}
	return tg, nil
}

// EncodeTensor serializes tg as JSON, brotli-compressed when compress is set.
func EncodeTensor(w io.Writer, tg *TensorGraph, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(toDoc(tg))
	}

	bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
	if err := json.NewEncoder(bw).Encode(toDoc(tg)); err != nil {
		_ = bw.Close()
		return err
	}
	return bw.Close()
}

// DecodeTensor is the inverse of EncodeTensor.
func DecodeTensor(r io.Reader, compressed bool) (*TensorGraph, error) {
	if compressed {
		r = brotli.NewReader(r)
	}
	var doc containerDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode tensor container: %w", err)
	}
	return fromDoc(doc)
}
