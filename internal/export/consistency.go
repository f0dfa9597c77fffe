package export

import (
	"fmt"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
)

type edgeTriple struct {
	src, dst string
	rel      schemas.RelationType
}

// CheckConsistency verifies that the two forms describe the same graph: every tensor
// node appears exactly once in the node list under its own type, the node list holds
// nothing else, and both forms carry the same multiset of edges per relation.
func CheckConsistency(tg *TensorGraph, tab *Tabular) error {
	expected := make(map[string]schemas.NodeType)
	for _, nt := range tg.Nodes {
		for i := 0; i < nt.Count; i++ {
			expected[schemas.NodeRecordID(nt.Type, i)] = nt.Type
		}
	}
	seen := make(map[string]struct{}, len(tab.Nodes))
	for _, n := range tab.Nodes {
		t, ok := expected[n.ID]
		switch {
		case !ok:
			return &knowledgegraph.IntegrityError{Detail: fmt.Sprintf("tabular node %s (%s) absent from the tensor form", n.ID, n.Type)}
		case t != n.Type:
			return &knowledgegraph.IntegrityError{Detail: fmt.Sprintf("tabular node %s has type %s, tensor form has %s", n.ID, n.Type, t)}
		}
		if _, dup := seen[n.ID]; dup {
			return &knowledgegraph.IntegrityError{Detail: fmt.Sprintf("tabular node %s listed more than once", n.ID)}
		}
		seen[n.ID] = struct{}{}
	}
	if len(seen) != len(expected) {
		for _, nt := range tg.Nodes {
			for i := 0; i < nt.Count; i++ {
				if id := schemas.NodeRecordID(nt.Type, i); !contains(seen, id) {
					return &knowledgegraph.IntegrityError{Detail: fmt.Sprintf("tensor node %s missing from the tabular form", id)}
				}
			}
		}
	}

	pending := make(map[edgeTriple]int, len(tab.Edges))
	for _, e := range tab.Edges {
		pending[edgeTriple{e.Src, e.Dst, e.Type}]++
	}
	for _, et := range tg.Edges {
		for j := range et.Src {
			k := edgeTriple{
				src: schemas.NodeRecordID(et.Key.Src, int(et.Src[j])),
				dst: schemas.NodeRecordID(et.Key.Dst, int(et.Dst[j])),
				rel: et.Key.Relation,
			}
			if pending[k] == 0 {
				return &knowledgegraph.IntegrityError{Key: et.Key, Detail: fmt.Sprintf(
					"edge %s -> %s missing from the tabular form", k.src, k.dst)}
			}
			pending[k]--
		}
	}
	for k, n := range pending {
		if n > 0 {
			return &knowledgegraph.IntegrityError{Detail: fmt.Sprintf(
				"tabular edge %s -[%s]-> %s missing from the tensor form", k.src, k.rel, k.dst)}
		}
	}
	return nil
}

func contains(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}
