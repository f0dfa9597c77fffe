// Package graphstore loads the tabular form of a cohort graph into a Neo4j database.
package graphstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/export"
)

// DefaultBatchSize bounds the rows sent with one UNWIND statement.
const DefaultBatchSize = 1000

// Loader writes nodes and relationships in batches through a Writer.
type Loader struct {
	w         Writer
	batchSize int
	logger    *zap.Logger
}

// NewLoader creates a Loader. A non-positive batchSize falls back to DefaultBatchSize.
func NewLoader(w Writer, batchSize int, logger *zap.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{w: w, batchSize: batchSize, logger: logger.Named("graphstore")}
}

// Label is the node label used for a node type.
func Label(t schemas.NodeType) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// RelationshipType is the relationship type used for a relation.
func RelationshipType(r schemas.RelationType) string {
	return strings.ToUpper(string(r))
}

func nodeStatement(t schemas.NodeType) string {
	return fmt.Sprintf(`UNWIND $rows AS r
MERGE (n:%s {graph: $graph, id: r.id})
SET n.name = r.name, n.features = r.features`, Label(t))
}

func edgeStatement(k schemas.EdgeKey) string {
	return fmt.Sprintf(`UNWIND $rows AS r
MATCH (a:%s {graph: $graph, id: r.src})
MATCH (b:%s {graph: $graph, id: r.dst})
MERGE (a)-[:%s]->(b)`, Label(k.Src), Label(k.Dst), RelationshipType(k.Relation))
}

// Load merges every node and edge of tab under graphName. Nodes are written before edges
// so that each relationship finds both endpoints.
func (l *Loader) Load(ctx context.Context, graphName string, tab *export.Tabular) error {
	if graphName == "" {
		return fmt.Errorf("graph name is required")
	}

	nodes := make(map[schemas.NodeType][]map[string]any)
	for _, n := range tab.Nodes {
		if _, _, err := schemas.ParseNodeRecordID(n.ID); err != nil {
			return err
		}
		nodes[n.Type] = append(nodes[n.Type], map[string]any{
			"id":       n.ID,
			"name":     n.Name,
			"features": n.Features,
		})
	}

	var order []schemas.EdgeKey
	edges := make(map[schemas.EdgeKey][]map[string]any)
	for _, e := range tab.Edges {
		srcType, _, err := schemas.ParseNodeRecordID(e.Src)
		if err != nil {
			return err
		}
		dstType, _, err := schemas.ParseNodeRecordID(e.Dst)
		if err != nil {
			return err
		}
		k := schemas.EdgeKey{Src: srcType, Relation: e.Type, Dst: dstType}
		if _, seen := edges[k]; !seen {
			order = append(order, k)
		}
		edges[k] = append(edges[k], map[string]any{"src": e.Src, "dst": e.Dst})
	}

	for _, t := range schemas.NodeTypes {
		if err := l.writeBatches(ctx, nodeStatement(t), graphName, nodes[t]); err != nil {
			return fmt.Errorf("failed to merge %s nodes: %w", t, err)
		}
	}
	for _, k := range order {
		if err := l.writeBatches(ctx, edgeStatement(k), graphName, edges[k]); err != nil {
			return fmt.Errorf("failed to merge %s edges: %w", k, err)
		}
	}

	l.logger.Info("Graph merged into Neo4j.",
		zap.String("graph", graphName),
		zap.Int("nodes", len(tab.Nodes)),
		zap.Int("edges", len(tab.Edges)),
	)
	return nil
}

func (l *Loader) writeBatches(ctx context.Context, cypher, graphName string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += l.batchSize {
		end := start + l.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		params := map[string]any{"graph": graphName, "rows": rows[start:end]}
		if err := l.w.Write(ctx, cypher, params); err != nil {
			return err
		}
		l.logger.Debug("Batch written.", zap.Int("rows", end-start))
	}
	return nil
}
