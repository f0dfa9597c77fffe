// Package events announces completed graph builds on a message bus.
package events

import (
	"context"

	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
)

// TopicGraphBuilt is the default subject for build notifications.
const TopicGraphBuilt = "cohortgraph.graph.built"

// Publisher delivers events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// RelationCount is the number of edges of one typed relation.
type RelationCount struct {
	Relation string `json:"relation"`
	Edges    int    `json:"edges"`
}

// GraphBuilt is published once a graph has been exported.
type GraphBuilt struct {
	RunID    string          `json:"run_id"`
	Graph    string          `json:"graph"`
	Patients int             `json:"patients"`
	Visits   int             `json:"visits"`
	Concepts int             `json:"concepts"`
	Edges    []RelationCount `json:"edges"`
	Dropped  int             `json:"dropped_rows"`
	Files    []string        `json:"files"`
}

// NewGraphBuilt fills an event from a graph summary.
func NewGraphBuilt(runID, graph string, s knowledgegraph.Summary, files []string) GraphBuilt {
	ev := GraphBuilt{
		RunID:    runID,
		Graph:    graph,
		Patients: s.Patients,
		Visits:   s.Visits,
		Concepts: s.Concepts,
		Edges:    make([]RelationCount, 0, len(s.Edges)),
		Dropped:  s.Dropped,
		Files:    files,
	}
	for _, rc := range s.Edges {
		ev.Edges = append(ev.Edges, RelationCount{Relation: rc.Key.String(), Edges: rc.Count})
	}
	return ev
}
