// Package metrics records build statistics for the Prometheus textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
)

// Recorder owns a private registry so repeated builds in one process do not collide.
type Recorder struct {
	registry *prometheus.Registry

	Nodes         *prometheus.GaugeVec
	Edges         *prometheus.GaugeVec
	DroppedRows   prometheus.Counter
	BuildDuration prometheus.Gauge
	LastSuccess   prometheus.Gauge
}

// NewRecorder registers the build metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		// Node count of the last build, labeled by node type.
		Nodes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cohortgraph_nodes",
				Help: "Number of nodes in the last built graph",
			},
			[]string{"type"},
		),
		Edges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cohortgraph_edges",
				Help: "Number of edges in the last built graph",
			},
			[]string{"relation"},
		),
		DroppedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "cohortgraph_dropped_rows_total",
			Help: "Visit rows dropped for a missing diagnosis label",
		}),
		BuildDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cohortgraph_build_duration_seconds",
			Help: "Wall time of the last build, from load to export",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cohortgraph_last_success_timestamp_seconds",
			Help: "Unix time of the last successful build",
		}),
	}
}

// Registry exposes the underlying registry as a Gatherer.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Observe records the shape of a finished build.
func (r *Recorder) Observe(s knowledgegraph.Summary, elapsed time.Duration, finished time.Time) {
	r.Nodes.WithLabelValues("patient").Set(float64(s.Patients))
	r.Nodes.WithLabelValues("visit").Set(float64(s.Visits))
	r.Nodes.WithLabelValues("concept").Set(float64(s.Concepts))
	for _, rc := range s.Edges {
		r.Edges.WithLabelValues(rc.Key.String()).Set(float64(rc.Count))
	}
	r.DroppedRows.Add(float64(s.Dropped))
	r.BuildDuration.Set(elapsed.Seconds())
	r.LastSuccess.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the text exposition format. The file is replaced
// atomically, as node_exporter's textfile collector expects.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
