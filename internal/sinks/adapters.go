package sinks

import (
	"context"

	"github.com/xkilldash9x/cohortgraph/internal/artifacts"
	"github.com/xkilldash9x/cohortgraph/internal/events"
	"github.com/xkilldash9x/cohortgraph/internal/export"
	"github.com/xkilldash9x/cohortgraph/internal/metrics"
)

// TabularLoader is satisfied by the Postgres store and the Neo4j loader.
type TabularLoader interface {
	Load(ctx context.Context, graphName string, tab *export.Tabular) error
}

// LoaderSink bulk loads the tabular form.
type LoaderSink struct {
	name   string
	loader TabularLoader
}

func NewLoaderSink(name string, loader TabularLoader) *LoaderSink {
	return &LoaderSink{name: name, loader: loader}
}

func (s *LoaderSink) Name() string { return s.name }

func (s *LoaderSink) Deliver(ctx context.Context, d Delivery) error {
	return s.loader.Load(ctx, d.Graph, d.Manifest.Tabular)
}

// UploadSink copies the committed files to object storage.
type UploadSink struct {
	uploader *artifacts.Uploader
}

func NewUploadSink(u *artifacts.Uploader) *UploadSink { return &UploadSink{uploader: u} }

func (s *UploadSink) Name() string { return "s3" }

func (s *UploadSink) Deliver(ctx context.Context, d Delivery) error {
	_, err := s.uploader.Upload(ctx, d.Manifest.Files)
	return err
}

// EventSink publishes a GraphBuilt event.
type EventSink struct {
	pub   events.Publisher
	topic string
}

func NewEventSink(pub events.Publisher, topic string) *EventSink {
	if topic == "" {
		topic = events.TopicGraphBuilt
	}
	return &EventSink{pub: pub, topic: topic}
}

func (s *EventSink) Name() string { return "events" }

func (s *EventSink) Deliver(ctx context.Context, d Delivery) error {
	ev := events.NewGraphBuilt(d.RunID, d.Graph, d.Manifest.Summary, d.Files())
	return s.pub.Publish(ctx, s.topic, ev)
}

// MetricsSink records the build and writes the textfile when a path is set.
type MetricsSink struct {
	recorder *metrics.Recorder
	path     string
}

func NewMetricsSink(r *metrics.Recorder, path string) *MetricsSink {
	return &MetricsSink{recorder: r, path: path}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Deliver(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.recorder.Observe(d.Manifest.Summary, d.Elapsed, d.Finished)
	if s.path == "" {
		return nil
	}
	return s.recorder.WriteTextfile(s.path)
}
