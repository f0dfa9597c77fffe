// Package sinks delivers an exported graph to the configured downstream systems.
package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/cohortgraph/internal/export"
)

// Delivery is everything a sink may need about one committed export.
type Delivery struct {
	RunID    string
	Graph    string
	Manifest *export.Manifest
	Elapsed  time.Duration
	Finished time.Time
}

// Files lists the committed file names in manifest order.
func (d Delivery) Files() []string {
	names := make([]string, 0, len(d.Manifest.Files))
	for _, f := range d.Manifest.Files {
		names = append(names, f.Name)
	}
	return names
}

// Sink receives a delivery. Implementations must honor ctx cancellation.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// Runner fans a delivery out to its sinks concurrently, then informs its notifiers.
// Notifiers run only when every sink succeeded.
type Runner struct {
	sinks     []Sink
	notifiers []Sink
	logger    *zap.Logger
}

// NewRunner creates an empty Runner.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger.Named("sinks")}
}

// Add registers a sink that runs in the concurrent delivery phase.
func (r *Runner) Add(s Sink) *Runner {
	r.sinks = append(r.sinks, s)
	return r
}

// Notify registers a sink that runs after the delivery phase succeeded.
func (r *Runner) Notify(s Sink) *Runner {
	r.notifiers = append(r.notifiers, s)
	return r
}

// Len is the number of registered sinks and notifiers.
func (r *Runner) Len() int { return len(r.sinks) + len(r.notifiers) }

// Run delivers d. The first failing sink cancels the others and its error is returned.
func (r *Runner) Run(ctx context.Context, d Delivery) error {
	if err := r.runPhase(ctx, r.sinks, d); err != nil {
		return err
	}
	return r.runPhase(ctx, r.notifiers, d)
}

func (r *Runner) runPhase(ctx context.Context, sinks []Sink, d Delivery) error {
	if len(sinks) == 0 {
		return nil
	}
	g, groupCtx := errgroup.WithContext(ctx)
	for _, s := range sinks {
		s := s
		g.Go(func() error {
			start := time.Now()
			if err := s.Deliver(groupCtx, d); err != nil {
				r.logger.Error("Sink failed.", zap.String("sink", s.Name()), zap.Error(err))
				return fmt.Errorf("sink %s: %w", s.Name(), err)
			}
			r.logger.Info("Sink delivered.", zap.String("sink", s.Name()), zap.Duration("took", time.Since(start)))
			return nil
		})
	}
	return g.Wait()
}
