package sinks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/internal/artifacts"
	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/events"
	"github.com/xkilldash9x/cohortgraph/internal/graphstore"
	"github.com/xkilldash9x/cohortgraph/internal/metrics"
	"github.com/xkilldash9x/cohortgraph/internal/store"
)

// FromConfig connects every enabled sink. The returned cleanup releases all connections
// and is safe to call when an error is returned.
func FromConfig(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Runner, func(), error) {
	r := NewRunner(logger)
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if pg := cfg.Postgres(); pg.Enabled {
		if pg.Migrate {
			if err := store.Migrate(pg.URL, logger); err != nil {
				return nil, cleanup, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		pool, err := pgxpool.New(ctx, pg.URL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("postgres pool: %w", err)
		}
		closers = append(closers, pool.Close)
		st, err := store.New(ctx, pool, logger)
		if err != nil {
			return nil, cleanup, err
		}
		r.Add(NewLoaderSink("postgres", st))
	}

	if nc := cfg.Neo4j(); nc.Enabled {
		w, err := graphstore.Dial(ctx, nc)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = w.Close(context.Background()) })
		r.Add(NewLoaderSink("neo4j", graphstore.NewLoader(w, nc.BatchSize, logger)))
	}

	if sc := cfg.S3(); sc.Enabled {
		u, err := artifacts.NewS3Uploader(ctx, sc, logger)
		if err != nil {
			return nil, cleanup, err
		}
		r.Add(NewUploadSink(u))
	}

	r.Add(NewMetricsSink(metrics.NewRecorder(), cfg.Metrics().TextfilePath))

	if ec := cfg.Events(); ec.Enabled {
		pub, err := events.NewNATSPublisher(ec.URL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = pub.Close() })
		r.Notify(NewEventSink(pub, ec.Subject))
	}

	return r, cleanup, nil
}
