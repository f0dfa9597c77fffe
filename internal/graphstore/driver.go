package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/xkilldash9x/cohortgraph/internal/config"
)

// Writer runs one parameterized Cypher statement inside a write transaction.
type Writer interface {
	Write(ctx context.Context, cypher string, params map[string]any) error
	Close(ctx context.Context) error
}

// DriverWriter is a Writer backed by a Neo4j driver.
type DriverWriter struct {
	driver   neo4j.DriverWithContext
	database string
}

// Dial opens a driver for cfg and verifies connectivity within the configured timeout.
func Dial(ctx context.Context, cfg config.Neo4jConfig) (*DriverWriter, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	return &DriverWriter{driver: driver, database: cfg.Database}, nil
}

// Write implements Writer.
func (w *DriverWriter) Write(ctx context.Context, cypher string, params map[string]any) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// Close implements Writer.
func (w *DriverWriter) Close(ctx context.Context) error {
	if w == nil || w.driver == nil {
		return nil
	}
	err := w.driver.Close(ctx)
	w.driver = nil
	return err
}
