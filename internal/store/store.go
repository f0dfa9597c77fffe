package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/internal/export"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	nodesTable   = pgx.Identifier{"cg_nodes"}
	edgesTable   = pgx.Identifier{"cg_edges"}
	nodesColumns = []string{"graph_name", "id", "type", "name", "features"}
	edgesColumns = []string{"graph_name", "src", "dst", "type"}
)

const (
	sqlDeleteEdges = `DELETE FROM cg_edges WHERE graph_name = $1`
	sqlDeleteNodes = `DELETE FROM cg_nodes WHERE graph_name = $1`
)

// Store bulk loads the tabular form of a cohort graph into PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Load replaces every row stored under graphName with the contents of tab, in a single
// transaction. A failed load leaves the previous copy of the graph intact.
func (s *Store) Load(ctx context.Context, graphName string, tab *export.Tabular) error {
	if graphName == "" {
		return fmt.Errorf("graph name is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	// Edges first; they reference node ids of the same graph.
	for _, stmt := range []string{sqlDeleteEdges, sqlDeleteNodes} {
		if _, err := tx.Exec(ctx, stmt, graphName); err != nil {
			return fmt.Errorf("failed to clear previous graph %q: %w", graphName, err)
		}
	}

	if err := s.copyNodes(ctx, tx, graphName, tab); err != nil {
		return err
	}
	if err := s.copyEdges(ctx, tx, graphName, tab); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Graph loaded.",
		zap.String("graph", graphName),
		zap.Int("nodes", len(tab.Nodes)),
		zap.Int("edges", len(tab.Edges)),
	)
	return nil
}

func (s *Store) copyNodes(ctx context.Context, tx pgx.Tx, graphName string, tab *export.Tabular) error {
	if len(tab.Nodes) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(tab.Nodes))
	for i, n := range tab.Nodes {
		rows[i] = []interface{}{graphName, n.ID, string(n.Type), n.Name, n.Features}
	}

	copyCount, err := tx.CopyFrom(ctx, nodesTable, nodesColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy nodes: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied nodes count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

func (s *Store) copyEdges(ctx context.Context, tx pgx.Tx, graphName string, tab *export.Tabular) error {
	if len(tab.Edges) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(tab.Edges))
	for i, e := range tab.Edges {
		rows[i] = []interface{}{graphName, e.Src, e.Dst, string(e.Type)}
	}

	copyCount, err := tx.CopyFrom(ctx, edgesTable, edgesColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy edges: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied edges count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}
