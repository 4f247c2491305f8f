package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// EdgesDBHandlerFunctions defines the interface for Edges database operations.
type EdgesDBHandlerFunctions interface {
	InsertEdge(ctx context.Context, edge *model.Edge) error
	SelectEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error)
	SelectEdgesOfEntity(ctx context.Context, entityID uuid.UUID, edgeTypes []string) ([]*model.Edge, error)
	DeleteEdge(ctx context.Context, id uuid.UUID) error
}

// EdgesDBHandler handles graph relationship operations
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler.
// It loads the edge-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{
		db: db,
	}

	err := loadSql.LoadEdgesSql(edgesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	err = edgesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'edges' table in the database.
// If the table already exists, it does not create it again.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		return helper.NewError("init edges", err)
	}

	h.db.Logger.Info("Checked/created table edges")

	return nil
}

// InsertEdge inserts a new edge
func (h *EdgesDBHandler) InsertEdge(ctx context.Context, edge *model.Edge) error {
	if edge.SourceEntityID == uuid.Nil || edge.TargetEntityID == uuid.Nil {
		return helper.NewError("edge validation", fmt.Errorf("source and target entity are required"))
	}
	if edge.Weight == 0 {
		edge.Weight = 1.0
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_edge($1, $2, $3, $4, $5, $6)`,
		edge.SourceEntityID,
		edge.TargetEntityID,
		edge.EdgeType,
		edge.Weight,
		edge.Bidirectional,
		edge.Properties,
	)

	err := scanEdge(row, edge)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEdge retrieves an edge by ID
func (h *EdgesDBHandler) SelectEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_edge($1)`,
		id,
	)

	edge := &model.Edge{}
	err := scanEdge(row, edge)
	if err != nil {
		return nil, scanError("scan", err)
	}

	return edge, nil
}

// SelectEdgesOfEntity returns the edges that can be walked from an entity:
// its outgoing edges and incoming bidirectional edges. A non-empty
// edgeTypes list restricts the relationship types.
func (h *EdgesDBHandler) SelectEdgesOfEntity(ctx context.Context, entityID uuid.UUID, edgeTypes []string) ([]*model.Edge, error) {
	if edgeTypes == nil {
		edgeTypes = []string{}
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_edges_of_entity($1, $2)`,
		entityID,
		pq.Array(edgeTypes),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	edges := []*model.Edge{}
	for rows.Next() {
		edge := &model.Edge{}
		err := scanEdge(rows, edge)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		edges = append(edges, edge)
	}

	if err = rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}

// DeleteEdge deletes an edge by ID
func (h *EdgesDBHandler) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT delete_edge($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanEdge(row rowScanner, edge *model.Edge) error {
	return row.Scan(
		&edge.ID,
		&edge.SourceEntityID,
		&edge.TargetEntityID,
		&edge.EdgeType,
		&edge.Weight,
		&edge.Bidirectional,
		&edge.Properties,
		&edge.CreatedAt,
	)
}
