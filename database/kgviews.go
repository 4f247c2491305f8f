package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// KGViewsDBHandlerFunctions defines the interface for the node/edge type
// catalog and agent knowledge graph views.
type KGViewsDBHandlerFunctions interface {
	InsertNodeType(ctx context.Context, name string) (*model.NodeType, error)
	InsertEdgeType(ctx context.Context, name string) (*model.EdgeTypeDefinition, error)
	SelectNodeTypes(ctx context.Context) ([]*model.NodeType, error)
	SelectEdgeTypes(ctx context.Context) ([]*model.EdgeTypeDefinition, error)
	InsertKGView(ctx context.Context, view *model.KGViewRecord) error
	SelectActiveKGView(ctx context.Context, agentID string, skillID string) (*model.KGViewRecord, error)
	DeactivateKGView(ctx context.Context, id uuid.UUID) error
}

// KGViewsDBHandler handles the knowledge graph view store
type KGViewsDBHandler struct {
	db *helper.Database
}

// NewKGViewsDBHandler creates a new kg views database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewKGViewsDBHandler(db *helper.Database, force bool) (*KGViewsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	kgViewsDbHandler := &KGViewsDBHandler{
		db: db,
	}

	err := loadSql.LoadKGViewsSql(kgViewsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load kg views sql", err)
	}

	err = kgViewsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized KGViewsDBHandler")

	return kgViewsDbHandler, nil
}

// CreateTable creates the catalog tables and 'agent_kg_views'.
// If they already exist, it does not create them again.
func (h *KGViewsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_kg_views();`)
	if err != nil {
		return helper.NewError("init kg views", err)
	}

	h.db.Logger.Info("Checked/created tables kg_node_types, kg_edge_types and agent_kg_views")

	return nil
}

// InsertNodeType registers a node label in the catalog. Registering an
// existing name returns the existing entry.
func (h *KGViewsDBHandler) InsertNodeType(ctx context.Context, name string) (*model.NodeType, error) {
	row := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM insert_node_type($1)`, name)

	nodeType := &model.NodeType{}
	err := row.Scan(&nodeType.ID, &nodeType.Name)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	return nodeType, nil
}

// InsertEdgeType registers a relationship type in the catalog
func (h *KGViewsDBHandler) InsertEdgeType(ctx context.Context, name string) (*model.EdgeTypeDefinition, error) {
	row := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM insert_edge_type($1)`, name)

	edgeType := &model.EdgeTypeDefinition{}
	err := row.Scan(&edgeType.ID, &edgeType.Name)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	return edgeType, nil
}

// SelectNodeTypes returns the whole node type catalog
func (h *KGViewsDBHandler) SelectNodeTypes(ctx context.Context) ([]*model.NodeType, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_node_types()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	nodeTypes := []*model.NodeType{}
	for rows.Next() {
		nodeType := &model.NodeType{}
		if err := rows.Scan(&nodeType.ID, &nodeType.Name); err != nil {
			return nil, helper.NewError("scan", err)
		}
		nodeTypes = append(nodeTypes, nodeType)
	}

	if err = rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return nodeTypes, nil
}

// SelectEdgeTypes returns the whole edge type catalog
func (h *KGViewsDBHandler) SelectEdgeTypes(ctx context.Context) ([]*model.EdgeTypeDefinition, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_edge_types()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	edgeTypes := []*model.EdgeTypeDefinition{}
	for rows.Next() {
		edgeType := &model.EdgeTypeDefinition{}
		if err := rows.Scan(&edgeType.ID, &edgeType.Name); err != nil {
			return nil, helper.NewError("scan", err)
		}
		edgeTypes = append(edgeTypes, edgeType)
	}

	if err = rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edgeTypes, nil
}

// InsertKGView inserts an agent view
func (h *KGViewsDBHandler) InsertKGView(ctx context.Context, view *model.KGViewRecord) error {
	if view.AgentID == "" {
		return helper.NewError("kg view validation", fmt.Errorf("agent id is required"))
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_kg_view($1, $2, $3, $4, $5, $6, $7)`,
		view.AgentID,
		emptyToNil(view.SkillID),
		uuidArray(view.AllowedNodeTypeIDs),
		uuidArray(view.AllowedEdgeTypeIDs),
		view.MaxHops,
		view.ResultLimit,
		string(view.Strategy),
	)

	err := scanKGView(row, view)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectActiveKGView returns the active view of agentID. A view bound to
// skillID wins over an agent-wide one.
func (h *KGViewsDBHandler) SelectActiveKGView(ctx context.Context, agentID string, skillID string) (*model.KGViewRecord, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_active_kg_view($1, $2)`,
		agentID,
		skillID,
	)

	view := &model.KGViewRecord{}
	err := scanKGView(row, view)
	if err != nil {
		return nil, scanError("scan", err)
	}

	return view, nil
}

// DeactivateKGView marks a view inactive
func (h *KGViewsDBHandler) DeactivateKGView(ctx context.Context, id uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(ctx, `SELECT deactivate_kg_view($1)`, id)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanKGView(row rowScanner, view *model.KGViewRecord) error {
	var (
		skillID     sql.NullString
		nodeTypeIDs pq.StringArray
		edgeTypeIDs pq.StringArray
		strategy    string
	)

	err := row.Scan(
		&view.ID,
		&view.AgentID,
		&skillID,
		&nodeTypeIDs,
		&edgeTypeIDs,
		&view.MaxHops,
		&view.ResultLimit,
		&strategy,
		&view.IsActive,
	)
	if err != nil {
		return err
	}

	view.SkillID = stringPtr(skillID)
	view.Strategy = model.TraversalStrategy(strategy)
	if view.AllowedNodeTypeIDs, err = parseUUIDs(nodeTypeIDs); err != nil {
		return err
	}
	if view.AllowedEdgeTypeIDs, err = parseUUIDs(edgeTypeIDs); err != nil {
		return err
	}
	return nil
}
