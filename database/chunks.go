package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(ctx context.Context, chunk *model.Chunk) error
	SelectChunk(ctx context.Context, rid uuid.UUID) (*model.Chunk, error)
	DeleteChunk(ctx context.Context, rid uuid.UUID) error
	SelectChunksBySimilarity(ctx context.Context, embedding []float32, limit int, namespace string, filter model.MetadataFilter) ([]*model.Chunk, error)
	SelectChunksByKeyword(ctx context.Context, query string, limit int, namespace string, filter model.MetadataFilter) ([]*model.Chunk, error)
}

// ChunksDBHandler handles chunk-related database operations.
// It backs both the vector index and the full-text keyword index.
type ChunksDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads the chunk-related SQL functions and creates the table with an
// embedding column of embeddingDim dimensions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates the vector, full-text and metadata indexes.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init chunks", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunk inserts a new chunk. A chunk without embedding is only
// reachable through the keyword index.
func (h *ChunksDBHandler) InsertChunk(ctx context.Context, chunk *model.Chunk) error {
	if len(chunk.Embedding) > 0 && h.embeddingDim > 0 && len(chunk.Embedding) != h.embeddingDim {
		return helper.NewError("embedding validation", fmt.Errorf("expected %d dimensions, got %d", h.embeddingDim, len(chunk.Embedding)))
	}

	var embedding interface{}
	if len(chunk.Embedding) > 0 {
		embedding = pgvector.NewVector(chunk.Embedding)
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6)`,
		chunk.DocumentID,
		chunk.Namespace,
		chunk.Content,
		embedding,
		chunk.ChunkIndex,
		chunk.Metadata,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.RID,
		&chunk.DocumentID,
		&chunk.Namespace,
		&chunk.Content,
		&chunk.ChunkIndex,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectChunk retrieves a chunk by RID joined with its document
func (h *ChunksDBHandler) SelectChunk(ctx context.Context, rid uuid.UUID) (*model.Chunk, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_chunk($1)`,
		rid,
	)

	chunk := &model.Chunk{}
	var score float64
	err := scanChunk(row, chunk, &score)
	if err != nil {
		return nil, scanError("scan", err)
	}

	return chunk, nil
}

// DeleteChunk deletes a chunk by RID
func (h *ChunksDBHandler) DeleteChunk(ctx context.Context, rid uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT delete_chunk($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectChunksBySimilarity returns the nearest chunks by cosine similarity,
// highest similarity first. The similarity is stored in Chunk.Similarity.
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, embedding []float32, limit int, namespace string, filter model.MetadataFilter) ([]*model.Chunk, error) {
	if len(embedding) == 0 {
		return nil, helper.NewError("embedding validation", fmt.Errorf("embedding is empty"))
	}
	filterJSON, err := filterParam(filter)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4)`,
		pgvector.NewVector(embedding),
		limit,
		namespace,
		filterJSON,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := scanChunk(rows, chunk, &chunk.Similarity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	if err = rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksByKeyword runs a full-text query and returns chunks by
// descending rank. The rank is stored in Chunk.KeywordRank.
func (h *ChunksDBHandler) SelectChunksByKeyword(ctx context.Context, query string, limit int, namespace string, filter model.MetadataFilter) ([]*model.Chunk, error) {
	filterJSON, err := filterParam(filter)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_keyword($1, $2, $3, $4)`,
		query,
		limit,
		namespace,
		filterJSON,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := scanChunk(rows, chunk, &chunk.KeywordRank)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	if err = rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

func scanChunk(row rowScanner, chunk *model.Chunk, score *float64) error {
	return row.Scan(
		&chunk.ID,
		&chunk.RID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.Namespace,
		&chunk.Content,
		&chunk.ChunkIndex,
		&chunk.Metadata,
		&chunk.CreatedAt,
		&chunk.DocumentTitle,
		&chunk.DocumentSource,
		&chunk.DocumentURL,
		score,
	)
}
