package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexStatement(t *testing.T) {
	t.Run("HNSW with default params", func(t *testing.T) {
		stmt, err := vectorIndexStatement(IndexTypeHNSW, nil)
		require.NoError(t, err)
		assert.Contains(t, stmt, "USING hnsw")
		assert.Contains(t, stmt, "m = 16, ef_construction = 64")
	})

	t.Run("HNSW with custom params", func(t *testing.T) {
		stmt, err := vectorIndexStatement(IndexTypeHNSW, map[string]interface{}{"m": 32, "ef_construction": 128})
		require.NoError(t, err)
		assert.Contains(t, stmt, "m = 32, ef_construction = 128")
	})

	t.Run("IVFFlat ignores non positive lists", func(t *testing.T) {
		stmt, err := vectorIndexStatement(IndexTypeIVFFlat, map[string]interface{}{"lists": -1})
		require.NoError(t, err)
		assert.Contains(t, stmt, "USING ivfflat")
		assert.Contains(t, stmt, "lists = 100")
	})

	t.Run("Unsupported index type", func(t *testing.T) {
		_, err := vectorIndexStatement("invalid", nil)
		assert.ErrorContains(t, err, "unsupported index type")
	})
}

func TestChangeIndexTypeMock(t *testing.T) {
	t.Run("Index is dropped and recreated in one transaction", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ChunksDBHandler{db: database, embeddingDim: 3}

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DROP INDEX IF EXISTS idx_chunks_embedding;`)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`USING ivfflat (embedding vector_cosine_ops) WITH (lists = 50);`)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := h.ChangeIndexType(context.Background(), IndexTypeIVFFlat, map[string]interface{}{"lists": 50})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unsupported type never touches the database", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ChunksDBHandler{db: database, embeddingDim: 3}

		err := h.ChangeIndexType(context.Background(), "flat", nil)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestChangeIndexType(t *testing.T) {
	database := initDB(t)

	_, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
	require.NoError(t, err, "Expected NewChunksDBHandler to not return an error")

	ctx := context.Background()

	t.Run("Change index to IVFFlat with custom params", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, IndexTypeIVFFlat, map[string]interface{}{"lists": 200})
		assert.NoError(t, err, "Expected ChangeIndexType to ivfflat to not return an error")
	})

	t.Run("Change index back to HNSW", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, IndexTypeHNSW, map[string]interface{}{})
		assert.NoError(t, err, "Expected ChangeIndexType to hnsw to not return an error")
	})
}
