package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chunkResultColumns = []string{
	"id", "rid", "document_id", "document_rid", "namespace", "content", "chunk_index", "metadata",
	"created_at", "document_title", "document_source", "document_url", "score",
}

func TestChunksMock(t *testing.T) {
	ctx := context.Background()

	t.Run("Similarity search stores the cosine similarity", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ChunksDBHandler{db: database, embeddingDim: 3}
		docRID := uuid.New()
		now := time.Now()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4)`)).
			WithArgs("[1,0,0]", 5, "pharma", `{"year":2020}`).
			WillReturnRows(sqlmock.NewRows(chunkResultColumns).
				AddRow(int64(1), uuid.NewString(), int64(9), docRID.String(), "pharma", "Aspirin inhibits COX-1.", 0, []byte(`{"year":2020}`), now, "Aspirin", "fda", "", 0.93).
				AddRow(int64(2), uuid.NewString(), int64(9), docRID.String(), "pharma", "Aspirin reduces fever.", 1, []byte(`{"year":2020}`), now, "Aspirin", "fda", "", 0.81))

		chunks, err := h.SelectChunksBySimilarity(ctx, []float32{1, 0, 0}, 5, "pharma", model.MetadataFilter{"year": 2020})
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0.93, chunks[0].Similarity)
		assert.Zero(t, chunks[0].KeywordRank)
		assert.Equal(t, docRID, chunks[1].DocumentRID)
		assert.Equal(t, "Aspirin", chunks[1].DocumentTitle)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Keyword search stores the text rank", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ChunksDBHandler{db: database, embeddingDim: 3}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM select_chunks_by_keyword($1, $2, $3, $4)`)).
			WithArgs("aspirin fever", 10, "", `{}`).
			WillReturnRows(sqlmock.NewRows(chunkResultColumns).
				AddRow(int64(2), uuid.NewString(), int64(9), uuid.NewString(), "", "Aspirin reduces fever.", 1, []byte(`{}`), time.Now(), "Aspirin", "", "", 0.4))

		chunks, err := h.SelectChunksByKeyword(ctx, "aspirin fever", 10, "", nil)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, 0.4, chunks[0].KeywordRank)
		assert.Zero(t, chunks[0].Similarity)
	})

	t.Run("Empty embedding is rejected", func(t *testing.T) {
		database, _ := newMockDatabase(t)
		h := &ChunksDBHandler{db: database, embeddingDim: 3}

		_, err := h.SelectChunksBySimilarity(ctx, nil, 5, "", nil)
		assert.ErrorContains(t, err, "embedding is empty")
	})

	t.Run("Insert rejects embeddings of the wrong dimension", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ChunksDBHandler{db: database, embeddingDim: 3}

		err := h.InsertChunk(ctx, &model.Chunk{Content: "x", Embedding: []float32{1, 2}})
		assert.ErrorContains(t, err, "expected 3 dimensions")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Select missing chunk returns ErrNotFound", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ChunksDBHandler{db: database, embeddingDim: 3}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM select_chunk($1)`)).
			WillReturnRows(sqlmock.NewRows(chunkResultColumns))

		_, err := h.SelectChunk(ctx, uuid.New())
		assert.True(t, errors.Is(err, helper.ErrNotFound))
	})
}

func TestNewChunksDBHandler(t *testing.T) {
	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, 384, false)
		assert.ErrorContains(t, err, "database connection is nil")
	})

	t.Run("Invalid call NewChunksDBHandler with zero dimension", func(t *testing.T) {
		database, _ := newMockDatabase(t)
		_, err := NewChunksDBHandler(database, 0, false)
		assert.ErrorContains(t, err, "embedding dimension must be positive")
	})
}

func TestChunksIntegration(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 3, true)
	require.NoError(t, err)

	doc := &model.Document{Title: "Aspirin", Source: "label.txt", Namespace: "pharma"}
	require.NoError(t, documentsDbHandler.InsertDocument(ctx, doc))
	defer documentsDbHandler.DeleteDocument(ctx, doc.RID)

	contents := []struct {
		text      string
		embedding []float32
		metadata  model.Metadata
	}{
		{"Aspirin irreversibly inhibits cyclooxygenase.", []float32{1, 0, 0}, model.Metadata{"section": "pharmacology"}},
		{"Aspirin is used to reduce fever and pain.", []float32{0.8, 0.6, 0}, model.Metadata{"section": "indications"}},
		{"Store below 25 degrees.", []float32{0, 0, 1}, model.Metadata{"section": "storage"}},
	}
	for i, c := range contents {
		chunk := &model.Chunk{
			DocumentID: doc.ID,
			Namespace:  "pharma",
			Content:    c.text,
			Embedding:  c.embedding,
			ChunkIndex: i,
			Metadata:   c.metadata,
		}
		require.NoError(t, chunksDbHandler.InsertChunk(ctx, chunk))
		assert.NotEqual(t, uuid.Nil, chunk.RID)
	}

	t.Run("Similarity search orders by cosine similarity", func(t *testing.T) {
		chunks, err := chunksDbHandler.SelectChunksBySimilarity(ctx, []float32{1, 0, 0}, 2, "pharma", nil)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, contents[0].text, chunks[0].Content)
		assert.InDelta(t, 1.0, chunks[0].Similarity, 1e-6)
		assert.InDelta(t, 0.8, chunks[1].Similarity, 1e-6)
		assert.Equal(t, doc.RID, chunks[0].DocumentRID)
	})

	t.Run("Similarity search honors the metadata filter", func(t *testing.T) {
		chunks, err := chunksDbHandler.SelectChunksBySimilarity(ctx, []float32{1, 0, 0}, 5, "pharma", model.MetadataFilter{"section": "storage"})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, contents[2].text, chunks[0].Content)
	})

	t.Run("Keyword search finds stemmed terms", func(t *testing.T) {
		chunks, err := chunksDbHandler.SelectChunksByKeyword(ctx, "fevers", 5, "pharma", nil)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, contents[1].text, chunks[0].Content)
		assert.Greater(t, chunks[0].KeywordRank, 0.0)
	})

	t.Run("Keyword search in another namespace is empty", func(t *testing.T) {
		chunks, err := chunksDbHandler.SelectChunksByKeyword(ctx, "aspirin", 5, "finance", nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}
