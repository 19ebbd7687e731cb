//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStorage creates a test storage instance and ensures the index exists.
// Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T) *QdrantStorage {
	storage, err := NewQdrantStorage("localhost", 6334, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	err = storage.EnsureIndex(context.Background())
	require.NoError(t, err, "Failed to ensure index")

	return storage
}

func testEmbedding(seed float32) []float32 {
	v := make([]float32, VectorDimension)
	for i := range v {
		v[i] = seed
	}
	return v
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	storage := setupTestStorage(t)
	defer storage.Close()

	// Second call must be a no-op, never an error.
	err := storage.EnsureIndex(context.Background())
	require.NoError(t, err, "Second EnsureIndex call should be a no-op")
}

func TestDocumentRoundTrip(t *testing.T) {
	storage := setupTestStorage(t)
	defer storage.Close()

	ctx := context.Background()

	doc := &IndexDocument{
		ID:              uuid.New().String(),
		Name:            "Architecture A",
		Content:         "Architecture A. Platform services: App Service. External services: Stripe. AI summary: Orders flow through the gateway.",
		ArchitectureURL: "https://testacct.blob.core.windows.net/figures/sample_000.png",
		Source:          "sample",
		Embedding:       testEmbedding(0.1),
	}

	err := storage.UpsertDocuments(ctx, []*IndexDocument{doc})
	require.NoError(t, err, "Failed to upsert document")

	retrieved, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err, "Failed to get document")

	assert.Equal(t, doc.Name, retrieved.Name)
	assert.Equal(t, doc.Content, retrieved.Content)
	assert.Equal(t, doc.ArchitectureURL, retrieved.ArchitectureURL)
	assert.Equal(t, doc.Source, retrieved.Source)
}

func TestUpsertDocuments_DimensionMismatch(t *testing.T) {
	storage := setupTestStorage(t)
	defer storage.Close()

	doc := &IndexDocument{
		ID:        uuid.New().String(),
		Name:      "Bad Dimensions",
		Embedding: make([]float32, 8),
	}

	err := storage.UpsertDocuments(context.Background(), []*IndexDocument{doc})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchWithScores(t *testing.T) {
	storage := setupTestStorage(t)
	defer storage.Close()

	ctx := context.Background()

	docA := &IndexDocument{
		ID:              uuid.New().String(),
		Name:            "Search Target",
		Content:         "Search Target. Platform services: Functions.",
		ArchitectureURL: "https://testacct.blob.core.windows.net/figures/search_000.png",
		Source:          "search",
		Embedding:       testEmbedding(0.9),
	}
	require.NoError(t, storage.UpsertDocuments(ctx, []*IndexDocument{docA}))

	hits, err := storage.SearchWithScores(ctx, testEmbedding(0.9), 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits, "Should find indexed documents")

	hit := hits[0]
	assert.NotEmpty(t, hit.Document.ID)
	assert.NotEmpty(t, hit.Document.Name)
	assert.NotEmpty(t, hit.Document.Content)
	assert.Greater(t, hit.Score, 0.0)

	// Name filter narrows to one diagram.
	filtered, err := storage.SearchWithScores(ctx, testEmbedding(0.9), 5, "Search Target")
	require.NoError(t, err)
	for _, h := range filtered {
		assert.Equal(t, "Search Target", h.Document.Name)
	}

	// Wrong query dimension is rejected client-side.
	_, err = storage.SearchWithScores(ctx, make([]float32, 3), 5, "")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
