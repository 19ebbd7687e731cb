package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client *qdrant.Client
	logger *slog.Logger
	host   string
	port   int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(host string, port int, logger *slog.Logger) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	storage := &QdrantStorage{
		client: client,
		logger: logger,
		host:   host,
		port:   port,
	}

	ctx := context.Background()
	err = storage.healthCheckWithRetry(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		return s.Health(ctx)
	}

	return backoff.Retry(operation, exponentialBackoff)
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureIndex ensures the architectures collection exists with its vector
// and payload schema. Idempotent: when the collection already exists this
// is a logged no-op. A dimension mismatch against a pre-existing
// collection of the same name is not detected here; UpsertDocuments
// validates vector length before any write.
func (s *QdrantStorage) EnsureIndex(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == CollectionName {
			s.logger.Info("Index already exists", "collection", CollectionName)
			return nil
		}
	}

	s.logger.Info("Creating index", "collection", CollectionName, "dimensions", VectorDimension)

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes creates indexes for the filterable fields of the
// downstream query contract.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	fields := []string{
		"name",             // Filter hits by diagram name
		"architecture_url", // Filter by crop location
		"source",           // Filter by source document stem
	}

	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// ClearIndex deletes all points by dropping and recreating the collection.
// Useful for full re-ingestion runs.
func (s *QdrantStorage) ClearIndex(ctx context.Context) error {
	err := s.client.DeleteCollection(ctx, CollectionName)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	return s.EnsureIndex(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// UpsertDocuments stores assembled index documents, batched in groups of
// 100. Every embedding is dimension-checked before any write so a
// mismatched batch fails whole instead of writing a corrupt prefix.
func (s *QdrantStorage) UpsertDocuments(ctx context.Context, docs []*IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}

	for i, doc := range docs {
		if len(doc.Embedding) != VectorDimension {
			return fmt.Errorf("%w: document %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(doc.Embedding), VectorDimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))

		batch := docs[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, doc := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(doc.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					VectorName: qdrant.NewVector(doc.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"name":             doc.Name,
					"content":          doc.Content,
					"architecture_url": doc.ArchitectureURL,
					"source":           doc.Source,
					"indexed_at":       time.Now().UTC().Format(time.RFC3339),
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// GetDocument retrieves an index document by ID.
// Returns ErrDocumentNotFound if it doesn't exist.
func (s *QdrantStorage) GetDocument(ctx context.Context, id string) (*IndexDocument, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrDocumentNotFound
	}

	return documentFromPayload(id, result[0].Payload), nil
}

// SearchWithScores performs vector similarity search over the content
// vectors. Returns the top N documents with relevance scores, ordered by
// score descending. nameFilter narrows hits to one diagram name when set.
func (s *QdrantStorage) SearchWithScores(ctx context.Context, embedding []float32, limit int, nameFilter string) ([]*ScoredDocument, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), VectorDimension)
	}

	var filter *qdrant.Filter
	if nameFilter != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("name", nameFilter),
			},
		}
	}

	vectorName := VectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &vectorName,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	hits := make([]*ScoredDocument, 0, len(results))
	for _, result := range results {
		hits = append(hits, &ScoredDocument{
			Document: documentFromPayload(result.Id.GetUuid(), result.Payload),
			Score:    float64(result.Score),
		})
	}

	return hits, nil
}

// CountDocuments returns the number of points in the collection.
func (s *QdrantStorage) CountDocuments(ctx context.Context) (uint64, error) {
	collection, err := s.client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}
	return collection.GetPointsCount(), nil
}

// documentFromPayload rebuilds an IndexDocument from a point payload.
// Embeddings are not returned from reads; they are write-only.
func documentFromPayload(id string, payload map[string]*qdrant.Value) *IndexDocument {
	return &IndexDocument{
		ID:              id,
		Name:            payload["name"].GetStringValue(),
		Content:         payload["content"].GetStringValue(),
		ArchitectureURL: payload["architecture_url"].GetStringValue(),
		Source:          payload["source"].GetStringValue(),
	}
}
