// Package main provides the archdex CLI for ingesting architecture
// diagram PDFs into the vector search index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/bull/diagram-indexer/internal/blob"
	"github.com/bull/diagram-indexer/internal/embedding"
	"github.com/bull/diagram-indexer/internal/extraction"
	"github.com/bull/diagram-indexer/internal/indexer"
	"github.com/bull/diagram-indexer/internal/layout"
	"github.com/bull/diagram-indexer/internal/raster"
	"github.com/bull/diagram-indexer/internal/source"
	"github.com/bull/diagram-indexer/internal/storage"
	"github.com/bull/diagram-indexer/internal/vision"
)

var rootCmd = &cobra.Command{
	Use:   "archdex",
	Short: "Architecture diagram extraction and indexing tool",
	Long:  "CLI tool for extracting architecture diagrams from PDFs and indexing them in Qdrant",
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the search index if it does not exist",
	Long: `Idempotently ensures the architectures collection exists with its
vector and payload schema. Running it against an existing index is a no-op.

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)`,
	RunE: runSchema,
}

var (
	resetIndex bool

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Extract and index all architecture diagrams from the configured source",
		Long: `Runs the full pipeline for every PDF the source provides:

1. Connects to Qdrant and ensures the index exists
2. Analyzes each document's layout (headings, figures, full text)
3. Renders pages and crops figure regions
4. Extracts per-diagram service lists and vision summaries
5. Uploads crops, embeds content and upserts one document per diagram

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY     OpenAI API key for models and embeddings (required)
  DOCINTEL_ENDPOINT  Layout analysis endpoint (required)
  DOCINTEL_KEY       Layout analysis key (required)
  DATA_DIR           Local PDF directory (default: data)
  SOURCE_REPO        Optional "owner/repo" to ingest PDFs from GitHub instead
  SOURCE_PATH        Repo directory holding the PDFs (with SOURCE_REPO)
  BLOB_ACCOUNT       Azure storage account for crop uploads (optional)
  BLOB_CONTAINER     Azure blob container (with BLOB_ACCOUNT)
  BLOB_SAS_TOKEN     SAS token for uploads (with BLOB_ACCOUNT)
  BLOB_DIR           Local crop directory when no account is set (default: figures)
  INGEST_WORKERS     Concurrent documents (default: 2)
  RENDER_DPI         Page render resolution (default: 300)
  MODEL_RPS          Model request rate limit per second (default: 2)`,
		RunE: runIngest,
	}
)

var (
	searchLimit int

	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Query the index for matching architecture diagrams",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
)

func init() {
	ingestCmd.Flags().BoolVar(&resetIndex, "reset", false, "drop and recreate the index before ingesting")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "maximum number of hits")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connectStorage() (*storage.QdrantStorage, error) {
	host := getEnv("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", host, port)
	store, err := storage.NewQdrantStorage(host, port, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	return store, nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := connectStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure index: %w", err)
	}

	fmt.Println("Index ready")
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	fmt.Println("Starting ingestion...")
	fmt.Println()

	// 1. Storage
	store, err := connectStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if resetIndex {
		fmt.Println("Resetting index...")
		if err := store.ClearIndex(ctx); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
	} else if err := store.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure index: %w", err)
	}

	// 2. Model clients. Extraction and summarization share one OpenAI
	// client and one rate limiter across all in-flight documents.
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0)

	limiter := rate.NewLimiter(rate.Limit(getEnvInt("MODEL_RPS", 2)), 1)
	extractor := extraction.NewExtractor(embeddingClient.Client(), limiter, slog.Default())
	summarizer := vision.NewSummarizer(embeddingClient.Client(), limiter, slog.Default())

	// 3. Layout analysis
	layoutClient, err := layout.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create layout client: %w", err)
	}
	structure := layout.NewExtractor(layoutClient)

	// 4. Blob store
	blobs, err := newBlobStore()
	if err != nil {
		return err
	}

	// 5. Document source
	src, err := newSource()
	if err != nil {
		return err
	}

	// 6. Run the pipeline
	pipeline := indexer.NewPipeline(indexer.Config{
		Source:    src,
		Structure: structure,
		NewRasterizer: func(stem string, document []byte) (indexer.Rasterizer, error) {
			return raster.New(stem, document)
		},
		Extractor:  extractor,
		Summarizer: summarizer,
		Embedder:   embedder,
		Blobs:      blobs,
		Store:      store,
		Logger:     slog.Default(),
		Workers:    getEnvInt("INGEST_WORKERS", indexer.DefaultWorkers),
		DPI:        float64(getEnvInt("RENDER_DPI", raster.DefaultDPI)),
	})

	result, err := pipeline.IngestAll(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	// 7. Print results
	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Diagrams:  %d\n", result.TotalDiagrams)
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Second))

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Name, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))

	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := args[0]

	store, err := connectStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0)

	vector, err := embedder.EmbedText(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := store.SearchWithScores(ctx, vector, searchLimit, "")
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("No matching diagrams")
		return nil
	}

	for i, hit := range hits {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, hit.Document.Name, hit.Score)
		fmt.Printf("   %s\n", hit.Document.ArchitectureURL)
		fmt.Printf("   %s\n", hit.Document.Content)
		if i < len(hits)-1 {
			fmt.Println()
		}
	}

	return nil
}

// newBlobStore picks the Azure store when an account is configured,
// otherwise a local directory store.
func newBlobStore() (indexer.BlobStore, error) {
	if account := os.Getenv("BLOB_ACCOUNT"); account != "" {
		store, err := blob.NewAzureStore(account, os.Getenv("BLOB_CONTAINER"), os.Getenv("BLOB_SAS_TOKEN"))
		if err != nil {
			return nil, fmt.Errorf("failed to create blob store: %w", err)
		}
		return store, nil
	}
	store, err := blob.NewFileStore(getEnv("BLOB_DIR", "figures"))
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	return store, nil
}

// newSource picks the GitHub source when a repo is configured, otherwise
// the local data directory.
func newSource() (source.Source, error) {
	if repo := os.Getenv("SOURCE_REPO"); repo != "" {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok {
			return nil, fmt.Errorf("SOURCE_REPO must be owner/repo, got %q", repo)
		}
		return source.NewGitHubSource(owner, name, os.Getenv("SOURCE_PATH"))
	}
	return source.NewDirSource(getEnv("DATA_DIR", "data"))
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
