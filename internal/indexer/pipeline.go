// Package indexer orchestrates the diagram extraction pipeline: document
// structure, page rasterization, service extraction, vision summaries,
// assembly and index upsert.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/diagram-indexer/internal/extraction"
	"github.com/bull/diagram-indexer/internal/layout"
	"github.com/bull/diagram-indexer/internal/raster"
	"github.com/bull/diagram-indexer/internal/source"
	"github.com/bull/diagram-indexer/internal/storage"
	"github.com/bull/diagram-indexer/internal/vision"
)

// DefaultWorkers bounds how many documents are ingested concurrently.
const DefaultWorkers = 2

// StructureExtractor provides document structure from raw bytes.
type StructureExtractor interface {
	ExtractStructure(ctx context.Context, document []byte) (*layout.Structure, error)
}

// Rasterizer renders and crops one open document.
type Rasterizer interface {
	RenderPages(ctx context.Context, dpi float64) ([]raster.RenderedPage, error)
	CropFigures(ctx context.Context, figures []layout.FigureRegion, dpi float64) ([]raster.DiagramCrop, error)
	Close() error
}

// RasterizerFactory opens a rasterizer over document bytes. The factory
// exists because rasterizer instances are not goroutine-safe: each
// pipeline branch opens its own.
type RasterizerFactory func(stem string, document []byte) (Rasterizer, error)

// ArchitectureExtractor pulls per-diagram service lists out of OCR text.
type ArchitectureExtractor interface {
	ExtractArchitectures(ctx context.Context, fullText, headings string) ([]extraction.ArchitectureRecord, error)
}

// PageSummarizer writes prose summaries for the diagrams on one page.
type PageSummarizer interface {
	SummarizePage(ctx context.Context, page raster.RenderedPage) ([]vision.ArchitectureSummary, error)
}

// Embedder produces the content vector for one assembled document.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// BlobStore uploads diagram crops and returns their URLs.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// IndexStore persists assembled documents.
type IndexStore interface {
	UpsertDocuments(ctx context.Context, docs []*storage.IndexDocument) error
}

// Result contains statistics about an ingestion run.
type Result struct {
	TotalDocs      int
	SuccessfulDocs int
	TotalDiagrams  int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc records a document whose ingestion was aborted.
type FailedDoc struct {
	Name   string
	Reason string
}

// Pipeline runs the full ingestion for every document a source provides.
// All collaborators are injected; nothing here talks to a provider
// directly.
type Pipeline struct {
	source        source.Source
	structure     StructureExtractor
	newRasterizer RasterizerFactory
	extractor     ArchitectureExtractor
	summarizer    PageSummarizer
	embedder      Embedder
	blobs         BlobStore
	store         IndexStore
	logger        *slog.Logger
	workers       int
	dpi           float64
}

// Config carries the pipeline's collaborators and tuning knobs.
type Config struct {
	Source        source.Source
	Structure     StructureExtractor
	NewRasterizer RasterizerFactory
	Extractor     ArchitectureExtractor
	Summarizer    PageSummarizer
	Embedder      Embedder
	Blobs         BlobStore
	Store         IndexStore
	Logger        *slog.Logger
	Workers       int     // concurrent documents, DefaultWorkers if 0
	DPI           float64 // render resolution, raster.DefaultDPI if 0
}

// NewPipeline creates a pipeline from the given configuration.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DPI <= 0 {
		cfg.DPI = raster.DefaultDPI
	}
	return &Pipeline{
		source:        cfg.Source,
		structure:     cfg.Structure,
		newRasterizer: cfg.NewRasterizer,
		extractor:     cfg.Extractor,
		summarizer:    cfg.Summarizer,
		embedder:      cfg.Embedder,
		blobs:         cfg.Blobs,
		store:         cfg.Store,
		logger:        cfg.Logger,
		workers:       cfg.Workers,
		dpi:           cfg.DPI,
	}
}

// IngestAll processes every document the source lists. Documents are
// independent: a failure aborts only its own document, is recorded in
// the result and does not touch siblings in flight.
func (p *Pipeline) IngestAll(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	names, err := p.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	result.TotalDocs = len(names)
	p.logger.Info("Starting ingestion", "documents", len(names), "workers", p.workers, "dpi", p.dpi)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, name := range names {
		g.Go(func() error {
			diagrams, err := p.processDocument(gctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("Failed to ingest document", "name", name, "error", err)
				result.FailedDocs = append(result.FailedDocs, FailedDoc{
					Name:   name,
					Reason: err.Error(),
				})
				return nil // Per-document failure, keep siblings running
			}
			result.SuccessfulDocs++
			result.TotalDiagrams += diagrams
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("Ingestion complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"diagrams", result.TotalDiagrams,
		"duration", result.Duration,
	)

	return result, nil
}

// processDocument runs the full pipeline for one document and returns
// the number of diagrams indexed.
//
// Structure extraction gates cropping and service extraction; the
// summarization branch needs only the raw bytes, so it runs concurrently
// with all of that. Within the structure branch, cropping and service
// extraction run in parallel once the structure is in hand.
func (p *Pipeline) processDocument(ctx context.Context, name string) (int, error) {
	doc, err := p.source.Fetch(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	p.logger.Debug("Fetched document", "name", name, "size", len(doc.Data))

	var (
		records   []extraction.ArchitectureRecord
		summaries []vision.ArchitectureSummary
		crops     []raster.DiagramCrop
	)

	g, gctx := errgroup.WithContext(ctx)

	// Branch 1: layout structure, then crops and records in parallel.
	g.Go(func() error {
		structure, err := p.structure.ExtractStructure(gctx, doc.Data)
		if err != nil {
			return fmt.Errorf("structure: %w", err)
		}
		p.logger.Debug("Extracted structure", "name", name,
			"headings", len(structure.Headings), "figures", len(structure.Figures))

		inner, ictx := errgroup.WithContext(gctx)
		inner.Go(func() error {
			r, err := p.newRasterizer(doc.Stem, doc.Data)
			if err != nil {
				return fmt.Errorf("open rasterizer: %w", err)
			}
			defer r.Close()

			crops, err = r.CropFigures(ictx, structure.Figures, p.dpi)
			if err != nil {
				return fmt.Errorf("crop figures: %w", err)
			}
			return nil
		})
		inner.Go(func() error {
			var err error
			records, err = p.extractor.ExtractArchitectures(ictx, structure.Content, structure.HeadingText())
			if err != nil {
				return fmt.Errorf("extract architectures: %w", err)
			}
			return nil
		})
		return inner.Wait()
	})

	// Branch 2: render every page and summarize each.
	g.Go(func() error {
		r, err := p.newRasterizer(doc.Stem, doc.Data)
		if err != nil {
			return fmt.Errorf("open rasterizer: %w", err)
		}
		defer r.Close()

		pages, err := r.RenderPages(gctx, p.dpi)
		if err != nil {
			return fmt.Errorf("render pages: %w", err)
		}
		for _, page := range pages {
			pageSummaries, err := p.summarizer.SummarizePage(gctx, page)
			if err != nil {
				return fmt.Errorf("summarize page %d: %w", page.PageNumber, err)
			}
			summaries = append(summaries, pageSummaries...)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}

	docs, err := p.assemble(ctx, doc.Stem, records, summaries, crops)
	if err != nil {
		return 0, fmt.Errorf("assemble: %w", err)
	}
	if len(docs) == 0 {
		p.logger.Info("No diagrams found", "name", name)
		return 0, nil
	}

	if err := p.store.UpsertDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}

	p.logger.Info("Ingested document", "name", name, "diagrams", len(docs))
	return len(docs), nil
}
