package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bull/diagram-indexer/internal/extraction"
	"github.com/bull/diagram-indexer/internal/raster"
	"github.com/bull/diagram-indexer/internal/storage"
	"github.com/bull/diagram-indexer/internal/vision"
)

var ErrCropShortfall = errors.New("fewer diagram crops than extracted records")

// assemble joins the three extraction outputs into index documents.
//
// The record-to-crop join is positional: record i is paired with crop i.
// Nothing re-verifies that the crop's pixels actually depict the record's
// diagram; the ordering contract from layout emission through extraction
// is the only guarantee. A crop list shorter than the record list is
// therefore a hard failure, never a truncation.
//
// The summary join is by exact diagram name, last write wins on
// duplicates. A record with no matching summary gets an empty summary
// segment; unmatched summaries are logged, not errors.
func (p *Pipeline) assemble(
	ctx context.Context,
	stem string,
	records []extraction.ArchitectureRecord,
	summaries []vision.ArchitectureSummary,
	crops []raster.DiagramCrop,
) ([]*storage.IndexDocument, error) {
	if len(crops) < len(records) {
		return nil, fmt.Errorf("%w: %d records, %d crops", ErrCropShortfall, len(records), len(crops))
	}

	summaryByName := make(map[string]string, len(summaries))
	for _, s := range summaries {
		summaryByName[s.Name] = s.Summary
	}

	matched := make(map[string]bool, len(records))
	docs := make([]*storage.IndexDocument, 0, len(records))

	for i, rec := range records {
		crop := crops[i]

		url, err := p.blobs.Upload(ctx, crop.BlobKey, crop.PNG)
		if err != nil {
			return nil, fmt.Errorf("upload crop %d: %w", i, err)
		}

		summary := summaryByName[rec.Name]
		if summary != "" {
			matched[rec.Name] = true
		}
		content := buildContent(rec, summary)

		vector, err := p.embedder.EmbedText(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("embed %q: %w", rec.Name, err)
		}

		docs = append(docs, &storage.IndexDocument{
			ID:              uuid.New().String(),
			Name:            rec.Name,
			Content:         content,
			ArchitectureURL: url,
			Source:          stem,
			Embedding:       vector,
		})
	}

	for _, s := range summaries {
		if !matched[s.Name] {
			p.logger.Warn("Summary name matched no extracted record", "stem", stem, "name", s.Name)
		}
	}

	return docs, nil
}

// buildContent synthesizes the searchable text for one diagram. The
// summary segment is present even when empty so content shape stays
// uniform across records.
func buildContent(rec extraction.ArchitectureRecord, summary string) string {
	return fmt.Sprintf("%s. Platform services: %s. External services: %s. AI summary: %s",
		rec.Name,
		strings.Join(rec.PlatformServices, ", "),
		strings.Join(rec.ExternalServices, ", "),
		summary,
	)
}
