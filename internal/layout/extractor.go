// Package layout extracts document structure — section headings, figure
// regions and full text — from a layout analysis provider.
package layout

import (
	"context"
	"errors"
	"fmt"

	"github.com/bull/diagram-indexer/internal/geometry"
)

// roleSectionHeading is the paragraph role tag marking headings.
const roleSectionHeading = "sectionHeading"

var ErrNoParagraphs = errors.New("layout analysis returned no paragraphs")

// SectionHeading is a heading in document reading order.
type SectionHeading struct {
	Text    string
	Ordinal int // position within the combined heading list
}

// FigureRegion is a detected figure tied to a page and polygon.
type FigureRegion struct {
	PageNumber int // 1-based
	Polygon    []geometry.Point
	Caption    string
}

// Structure is the extracted document structure.
type Structure struct {
	Headings []SectionHeading
	Figures  []FigureRegion
	Content  string // full OCR text
}

// Analyzer is the provider capability the extractor depends on.
type Analyzer interface {
	Analyze(ctx context.Context, document []byte) (*AnalyzeResult, error)
}

// Extractor turns raw layout analysis output into pipeline structure.
type Extractor struct {
	analyzer Analyzer
}

// NewExtractor creates an extractor backed by the given analyzer.
func NewExtractor(analyzer Analyzer) *Extractor {
	return &Extractor{analyzer: analyzer}
}

// ExtractStructure analyzes the document and collects section headings,
// figure regions and the full text.
//
// Figure captions are appended to the heading list after the provider's
// structural headings: captions behave as pseudo-headings when the
// correlator aligns diagrams with headings. Figure regions keep provider
// emission order; downstream cropping and extraction both rely on it.
func (e *Extractor) ExtractStructure(ctx context.Context, document []byte) (*Structure, error) {
	result, err := e.analyzer.Analyze(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("layout analysis: %w", err)
	}
	if len(result.Paragraphs) == 0 {
		return nil, ErrNoParagraphs
	}

	var headings []SectionHeading
	for _, p := range result.Paragraphs {
		if p.Role == roleSectionHeading {
			headings = append(headings, SectionHeading{Text: p.Content, Ordinal: len(headings)})
		}
	}

	var figures []FigureRegion
	for i, fig := range result.Figures {
		if len(fig.BoundingRegions) == 0 {
			return nil, fmt.Errorf("figure %d has no bounding region", i)
		}
		region := fig.BoundingRegions[0]
		polygon, err := geometry.Normalize(region.Polygon)
		if err != nil {
			return nil, fmt.Errorf("figure %d: %w", i, err)
		}

		fr := FigureRegion{
			PageNumber: region.PageNumber,
			Polygon:    polygon,
		}
		if fig.Caption != nil && fig.Caption.Content != "" {
			fr.Caption = fig.Caption.Content
			headings = append(headings, SectionHeading{Text: fig.Caption.Content, Ordinal: len(headings)})
		}
		figures = append(figures, fr)
	}

	return &Structure{
		Headings: headings,
		Figures:  figures,
		Content:  result.Content,
	}, nil
}

// HeadingText joins heading texts line by line for prompt construction.
func (s *Structure) HeadingText() string {
	text := ""
	for i, h := range s.Headings {
		if i > 0 {
			text += "\n"
		}
		text += h.Text
	}
	return text
}
