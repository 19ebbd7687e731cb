// Package raster renders PDF pages to bitmaps and crops figure regions
// out of them using go-fitz (MuPDF).
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/bull/diagram-indexer/internal/geometry"
	"github.com/bull/diagram-indexer/internal/layout"
)

// DefaultDPI is the render resolution used when none is configured.
const DefaultDPI = 300

var ErrPageOutOfRange = errors.New("figure references a page outside the document")

// RenderedPage is one page bitmap at the configured DPI.
type RenderedPage struct {
	PageNumber int // 1-based
	Image      image.Image
}

// DiagramCrop is one figure region clipped from its page render, in
// region-discovery order. Crop index order must match the order the
// correlator extracts records in; both joins downstream are positional.
type DiagramCrop struct {
	Stem    string
	Index   int
	Image   image.Image
	PNG     []byte
	BlobKey string
}

// Rasterizer renders one source document. Instances are not safe for
// concurrent use; each pipeline branch opens its own from the same bytes.
type Rasterizer struct {
	doc  *fitz.Document
	stem string
}

// New opens a rasterizer over in-memory document bytes.
func New(stem string, document []byte) (*Rasterizer, error) {
	doc, err := fitz.NewFromMemory(document)
	if err != nil {
		return nil, fmt.Errorf("open document %q: %w", stem, err)
	}
	return &Rasterizer{doc: doc, stem: stem}, nil
}

// Close releases the underlying MuPDF document.
func (r *Rasterizer) Close() error {
	return r.doc.Close()
}

// PageCount returns the number of pages in the document.
func (r *Rasterizer) PageCount() int {
	return r.doc.NumPage()
}

// RenderPages renders every page at the given DPI. Pages without figures
// are rendered too; the summarizer looks at all of them.
func (r *Rasterizer) RenderPages(ctx context.Context, dpi float64) ([]RenderedPage, error) {
	count := r.doc.NumPage()
	pages := make([]RenderedPage, 0, count)

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := r.doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, RenderedPage{PageNumber: i + 1, Image: img})
	}

	return pages, nil
}

// CropFigures clips one bitmap per figure region in discovery order
// (index 0, 1, 2, ...). A figure referencing a missing page fails with
// ErrPageOutOfRange; a malformed polygon fails with the geometry error.
// Either aborts the whole document — a missing crop would silently
// misalign the positional join during assembly.
func (r *Rasterizer) CropFigures(ctx context.Context, figures []layout.FigureRegion, dpi float64) ([]DiagramCrop, error) {
	count := r.doc.NumPage()
	crops := make([]DiagramCrop, 0, len(figures))

	// Page renders are cached: several figures often share a page.
	rendered := make(map[int]image.Image)

	for i, fig := range figures {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if fig.PageNumber < 1 || fig.PageNumber > count {
			return nil, fmt.Errorf("%w: figure %d wants page %d of %d", ErrPageOutOfRange, i, fig.PageNumber, count)
		}

		rect, err := geometry.PixelRect(fig.Polygon, dpi)
		if err != nil {
			return nil, fmt.Errorf("figure %d: %w", i, err)
		}

		page, ok := rendered[fig.PageNumber]
		if !ok {
			img, err := r.doc.ImageDPI(fig.PageNumber-1, dpi)
			if err != nil {
				return nil, fmt.Errorf("render page %d: %w", fig.PageNumber, err)
			}
			rendered[fig.PageNumber] = img
			page = img
		}

		crop, err := clip(page, rect)
		if err != nil {
			return nil, fmt.Errorf("figure %d: %w", i, err)
		}

		encoded, err := EncodePNG(crop)
		if err != nil {
			return nil, fmt.Errorf("encode figure %d: %w", i, err)
		}

		crops = append(crops, DiagramCrop{
			Stem:    r.stem,
			Index:   i,
			Image:   crop,
			PNG:     encoded,
			BlobKey: CropKey(r.stem, i),
		})
	}

	return crops, nil
}

// CropKey derives the deterministic blob name for a crop.
func CropKey(stem string, index int) string {
	return fmt.Sprintf("%s_%03d.png", stem, index)
}

// EncodePNG serializes a bitmap for upload or model payloads.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// clip extracts the rectangle from a page render, clamped to the page
// bounds. An empty intersection means the polygon lies entirely off the
// rendered page, which indicates corrupt layout output.
func clip(page image.Image, rect image.Rectangle) (image.Image, error) {
	bounded := rect.Intersect(page.Bounds())
	if bounded.Empty() {
		return nil, fmt.Errorf("crop rectangle %v lies outside page bounds %v", rect, page.Bounds())
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	src, ok := page.(subImager)
	if !ok {
		return nil, fmt.Errorf("page image type %T does not support cropping", page)
	}
	return src.SubImage(bounded), nil
}
