package raster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bull/diagram-indexer/internal/geometry"
	"github.com/bull/diagram-indexer/internal/layout"
)

// minimalPDF assembles a valid single-page US-letter PDF with a correct
// xref table, small enough to keep inline in the test.
func minimalPDF(t *testing.T) []byte {
	t.Helper()

	objects := []string{
		"<</Type/Catalog/Pages 2 0 R>>",
		"<</Type/Pages/Kids[3 0 R]/Count 1>>",
		"<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]>>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objects)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<</Size %d/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)

	return []byte(b.String())
}

func quarterPagePolygon() []geometry.Point {
	// Top-left quarter of an 8.5x11in page, in inches.
	return []geometry.Point{{X: 0, Y: 0}, {X: 4.25, Y: 0}, {X: 4.25, Y: 5.5}, {X: 0, Y: 5.5}}
}

// TestRenderPages verifies every page renders and dimensions track DPI.
func TestRenderPages(t *testing.T) {
	r, err := New("sample", minimalPDF(t))
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer r.Close()

	if r.PageCount() != 1 {
		t.Fatalf("Expected 1 page, got %d", r.PageCount())
	}

	pages, err := r.RenderPages(context.Background(), 72)
	if err != nil {
		t.Fatalf("RenderPages failed: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("Expected 1 rendered page, got %d", len(pages))
	}
	if pages[0].PageNumber != 1 {
		t.Errorf("Expected page number 1, got %d", pages[0].PageNumber)
	}

	// 612x792pt page at 72 DPI is 612x792 pixels.
	bounds := pages[0].Image.Bounds()
	if bounds.Dx() != 612 || bounds.Dy() != 792 {
		t.Errorf("Expected 612x792 render, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

// TestCropFigures verifies discovery-order crops with deterministic keys.
func TestCropFigures(t *testing.T) {
	r, err := New("sample", minimalPDF(t))
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer r.Close()

	figures := []layout.FigureRegion{
		{PageNumber: 1, Polygon: quarterPagePolygon()},
		{PageNumber: 1, Polygon: quarterPagePolygon()},
	}

	crops, err := r.CropFigures(context.Background(), figures, 72)
	if err != nil {
		t.Fatalf("CropFigures failed: %v", err)
	}
	if len(crops) != 2 {
		t.Fatalf("Expected 2 crops, got %d", len(crops))
	}

	for i, crop := range crops {
		if crop.Index != i {
			t.Errorf("Crop %d: expected index %d, got %d", i, i, crop.Index)
		}
		expectedKey := fmt.Sprintf("sample_%03d.png", i)
		if crop.BlobKey != expectedKey {
			t.Errorf("Crop %d: expected key %q, got %q", i, expectedKey, crop.BlobKey)
		}
		if len(crop.PNG) == 0 {
			t.Errorf("Crop %d: expected PNG bytes", i)
		}
		bounds := crop.Image.Bounds()
		if bounds.Dx() != 306 || bounds.Dy() != 396 {
			t.Errorf("Crop %d: expected 306x396, got %dx%d", i, bounds.Dx(), bounds.Dy())
		}
	}
}

// TestCropFigures_PageOutOfRange verifies the out-of-range error aborts
// cropping for the document.
func TestCropFigures_PageOutOfRange(t *testing.T) {
	r, err := New("sample", minimalPDF(t))
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer r.Close()

	figures := []layout.FigureRegion{
		{PageNumber: 5, Polygon: quarterPagePolygon()},
	}

	_, err = r.CropFigures(context.Background(), figures, 72)
	if !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("Expected ErrPageOutOfRange, got %v", err)
	}
}

// TestCropFigures_MalformedPolygon verifies a bad polygon fails the crop
// pass with the geometry error.
func TestCropFigures_MalformedPolygon(t *testing.T) {
	r, err := New("sample", minimalPDF(t))
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer r.Close()

	figures := []layout.FigureRegion{
		{PageNumber: 1, Polygon: []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}},
	}

	_, err = r.CropFigures(context.Background(), figures, 72)
	if !errors.Is(err, geometry.ErrInvalidPolygon) {
		t.Errorf("Expected ErrInvalidPolygon, got %v", err)
	}
}
