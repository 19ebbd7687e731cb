// Package geometry converts document-space figure polygons into pixel
// rectangles at a target render resolution. All functions are pure.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// PointsPerUnit is the PDF point density of one document unit (inch).
const PointsPerUnit = 72.0

var ErrInvalidPolygon = errors.New("polygon must contain four points")

// Point is a 2-D coordinate in document units (inches).
type Point struct {
	X float64
	Y float64
}

// Normalize converts a flat coordinate list [x1,y1,...,x4,y4] into four
// points. Layout providers emit figure polygons in this flat form.
func Normalize(vals []float64) ([]Point, error) {
	if len(vals) != 8 {
		return nil, fmt.Errorf("%w: got %d coordinates", ErrInvalidPolygon, len(vals))
	}
	points := make([]Point, 4)
	for i := range points {
		points[i] = Point{X: vals[2*i], Y: vals[2*i+1]}
	}
	return points, nil
}

// NormalizePoints validates the explicit four-point polygon form.
func NormalizePoints(points []Point) ([]Point, error) {
	if len(points) != 4 {
		return nil, fmt.Errorf("%w: got %d points", ErrInvalidPolygon, len(points))
	}
	return points, nil
}

// PixelRect maps a four-point polygon to its axis-aligned bounding
// rectangle in page pixel space at the given DPI. Each coordinate is
// scaled to PDF points first, then by dpi/72 to reach pixels. The
// polygon may be a true quadrilateral; only its bounding box is kept,
// rounded outward so no figure content is clipped.
func PixelRect(points []Point, dpi float64) (image.Rectangle, error) {
	if len(points) != 4 {
		return image.Rectangle{}, fmt.Errorf("%w: got %d points", ErrInvalidPolygon, len(points))
	}

	zoom := dpi / PointsPerUnit
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		x := p.X * PointsPerUnit * zoom
		y := p.Y * PointsPerUnit * zoom
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}

	return image.Rect(
		int(math.Floor(minX)),
		int(math.Floor(minY)),
		int(math.Ceil(maxX)),
		int(math.Ceil(maxY)),
	), nil
}
