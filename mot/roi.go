package mot

import (
	"image"

	clipper "github.com/ctessum/go.clipper"
	"github.com/pkg/errors"
)

// ErrInvalidRegion is returned when region polygon has fewer than 3 vertices or no area
var ErrInvalidRegion = errors.New("invalid region of interest")

// RegionOfInterest is an immutable polygon limiting where markers are searched for
type RegionOfInterest struct {
	vertices []image.Point
}

// NewRegionOfInterest creates region from polygon vertices. Vertices are copied.
func NewRegionOfInterest(vertices []image.Point) (RegionOfInterest, error) {
	if len(vertices) < 3 {
		return RegionOfInterest{}, errors.Wrapf(ErrInvalidRegion, "need 3 vertices at least, got %d", len(vertices))
	}
	cp := make([]image.Point, len(vertices))
	copy(cp, vertices)
	pts := make([]Point, len(cp))
	for i := range cp {
		pts[i] = NewPointFrom(cp[i])
	}
	if polygonArea(pts) == 0 {
		return RegionOfInterest{}, errors.Wrap(ErrInvalidRegion, "polygon has zero area")
	}
	return RegionOfInterest{
		vertices: cp,
	}, nil
}

// Vertices returns copy of polygon vertices
func (roi RegionOfInterest) Vertices() []image.Point {
	cp := make([]image.Point, len(roi.vertices))
	copy(cp, roi.vertices)
	return cp
}

// IsZero reports whether region was never initialized
func (roi RegionOfInterest) IsZero() bool {
	return len(roi.vertices) == 0
}

// Bounds returns axis-aligned bounding box of polygon. Max is exclusive.
func (roi RegionOfInterest) Bounds() image.Rectangle {
	if len(roi.vertices) == 0 {
		return image.Rectangle{}
	}
	rect := image.Rectangle{Min: roi.vertices[0], Max: roi.vertices[0]}
	for _, v := range roi.vertices[1:] {
		if v.X < rect.Min.X {
			rect.Min.X = v.X
		}
		if v.Y < rect.Min.Y {
			rect.Min.Y = v.Y
		}
		if v.X > rect.Max.X {
			rect.Max.X = v.X
		}
		if v.Y > rect.Max.Y {
			rect.Max.Y = v.Y
		}
	}
	rect.Max = rect.Max.Add(image.Pt(1, 1))
	return rect
}

// Contains reports whether point lies inside polygon (ray casting, boundary not guaranteed)
func (roi RegionOfInterest) Contains(p Point) bool {
	n := len(roi.vertices)
	if n < 3 {
		return false
	}
	inside := false
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := NewPointFrom(roi.vertices[i]), NewPointFrom(roi.vertices[j])
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// Offset grows (positive delta) or shrinks (negative delta) polygon by delta pixels with rounded joins.
// Zero delta returns the region itself.
func (roi RegionOfInterest) Offset(delta float64) (RegionOfInterest, error) {
	if delta == 0 {
		return roi, nil
	}
	var path clipper.Path
	for _, v := range roi.vertices {
		path = append(path, &clipper.IntPoint{X: clipper.CInt(v.X), Y: clipper.CInt(v.Y)})
	}
	co := clipper.NewClipperOffset()
	co.AddPath(path, clipper.JtRound, clipper.EtClosedPolygon)
	solution := co.Execute(delta)

	// Shrinking may split polygon, the largest part is kept
	var best []image.Point
	bestArea := 0.0
	for _, sol := range solution {
		vertices := make([]image.Point, 0, len(sol))
		pts := make([]Point, 0, len(sol))
		for _, pt := range sol {
			v := image.Point{X: int(pt.X), Y: int(pt.Y)}
			vertices = append(vertices, v)
			pts = append(pts, NewPointFrom(v))
		}
		if area := polygonArea(pts); area > bestArea {
			bestArea = area
			best = vertices
		}
	}
	if len(best) < 3 {
		return RegionOfInterest{}, errors.Wrapf(ErrInvalidRegion, "offset by %f collapses polygon", delta)
	}
	return NewRegionOfInterest(best)
}
