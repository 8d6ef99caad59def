package mot

import (
	"image"
	"testing"

	"github.com/pkg/errors"
)

func squareRegion(t *testing.T) RegionOfInterest {
	t.Helper()
	roi, err := NewRegionOfInterest([]image.Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}})
	if err != nil {
		t.Fatal(err)
	}
	return roi
}

func TestNewRegionOfInterest(t *testing.T) {
	if _, err := NewRegionOfInterest([]image.Point{{0, 0}, {10, 10}}); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Two vertices must be rejected, got %v", err)
	}
	if _, err := NewRegionOfInterest([]image.Point{{0, 0}, {10, 10}, {20, 20}}); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Collinear vertices must be rejected, got %v", err)
	}
	src := []image.Point{{0, 0}, {100, 0}, {100, 100}}
	roi, err := NewRegionOfInterest(src)
	if err != nil {
		t.Fatal(err)
	}
	src[0] = image.Pt(50, 50)
	if roi.Vertices()[0] != image.Pt(0, 0) {
		t.Errorf("Region must copy vertices")
	}
}

func TestRegionContains(t *testing.T) {
	roi := squareRegion(t)
	if !roi.Contains(Point{X: 50, Y: 50}) {
		t.Errorf("Center must be inside")
	}
	if roi.Contains(Point{X: 150, Y: 50}) {
		t.Errorf("Point to the right must be outside")
	}
	if roi.Bounds() != image.Rect(0, 0, 101, 101) {
		t.Errorf("Wrong bounds: %v", roi.Bounds())
	}
}

func TestRegionOffset(t *testing.T) {
	roi := squareRegion(t)
	grown, err := roi.Offset(10)
	if err != nil {
		t.Fatal(err)
	}
	if !grown.Contains(Point{X: -5, Y: 50}) {
		t.Errorf("Grown region must contain point near the old edge")
	}
	if grown.Contains(Point{X: -15, Y: 50}) {
		t.Errorf("Grown region must not contain point beyond the margin")
	}
	shrunk, err := roi.Offset(-10)
	if err != nil {
		t.Fatal(err)
	}
	if shrunk.Contains(Point{X: 5, Y: 50}) {
		t.Errorf("Shrunk region must not contain point near the old edge")
	}
	if !shrunk.Contains(Point{X: 50, Y: 50}) {
		t.Errorf("Shrunk region must contain the center")
	}
	if _, err := roi.Offset(-60); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Collapsed region must be rejected, got %v", err)
	}
	same, err := roi.Offset(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(same.Vertices()) != 4 {
		t.Errorf("Zero offset must keep region")
	}
}
