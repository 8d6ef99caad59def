package mot

import (
	"image"
	"math"
)

type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// Point is a real-valued pixel position. Both raw per-frame detections and tracked positions use it.
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

// ImagePoint rounds point to the nearest pixel
func (p Point) ImagePoint() image.Point {
	return image.Point{
		X: int(math.Round(p.X)),
		Y: int(math.Round(p.Y)),
	}
}

func (p Point) isFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// RotatedRect is a minimal-area bounding rectangle.
// Angle is the rotation of the Width side in degrees, measured from the image X axis.
type RotatedRect struct {
	Center Point
	Width  float64
	Height float64
	Angle  float64
}

// Corners returns the four rectangle corners in traversal order
func (r RotatedRect) Corners() [4]Point {
	rad := r.Angle * math.Pi / 180.0
	ux, uy := math.Cos(rad), math.Sin(rad)
	vx, vy := -uy, ux
	hw, hh := r.Width/2.0, r.Height/2.0
	return [4]Point{
		{X: r.Center.X - ux*hw - vx*hh, Y: r.Center.Y - uy*hw - vy*hh},
		{X: r.Center.X + ux*hw - vx*hh, Y: r.Center.Y + uy*hw - vy*hh},
		{X: r.Center.X + ux*hw + vx*hh, Y: r.Center.Y + uy*hw + vy*hh},
		{X: r.Center.X - ux*hw + vx*hh, Y: r.Center.Y - uy*hw + vy*hh},
	}
}

// NormalizedAngle returns Angle folded into [-45, 45)
func (r RotatedRect) NormalizedAngle() float64 {
	return normalizeAngle(r.Angle)
}

func normalizeAngle(angle float64) float64 {
	a := math.Mod(angle+45.0, 90.0)
	if a < 0 {
		a += 90.0
	}
	return a - 45.0
}

// Ellipse is a best-fit ellipse. Axes are full lengths, MajorAxis >= MinorAxis.
type Ellipse struct {
	Center    Point
	MajorAxis float64
	MinorAxis float64
	Angle     float64
}

// Ellipticity returns minor/major axis ratio (1 for a circle)
func (e Ellipse) Ellipticity() float64 {
	if e.MajorAxis <= 0 {
		return 1.0
	}
	return e.MinorAxis / e.MajorAxis
}

// Circle is used for minimum enclosing circles
type Circle struct {
	Center Point
	Radius float64
}

func (c Circle) contains(p Point) bool {
	return euclideanDistance(c.Center, p) <= c.Radius*(1+1e-9)+1e-9
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(float64(p1.X-p2.X), 2) + math.Pow(float64(p1.Y-p2.Y), 2))
}

func squaredDistance(p1, p2 Point) float64 {
	dx := p1.X - p2.X
	dy := p1.Y - p2.Y
	return dx*dx + dy*dy
}

// cross computes the cross product of vectors OA and OB
func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
