package mot

import (
	"image"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDegenerateShape is returned when a contour has no points at all
	ErrDegenerateShape = errors.New("degenerate shape: contour has no points")

	errEllipseFit = errors.New("can't fit ellipse")
)

// Contour is an ordered closed boundary of one detected shape.
// Contours are immutable: NewContour copies its input and Points returns a copy.
type Contour struct {
	points []image.Point
}

// NewContour creates contour from boundary points
func NewContour(points []image.Point) Contour {
	cp := make([]image.Point, len(points))
	copy(cp, points)
	return Contour{points: cp}
}

// Len returns number of boundary points
func (c Contour) Len() int {
	return len(c.points)
}

// Points returns copy of boundary points
func (c Contour) Points() []image.Point {
	cp := make([]image.Point, len(c.points))
	copy(cp, c.points)
	return cp
}

func (c Contour) floatPoints() []Point {
	pts := make([]Point, len(c.points))
	for i, p := range c.points {
		pts[i] = NewPointFrom(p)
	}
	return pts
}

// Area returns enclosed area (orientation independent)
func (c Contour) Area() float64 {
	return polygonArea(c.floatPoints())
}

// ConvexHull returns hull vertices in counter-clockwise order (image coordinates)
func (c Contour) ConvexHull() []Point {
	return convexHull(c.floatPoints())
}

// HullArea returns area of the convex hull
func (c Contour) HullArea() float64 {
	return polygonArea(c.ConvexHull())
}

// Completeness returns Area/HullArea in [0, 1]. It is 0 when hull area is 0.
// Partially occluded or broken shapes have low completeness.
func (c Contour) Completeness() float64 {
	hullArea := c.HullArea()
	if hullArea <= 0 {
		return 0
	}
	return minFloat64(c.Area()/hullArea, 1.0)
}

// MinAreaRect returns minimal bounding rotated rectangle
func (c Contour) MinAreaRect() RotatedRect {
	return minAreaRect(c.floatPoints())
}

// ArcLength returns perimeter of the closed contour
func (c Contour) ArcLength() float64 {
	return arcLength(c.floatPoints())
}

// ApproxPoly simplifies closed contour with Douglas-Peucker algorithm
func (c Contour) ApproxPoly(epsilon float64) []Point {
	return approxPolyClosed(c.floatPoints(), epsilon)
}

// BoundingRect returns axis-aligned bounding box
func (c Contour) BoundingRect() Rectangle {
	return boundingRect(c.floatPoints())
}

// Centroid returns center of mass of the enclosed area.
// Mean of points is used when area is zero (lines, single points).
func (c Contour) Centroid() Point {
	return centroid(c.floatPoints())
}

// FitEllipse fits ellipse by second order area moments. Needs 5 points at least.
func (c Contour) FitEllipse() (Ellipse, error) {
	return fitEllipse(c.floatPoints())
}

// MinEnclosingCircle returns the smallest circle containing every contour point
func (c Contour) MinEnclosingCircle() Circle {
	return minEnclosingCircle(c.floatPoints())
}

func polygonArea(pts []Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2.0
}

// convexHull is Andrew's monotone chain. Duplicates and collinear points are dropped.
func convexHull(points []Point) []Point {
	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	uniq := pts[:0]
	for i, p := range pts {
		if i > 0 && p == uniq[len(uniq)-1] {
			continue
		}
		uniq = append(uniq, p)
	}
	pts = uniq
	if len(pts) < 3 {
		return copyPoints(pts)
	}

	hull := make([]Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRect uses rotating calipers over the hull edges
func minAreaRect(points []Point) RotatedRect {
	hull := convexHull(points)
	switch len(hull) {
	case 0:
		return RotatedRect{}
	case 1:
		return RotatedRect{Center: hull[0]}
	}
	best := RotatedRect{}
	bestArea := math.Inf(1)
	n := len(hull)
	for i := 0; i < n; i++ {
		a := hull[i]
		b := hull[(i+1)%n]
		length := math.Hypot(b.X-a.X, b.Y-a.Y)
		if length == 0 {
			continue
		}
		ux, uy := (b.X-a.X)/length, (b.Y-a.Y)/length
		vx, vy := -uy, ux
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			du := (p.X-a.X)*ux + (p.Y-a.Y)*uy
			dv := (p.X-a.X)*vx + (p.Y-a.Y)*vy
			minU, maxU = minFloat64(minU, du), maxFloat64(maxU, du)
			minV, maxV = minFloat64(minV, dv), maxFloat64(maxV, dv)
		}
		width := maxU - minU
		height := maxV - minV
		area := width * height
		if area < bestArea-1e-9 {
			cu := (minU + maxU) / 2.0
			cv := (minV + maxV) / 2.0
			best = RotatedRect{
				Center: Point{X: a.X + ux*cu + vx*cv, Y: a.Y + uy*cu + vy*cv},
				Width:  width,
				Height: height,
				Angle:  math.Atan2(uy, ux) * 180.0 / math.Pi,
			}
			bestArea = area
		}
	}
	return best
}

func arcLength(pts []Point) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i < n; i++ {
		total += euclideanDistance(pts[i], pts[(i+1)%n])
	}
	return total
}

// approxPolyClosed splits the closed curve at the point farthest from the first one
// and simplifies both halves.
func approxPolyClosed(pts []Point, epsilon float64) []Point {
	n := len(pts)
	if n < 3 {
		return copyPoints(pts)
	}
	far := 0
	maxDist := 0.0
	for i := 1; i < n; i++ {
		if d := squaredDistance(pts[0], pts[i]); d > maxDist {
			maxDist = d
			far = i
		}
	}
	if far == 0 {
		return []Point{pts[0]}
	}
	firstHalf := make([]Point, 0, far+1)
	firstHalf = append(firstHalf, pts[:far+1]...)
	secondHalf := make([]Point, 0, n-far+1)
	secondHalf = append(secondHalf, pts[far:]...)
	secondHalf = append(secondHalf, pts[0])

	first := douglasPeucker(firstHalf, epsilon)
	second := douglasPeucker(secondHalf, epsilon)
	result := make([]Point, 0, len(first)+len(second))
	result = append(result, first[:len(first)-1]...)
	result = append(result, second[:len(second)-1]...)
	return result
}

func douglasPeucker(pts []Point, epsilon float64) []Point {
	if len(pts) <= 2 {
		return copyPoints(pts)
	}
	start, end := pts[0], pts[len(pts)-1]
	index := 0
	maxDist := -1.0
	for i := 1; i < len(pts)-1; i++ {
		d := segmentDistance(pts[i], start, end)
		if d > maxDist {
			maxDist = d
			index = i
		}
	}
	if maxDist <= epsilon {
		return []Point{start, end}
	}
	left := douglasPeucker(pts[:index+1], epsilon)
	right := douglasPeucker(pts[index:], epsilon)
	return append(left[:len(left)-1], right...)
}

// segmentDistance is distance from p to the line through a and b (to a when a == b)
func segmentDistance(p, a, b Point) float64 {
	length := euclideanDistance(a, b)
	if length == 0 {
		return euclideanDistance(p, a)
	}
	return math.Abs(cross(a, b, p)) / length
}

func boundingRect(pts []Point) Rectangle {
	if len(pts) == 0 {
		return Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = minFloat64(minX, p.X), maxFloat64(maxX, p.X)
		minY, maxY = minFloat64(minY, p.Y), maxFloat64(maxY, p.Y)
	}
	return NewRect(minX, minY, maxX-minX, maxY-minY)
}

// polygonMoments are raw area moments of a simple polygon (Green's theorem)
type polygonMoments struct {
	m00, m10, m01, m20, m11, m02 float64
}

func computeMoments(pts []Point) polygonMoments {
	var m polygonMoments
	n := len(pts)
	if n < 3 {
		return m
	}
	for i := 0; i < n; i++ {
		p := pts[i]
		q := pts[(i+1)%n]
		c := p.X*q.Y - q.X*p.Y
		m.m00 += c
		m.m10 += (p.X + q.X) * c
		m.m01 += (p.Y + q.Y) * c
		m.m20 += (p.X*p.X + p.X*q.X + q.X*q.X) * c
		m.m02 += (p.Y*p.Y + p.Y*q.Y + q.Y*q.Y) * c
		m.m11 += (p.X*q.Y + 2*p.X*p.Y + 2*q.X*q.Y + q.X*p.Y) * c
	}
	m.m00 /= 2.0
	m.m10 /= 6.0
	m.m01 /= 6.0
	m.m20 /= 12.0
	m.m02 /= 12.0
	m.m11 /= 24.0
	if m.m00 < 0 {
		m = polygonMoments{m00: -m.m00, m10: -m.m10, m01: -m.m01, m20: -m.m20, m11: -m.m11, m02: -m.m02}
	}
	return m
}

func meanPoint(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	sumX, sumY := 0.0, 0.0
	for _, p := range pts {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(pts))
	return Point{X: sumX / n, Y: sumY / n}
}

func centroid(pts []Point) Point {
	m := computeMoments(pts)
	if m.m00 == 0 {
		return meanPoint(pts)
	}
	return Point{X: m.m10 / m.m00, Y: m.m01 / m.m00}
}

func fitEllipse(pts []Point) (Ellipse, error) {
	if len(pts) < 5 {
		return Ellipse{}, errors.Wrapf(errEllipseFit, "need 5 points at least, got %d", len(pts))
	}
	m := computeMoments(pts)
	if m.m00 <= 0 {
		return Ellipse{}, errors.Wrap(errEllipseFit, "zero area")
	}
	cx := m.m10 / m.m00
	cy := m.m01 / m.m00
	mu20 := m.m20/m.m00 - cx*cx
	mu02 := m.m02/m.m00 - cy*cy
	mu11 := m.m11/m.m00 - cx*cy

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(2, []float64{mu20, mu11, mu11, mu02}), true); !ok {
		return Ellipse{}, errors.Wrap(errEllipseFit, "eigen decomposition failed")
	}
	// Eigenvalues are in ascending order
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	if values[1] <= 0 {
		return Ellipse{}, errors.Wrap(errEllipseFit, "non-positive second moment")
	}
	// Filled ellipse with semi-axis a has central moment a^2/4 along that axis
	major := 4.0 * math.Sqrt(values[1])
	minor := 4.0 * math.Sqrt(maxFloat64(values[0], 0))
	angle := math.Atan2(vectors.At(1, 1), vectors.At(0, 1)) * 180.0 / math.Pi
	return Ellipse{
		Center:    Point{X: cx, Y: cy},
		MajorAxis: major,
		MinorAxis: minor,
		Angle:     angle,
	}, nil
}

// minEnclosingCircle is the incremental Welzl construction
func minEnclosingCircle(pts []Point) Circle {
	if len(pts) == 0 {
		return Circle{}
	}
	c := Circle{Center: pts[0]}
	for i := 1; i < len(pts); i++ {
		if c.contains(pts[i]) {
			continue
		}
		c = Circle{Center: pts[i]}
		for j := 0; j < i; j++ {
			if c.contains(pts[j]) {
				continue
			}
			c = circleFromTwo(pts[i], pts[j])
			for k := 0; k < j; k++ {
				if c.contains(pts[k]) {
					continue
				}
				c = circleFromThree(pts[i], pts[j], pts[k])
			}
		}
	}
	return c
}

func circleFromTwo(a, b Point) Circle {
	center := Point{X: (a.X + b.X) / 2.0, Y: (a.Y + b.Y) / 2.0}
	return Circle{Center: center, Radius: euclideanDistance(a, b) / 2.0}
}

func circleFromThree(a, b, c Point) Circle {
	d := 2.0 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-12 {
		// Collinear: the widest pair spans the others
		best := circleFromTwo(a, b)
		for _, candidate := range []Circle{circleFromTwo(a, c), circleFromTwo(b, c)} {
			if candidate.Radius > best.Radius {
				best = candidate
			}
		}
		return best
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	center := Point{
		X: (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d,
		Y: (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d,
	}
	return Circle{Center: center, Radius: euclideanDistance(center, a)}
}
