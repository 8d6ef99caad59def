package mot

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidConfig is returned by constructors when parameters are out of range
var ErrInvalidConfig = errors.New("invalid configuration")

// CenterEstimator reduces one contour to one representative coordinate.
// Implementations must be safe for concurrent use.
type CenterEstimator interface {
	EstimateCenter(contour Contour) (Point, error)
}

// Method is the geometric method which produced the coordinate
type Method uint16

const (
	// MethodQuadTop averages two top vertices of a 4-vertex polygon approximation
	MethodQuadTop Method = iota
	// MethodRectTop averages two top corners of the minimal bounding rectangle
	MethodRectTop
	// MethodLineFit uses left/right line fits over the top band of points
	MethodLineFit
	// MethodSimpleTop is median x and mean y of the top percentage of points. It never fails.
	MethodSimpleTop
	// MethodEllipse is the center of the best-fit ellipse
	MethodEllipse
	// MethodCentroid is the area centroid
	MethodCentroid
	// MethodEnclosingCircle is the center of the minimum enclosing circle
	MethodEnclosingCircle
	// MethodMean is the arithmetic mean of points
	MethodMean
)

func (m Method) String() string {
	switch m {
	case MethodQuadTop:
		return "quad_top"
	case MethodRectTop:
		return "rect_top"
	case MethodLineFit:
		return "line_fit"
	case MethodSimpleTop:
		return "simple_top"
	case MethodEllipse:
		return "ellipse"
	case MethodCentroid:
		return "centroid"
	case MethodEnclosingCircle:
		return "enclosing_circle"
	case MethodMean:
		return "mean"
	default:
		return "unknown"
	}
}

// ShapeClass is the result of contour classification
type ShapeClass uint16

const (
	// ShapeTiny has fewer than 3 points, only the universal fallback applies
	ShapeTiny ShapeClass = iota
	// ShapeOccluded has completeness below threshold, estimation runs on the convex hull
	ShapeOccluded
	// ShapeSquare is complete and its bounding rectangle is rotated less than angle threshold
	ShapeSquare
	// ShapeParallelogram is complete and rotated (or sheared) beyond angle threshold
	ShapeParallelogram
)

func (s ShapeClass) String() string {
	switch s {
	case ShapeTiny:
		return "tiny"
	case ShapeOccluded:
		return "occluded"
	case ShapeSquare:
		return "square"
	case ShapeParallelogram:
		return "parallelogram"
	default:
		return "unknown"
	}
}

// EstimatorConfig holds top-edge estimator parameters
type EstimatorConfig struct {
	// Area/hull area ratio below which shape is treated as occluded. Default 0.85
	CompletenessThreshold float64
	// Max absolute normalized rectangle angle (degrees) for square-like shapes. Default 15
	AngleThreshold float64
	// Share of points (by smallest y) used by top-band methods. Default 0.3
	TopPercentage float64
	// Douglas-Peucker epsilon as a fraction of arc length. Default 0.02
	EpsilonFactor float64
	// Min points on each side for line fitting. Default 5
	LineFitMinPoints int
	// Offset added to min y when line-fit result is synthesized. Default 2
	TopBandOffset float64
}

// DefaultEstimatorConfig returns default top-edge estimator parameters
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		CompletenessThreshold: 0.85,
		AngleThreshold:        15.0,
		TopPercentage:         0.3,
		EpsilonFactor:         0.02,
		LineFitMinPoints:      5,
		TopBandOffset:         2.0,
	}
}

// Validate checks parameter ranges
func (cfg EstimatorConfig) Validate() error {
	if cfg.CompletenessThreshold < 0 || cfg.CompletenessThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "completeness threshold must be in [0, 1], got %f", cfg.CompletenessThreshold)
	}
	if cfg.AngleThreshold < 0 || cfg.AngleThreshold > 45 {
		return errors.Wrapf(ErrInvalidConfig, "angle threshold must be in [0, 45], got %f", cfg.AngleThreshold)
	}
	if cfg.TopPercentage <= 0 || cfg.TopPercentage > 1 {
		return errors.Wrapf(ErrInvalidConfig, "top percentage must be in (0, 1], got %f", cfg.TopPercentage)
	}
	if cfg.EpsilonFactor <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "epsilon factor must be positive, got %f", cfg.EpsilonFactor)
	}
	if cfg.LineFitMinPoints < 2 {
		return errors.Wrapf(ErrInvalidConfig, "line fit needs 2 points per side at least, got %d", cfg.LineFitMinPoints)
	}
	return nil
}

// TopEdgeEstimator returns the top edge midpoint of rectangular markers.
// Markers are affixed with a known top-reference orientation, so the top edge is the stable reference.
type TopEdgeEstimator struct {
	cfg EstimatorConfig
}

// NewTopEdgeEstimatorDefault creates estimator with default parameters
func NewTopEdgeEstimatorDefault() *TopEdgeEstimator {
	return &TopEdgeEstimator{
		cfg: DefaultEstimatorConfig(),
	}
}

// NewTopEdgeEstimator creates estimator with given parameters
func NewTopEdgeEstimator(cfg EstimatorConfig) (*TopEdgeEstimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "can't create top edge estimator")
	}
	return &TopEdgeEstimator{
		cfg: cfg,
	}, nil
}

// Config returns estimator parameters
func (est *TopEdgeEstimator) Config() EstimatorConfig {
	return est.cfg
}

// Classify decides which branch of the method chain applies to contour
func (est *TopEdgeEstimator) Classify(contour Contour) ShapeClass {
	if contour.Len() < 3 {
		return ShapeTiny
	}
	if contour.Completeness() < est.cfg.CompletenessThreshold {
		return ShapeOccluded
	}
	if math.Abs(contour.MinAreaRect().NormalizedAngle()) < est.cfg.AngleThreshold {
		return ShapeSquare
	}
	return ShapeParallelogram
}

// EstimateCenter returns top edge midpoint of contour.
// The only error is ErrDegenerateShape for a contour without points.
func (est *TopEdgeEstimator) EstimateCenter(contour Contour) (Point, error) {
	pt, _, err := est.EstimateCenterWithMethod(contour)
	return pt, err
}

// EstimateCenterWithMethod is EstimateCenter which also reports the method used
func (est *TopEdgeEstimator) EstimateCenterWithMethod(contour Contour) (Point, Method, error) {
	if contour.Len() == 0 {
		return Point{}, MethodSimpleTop, ErrDegenerateShape
	}
	points := contour.floatPoints()
	var chain []centerStage
	switch est.Classify(contour) {
	case ShapeTiny:
		chain = []centerStage{est.simpleTopStage()}
	case ShapeOccluded:
		// Hull reconstruction restores the outline hidden by the occluder
		points = contour.ConvexHull()
		chain = []centerStage{est.simpleTopStage()}
	case ShapeSquare:
		chain = []centerStage{est.quadTopStage(), rectTopStage(), est.simpleTopStage()}
	default:
		chain = []centerStage{est.quadTopStage(), est.lineFitStage(), est.simpleTopStage()}
	}
	pt, method := runChain(chain, points)
	return pt, method, nil
}

// centerStage is one method of the fallback chain.
// estimate reports false when its preconditions do not hold for the points given.
type centerStage struct {
	method   Method
	estimate func(points []Point) (Point, bool)
}

// runChain evaluates stages in order and returns the first finite result.
// The last stage of every chain is simpleTop, which succeeds for any non-empty input.
func runChain(chain []centerStage, points []Point) (Point, Method) {
	for _, stage := range chain {
		pt, ok := stage.estimate(points)
		if ok && pt.isFinite() {
			return pt, stage.method
		}
	}
	// Unreachable for non-empty input
	return meanPoint(points), MethodMean
}

func (est *TopEdgeEstimator) quadTopStage() centerStage {
	return centerStage{
		method: MethodQuadTop,
		estimate: func(points []Point) (Point, bool) {
			if len(points) < 4 {
				return Point{}, false
			}
			approx := approxPolyClosed(points, est.cfg.EpsilonFactor*arcLength(points))
			if len(approx) != 4 {
				return Point{}, false
			}
			return midpointOfTopTwo(approx), true
		},
	}
}

func rectTopStage() centerStage {
	return centerStage{
		method: MethodRectTop,
		estimate: func(points []Point) (Point, bool) {
			if len(points) < 3 {
				return Point{}, false
			}
			corners := minAreaRect(points).Corners()
			return midpointOfTopTwo(corners[:]), true
		},
	}
}

func (est *TopEdgeEstimator) lineFitStage() centerStage {
	return centerStage{
		method: MethodLineFit,
		estimate: func(points []Point) (Point, bool) {
			return est.lineFitTop(points)
		},
	}
}

func (est *TopEdgeEstimator) simpleTopStage() centerStage {
	return centerStage{
		method: MethodSimpleTop,
		estimate: func(points []Point) (Point, bool) {
			if len(points) == 0 {
				return Point{}, false
			}
			return simpleTopCenter(points, est.cfg.TopPercentage), true
		},
	}
}

// lineFitTop splits points at the horizontal middle and fits y = a + b*x on both halves
func (est *TopEdgeEstimator) lineFitTop(points []Point) (Point, bool) {
	bbox := boundingRect(points)
	midX := bbox.X + bbox.Width/2.0
	leftX, leftY := make([]float64, 0, len(points)), make([]float64, 0, len(points))
	rightX, rightY := make([]float64, 0, len(points)), make([]float64, 0, len(points))
	for _, p := range points {
		if p.X <= midX {
			leftX = append(leftX, p.X)
			leftY = append(leftY, p.Y)
		} else {
			rightX = append(rightX, p.X)
			rightY = append(rightY, p.Y)
		}
	}
	if len(leftX) < est.cfg.LineFitMinPoints || len(rightX) < est.cfg.LineFitMinPoints {
		return Point{}, false
	}
	leftAlpha, leftBeta := stat.LinearRegression(leftX, leftY, nil, false)
	rightAlpha, rightBeta := stat.LinearRegression(rightX, rightY, nil, false)

	topCount := maxInt(1, int(float64(len(points))*est.cfg.TopPercentage))
	if topCount >= 3 {
		if !allFinite(leftAlpha, leftBeta, rightAlpha, rightBeta) {
			return Point{}, false
		}
		return medianXMeanY(topByY(points, topCount)), true
	}

	quarterX := bbox.X + bbox.Width*0.25
	threeQuarterX := bbox.X + bbox.Width*0.75
	leftAt := leftAlpha + leftBeta*quarterX
	rightAt := rightAlpha + rightBeta*threeQuarterX
	if !allFinite(leftAt, rightAt) {
		return Point{}, false
	}
	left := Point{X: quarterX, Y: leftAt}
	right := Point{X: threeQuarterX, Y: rightAt}
	return Point{
		X: (left.X + right.X) / 2.0,
		Y: bbox.Y + est.cfg.TopBandOffset,
	}, true
}

// simpleTopCenter is the universal fallback: median x and mean y of the top share of points
func simpleTopCenter(points []Point, topPercentage float64) Point {
	topCount := maxInt(1, int(float64(len(points))*topPercentage))
	return medianXMeanY(topByY(points, topCount))
}

func medianXMeanY(points []Point) Point {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return Point{
		X: median(xs),
		Y: stat.Mean(ys, nil),
	}
}

func midpointOfTopTwo(points []Point) Point {
	top := topByY(points, 2)
	if len(top) == 1 {
		return top[0]
	}
	return Point{
		X: (top[0].X + top[1].X) / 2.0,
		Y: (top[0].Y + top[1].Y) / 2.0,
	}
}

func allFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CentroidEstimator picks ellipse center, area centroid or enclosing circle center depending on
// completeness and ellipticity. It suits round markers where the top edge is undefined.
type CentroidEstimator struct {
	// Default 0.85
	completenessThreshold float64
	// Ellipse center is used below this minor/major ratio. Default 0.8
	ellipticityThreshold float64
}

// NewCentroidEstimatorDefault creates estimator with default parameters
func NewCentroidEstimatorDefault() *CentroidEstimator {
	return &CentroidEstimator{
		completenessThreshold: 0.85,
		ellipticityThreshold:  0.8,
	}
}

// NewCentroidEstimator creates estimator with given parameters
func NewCentroidEstimator(completenessThreshold, ellipticityThreshold float64) (*CentroidEstimator, error) {
	if completenessThreshold < 0 || completenessThreshold > 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "completeness threshold must be in [0, 1], got %f", completenessThreshold)
	}
	if ellipticityThreshold <= 0 || ellipticityThreshold > 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "ellipticity threshold must be in (0, 1], got %f", ellipticityThreshold)
	}
	return &CentroidEstimator{
		completenessThreshold: completenessThreshold,
		ellipticityThreshold:  ellipticityThreshold,
	}, nil
}

// EstimateCenter returns center of contour
func (est *CentroidEstimator) EstimateCenter(contour Contour) (Point, error) {
	pt, _, err := est.EstimateCenterWithMethod(contour)
	return pt, err
}

// EstimateCenterWithMethod is EstimateCenter which also reports the method used
func (est *CentroidEstimator) EstimateCenterWithMethod(contour Contour) (Point, Method, error) {
	if contour.Len() == 0 {
		return Point{}, MethodMean, ErrDegenerateShape
	}
	points := contour.floatPoints()
	if len(points) < 5 {
		return meanPoint(points), MethodMean, nil
	}
	if contour.Completeness() > est.completenessThreshold {
		if ellipse, err := fitEllipse(points); err == nil && ellipse.Ellipticity() < est.ellipticityThreshold && ellipse.Center.isFinite() {
			return ellipse.Center, MethodEllipse, nil
		}
		if c := centroid(points); c.isFinite() {
			return c, MethodCentroid, nil
		}
		return meanPoint(points), MethodMean, nil
	}
	circle := minEnclosingCircle(points)
	if !circle.Center.isFinite() {
		return meanPoint(points), MethodMean, nil
	}
	return circle.Center, MethodEnclosingCircle, nil
}
