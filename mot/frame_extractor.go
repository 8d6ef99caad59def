package mot

import (
	"github.com/pkg/errors"
)

// FrameExtractor turns contour set of one image into unordered set of candidate coordinates
type FrameExtractor struct {
	// Contours with area below this value are noise. Default 50 px^2
	MinArea float64
	// Estimator applied to every surviving contour. TopEdgeEstimator with defaults when nil
	Estimator CenterEstimator
}

// ExtractStats describes what happened to contours of one frame
type ExtractStats struct {
	Total      int
	SmallArea  int
	Degenerate int
	Accepted   int
}

// NewFrameExtractorDefault creates extractor with min area 50 and default top-edge estimator
func NewFrameExtractorDefault() *FrameExtractor {
	return &FrameExtractor{
		MinArea:   50.0,
		Estimator: NewTopEdgeEstimatorDefault(),
	}
}

// NewFrameExtractor creates extractor with given parameters
func NewFrameExtractor(minArea float64, estimator CenterEstimator) (*FrameExtractor, error) {
	if minArea < 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "min area must be non-negative, got %f", minArea)
	}
	if estimator == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "estimator is nil")
	}
	return &FrameExtractor{
		MinArea:   minArea,
		Estimator: estimator,
	}, nil
}

// Extract returns one coordinate per contour which passes area filter.
// Empty result is a normal condition meaning no markers were found.
func (fe *FrameExtractor) Extract(contours []Contour) []Point {
	centers, _ := fe.ExtractWithStats(contours)
	return centers
}

// ExtractWithStats is Extract which also reports filtering counters
func (fe *FrameExtractor) ExtractWithStats(contours []Contour) ([]Point, ExtractStats) {
	estimator := fe.Estimator
	if estimator == nil {
		estimator = NewTopEdgeEstimatorDefault()
	}
	stats := ExtractStats{
		Total: len(contours),
	}
	centers := make([]Point, 0, len(contours))
	for _, contour := range contours {
		if contour.Area() < fe.MinArea {
			stats.SmallArea++
			continue
		}
		center, err := estimator.EstimateCenter(contour)
		if err != nil {
			// Only ErrDegenerateShape is expected here. Any estimator error means the contour is unusable.
			stats.Degenerate++
			continue
		}
		centers = append(centers, center)
	}
	stats.Accepted = len(centers)
	return centers, stats
}
