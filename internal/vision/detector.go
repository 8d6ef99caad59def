// Package vision produces marker contours from camera images and draws resolved markers back.
package vision

import (
	"image"
	"image/color"

	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Detector thresholds marker color inside the region of interest and extracts external contours
type Detector struct {
	roi   mot.RegionOfInterest
	lower gocv.Scalar
	upper gocv.Scalar
}

// NewDetector creates detector. Region is grown (or shrunk for negative margin) by margin pixels.
func NewDetector(roi mot.RegionOfInterest, lowerHSV, upperHSV [3]float64, margin float64) (*Detector, error) {
	if roi.IsZero() {
		return nil, errors.Wrap(mot.ErrInvalidRegion, "can't create detector")
	}
	masked, err := roi.Offset(margin)
	if err != nil {
		return nil, errors.Wrapf(err, "can't apply margin %f to region", margin)
	}
	return &Detector{
		roi:   masked,
		lower: gocv.NewScalar(lowerHSV[0], lowerHSV[1], lowerHSV[2], 0),
		upper: gocv.NewScalar(upperHSV[0], upperHSV[1], upperHSV[2], 0),
	}, nil
}

// Region returns the (margin adjusted) region used for masking
func (d *Detector) Region() mot.RegionOfInterest {
	return d.roi
}

// DetectFile reads image at path and returns marker contours
func (d *Detector) DetectFile(path string) ([]mot.Contour, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return nil, errors.Errorf("can't read image %s", path)
	}
	defer img.Close()
	return d.Detect(img)
}

// Detect returns external contours of marker colored areas inside the region
func (d *Detector) Detect(img gocv.Mat) ([]mot.Contour, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	colorMask := gocv.NewMat()
	defer colorMask.Close()
	gocv.InRangeWithScalar(hsv, d.lower, d.upper, &colorMask)

	regionMask := gocv.Zeros(colorMask.Rows(), colorMask.Cols(), gocv.MatTypeCV8UC1)
	defer regionMask.Close()
	polygon := gocv.NewPointsVectorFromPoints([][]image.Point{d.roi.Vertices()})
	defer polygon.Close()
	gocv.FillPoly(&regionMask, polygon, color.RGBA{R: 255, G: 255, B: 255, A: 0})

	combined := gocv.NewMat()
	defer combined.Close()
	gocv.BitwiseAnd(colorMask, regionMask, &combined)

	found := gocv.FindContours(combined, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer found.Close()

	contours := make([]mot.Contour, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		contours = append(contours, mot.NewContour(found.At(i).ToPoints()))
	}
	return contours, nil
}
