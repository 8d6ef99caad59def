package vision

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/LdDl/marker-tracker/mot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func region(t *testing.T, x0, y0, x1, y1 int) mot.RegionOfInterest {
	t.Helper()
	roi, err := mot.NewRegionOfInterest([]image.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
	require.NoError(t, err)
	return roi
}

// blueSquareImage is a black 100x100 image with a pure blue square, which is inside default HSV marker range
func blueSquareImage() gocv.Mat {
	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, image.Rect(20, 20, 40, 40), color.RGBA{R: 0, G: 0, B: 255, A: 0}, -1)
	return img
}

var (
	lowerHSV = [3]float64{70, 70, 70}
	upperHSV = [3]float64{140, 255, 255}
)

func TestDetect(t *testing.T) {
	img := blueSquareImage()
	defer img.Close()

	detector, err := NewDetector(region(t, 0, 0, 99, 99), lowerHSV, upperHSV, 0)
	require.NoError(t, err)
	contours, err := detector.Detect(img)
	require.NoError(t, err)
	require.Len(t, contours, 1)
	bbox := contours[0].BoundingRect()
	assert.InDelta(t, 20, bbox.X, 1)
	assert.InDelta(t, 20, bbox.Y, 1)
	assert.Greater(t, contours[0].Area(), 300.0)
}

func TestDetectOutsideRegion(t *testing.T) {
	img := blueSquareImage()
	defer img.Close()

	detector, err := NewDetector(region(t, 60, 60, 99, 99), lowerHSV, upperHSV, 0)
	require.NoError(t, err)
	contours, err := detector.Detect(img)
	require.NoError(t, err)
	assert.Empty(t, contours)
}

func TestNewDetectorMargin(t *testing.T) {
	detector, err := NewDetector(region(t, 10, 10, 90, 90), lowerHSV, upperHSV, 5)
	require.NoError(t, err)
	assert.True(t, detector.Region().Contains(mot.Point{X: 7, Y: 7}))

	_, err = NewDetector(region(t, 10, 10, 20, 20), lowerHSV, upperHSV, -20)
	assert.Error(t, err)
	_, err = NewDetector(mot.RegionOfInterest{}, lowerHSV, upperHSV, 0)
	assert.Error(t, err)
}

func TestSaveAnnotated(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	img := blueSquareImage()
	defer img.Close()
	require.True(t, gocv.IMWrite(src, img))

	dst := filepath.Join(dir, "out", "img", "src.png")
	require.NoError(t, SaveAnnotated(src, dst, []mot.Point{{X: 30, Y: 20}}))
	assert.FileExists(t, dst)

	assert.Error(t, SaveAnnotated(filepath.Join(dir, "missing.png"), dst, nil))
}
