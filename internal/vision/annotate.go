package vision

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var markerColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Label placement relative to the marker point
var labelOffset = image.Pt(10, -10)

// Annotate draws a dot and the 1-based identity next to every point
func Annotate(img *gocv.Mat, points []mot.Point) {
	for i, p := range points {
		// Truncation matches pixel indexing of the point itself
		pt := image.Pt(int(p.X), int(p.Y))
		gocv.Circle(img, pt, 2, markerColor, -1)
		gocv.PutText(img, strconv.Itoa(i+1), pt.Add(labelOffset), gocv.FontHersheySimplex, 3, markerColor, 2)
	}
}

// SaveAnnotated reads src, draws points and writes result to dst
func SaveAnnotated(src, dst string, points []mot.Point) error {
	img := gocv.IMRead(src, gocv.IMReadColor)
	if img.Empty() {
		return errors.Errorf("can't read image %s", src)
	}
	defer img.Close()
	Annotate(&img, points)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "can't create directory for %s", dst)
	}
	if ok := gocv.IMWrite(dst, img); !ok {
		return errors.Errorf("can't write image %s", dst)
	}
	return nil
}
