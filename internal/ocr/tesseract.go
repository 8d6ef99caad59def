// Package ocr reads the capture timestamp printed on the first image of a batch.
package ocr

import (
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// TimestampChars is the character set of printed timestamps
const TimestampChars = "0123456789-: "

// Below this share of white pixels the white text extraction is considered failed
const minWhiteRatio = 0.005

// TimestampReader recognizes timestamps in a fixed image region.
// It is safe for concurrent use: recognition calls are serialized.
type TimestampReader struct {
	mu     sync.Mutex
	client *gosseract.Client
	region image.Rectangle
}

// NewTimestampReader creates reader for region (x1, y1, x2, y2) of source images
func NewTimestampReader(region image.Rectangle, language string) (*TimestampReader, error) {
	if region.Empty() {
		return nil, errors.Errorf("empty OCR region %v", region)
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to set OCR language")
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to set PSM")
	}
	if err := client.SetWhitelist(TimestampChars); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to set whitelist")
	}
	return &TimestampReader{
		client: client,
		region: region,
	}, nil
}

// Close releases OCR resources
func (r *TimestampReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}

// ReadFile returns the 14-digit timestamp label printed on image at path
func (r *TimestampReader) ReadFile(path string) (string, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return "", errors.Errorf("can't read image %s", path)
	}
	defer img.Close()
	text, err := r.Recognize(img)
	if err != nil {
		return "", errors.Wrapf(err, "can't recognize %s", path)
	}
	return ParseTimestamp(text)
}

// Recognize returns raw text of the timestamp region of img
func (r *TimestampReader) Recognize(img gocv.Mat) (string, error) {
	bounds := r.region.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if bounds.Empty() {
		return "", errors.Errorf("OCR region %v is outside of %dx%d image", r.region, img.Cols(), img.Rows())
	}
	region := img.Region(bounds)
	defer region.Close()

	processed := preprocessForOCR(region)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode image")
	}
	defer buf.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return "", errors.New("timestamp reader is closed")
	}
	if err := r.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", errors.Wrap(err, "failed to set image")
	}
	text, err := r.client.Text()
	if err != nil {
		return "", errors.Wrap(err, "OCR failed")
	}
	return strings.TrimSpace(text), nil
}

// preprocessForOCR extracts white text as dark glyphs on light background, scaled 2x
func preprocessForOCR(region gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(0, 0, 180, 0), gocv.NewScalar(180, 40, 255, 0), &mask)

	// Close joins broken glyphs, open removes specks
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2))
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)

	whiteRatio := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols())
	if whiteRatio < minWhiteRatio {
		gray := gocv.NewMat()
		gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
		gocv.Threshold(gray, &mask, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
		gray.Close()
	}

	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(mask, &inverted)

	scaled := gocv.NewMat()
	gocv.Resize(inverted, &scaled, image.Point{}, 2.0, 2.0, gocv.InterpolationCubic)
	return scaled
}
