package ocr

import (
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

// TimestampLayout is the batch label layout: YYYYMMDDhhmmss
const TimestampLayout = "20060102150405"

// ErrNoTimestamp is returned when recognized text does not contain a valid timestamp
var ErrNoTimestamp = errors.New("no timestamp recognized")

// ParseTimestamp keeps digits of recognized text and validates the first 14 of them
// as a date and time. It returns the 14-digit label used as batch directory name.
func ParseTimestamp(text string) (string, error) {
	var sb strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()
	if len(digits) < len(TimestampLayout) {
		return "", errors.Wrapf(ErrNoTimestamp, "need %d digits, got %d in %q", len(TimestampLayout), len(digits), text)
	}
	label := digits[:len(TimestampLayout)]
	if _, err := time.Parse(TimestampLayout, label); err != nil {
		return "", errors.Wrapf(ErrNoTimestamp, "invalid date and time %q: %v", label, err)
	}
	return label, nil
}
