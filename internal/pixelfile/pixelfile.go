// Package pixelfile reads and writes resolved marker coordinates as text.
//
// Every line is "idx x y" where idx is the 1-based marker identity.
package pixelfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
)

// ErrMalformedLine is returned by Read for lines which can't be parsed
var ErrMalformedLine = errors.New("malformed pixel file line")

// Write writes ordered points, one per line
func Write(w io.Writer, points []mot.Point) error {
	bw := bufio.NewWriter(w)
	for i, p := range points {
		if _, err := fmt.Fprintf(bw, "%d %s %s\n", i+1, formatCoord(p.X), formatCoord(p.Y)); err != nil {
			return errors.Wrapf(err, "can't write point %d", i+1)
		}
	}
	return errors.Wrap(bw.Flush(), "can't flush pixel file")
}

// WriteFile writes points to path, creating parent directories when needed
func WriteFile(path string, points []mot.Point) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "can't create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	if err := Write(f, points); err != nil {
		f.Close()
		return errors.Wrapf(err, "can't write %s", path)
	}
	return errors.Wrapf(f.Close(), "can't close %s", path)
}

// Read parses points in file order. Blank lines and lines with fewer than 3 fields are skipped;
// the index column is not interpreted.
func Read(r io.Reader) ([]mot.Point, error) {
	points := make([]mot.Point, 0)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		x, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedLine, "line %d: bad x %q", lineNo, fields[1])
		}
		y, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedLine, "line %d: bad y %q", lineNo, fields[2])
		}
		points = append(points, mot.NewPoint(x, y))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "can't scan pixel file")
	}
	return points, nil
}

// ReadFile parses points stored at path
func ReadFile(path string) ([]mot.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", path)
	}
	defer f.Close()
	points, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read %s", path)
	}
	return points, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
