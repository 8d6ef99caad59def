// Package watch discovers batch folders of camera uploads and reports new images.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BatchPrefix starts names of batch folders, e.g. TLS_0206-0930
const BatchPrefix = "TLS_"

// FirstFrameSuffix marks first image of a batch which carries the printed timestamp
const FirstFrameSuffix = "_0001"

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
}

// BatchNumber extracts number from characters 5-8 of batch folder name. Malformed names give 0.
func BatchNumber(name string) int {
	if len(name) < 8 || !strings.HasPrefix(name, BatchPrefix) {
		return 0
	}
	n, err := strconv.Atoi(name[4:8])
	if err != nil {
		return 0
	}
	return n
}

// LatestBatch returns name of the batch sub-directory of dir with the largest number.
// Equal numbers are ordered by name. Empty string means there are no batches.
func LatestBatch(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "can't list %s", dir)
	}
	latest := ""
	latestNumber := -1
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, BatchPrefix) {
			continue
		}
		n := BatchNumber(name)
		if n > latestNumber || (n == latestNumber && name > latest) {
			latest = name
			latestNumber = n
		}
	}
	return latest, nil
}

// IsImage reports whether file name has a supported image extension (case insensitive)
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsFirstFrame reports whether name is the first image of a batch
func IsFirstFrame(name string) bool {
	if !IsImage(name) {
		return false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(base, FirstFrameSuffix)
}

// FindFirstFrame returns path of the first image in batch directory, empty when absent
func FindFirstFrame(batchDir string) (string, error) {
	images, err := ListImages(batchDir)
	if err != nil {
		return "", err
	}
	for _, name := range images {
		if IsFirstFrame(name) {
			return filepath.Join(batchDir, name), nil
		}
	}
	return "", nil
}

// ListImages returns image file names of dir sorted by name
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "can't list %s", dir)
	}
	images := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		images = append(images, entry.Name())
	}
	sort.Strings(images)
	return images, nil
}
