package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ImageEvent is an image which is completely written and ready for processing
type ImageEvent struct {
	Camera string
	// Batch folder the image belongs to
	BatchDir string
	Path     string
	Name     string
}

// CameraWatcher follows the latest batch folder of one camera upload directory.
// Every image name is reported once per batch.
type CameraWatcher struct {
	camera       string
	uploadDir    string
	pollInterval time.Duration
	waitTime     time.Duration
	logger       zerolog.Logger

	watcher      *fsnotify.Watcher
	currentBatch string
	seen         map[string]struct{}
}

// NewCameraWatcher creates watcher for camera upload directory.
// pollInterval is the file size polling step, waitTime bounds how long a file may keep growing.
func NewCameraWatcher(camera, uploadDir string, pollInterval, waitTime time.Duration, logger zerolog.Logger) (*CameraWatcher, error) {
	if pollInterval <= 0 {
		return nil, errors.Errorf("poll interval must be positive, got %s", pollInterval)
	}
	info, err := os.Stat(uploadDir)
	if err != nil {
		return nil, errors.Wrapf(err, "can't access upload directory of %s", camera)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", uploadDir)
	}
	return &CameraWatcher{
		camera:       camera,
		uploadDir:    uploadDir,
		pollInterval: pollInterval,
		waitTime:     waitTime,
		logger:       logger,
		seen:         make(map[string]struct{}),
	}, nil
}

// CurrentBatch returns path of the batch folder being watched, empty when none
func (w *CameraWatcher) CurrentBatch() string {
	return w.currentBatch
}

// Run watches until ctx is done, sending ready images to out. It does not close out.
func (w *CameraWatcher) Run(ctx context.Context, out chan<- ImageEvent) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "can't create file watcher")
	}
	defer watcher.Close()
	w.watcher = watcher

	if err := watcher.Add(w.uploadDir); err != nil {
		return errors.Wrapf(err, "can't watch %s", w.uploadDir)
	}
	if err := w.switchBatch(ctx, out); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, event, out); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

func (w *CameraWatcher) handle(ctx context.Context, event fsnotify.Event, out chan<- ImageEvent) error {
	dir := filepath.Dir(event.Name)
	name := filepath.Base(event.Name)
	switch {
	case dir == w.uploadDir:
		if event.Has(fsnotify.Create) && strings.HasPrefix(name, BatchPrefix) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.logger.Info().Str("batch", name).Msg("new batch folder")
				return w.switchBatch(ctx, out)
			}
		}
		if (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && event.Name == w.currentBatch {
			w.logger.Warn().Str("batch", name).Msg("watched batch folder removed")
			w.currentBatch = ""
			return w.switchBatch(ctx, out)
		}
	case w.currentBatch != "" && dir == w.currentBatch:
		if event.Has(fsnotify.Create) && IsImage(name) {
			return w.emit(ctx, name, out)
		}
	}
	return nil
}

// switchBatch moves watch to the latest batch and reports images already inside it
func (w *CameraWatcher) switchBatch(ctx context.Context, out chan<- ImageEvent) error {
	latest, err := LatestBatch(w.uploadDir)
	if err != nil {
		return err
	}
	if latest == "" {
		return nil
	}
	batchDir := filepath.Join(w.uploadDir, latest)
	if batchDir == w.currentBatch {
		return nil
	}
	if w.currentBatch != "" {
		// Folder may be gone already
		_ = w.watcher.Remove(w.currentBatch)
	}
	if err := w.watcher.Add(batchDir); err != nil {
		return errors.Wrapf(err, "can't watch %s", batchDir)
	}
	w.currentBatch = batchDir
	w.seen = make(map[string]struct{})
	w.logger.Info().Str("batch", latest).Msg("watching batch folder")

	existing, err := ListImages(batchDir)
	if err != nil {
		return err
	}
	for _, name := range existing {
		if err := w.emit(ctx, name, out); err != nil {
			return err
		}
	}
	return nil
}

func (w *CameraWatcher) emit(ctx context.Context, name string, out chan<- ImageEvent) error {
	if _, ok := w.seen[name]; ok {
		return nil
	}
	w.seen[name] = struct{}{}
	path := filepath.Join(w.currentBatch, name)
	if err := WaitStable(ctx, path, w.pollInterval, w.waitTime); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn().Err(err).Str("file", name).Msg("skip image")
		return nil
	}
	select {
	case <-ctx.Done():
	case out <- ImageEvent{Camera: w.camera, BatchDir: w.currentBatch, Path: path, Name: name}:
	}
	return nil
}

// WaitStable blocks until file at path has the same non-zero size on two consecutive polls.
// After waitTime the file is accepted as is.
func WaitStable(ctx context.Context, path string, pollInterval, waitTime time.Duration) error {
	deadline := time.Now().Add(waitTime)
	lastSize := int64(-1)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		info, err := os.Stat(path)
		if err != nil {
			return errors.Wrapf(err, "can't stat %s", path)
		}
		size := info.Size()
		if size > 0 && size == lastSize {
			return nil
		}
		if !time.Now().Before(deadline) {
			if size == 0 {
				return errors.Errorf("file %s is still empty after %s", path, waitTime)
			}
			return nil
		}
		lastSize = size
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
