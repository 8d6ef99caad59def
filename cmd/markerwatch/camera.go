package main

import (
	"context"
	"path/filepath"

	"github.com/LdDl/marker-tracker/internal/config"
	"github.com/LdDl/marker-tracker/internal/monitoring"
	"github.com/LdDl/marker-tracker/internal/ocr"
	"github.com/LdDl/marker-tracker/internal/pipeline"
	"github.com/LdDl/marker-tracker/internal/storage"
	"github.com/LdDl/marker-tracker/internal/vision"
	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// newProcessor wires detector, estimator and seeded tracker of one camera
func newProcessor(ctx context.Context, cfg *config.Config, camera config.CameraSettings, ocrReader *ocr.TimestampReader, store *storage.Store, logger zerolog.Logger) (*pipeline.CameraProcessor, error) {
	detector, err := vision.NewDetector(camera.Region, cfg.GetHSVLower(), cfg.GetHSVUpper(), cfg.GetROIMargin())
	if err != nil {
		return nil, errors.Wrapf(err, "camera %s", camera.Name)
	}
	estimator, err := cfg.NewEstimator()
	if err != nil {
		return nil, err
	}
	extractor, err := mot.NewFrameExtractor(cfg.GetMinArea(), estimator)
	if err != nil {
		return nil, err
	}
	tracker, err := mot.NewMarkerTracker(camera.Region, cfg.TrackerConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "camera %s", camera.Name)
	}
	camLogger := monitoring.ForCamera(logger, camera.Name, tracker.GetID().String())

	seed, source := camera.InitPoints, "init_points_path"
	if cfg.GetResumeFromStore() && store != nil {
		rec, err := store.LatestFrame(ctx, camera.Name)
		switch {
		case err == nil:
			seed, source = rec.Points, "store"
		case errors.Is(err, storage.ErrNoFrames):
		default:
			return nil, err
		}
	}
	if len(seed) > 0 {
		if err := tracker.Seed(seed); err != nil {
			return nil, errors.Wrapf(err, "camera %s: can't seed tracker", camera.Name)
		}
		camLogger.Info().Int("markers", len(seed)).Str("source", source).Msg("tracker seeded")
	}

	opts := pipeline.Options{
		Camera:       camera.Name,
		ProcessedDir: filepath.Join(cfg.GetBaseProcessedPath(), camera.Name),
		Contours:     detector,
		Timestamps:   ocrReader,
		Extractor:    extractor,
		Tracker:      tracker,
		RemoveSource: cfg.GetRemoveSource(),
		Logger:       camLogger,
	}
	if cfg.GetAnnotate() {
		opts.Annotate = vision.SaveAnnotated
	}
	// A nil *storage.Store must not become a non-nil interface
	if store != nil {
		opts.Store = store
	}
	return pipeline.NewCameraProcessor(opts)
}
