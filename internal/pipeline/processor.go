// Package pipeline turns image events of one camera into ordered marker coordinates.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LdDl/marker-tracker/internal/pixelfile"
	"github.com/LdDl/marker-tracker/internal/storage"
	"github.com/LdDl/marker-tracker/internal/watch"
	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ContourSource finds marker contours on image file
type ContourSource interface {
	DetectFile(path string) ([]mot.Contour, error)
}

// TimestampReader reads batch timestamp label from first image of a batch
type TimestampReader interface {
	ReadFile(path string) (string, error)
}

// Store persists processed frames
type Store interface {
	SaveFrame(ctx context.Context, rec storage.FrameRecord) (int64, error)
}

// AnnotateFunc writes copy of src with resolved points drawn to dst
type AnnotateFunc func(src, dst string, points []mot.Point) error

// Outcome tells what happened to an image
type Outcome uint16

const (
	OutcomeProcessed Outcome = iota
	// No batch timestamp available yet
	OutcomeNoTimestamp
	// No markers found in image
	OutcomeNoMarkers
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeNoTimestamp:
		return "no_timestamp"
	case OutcomeNoMarkers:
		return "no_markers"
	default:
		return "unknown"
	}
}

// Options of CameraProcessor. Contours, Timestamps and Tracker are required.
type Options struct {
	Camera string
	// Results go to <ProcessedDir>/<timestamp>/{pixel,img}
	ProcessedDir string
	Contours     ContourSource
	Timestamps   TimestampReader
	Extractor    *mot.FrameExtractor
	Tracker      *mot.MarkerTracker
	// Optional. No annotated backup when nil
	Annotate AnnotateFunc
	// Optional
	Store        Store
	RemoveSource bool
	Logger       zerolog.Logger
}

// CameraProcessor processes images of one camera in order. It is not safe for concurrent use.
type CameraProcessor struct {
	opts      Options
	batchDir  string
	timestamp string
}

// NewCameraProcessor creates processor
func NewCameraProcessor(opts Options) (*CameraProcessor, error) {
	if opts.Contours == nil {
		return nil, errors.New("contour source is required")
	}
	if opts.Timestamps == nil {
		return nil, errors.New("timestamp reader is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if opts.ProcessedDir == "" {
		return nil, errors.New("processed directory is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = mot.NewFrameExtractorDefault()
	}
	return &CameraProcessor{opts: opts}, nil
}

// Timestamp returns timestamp of the current batch, empty when unknown
func (p *CameraProcessor) Timestamp() string {
	return p.timestamp
}

// Process handles one ready image
func (p *CameraProcessor) Process(ctx context.Context, ev watch.ImageEvent) (Outcome, error) {
	log := p.opts.Logger.With().Str("file", ev.Name).Logger()
	if ev.BatchDir != p.batchDir {
		p.batchDir = ev.BatchDir
		p.timestamp = ""
	}
	if watch.IsFirstFrame(ev.Name) {
		p.readTimestamp(ev.Path, log)
	}
	if p.timestamp == "" {
		first, err := watch.FindFirstFrame(ev.BatchDir)
		if err != nil {
			log.Warn().Err(err).Msg("can't search first frame")
		}
		if first != "" {
			p.readTimestamp(first, log)
		}
	}
	if p.timestamp == "" {
		log.Warn().Msg("no batch timestamp yet, skip image")
		return OutcomeNoTimestamp, nil
	}

	contours, err := p.opts.Contours.DetectFile(ev.Path)
	if err != nil {
		return OutcomeProcessed, errors.Wrapf(err, "can't detect contours of %s", ev.Name)
	}
	centers, stats := p.opts.Extractor.ExtractWithStats(contours)
	res := p.opts.Tracker.ResolveFrame(centers)
	if res.Points == nil {
		log.Warn().Int("contours", stats.Total).Int("small", stats.SmallArea).Msg("no markers, skip image")
		return OutcomeNoMarkers, nil
	}
	event := log.Debug().
		Str("mode", res.Mode.String()).
		Int("markers", len(res.Points)).
		Int("dropped", len(res.Dropped)).
		Int("reverted", len(res.Reverted))
	if res.Audit != nil {
		event = event.Int("audit_disagreements", res.Audit.Disagreements)
	}
	event.Msg("frame resolved")
	if res.Audit != nil && res.Audit.Disagreements > 0 {
		log.Info().
			Ints("greedy", res.Audit.Greedy).
			Ints("optimal", res.Audit.Optimal).
			Msg("greedy assignment differs from optimal")
	}

	outDir := filepath.Join(p.opts.ProcessedDir, p.timestamp)
	baseName := strings.TrimSuffix(ev.Name, filepath.Ext(ev.Name))
	pixelPath := filepath.Join(outDir, "pixel", baseName+".txt")
	if err := pixelfile.WriteFile(pixelPath, res.Points); err != nil {
		return OutcomeProcessed, errors.Wrapf(err, "can't save coordinates of %s", ev.Name)
	}
	if p.opts.Annotate != nil {
		imgPath := filepath.Join(outDir, "img", ev.Name)
		if err := p.opts.Annotate(ev.Path, imgPath, res.Points); err != nil {
			return OutcomeProcessed, errors.Wrapf(err, "can't save annotated copy of %s", ev.Name)
		}
	}
	if p.opts.Store != nil {
		_, err := p.opts.Store.SaveFrame(ctx, storage.FrameRecord{
			Camera:         p.opts.Camera,
			BatchTimestamp: p.timestamp,
			ImageName:      ev.Name,
			TrackerID:      p.opts.Tracker.GetID().String(),
			Mode:           res.Mode,
			RevertedCount:  len(res.Reverted),
			ProcessedAt:    time.Now(),
			Points:         res.Points,
		})
		if err != nil {
			// Files are already written, the image is still considered processed
			log.Error().Err(err).Msg("can't store frame")
		}
	}
	if p.opts.RemoveSource {
		if err := os.Remove(ev.Path); err != nil {
			return OutcomeProcessed, errors.Wrapf(err, "can't remove %s", ev.Path)
		}
	}
	log.Info().Str("pixel_file", pixelPath).Msg("image processed")
	return OutcomeProcessed, nil
}

func (p *CameraProcessor) readTimestamp(path string, log zerolog.Logger) {
	ts, err := p.opts.Timestamps.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("first_frame", filepath.Base(path)).Msg("can't read batch timestamp")
		return
	}
	p.timestamp = ts
	log.Info().Str("timestamp", ts).Msg("batch timestamp")
}

// Run processes events until channel is closed or ctx is done
func (p *CameraProcessor) Run(ctx context.Context, events <-chan watch.ImageEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := p.Process(ctx, ev); err != nil {
				p.opts.Logger.Error().Err(err).Str("file", ev.Name).Msg("can't process image")
			}
		}
	}
}
