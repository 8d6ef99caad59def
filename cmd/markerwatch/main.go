package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/LdDl/marker-tracker/internal/config"
	"github.com/LdDl/marker-tracker/internal/monitoring"
	"github.com/LdDl/marker-tracker/internal/ocr"
	"github.com/LdDl/marker-tracker/internal/pipeline"
	"github.com/LdDl/marker-tracker/internal/storage"
	"github.com/LdDl/marker-tracker/internal/watch"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to YAML configuration")
	envName    = flag.String("env", "", "Environment overrides to apply: windows or linux (default: detected from OS)")
	replayDir  = flag.String("replay", "", "Process images of this directory in name order for the first enabled camera and exit")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath, *envName)
	if err != nil {
		return errors.Wrapf(err, "can't load %s", *configPath)
	}
	logger, logCloser, err := monitoring.NewLogger(monitoring.Options{
		Level:         cfg.GetLogLevel(),
		LogFile:       cfg.GetLogFile(),
		ConsoleOutput: cfg.GetConsoleOutput(),
	})
	if err != nil {
		return errors.Wrap(err, "can't create logger")
	}
	defer logCloser.Close()
	logger.Info().Str("config", *configPath).Str("env", cfg.Environment()).Msg("configuration loaded")

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	cameras, err := cfg.CameraSettings()
	if err != nil {
		return err
	}
	if len(cameras) == 0 {
		return errors.New("no enabled cameras")
	}

	ocrReader, err := ocr.NewTimestampReader(cfg.GetOCRRegion(), cfg.GetOCRLanguage())
	if err != nil {
		return errors.Wrap(err, "can't create OCR reader")
	}
	defer ocrReader.Close()

	var store *storage.Store
	if path := cfg.GetSQLitePath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "can't create directory for %s", path)
		}
		store, err = storage.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info().Str("path", path).Msg("result store opened")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *replayDir != "" {
		camera := cameras[0]
		processor, err := newProcessor(ctx, cfg, camera, ocrReader, store, logger)
		if err != nil {
			return err
		}
		return replay(ctx, processor, camera.Name, *replayDir, logger)
	}

	// Every camera is built before any goroutine starts
	units := make([]cameraUnit, 0, len(cameras))
	for _, camera := range cameras {
		processor, err := newProcessor(ctx, cfg, camera, ocrReader, store, logger)
		if err != nil {
			return err
		}
		watcher, err := watch.NewCameraWatcher(
			camera.Name,
			filepath.Join(cfg.GetBaseUploadPath(), camera.Name),
			cfg.GetPollInterval(),
			cfg.GetFileWaitTime(),
			logger.With().Str("camera", camera.Name).Logger(),
		)
		if err != nil {
			return err
		}
		units = append(units, cameraUnit{name: camera.Name, source: watcher, sink: processor})
	}
	logger.Info().Int("cameras", len(cameras)).Msg("monitoring started")
	err = monitor(ctx, units, logger)
	logger.Info().Msg("stopped")
	return err
}

// eventSource produces ready images until ctx is done
type eventSource interface {
	Run(ctx context.Context, out chan<- watch.ImageEvent) error
}

// eventSink consumes images until channel is closed or ctx is done
type eventSink interface {
	Run(ctx context.Context, events <-chan watch.ImageEvent)
}

type cameraUnit struct {
	name   string
	source eventSource
	sink   eventSink
}

// monitor runs source and sink of every camera until ctx is done.
// A failing source stops all cameras and its error is returned.
func monitor(parent context.Context, units []cameraUnit, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, unit := range units {
		events := make(chan watch.ImageEvent, 64)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(events)
			if err := unit.source.Run(ctx, events); err != nil {
				logger.Error().Err(err).Str("camera", unit.name).Msg("watcher stopped, shutting down")
				once.Do(func() {
					firstErr = errors.Wrapf(err, "camera %s", unit.name)
				})
				cancel()
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			unit.sink.Run(ctx, events)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return firstErr
}

// replay feeds images of dir to processor as a single batch
func replay(ctx context.Context, processor *pipeline.CameraProcessor, camera, dir string, logger zerolog.Logger) error {
	images, err := watch.ListImages(dir)
	if err != nil {
		return err
	}
	counts := make(map[pipeline.Outcome]int)
	for _, name := range images {
		if ctx.Err() != nil {
			break
		}
		outcome, err := processor.Process(ctx, watch.ImageEvent{
			Camera:   camera,
			BatchDir: dir,
			Path:     filepath.Join(dir, name),
			Name:     name,
		})
		if err != nil {
			logger.Error().Err(err).Str("file", name).Msg("can't process image")
			continue
		}
		counts[outcome]++
	}
	logger.Info().
		Int("images", len(images)).
		Int(pipeline.OutcomeProcessed.String(), counts[pipeline.OutcomeProcessed]).
		Int(pipeline.OutcomeNoTimestamp.String(), counts[pipeline.OutcomeNoTimestamp]).
		Int(pipeline.OutcomeNoMarkers.String(), counts[pipeline.OutcomeNoMarkers]).
		Msg("replay finished")
	return nil
}
