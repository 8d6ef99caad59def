package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LdDl/marker-tracker/internal/pixelfile"
	"github.com/LdDl/marker-tracker/internal/storage"
	"github.com/LdDl/marker-tracker/internal/watch"
	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimestamp = "20250206093015"

// square returns 20x20 contour whose top edge center is (x+10, y)
func square(x, y int) mot.Contour {
	return mot.NewContour([]image.Point{
		{X: x, Y: y}, {X: x + 20, Y: y}, {X: x + 20, Y: y + 20}, {X: x, Y: y + 20},
	})
}

type fakeContours map[string][]mot.Contour

func (f fakeContours) DetectFile(path string) ([]mot.Contour, error) {
	contours, ok := f[filepath.Base(path)]
	if !ok {
		return nil, errors.Errorf("unexpected image %s", path)
	}
	return contours, nil
}

type fakeTimestamps struct {
	calls []string
}

func (f *fakeTimestamps) ReadFile(path string) (string, error) {
	f.calls = append(f.calls, filepath.Base(path))
	if !watch.IsFirstFrame(filepath.Base(path)) {
		return "", errors.New("no timestamp")
	}
	return testTimestamp, nil
}

type fakeStore struct {
	records []storage.FrameRecord
}

func (f *fakeStore) SaveFrame(ctx context.Context, rec storage.FrameRecord) (int64, error) {
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

type annotation struct {
	src, dst string
	points   []mot.Point
}

type testEnv struct {
	batchDir     string
	processedDir string
	timestamps   *fakeTimestamps
	store        *fakeStore
	annotations  []annotation
	processor    *CameraProcessor
}

func newTestEnv(t *testing.T, contours fakeContours, files ...string) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		batchDir:     filepath.Join(root, "upload", "camera1", "TLS_0206-0930"),
		processedDir: filepath.Join(root, "processed", "camera1"),
		timestamps:   &fakeTimestamps{},
		store:        &fakeStore{},
	}
	require.NoError(t, os.MkdirAll(env.batchDir, 0o755))
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(env.batchDir, name), []byte("img"), 0o644))
	}
	roi, err := mot.NewRegionOfInterest([]image.Point{{X: 0, Y: 0}, {X: 500, Y: 0}, {X: 500, Y: 500}, {X: 0, Y: 500}})
	require.NoError(t, err)
	processor, err := NewCameraProcessor(Options{
		Camera:       "camera1",
		ProcessedDir: env.processedDir,
		Contours:     contours,
		Timestamps:   env.timestamps,
		Tracker:      mot.NewMarkerTrackerDefault(roi),
		Annotate: func(src, dst string, points []mot.Point) error {
			env.annotations = append(env.annotations, annotation{src: src, dst: dst, points: points})
			return nil
		},
		Store:        env.store,
		RemoveSource: true,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	env.processor = processor
	return env
}

func (env *testEnv) event(name string) watch.ImageEvent {
	return watch.ImageEvent{
		Camera:   "camera1",
		BatchDir: env.batchDir,
		Path:     filepath.Join(env.batchDir, name),
		Name:     name,
	}
}

func TestProcessKeepsIdentities(t *testing.T) {
	contours := fakeContours{
		"img_0001.jpg": {square(40, 0), square(0, 2)},
		"img_0002.jpg": {square(45, 5), square(1, 3)},
	}
	env := newTestEnv(t, contours, "img_0001.jpg", "img_0002.jpg")
	ctx := context.Background()

	outcome, err := env.processor.Process(ctx, env.event("img_0001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, testTimestamp, env.processor.Timestamp())

	points, err := pixelfile.ReadFile(filepath.Join(env.processedDir, testTimestamp, "pixel", "img_0001.txt"))
	require.NoError(t, err)
	assert.Equal(t, []mot.Point{{X: 10, Y: 2}, {X: 50, Y: 0}}, points)
	assert.NoFileExists(t, filepath.Join(env.batchDir, "img_0001.jpg"))

	outcome, err = env.processor.Process(ctx, env.event("img_0002.jpg"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	points, err = pixelfile.ReadFile(filepath.Join(env.processedDir, testTimestamp, "pixel", "img_0002.txt"))
	require.NoError(t, err)
	assert.Equal(t, []mot.Point{{X: 11, Y: 3}, {X: 55, Y: 5}}, points)

	// Timestamp is read once per batch
	assert.Equal(t, []string{"img_0001.jpg"}, env.timestamps.calls)

	require.Len(t, env.annotations, 2)
	assert.Equal(t, filepath.Join(env.processedDir, testTimestamp, "img", "img_0002.jpg"), env.annotations[1].dst)
	assert.Equal(t, points, env.annotations[1].points)

	require.Len(t, env.store.records, 2)
	assert.Equal(t, mot.ModeInitial, env.store.records[0].Mode)
	assert.Equal(t, mot.ModeTemporal, env.store.records[1].Mode)
	assert.Equal(t, "camera1", env.store.records[1].Camera)
	assert.Equal(t, testTimestamp, env.store.records[1].BatchTimestamp)
}

func TestProcessSearchesFirstFrame(t *testing.T) {
	contours := fakeContours{
		"img_0003.jpg": {square(0, 0)},
	}
	env := newTestEnv(t, contours, "img_0001.jpg", "img_0003.jpg")

	outcome, err := env.processor.Process(context.Background(), env.event("img_0003.jpg"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, []string{"img_0001.jpg"}, env.timestamps.calls)
	assert.FileExists(t, filepath.Join(env.processedDir, testTimestamp, "pixel", "img_0003.txt"))
}

func TestProcessWithoutTimestamp(t *testing.T) {
	env := newTestEnv(t, fakeContours{}, "img_0002.jpg")

	outcome, err := env.processor.Process(context.Background(), env.event("img_0002.jpg"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTimestamp, outcome)
	assert.FileExists(t, filepath.Join(env.batchDir, "img_0002.jpg"))
	assert.Empty(t, env.store.records)
}

func TestProcessWithoutMarkers(t *testing.T) {
	contours := fakeContours{
		// Too small to be a marker
		"img_0001.jpg": {mot.NewContour([]image.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}})},
	}
	env := newTestEnv(t, contours, "img_0001.jpg")

	outcome, err := env.processor.Process(context.Background(), env.event("img_0001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMarkers, outcome)
	assert.FileExists(t, filepath.Join(env.batchDir, "img_0001.jpg"))
	assert.Empty(t, env.annotations)
}

func TestNewBatchResetsTimestamp(t *testing.T) {
	contours := fakeContours{
		"img_0001.jpg": {square(0, 0)},
		"img_0002.jpg": {square(0, 0)},
	}
	env := newTestEnv(t, contours, "img_0001.jpg")
	_, err := env.processor.Process(context.Background(), env.event("img_0001.jpg"))
	require.NoError(t, err)

	otherBatch := filepath.Join(filepath.Dir(env.batchDir), "TLS_0207-0930")
	require.NoError(t, os.MkdirAll(otherBatch, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(otherBatch, "img_0002.jpg"), []byte("img"), 0o644))
	outcome, err := env.processor.Process(context.Background(), watch.ImageEvent{
		Camera:   "camera1",
		BatchDir: otherBatch,
		Path:     filepath.Join(otherBatch, "img_0002.jpg"),
		Name:     "img_0002.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTimestamp, outcome)
	assert.Equal(t, "", env.processor.Timestamp())
}

func TestRunDrainsEvents(t *testing.T) {
	contours := fakeContours{
		"img_0001.jpg": {square(0, 0)},
		"img_0002.jpg": {square(2, 1)},
	}
	env := newTestEnv(t, contours, "img_0001.jpg", "img_0002.jpg")
	events := make(chan watch.ImageEvent, 2)
	events <- env.event("img_0001.jpg")
	events <- env.event("img_0002.jpg")
	close(events)

	env.processor.Run(context.Background(), events)
	require.Len(t, env.store.records, 2)
	assert.True(t, strings.HasSuffix(env.store.records[1].ImageName, "0002.jpg"))
}

func TestNewCameraProcessorValidation(t *testing.T) {
	_, err := NewCameraProcessor(Options{})
	assert.Error(t, err)
	_, err = NewCameraProcessor(Options{Contours: fakeContours{}, Timestamps: &fakeTimestamps{}})
	assert.Error(t, err)
}
