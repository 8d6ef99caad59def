package config

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LdDl/marker-tracker/mot"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
paths:
  base_upload_path: /data/uploads
  base_processed_path: /data/processed
cameras:
  camera1:
    polygon_pts: [[1099, 1608], [1101, 825], [2925, 835], [2925, 1667]]
`

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML), EnvLinux)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.GetFileWaitTime())
	assert.Equal(t, 200*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 50.0, cfg.GetMinArea())
	assert.True(t, cfg.GetRemoveSource())
	assert.Equal(t, StrategyTopEdge, cfg.GetStrategy())
	assert.Equal(t, mot.DefaultEstimatorConfig(), cfg.TopEdgeConfig())
	assert.Equal(t, mot.DefaultTrackerConfig(), cfg.TrackerConfig())
	assert.False(t, cfg.GetResumeFromStore())
	assert.Equal(t, [3]float64{70, 70, 70}, cfg.GetHSVLower())
	assert.Equal(t, [3]float64{140, 255, 255}, cfg.GetHSVUpper())
	assert.Equal(t, image.Rect(182, 1893, 810, 1962), cfg.GetOCRRegion())
	assert.Equal(t, "eng", cfg.GetOCRLanguage())
	assert.Equal(t, "", cfg.GetSQLitePath())
	assert.Equal(t, "INFO", cfg.GetLogLevel())
	assert.True(t, cfg.GetConsoleOutput())
	assert.True(t, cfg.GetAnnotate())

	est, err := cfg.NewEstimator()
	require.NoError(t, err)
	assert.IsType(t, &mot.TopEdgeEstimator{}, est)
}

func TestOverrides(t *testing.T) {
	input := minimalYAML + `
processing:
  file_wait_time: 0.5
  poll_interval: 50ms
  min_area: 80
estimator:
  strategy: centroid
  ellipticity_threshold: 0.7
tracking:
  row_tolerance: 25
  gate:
    min_dy: -10
  stable_fraction: 0.5
  audit_assignments: true
  resume_from_store: true
vision:
  hsv_lower: [60, 50, 50]
ocr:
  region: [0, 0, 100, 20]
`
	cfg, err := Parse([]byte(input), EnvLinux)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.GetFileWaitTime())
	assert.Equal(t, 50*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 80.0, cfg.GetMinArea())
	assert.True(t, cfg.GetResumeFromStore())
	assert.Equal(t, [3]float64{60, 50, 50}, cfg.GetHSVLower())
	assert.Equal(t, image.Rect(0, 0, 100, 20), cfg.GetOCRRegion())

	want := mot.DefaultTrackerConfig()
	want.RowTolerance = 25
	want.Gate.MinDY = -10
	want.StableFraction = 0.5
	want.AuditAssignments = true
	if diff := cmp.Diff(want, cfg.TrackerConfig()); diff != "" {
		t.Errorf("TrackerConfig() mismatch (-want +got):\n%s", diff)
	}

	est, err := cfg.NewEstimator()
	require.NoError(t, err)
	assert.IsType(t, &mot.CentroidEstimator{}, est)
}

func TestEnvironmentOverrides(t *testing.T) {
	input := minimalYAML + `
environments:
  windows:
    paths:
      base_upload_path: 'D:\pic_back\atli_uploads'
    logging:
      level: DEBUG
  linux:
    storage:
      sqlite_path: /var/lib/markers.db
`
	win, err := Parse([]byte(input), EnvWindows)
	require.NoError(t, err)
	assert.Equal(t, EnvWindows, win.Environment())
	assert.Equal(t, `D:\pic_back\atli_uploads`, win.GetBaseUploadPath())
	assert.Equal(t, "/data/processed", win.GetBaseProcessedPath())
	assert.Equal(t, "DEBUG", win.GetLogLevel())
	assert.Equal(t, "", win.GetSQLitePath())

	linux, err := Parse([]byte(input), EnvLinux)
	require.NoError(t, err)
	assert.Equal(t, "/data/uploads", linux.GetBaseUploadPath())
	assert.Equal(t, "/var/lib/markers.db", linux.GetSQLitePath())

	_, err = Parse([]byte(input), "plan9")
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"missing paths":         "cameras: {}\n",
		"bad strategy":          minimalYAML + "estimator:\n  strategy: magic\n",
		"bad top percentage":    minimalYAML + "estimator:\n  top_percentage: 0\n",
		"empty gate":            minimalYAML + "tracking:\n  gate:\n    min_dx: 10\n    max_dx: -10\n",
		"bad stable fraction":   minimalYAML + "tracking:\n  stable_fraction: 1.5\n",
		"bad poll interval":     minimalYAML + "processing:\n  poll_interval: soon\n",
		"bad hsv":               minimalYAML + "vision:\n  hsv_upper: [200, 255, 255]\n",
		"short hsv":             minimalYAML + "vision:\n  hsv_lower: [1, 2]\n",
		"bad ocr region":        minimalYAML + "ocr:\n  region: [10, 10, 5, 5]\n",
		"bad log level":         minimalYAML + "logging:\n  level: LOUD\n",
		"short polygon":         strings.Replace(minimalYAML, "[[1099, 1608], [1101, 825], [2925, 835], [2925, 1667]]", "[[1, 1], [2, 2]]", 1),
		"bad polygon vertex":    strings.Replace(minimalYAML, "[1099, 1608]", "[1099]", 1),
		"negative wait time":    minimalYAML + "processing:\n  file_wait_time: -1\n",
		"negative min area":     minimalYAML + "processing:\n  min_area: -5\n",
		"bad ellipticity":       minimalYAML + "estimator:\n  ellipticity_threshold: 0\n",
		"zero change threshold": minimalYAML + "tracking:\n  change_threshold: 0\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input), EnvLinux)
			assert.Error(t, err)
		})
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	_, err := Parse([]byte(minimalYAML+"processing:\n  min_aera: 10\n"), EnvLinux)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := Load(path, EnvLinux)
	require.NoError(t, err)
	assert.Equal(t, "/data/uploads", cfg.GetBaseUploadPath())

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o644))
	_, err = Load(jsonPath, EnvLinux)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"), EnvLinux)
	assert.Error(t, err)
}

func TestCameraSettings(t *testing.T) {
	dir := t.TempDir()
	initPath := filepath.Join(dir, "init.txt")
	require.NoError(t, os.WriteFile(initPath, []byte("1 1200 900\n2 1300.5 905\n"), 0o644))

	input := `
paths:
  base_upload_path: /data/uploads
  base_processed_path: /data/processed
cameras:
  camera2:
    polygon_pts: [[0, 0], [100, 0], [100, 100]]
  camera1:
    polygon_pts: [[1099, 1608], [1101, 825], [2925, 835], [2925, 1667]]
    init_points_path: ` + initPath + `
  camera3:
    enabled: false
    polygon_pts: []
`
	cfg, err := Parse([]byte(input), EnvLinux)
	require.NoError(t, err)

	cameras, err := cfg.CameraSettings()
	require.NoError(t, err)
	require.Len(t, cameras, 2)
	assert.Equal(t, "camera1", cameras[0].Name)
	assert.Equal(t, "camera2", cameras[1].Name)
	assert.Equal(t, []mot.Point{{X: 1200, Y: 900}, {X: 1300.5, Y: 905}}, cameras[0].InitPoints)
	assert.Nil(t, cameras[1].InitPoints)
	assert.Len(t, cameras[0].Region.Vertices(), 4)
}

func TestCameraSettingsMissingInitPoints(t *testing.T) {
	cfg := &Config{
		Paths: PathsConfig{
			BaseUploadPath:    ptrString("/in"),
			BaseProcessedPath: ptrString("/out"),
		},
		Cameras: map[string]CameraConfig{
			"camera1": {
				Enabled:        ptrBool(true),
				PolygonPts:     [][]int{{0, 0}, {10, 0}, {10, 10}},
				InitPointsPath: ptrString(filepath.Join(t.TempDir(), "missing.txt")),
			},
		},
	}
	require.NoError(t, cfg.Validate())
	_, err := cfg.CameraSettings()
	assert.Error(t, err)
}

func TestPointerHelpers(t *testing.T) {
	cfg := &Config{
		Processing: ProcessingConfig{MinArea: ptrFloat64(12)},
		Estimator:  EstimatorConfig{LineFitMinPoints: ptrInt(7)},
	}
	assert.Equal(t, 12.0, cfg.GetMinArea())
	assert.Equal(t, 7, cfg.TopEdgeConfig().LineFitMinPoints)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Paths: PathsConfig{
			BaseUploadPath:    ptrString(filepath.Join(dir, "uploads")),
			BaseProcessedPath: ptrString(filepath.Join(dir, "processed")),
		},
		Logging: LoggingConfig{LogFile: ptrString(filepath.Join(dir, "logs", "monitor.log"))},
		Cameras: map[string]CameraConfig{
			"camera1": {PolygonPts: [][]int{{0, 0}, {10, 0}, {10, 10}}},
			"camera2": {Enabled: ptrBool(false)},
		},
	}
	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "uploads", "camera1"))
	assert.NoDirExists(t, filepath.Join(dir, "uploads", "camera2"))
	assert.DirExists(t, filepath.Join(dir, "processed"))
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"), EnvWindows)
	require.NoError(t, err)
	assert.Equal(t, `D:\pic_back\atli_uploads`, cfg.GetBaseUploadPath())
	assert.Equal(t, mot.DefaultEstimatorConfig(), cfg.TopEdgeConfig())
	assert.Equal(t, mot.DefaultTrackerConfig(), cfg.TrackerConfig())
	assert.Equal(t, "", cfg.GetSQLitePath())
}
