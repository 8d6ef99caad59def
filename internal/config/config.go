// Package config loads the YAML configuration of the marker watch service.
//
// Every optional value is a pointer so that omitted keys fall back to the defaults
// returned by the GetX accessors. Values under environments.<name> override the
// top-level ones for the detected (or forced) environment.
package config

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/LdDl/marker-tracker/internal/monitoring"
	"github.com/LdDl/marker-tracker/internal/pixelfile"
	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no -config flag is given
const DefaultConfigPath = "config.yaml"

const (
	// EnvWindows selects environments.windows overrides
	EnvWindows = "windows"
	// EnvLinux selects environments.linux overrides (macOS included)
	EnvLinux = "linux"

	// StrategyTopEdge estimates the top edge midpoint of rectangular markers
	StrategyTopEdge = "top_edge"
	// StrategyCentroid estimates the center of round markers
	StrategyCentroid = "centroid"

	maxFileSize = 1 * 1024 * 1024
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the configuration file
type Config struct {
	Paths        PathsConfig                  `yaml:"paths"`
	Environments map[string]EnvironmentConfig `yaml:"environments"`
	Processing   ProcessingConfig             `yaml:"processing"`
	Estimator    EstimatorConfig              `yaml:"estimator"`
	Tracking     TrackingConfig               `yaml:"tracking"`
	Vision       VisionConfig                 `yaml:"vision"`
	OCR          OCRConfig                    `yaml:"ocr"`
	Storage      StorageConfig                `yaml:"storage"`
	Logging      LoggingConfig                `yaml:"logging"`
	Cameras      map[string]CameraConfig      `yaml:"cameras"`

	// Environment the overrides were taken from
	env string
}

// PathsConfig holds root directories
type PathsConfig struct {
	BaseUploadPath    *string `yaml:"base_upload_path"`
	BaseProcessedPath *string `yaml:"base_processed_path"`
}

// EnvironmentConfig overrides sections for one operating system
type EnvironmentConfig struct {
	Paths   *PathsConfig   `yaml:"paths"`
	Logging *LoggingConfig `yaml:"logging"`
	Storage *StorageConfig `yaml:"storage"`
}

// ProcessingConfig holds file handling parameters
type ProcessingConfig struct {
	// Max time to wait for an uploaded file to be completely written, seconds
	FileWaitTime *float64 `yaml:"file_wait_time"`
	// Interval between file size checks, duration string like "200ms"
	PollInterval *string `yaml:"poll_interval"`
	// Min contour area in px^2
	MinArea *float64 `yaml:"min_area"`
	// Remove source image after processing
	RemoveSource *bool `yaml:"remove_source"`
}

// EstimatorConfig holds center estimation parameters
type EstimatorConfig struct {
	Strategy              *string  `yaml:"strategy"`
	CompletenessThreshold *float64 `yaml:"completeness_threshold"`
	AngleThreshold        *float64 `yaml:"angle_threshold"`
	TopPercentage         *float64 `yaml:"top_percentage"`
	EpsilonFactor         *float64 `yaml:"epsilon_factor"`
	LineFitMinPoints      *int     `yaml:"line_fit_min_points"`
	TopBandOffset         *float64 `yaml:"top_band_offset"`
	EllipticityThreshold  *float64 `yaml:"ellipticity_threshold"`
}

// GateConfig is the admissible motion window
type GateConfig struct {
	MinDX *float64 `yaml:"min_dx"`
	MaxDX *float64 `yaml:"max_dx"`
	MinDY *float64 `yaml:"min_dy"`
	MaxDY *float64 `yaml:"max_dy"`
}

// TrackingConfig holds identity tracker parameters
type TrackingConfig struct {
	RowTolerance     *float64   `yaml:"row_tolerance"`
	Gate             GateConfig `yaml:"gate"`
	ChangeThreshold  *float64   `yaml:"change_threshold"`
	StableFraction   *float64   `yaml:"stable_fraction"`
	AuditAssignments *bool      `yaml:"audit_assignments"`
	// Seed trackers from the latest stored frame, falling back to init points when store has none
	ResumeFromStore *bool `yaml:"resume_from_store"`
}

// VisionConfig holds color thresholding parameters
type VisionConfig struct {
	HSVLower []float64 `yaml:"hsv_lower"`
	HSVUpper []float64 `yaml:"hsv_upper"`
	// Pixels added around the region polygon (negative shrinks it)
	ROIMargin *float64 `yaml:"roi_margin"`
	// Write annotated copies of processed images
	Annotate *bool `yaml:"annotate"`
}

// OCRConfig holds batch timestamp recognition parameters
type OCRConfig struct {
	// x1, y1, x2, y2
	Region   []int   `yaml:"region"`
	Language *string `yaml:"language"`
}

// StorageConfig holds result store parameters. Empty path disables the store.
type StorageConfig struct {
	SQLitePath *string `yaml:"sqlite_path"`
}

// LoggingConfig holds logger parameters
type LoggingConfig struct {
	Level         *string `yaml:"level"`
	LogFile       *string `yaml:"log_file"`
	ConsoleOutput *bool   `yaml:"console_output"`
}

// CameraConfig describes one camera
type CameraConfig struct {
	Enabled        *bool   `yaml:"enabled"`
	PolygonPts     [][]int `yaml:"polygon_pts"`
	InitPointsPath *string `yaml:"init_points_path"`
}

// CameraSettings is a validated enabled camera
type CameraSettings struct {
	Name       string
	Region     mot.RegionOfInterest
	InitPoints []mot.Point
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DetectEnvironment maps runtime.GOOS to the environment name
func DetectEnvironment() string {
	if runtime.GOOS == "windows" {
		return EnvWindows
	}
	return EnvLinux
}

// Load reads, merges and validates configuration.
// Empty env means DetectEnvironment().
func Load(path, env string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(cleanPath)); ext != ".yaml" && ext != ".yml" {
		return nil, errors.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data, env)
}

// Parse decodes configuration from YAML bytes, applies environment overrides and validates it
func Parse(data []byte, env string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config YAML")
	}
	if env == "" {
		env = DetectEnvironment()
	}
	if env != EnvWindows && env != EnvLinux {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown environment %q", env)
	}
	cfg.applyEnvironment(env)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) applyEnvironment(env string) {
	c.env = env
	override, ok := c.Environments[env]
	if !ok {
		return
	}
	if p := override.Paths; p != nil {
		if p.BaseUploadPath != nil {
			c.Paths.BaseUploadPath = p.BaseUploadPath
		}
		if p.BaseProcessedPath != nil {
			c.Paths.BaseProcessedPath = p.BaseProcessedPath
		}
	}
	if l := override.Logging; l != nil {
		if l.Level != nil {
			c.Logging.Level = l.Level
		}
		if l.LogFile != nil {
			c.Logging.LogFile = l.LogFile
		}
		if l.ConsoleOutput != nil {
			c.Logging.ConsoleOutput = l.ConsoleOutput
		}
	}
	if s := override.Storage; s != nil && s.SQLitePath != nil {
		c.Storage.SQLitePath = s.SQLitePath
	}
}

// Environment returns the environment overrides were applied for
func (c *Config) Environment() string {
	return c.env
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.GetBaseUploadPath() == "" {
		return errors.Wrap(ErrInvalidConfig, "paths.base_upload_path is required")
	}
	if c.GetBaseProcessedPath() == "" {
		return errors.Wrap(ErrInvalidConfig, "paths.base_processed_path is required")
	}

	if c.Processing.FileWaitTime != nil && *c.Processing.FileWaitTime < 0 {
		return errors.Wrapf(ErrInvalidConfig, "processing.file_wait_time must be non-negative, got %f", *c.Processing.FileWaitTime)
	}
	if c.Processing.PollInterval != nil && *c.Processing.PollInterval != "" {
		d, err := time.ParseDuration(*c.Processing.PollInterval)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "invalid processing.poll_interval '%s': %v", *c.Processing.PollInterval, err)
		}
		if d <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "processing.poll_interval must be positive, got %s", d)
		}
	}
	if c.GetMinArea() < 0 {
		return errors.Wrapf(ErrInvalidConfig, "processing.min_area must be non-negative, got %f", c.GetMinArea())
	}

	switch c.GetStrategy() {
	case StrategyTopEdge, StrategyCentroid:
	default:
		return errors.Wrapf(ErrInvalidConfig, "estimator.strategy must be %q or %q, got %q", StrategyTopEdge, StrategyCentroid, c.GetStrategy())
	}
	if err := c.TopEdgeConfig().Validate(); err != nil {
		return errors.Wrap(err, "estimator")
	}
	if e := c.GetEllipticityThreshold(); e <= 0 || e > 1 {
		return errors.Wrapf(ErrInvalidConfig, "estimator.ellipticity_threshold must be in (0, 1], got %f", e)
	}
	if err := c.TrackerConfig().Validate(); err != nil {
		return errors.Wrap(err, "tracking")
	}

	if err := validateHSV("vision.hsv_lower", c.Vision.HSVLower); err != nil {
		return err
	}
	if err := validateHSV("vision.hsv_upper", c.Vision.HSVUpper); err != nil {
		return err
	}
	if c.OCR.Region != nil {
		if len(c.OCR.Region) != 4 {
			return errors.Wrapf(ErrInvalidConfig, "ocr.region must have 4 values, got %d", len(c.OCR.Region))
		}
		if r := c.GetOCRRegion(); r.Empty() {
			return errors.Wrapf(ErrInvalidConfig, "ocr.region is empty: %v", c.OCR.Region)
		}
	}

	if _, err := monitoring.ParseLevel(c.GetLogLevel()); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "logging.level: %v", err)
	}

	for name, camera := range c.Cameras {
		if camera.Enabled != nil && !*camera.Enabled {
			continue
		}
		if len(camera.PolygonPts) < 3 {
			return errors.Wrapf(ErrInvalidConfig, "cameras.%s.polygon_pts needs 3 points at least, got %d", name, len(camera.PolygonPts))
		}
		for i, pt := range camera.PolygonPts {
			if len(pt) != 2 {
				return errors.Wrapf(ErrInvalidConfig, "cameras.%s.polygon_pts[%d] must be [x, y]", name, i)
			}
		}
	}
	return nil
}

func validateHSV(key string, values []float64) error {
	if values == nil {
		return nil
	}
	if len(values) != 3 {
		return errors.Wrapf(ErrInvalidConfig, "%s must have 3 values, got %d", key, len(values))
	}
	if values[0] < 0 || values[0] > 180 {
		return errors.Wrapf(ErrInvalidConfig, "%s hue must be in [0, 180], got %f", key, values[0])
	}
	for _, v := range values[1:] {
		if v < 0 || v > 255 {
			return errors.Wrapf(ErrInvalidConfig, "%s saturation and value must be in [0, 255], got %f", key, v)
		}
	}
	return nil
}

// GetBaseUploadPath returns the directory cameras upload batches to
func (c *Config) GetBaseUploadPath() string {
	if c.Paths.BaseUploadPath == nil {
		return ""
	}
	return *c.Paths.BaseUploadPath
}

// GetBaseProcessedPath returns the directory results are written to
func (c *Config) GetBaseProcessedPath() string {
	if c.Paths.BaseProcessedPath == nil {
		return ""
	}
	return *c.Paths.BaseProcessedPath
}

// GetFileWaitTime returns max time to wait for a file to be written
func (c *Config) GetFileWaitTime() time.Duration {
	if c.Processing.FileWaitTime == nil {
		return 2 * time.Second // default
	}
	return time.Duration(*c.Processing.FileWaitTime * float64(time.Second))
}

// GetPollInterval returns interval between file size checks
func (c *Config) GetPollInterval() time.Duration {
	if c.Processing.PollInterval == nil || *c.Processing.PollInterval == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.Processing.PollInterval)
	if err != nil {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

// GetMinArea returns min contour area
func (c *Config) GetMinArea() float64 {
	if c.Processing.MinArea == nil {
		return 50.0
	}
	return *c.Processing.MinArea
}

// GetRemoveSource returns whether processed images are removed
func (c *Config) GetRemoveSource() bool {
	if c.Processing.RemoveSource == nil {
		return true
	}
	return *c.Processing.RemoveSource
}

// GetStrategy returns estimator strategy name
func (c *Config) GetStrategy() string {
	if c.Estimator.Strategy == nil || *c.Estimator.Strategy == "" {
		return StrategyTopEdge
	}
	return *c.Estimator.Strategy
}

// GetEllipticityThreshold returns the centroid estimator ellipticity threshold
func (c *Config) GetEllipticityThreshold() float64 {
	if c.Estimator.EllipticityThreshold == nil {
		return 0.8
	}
	return *c.Estimator.EllipticityThreshold
}

// TopEdgeConfig translates estimator section, defaults are taken from mot
func (c *Config) TopEdgeConfig() mot.EstimatorConfig {
	cfg := mot.DefaultEstimatorConfig()
	e := c.Estimator
	if e.CompletenessThreshold != nil {
		cfg.CompletenessThreshold = *e.CompletenessThreshold
	}
	if e.AngleThreshold != nil {
		cfg.AngleThreshold = *e.AngleThreshold
	}
	if e.TopPercentage != nil {
		cfg.TopPercentage = *e.TopPercentage
	}
	if e.EpsilonFactor != nil {
		cfg.EpsilonFactor = *e.EpsilonFactor
	}
	if e.LineFitMinPoints != nil {
		cfg.LineFitMinPoints = *e.LineFitMinPoints
	}
	if e.TopBandOffset != nil {
		cfg.TopBandOffset = *e.TopBandOffset
	}
	return cfg
}

// NewEstimator builds the configured center estimator
func (c *Config) NewEstimator() (mot.CenterEstimator, error) {
	switch c.GetStrategy() {
	case StrategyCentroid:
		return mot.NewCentroidEstimator(c.TopEdgeConfig().CompletenessThreshold, c.GetEllipticityThreshold())
	default:
		return mot.NewTopEdgeEstimator(c.TopEdgeConfig())
	}
}

// TrackerConfig translates tracking section, defaults are taken from mot
func (c *Config) TrackerConfig() mot.TrackerConfig {
	cfg := mot.DefaultTrackerConfig()
	t := c.Tracking
	if t.RowTolerance != nil {
		cfg.RowTolerance = *t.RowTolerance
	}
	if t.Gate.MinDX != nil {
		cfg.Gate.MinDX = *t.Gate.MinDX
	}
	if t.Gate.MaxDX != nil {
		cfg.Gate.MaxDX = *t.Gate.MaxDX
	}
	if t.Gate.MinDY != nil {
		cfg.Gate.MinDY = *t.Gate.MinDY
	}
	if t.Gate.MaxDY != nil {
		cfg.Gate.MaxDY = *t.Gate.MaxDY
	}
	if t.ChangeThreshold != nil {
		cfg.ChangeThreshold = *t.ChangeThreshold
	}
	if t.StableFraction != nil {
		cfg.StableFraction = *t.StableFraction
	}
	if t.AuditAssignments != nil {
		cfg.AuditAssignments = *t.AuditAssignments
	}
	return cfg
}

// GetResumeFromStore returns whether trackers are seeded from the result store
func (c *Config) GetResumeFromStore() bool {
	if c.Tracking.ResumeFromStore == nil {
		return false
	}
	return *c.Tracking.ResumeFromStore
}

// GetHSVLower returns lower HSV threshold
func (c *Config) GetHSVLower() [3]float64 {
	if len(c.Vision.HSVLower) != 3 {
		return [3]float64{70, 70, 70}
	}
	return [3]float64{c.Vision.HSVLower[0], c.Vision.HSVLower[1], c.Vision.HSVLower[2]}
}

// GetHSVUpper returns upper HSV threshold
func (c *Config) GetHSVUpper() [3]float64 {
	if len(c.Vision.HSVUpper) != 3 {
		return [3]float64{140, 255, 255}
	}
	return [3]float64{c.Vision.HSVUpper[0], c.Vision.HSVUpper[1], c.Vision.HSVUpper[2]}
}

// GetROIMargin returns region polygon offset
func (c *Config) GetROIMargin() float64 {
	if c.Vision.ROIMargin == nil {
		return 0
	}
	return *c.Vision.ROIMargin
}

// GetAnnotate returns whether annotated copies are written
func (c *Config) GetAnnotate() bool {
	if c.Vision.Annotate == nil {
		return true
	}
	return *c.Vision.Annotate
}

// GetOCRRegion returns the timestamp area of the first batch image
func (c *Config) GetOCRRegion() image.Rectangle {
	if len(c.OCR.Region) != 4 {
		return image.Rect(182, 1893, 810, 1962)
	}
	r := c.OCR.Region
	return image.Rectangle{Min: image.Pt(r[0], r[1]), Max: image.Pt(r[2], r[3])}
}

// GetOCRLanguage returns tesseract language
func (c *Config) GetOCRLanguage() string {
	if c.OCR.Language == nil || *c.OCR.Language == "" {
		return "eng"
	}
	return *c.OCR.Language
}

// GetSQLitePath returns result store path, empty when the store is disabled
func (c *Config) GetSQLitePath() string {
	if c.Storage.SQLitePath == nil {
		return ""
	}
	return *c.Storage.SQLitePath
}

// GetLogLevel returns log level name
func (c *Config) GetLogLevel() string {
	if c.Logging.Level == nil || *c.Logging.Level == "" {
		return "INFO"
	}
	return *c.Logging.Level
}

// GetLogFile returns log file path, empty when logging to file is disabled
func (c *Config) GetLogFile() string {
	if c.Logging.LogFile == nil {
		return ""
	}
	return *c.Logging.LogFile
}

// GetConsoleOutput returns whether logs are printed to console
func (c *Config) GetConsoleOutput() bool {
	if c.Logging.ConsoleOutput == nil {
		return true
	}
	return *c.Logging.ConsoleOutput
}

// CameraSettings returns enabled cameras sorted by name. Init points are loaded from disk.
func (c *Config) CameraSettings() ([]CameraSettings, error) {
	names := make([]string, 0, len(c.Cameras))
	for name, camera := range c.Cameras {
		if camera.Enabled != nil && !*camera.Enabled {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	settings := make([]CameraSettings, 0, len(names))
	for _, name := range names {
		camera := c.Cameras[name]
		vertices := make([]image.Point, len(camera.PolygonPts))
		for i, pt := range camera.PolygonPts {
			vertices[i] = image.Pt(pt[0], pt[1])
		}
		region, err := mot.NewRegionOfInterest(vertices)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %s", name)
		}
		s := CameraSettings{
			Name:   name,
			Region: region,
		}
		if camera.InitPointsPath != nil && *camera.InitPointsPath != "" {
			points, err := pixelfile.ReadFile(*camera.InitPointsPath)
			if err != nil {
				return nil, errors.Wrapf(err, "camera %s: can't load init points", name)
			}
			s.InitPoints = points
		}
		settings = append(settings, s)
	}
	return settings, nil
}

// EnsureDirectories creates upload directories of enabled cameras, processed root and log directory
func (c *Config) EnsureDirectories() error {
	for name, camera := range c.Cameras {
		if camera.Enabled != nil && !*camera.Enabled {
			continue
		}
		dir := filepath.Join(c.GetBaseUploadPath(), name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "can't create %s", dir)
		}
	}
	if err := os.MkdirAll(c.GetBaseProcessedPath(), 0o755); err != nil {
		return errors.Wrapf(err, "can't create %s", c.GetBaseProcessedPath())
	}
	if logFile := c.GetLogFile(); logFile != "" {
		if dir := filepath.Dir(logFile); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "can't create %s", dir)
			}
		}
	}
	return nil
}
