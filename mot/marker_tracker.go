package mot

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrEmptySeed is returned when tracker is seeded with no points
var ErrEmptySeed = errors.New("seed has no points")

// TrackerState is the tracker lifecycle state
type TrackerState uint16

const (
	// StateCold means no previous frame is known. The next non-empty frame is ordered from scratch.
	StateCold TrackerState = iota
	// StateWarm means previous frame's ordered list exists and identities are carried forward
	StateWarm
)

func (s TrackerState) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateWarm:
		return "warm"
	default:
		return "unknown"
	}
}

// ResolveMode tells which path produced the frame result
type ResolveMode uint16

const (
	// ModeNone is used when frame had no candidates
	ModeNone ResolveMode = iota
	// ModeInitial is the row-scan ordering of a cold start
	ModeInitial
	// ModeTemporal is gated matching against previous frame
	ModeTemporal
)

func (m ResolveMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeInitial:
		return "initial"
	case ModeTemporal:
		return "temporal"
	default:
		return "unknown"
	}
}

// Gate is the asymmetric window of admissible frame-to-frame motion (candidate minus previous).
// Bounds are inclusive.
type Gate struct {
	MinDX float64
	MaxDX float64
	MinDY float64
	MaxDY float64
}

func (g Gate) admits(dx, dy float64) bool {
	return dx >= g.MinDX && dx <= g.MaxDX && dy >= g.MinDY && dy <= g.MaxDY
}

// TrackerConfig holds marker tracker parameters
type TrackerConfig struct {
	// Max vertical distance (inclusive) from row anchor for cold start row grouping. Default 30
	RowTolerance float64
	// Admissible motion window. Default dx in [-50, 50], dy in [-20, 45]
	Gate Gate
	// Displacement at or above which a match is suspicious. Default 50
	ChangeThreshold float64
	// Share of stable indices which triggers reverting suspicious ones. Default 0.75
	StableFraction float64
	// Compute optimal assignment for diagnostics. Never changes output. Default false
	AuditAssignments bool
}

// DefaultTrackerConfig returns default tracker parameters
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		RowTolerance: 30.0,
		Gate: Gate{
			MinDX: -50.0,
			MaxDX: 50.0,
			MinDY: -20.0,
			MaxDY: 45.0,
		},
		ChangeThreshold:  50.0,
		StableFraction:   0.75,
		AuditAssignments: false,
	}
}

// Validate checks parameter ranges
func (cfg TrackerConfig) Validate() error {
	if cfg.RowTolerance < 0 {
		return errors.Wrapf(ErrInvalidConfig, "row tolerance must be non-negative, got %f", cfg.RowTolerance)
	}
	if cfg.Gate.MinDX > cfg.Gate.MaxDX {
		return errors.Wrapf(ErrInvalidConfig, "gate dx range is empty: [%f, %f]", cfg.Gate.MinDX, cfg.Gate.MaxDX)
	}
	if cfg.Gate.MinDY > cfg.Gate.MaxDY {
		return errors.Wrapf(ErrInvalidConfig, "gate dy range is empty: [%f, %f]", cfg.Gate.MinDY, cfg.Gate.MaxDY)
	}
	if cfg.ChangeThreshold <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "change threshold must be positive, got %f", cfg.ChangeThreshold)
	}
	if cfg.StableFraction < 0 || cfg.StableFraction > 1 {
		return errors.Wrapf(ErrInvalidConfig, "stable fraction must be in [0, 1], got %f", cfg.StableFraction)
	}
	return nil
}

// MarkerTracker assigns stable identities (index positions) to markers of a fixed set across frames.
// It is not safe for concurrent use: callers serialize calls per instance.
type MarkerTracker struct {
	id  uuid.UUID
	roi RegionOfInterest
	cfg TrackerConfig
	// Ordered coordinates of the previous frame. Nil when cold
	history []Point
}

// Resolution is the result of one frame together with diagnostics
type Resolution struct {
	// Ordered coordinates. Nil when frame had no candidates
	Points []Point
	Mode   ResolveMode
	// Euclidean displacement per index (temporal mode only). Zero for unmatched indices
	Displacements []float64
	// Whether index received a candidate (temporal mode only)
	Matched []bool
	// Indices reverted to previous coordinates by stability correction
	Reverted []int
	// Share of indices with displacement below change threshold (temporal mode only)
	StableShare float64
	// Whether stability correction was applied
	CorrectionApplied bool
	// Candidates not assigned to any index
	Dropped []Point
	// Filled when AuditAssignments is enabled and mode is temporal
	Audit *AssignmentAudit
}

// NewMarkerTrackerDefault creates tracker with default parameters
func NewMarkerTrackerDefault(roi RegionOfInterest) *MarkerTracker {
	return &MarkerTracker{
		id:  uuid.New(),
		roi: roi,
		cfg: DefaultTrackerConfig(),
	}
}

// NewMarkerTracker creates tracker with given parameters
func NewMarkerTracker(roi RegionOfInterest, cfg TrackerConfig) (*MarkerTracker, error) {
	if roi.IsZero() {
		return nil, errors.Wrap(ErrInvalidRegion, "can't create marker tracker")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "can't create marker tracker")
	}
	return &MarkerTracker{
		id:  uuid.New(),
		roi: roi,
		cfg: cfg,
	}, nil
}

// GetID returns tracker instance identifier
func (tracker *MarkerTracker) GetID() uuid.UUID {
	return tracker.id
}

// ROI returns region of interest the tracker was created for
func (tracker *MarkerTracker) ROI() RegionOfInterest {
	return tracker.roi
}

// Config returns tracker parameters
func (tracker *MarkerTracker) Config() TrackerConfig {
	return tracker.cfg
}

// State returns lifecycle state
func (tracker *MarkerTracker) State() TrackerState {
	if tracker.history == nil {
		return StateCold
	}
	return StateWarm
}

// IsWarm is shorthand for State() == StateWarm
func (tracker *MarkerTracker) IsWarm() bool {
	return tracker.history != nil
}

// History returns copy of the previous frame's ordered coordinates. Nil when cold.
func (tracker *MarkerTracker) History() []Point {
	return copyPoints(tracker.history)
}

// Seed makes tracker warm with given ordered coordinates, e.g. restored from previous run
func (tracker *MarkerTracker) Seed(points []Point) error {
	if len(points) == 0 {
		return ErrEmptySeed
	}
	for i, p := range points {
		if !p.isFinite() {
			return errors.Errorf("seed point %d is not finite: (%f, %f)", i+1, p.X, p.Y)
		}
	}
	tracker.history = copyPoints(points)
	return nil
}

// Reset forgets previous frame. Next non-empty frame is a cold start
func (tracker *MarkerTracker) Reset() {
	tracker.history = nil
}

// Resolve returns ordered coordinates for frame candidates.
// Nil result means no markers were found in this frame; tracker state is unchanged then.
func (tracker *MarkerTracker) Resolve(candidates []Point) []Point {
	return tracker.ResolveFrame(candidates).Points
}

// ResolveFrame is Resolve which also returns diagnostics
func (tracker *MarkerTracker) ResolveFrame(candidates []Point) Resolution {
	if len(candidates) == 0 {
		return Resolution{
			Mode: ModeNone,
		}
	}
	if tracker.history == nil {
		ordered := orderByRows(candidates, tracker.cfg.RowTolerance)
		tracker.history = ordered
		return Resolution{
			Points: copyPoints(ordered),
			Mode:   ModeInitial,
		}
	}
	res := tracker.matchTemporal(candidates)
	tracker.history = copyPoints(res.Points)
	return res
}

// orderByRows scans candidates top to bottom: the top-most remaining point anchors a row,
// every remaining point within tolerance below it joins the row, the row is sorted left to right.
func orderByRows(candidates []Point, tolerance float64) []Point {
	remaining := newRowHeap(candidates)
	ordered := make([]Point, 0, len(candidates))
	for remaining.Len() > 0 {
		anchor := remaining.Pop()
		row := []*rowCandidate{anchor}
		// Anchor has the smallest Y, so |y - anchor.y| is y - anchor.y
		for remaining.Len() > 0 && remaining.Peek().point.Y-anchor.point.Y <= tolerance {
			row = append(row, remaining.Pop())
		}
		sort.Slice(row, func(i, j int) bool {
			if row[i].point.X != row[j].point.X {
				return row[i].point.X < row[j].point.X
			}
			if row[i].point.Y != row[j].point.Y {
				return row[i].point.Y < row[j].point.Y
			}
			return row[i].index < row[j].index
		})
		for _, c := range row {
			ordered = append(ordered, c.point)
		}
	}
	return ordered
}

// matchTemporal runs greedy index-priority matching followed by stability correction.
// Earlier identities take precedence; this is intended and must stay greedy.
func (tracker *MarkerTracker) matchTemporal(candidates []Point) Resolution {
	history := tracker.history
	n := len(history)
	result := make([]Point, n)
	displacements := make([]float64, n)
	matched := make([]bool, n)
	assigned := make([]int, n)
	used := make([]bool, len(candidates))

	for i, prev := range history {
		assigned[i] = -1
		bestIdx := -1
		bestDist := math.MaxFloat64
		for j, candidate := range candidates {
			if used[j] {
				continue
			}
			dx := candidate.X - prev.X
			dy := candidate.Y - prev.Y
			if !tracker.cfg.Gate.admits(dx, dy) {
				continue
			}
			if dist := dx*dx + dy*dy; dist < bestDist {
				bestDist = dist
				bestIdx = j
			}
		}
		if bestIdx < 0 {
			// Marker lost in this frame: keep where it was
			result[i] = prev
			continue
		}
		used[bestIdx] = true
		assigned[i] = bestIdx
		matched[i] = true
		result[i] = candidates[bestIdx]
		displacements[i] = math.Sqrt(bestDist)
	}

	stable := 0
	for _, d := range displacements {
		if d < tracker.cfg.ChangeThreshold {
			stable++
		}
	}
	stableShare := float64(stable) / float64(n)

	res := Resolution{
		Mode:          ModeTemporal,
		Displacements: displacements,
		Matched:       matched,
		StableShare:   stableShare,
	}
	if stableShare >= tracker.cfg.StableFraction {
		res.CorrectionApplied = true
		for i, d := range displacements {
			if d >= tracker.cfg.ChangeThreshold {
				result[i] = history[i]
				res.Reverted = append(res.Reverted, i)
			}
		}
	}
	for j := range candidates {
		if !used[j] {
			res.Dropped = append(res.Dropped, candidates[j])
		}
	}
	if tracker.cfg.AuditAssignments {
		audit := auditAssignments(history, candidates, tracker.cfg.Gate, assigned)
		res.Audit = &audit
	}
	res.Points = result
	return res
}
