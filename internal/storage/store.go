// Package storage keeps resolved marker positions in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/LdDl/marker-tracker/mot"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrNoFrames is returned when camera has no stored frames
var ErrNoFrames = errors.New("no stored frames")

// schema.sql creates frames and per-index marker positions
//
//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// FrameRecord is one processed image
type FrameRecord struct {
	Camera         string
	BatchTimestamp string
	ImageName      string
	TrackerID      string
	Mode           mot.ResolveMode
	RevertedCount  int
	ProcessedAt    time.Time
	// Ordered positions, index i is marker identity i+1
	Points []mot.Point
}

// Store is SQLite backed result store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) database at path and applies schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open database %s", path)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "can't apply %q", pragma)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "can't apply schema")
	}
	return &Store{db: db}, nil
}

// Close closes database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveFrame stores frame and its positions in one transaction. Returns frame id.
func (s *Store) SaveFrame(ctx context.Context, rec FrameRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO frames (camera, batch_timestamp, image_name, tracker_id, resolve_mode, reverted_count, processed_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Camera, rec.BatchTimestamp, rec.ImageName, rec.TrackerID, rec.Mode.String(), rec.RevertedCount, processedAt.UnixNano())
	if err != nil {
		return 0, errors.Wrapf(err, "can't insert frame %s", rec.ImageName)
	}
	frameID, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "can't get frame id")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marker_positions (frame_id, marker_index, x, y)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, errors.Wrap(err, "can't prepare position insert")
	}
	defer stmt.Close()
	for i, p := range rec.Points {
		if _, err := stmt.ExecContext(ctx, frameID, i+1, p.X, p.Y); err != nil {
			return 0, errors.Wrapf(err, "can't insert position %d", i+1)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "can't commit frame")
	}
	return frameID, nil
}

// LatestFrame returns the most recently stored frame of camera with its positions
func (s *Store) LatestFrame(ctx context.Context, camera string) (FrameRecord, error) {
	var (
		rec           FrameRecord
		frameID       int64
		mode          string
		processedAtNs int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT frame_id, camera, batch_timestamp, image_name, tracker_id, resolve_mode, reverted_count, processed_at_ns
		FROM frames
		WHERE camera = ?
		ORDER BY frame_id DESC
		LIMIT 1
	`, camera).Scan(&frameID, &rec.Camera, &rec.BatchTimestamp, &rec.ImageName, &rec.TrackerID, &mode, &rec.RevertedCount, &processedAtNs)
	if errors.Is(err, sql.ErrNoRows) {
		return FrameRecord{}, errors.Wrapf(ErrNoFrames, "camera %s", camera)
	}
	if err != nil {
		return FrameRecord{}, errors.Wrapf(err, "can't query latest frame of %s", camera)
	}
	rec.Mode = parseMode(mode)
	rec.ProcessedAt = time.Unix(0, processedAtNs)

	rows, err := s.db.QueryContext(ctx, `
		SELECT x, y FROM marker_positions
		WHERE frame_id = ?
		ORDER BY marker_index
	`, frameID)
	if err != nil {
		return FrameRecord{}, errors.Wrapf(err, "can't query positions of frame %d", frameID)
	}
	defer rows.Close()
	for rows.Next() {
		var p mot.Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return FrameRecord{}, errors.Wrap(err, "can't scan position")
		}
		rec.Points = append(rec.Points, p)
	}
	if err := rows.Err(); err != nil {
		return FrameRecord{}, errors.Wrap(err, "can't read positions")
	}
	return rec, nil
}

func parseMode(s string) mot.ResolveMode {
	switch s {
	case mot.ModeInitial.String():
		return mot.ModeInitial
	case mot.ModeTemporal.String():
		return mot.ModeTemporal
	default:
		return mot.ModeNone
	}
}
