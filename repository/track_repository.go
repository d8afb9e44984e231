package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trackmarket/logger"
	"trackmarket/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	ListTracksByUserID(ctx context.Context, userID int64) ([]*model.Track, error)
	UpdateTrackStatus(ctx context.Context, id string, status model.TrackStatus) error
	AttachObject(ctx context.Context, id, objectKey, cdnURL string, status model.TrackStatus) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

const trackColumns = `id, user_id, title, artist, genre, file_name, file_size, duration_sec, price, status, object_key, cdn_url, created_at, updated_at, sold_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*model.Track, error) {
	t := &model.Track{}
	var soldAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Artist, &t.Genre, &t.FileName, &t.FileSize,
		&t.DurationSec, &t.Price, &t.Status, &t.ObjectKey, &t.CDNURL, &t.CreatedAt, &t.UpdatedAt, &soldAt)
	if err != nil {
		return nil, err
	}
	if soldAt.Valid {
		at := soldAt.Time
		t.SoldAt = &at
	}
	return t, nil
}

// CreateTrack adds a new track. CreatedAt/UpdatedAt are filled in when zero.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, t *model.Track) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	query := `INSERT INTO tracks (` + trackColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, t.Title, t.Artist, t.Genre, t.FileName, t.FileSize,
		t.DurationSec, t.Price, t.Status, t.ObjectKey, t.CDNURL, t.CreatedAt, t.UpdatedAt, nullTime(t.SoldAt))
	if err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	logger.Debug("track created", logger.String("trackId", t.ID), logger.String("title", t.Title))
	return nil
}

// GetTrackByID returns ErrNotFound when no row matches.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	t, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan track by ID %s: %w", id, err)
	}
	return t, nil
}

// ListTracksByUserID returns the user's whole catalogue, newest first.
func (r *mysqlTrackRepository) ListTracksByUserID(ctx context.Context, userID int64) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in ListTracksByUserID: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListTracksByUserID: %w", err)
	}
	return tracks, nil
}

// UpdateTrackStatus moves a track without touching its stored object.
func (r *mysqlTrackRepository) UpdateTrackStatus(ctx context.Context, id string, status model.TrackStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tracks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrackStatus for track %s: %w", id, err)
	}
	return expectOneRow(res)
}

// AttachObject records where the audio landed and moves the track to status.
func (r *mysqlTrackRepository) AttachObject(ctx context.Context, id, objectKey, cdnURL string, status model.TrackStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET object_key = ?, cdn_url = ?, status = ?, updated_at = ? WHERE id = ?`,
		objectKey, cdnURL, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to execute AttachObject for track %s: %w", id, err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
