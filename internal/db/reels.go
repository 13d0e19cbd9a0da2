package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bobarin/reels/internal/models"
)

// ErrReelNotFound is returned when no reel has the requested id.
var ErrReelNotFound = errors.New("reel not found")

const reelColumns = `
	id, status, progress, script, tone, voice_id, timeline,
	voiceover_path, caption_path, music_path, output_path, output_url,
	error_message, cancel_requested, started_at, completed_at,
	created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReel(row rowScanner) (*models.ReelJob, error) {
	var (
		job      models.ReelJob
		timeline models.SceneTimeline
		rawTL    []byte
	)
	err := row.Scan(
		&job.ID, &job.Status, &job.Progress, &job.Script, &job.Tone, &job.VoiceID, &rawTL,
		&job.VoiceoverPath, &job.CaptionPath, &job.MusicPath, &job.OutputPath, &job.OutputURL,
		&job.ErrorMessage, &job.CancelRequested, &job.StartedAt, &job.CompletedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rawTL != nil {
		if err := timeline.Scan(rawTL); err != nil {
			return nil, fmt.Errorf("failed to decode timeline: %w", err)
		}
		job.Timeline = &timeline
	}
	return &job, nil
}

func (db *DB) CreateReel(ctx context.Context, job *models.ReelJob) error {
	query := `
		INSERT INTO reels (id, status, progress, script, tone, voice_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	return db.QueryRowContext(
		ctx, query,
		job.ID, job.Status, job.Progress, job.Script, job.Tone, job.VoiceID,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetReel(ctx context.Context, id uuid.UUID) (*models.ReelJob, error) {
	job, err := scanReel(db.QueryRowContext(ctx, `SELECT `+reelColumns+` FROM reels WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrReelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reel: %w", err)
	}
	return job, nil
}

// ListReels returns reels newest first, optionally filtered by status.
func (db *DB) ListReels(ctx context.Context, status string, limit, offset int) ([]models.ReelJob, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `SELECT ` + reelColumns + ` FROM reels`
	if status != "" {
		rows, err = db.QueryContext(ctx, baseSelect+` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		rows, err = db.QueryContext(ctx, baseSelect+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reels: %w", err)
	}
	defer rows.Close()

	reels := []models.ReelJob{}
	for rows.Next() {
		job, err := scanReel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reel: %w", err)
		}
		reels = append(reels, *job)
	}
	return reels, rows.Err()
}

func (db *DB) CountReels(ctx context.Context, status string) (int, error) {
	var count int
	var err error
	if status != "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reels WHERE status = $1`, status).Scan(&count)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reels`).Scan(&count)
	}
	return count, err
}

// ReportStatus persists a job snapshot. Rows already in a terminal state
// are never overwritten.
func (db *DB) ReportStatus(ctx context.Context, job *models.ReelJob) error {
	query := `
		UPDATE reels SET
			status = $2, progress = GREATEST(progress, $3), timeline = $4,
			voiceover_path = $5, caption_path = $6, music_path = $7, output_path = $8,
			error_message = $9, started_at = $10, completed_at = $11, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	var timeline any
	if job.Timeline != nil {
		v, err := job.Timeline.Value()
		if err != nil {
			return fmt.Errorf("failed to encode timeline: %w", err)
		}
		timeline = v
	}
	_, err := db.ExecContext(ctx, query,
		job.ID, job.Status, job.Progress, timeline,
		job.VoiceoverPath, job.CaptionPath, job.MusicPath, job.OutputPath,
		job.ErrorMessage, job.StartedAt, job.CompletedAt,
	)
	return err
}

// FailReel marks a reel failed outside the pipeline (e.g. a job that could
// not be started).
func (db *DB) FailReel(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE reels
		SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	_, err := db.ExecContext(ctx, query, id, models.ReelStatusFailed, errorMessage)
	return err
}

func (db *DB) SetReelOutputURL(ctx context.Context, id uuid.UUID, url string) error {
	_, err := db.ExecContext(ctx, `UPDATE reels SET output_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	return err
}

// RequestCancel flags a reel for cancellation and returns its current
// status. Terminal reels are left untouched.
func (db *DB) RequestCancel(ctx context.Context, id uuid.UUID) (models.ReelStatus, error) {
	var status models.ReelStatus
	err := db.QueryRowContext(ctx, `
		UPDATE reels
		SET cancel_requested = (status NOT IN ('completed', 'failed', 'cancelled')) OR cancel_requested,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING status
	`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrReelNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to request cancel: %w", err)
	}
	return status, nil
}

// IsCancelled reports the persisted cancel flag. Lookup errors read as not
// cancelled; the queue flag is the fast path.
func (db *DB) IsCancelled(ctx context.Context, id uuid.UUID) bool {
	var flagged bool
	if err := db.QueryRowContext(ctx, `SELECT cancel_requested FROM reels WHERE id = $1`, id).Scan(&flagged); err != nil {
		return false
	}
	return flagged
}
