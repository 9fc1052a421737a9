package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/learnhub/internal/domain"
	"github.com/google/uuid"
)

func scanProgress(row rowScanner) (domain.CourseProgress, error) {
	var (
		p           domain.CourseProgress
		completedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.CourseID, &p.UserID, &p.Completed, &completedAt); err != nil {
		return p, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// ListProgressByUser returns every progress row belonging to a user.
func (db *DB) ListProgressByUser(ctx context.Context, userID string) ([]domain.CourseProgress, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT id, course_id, user_id, completed, completed_at
		FROM course_progress WHERE user_id = ?
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for user %s: %w", userID, err)
	}
	defer rows.Close()

	var progress []domain.CourseProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress row for user %s: %w", userID, err)
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

// FindProgress retrieves the progress row for a (course, user) pair. It
// returns nil, nil when the user has no progress on the course.
func (db *DB) FindProgress(ctx context.Context, courseID, userID string) (*domain.CourseProgress, error) {
	row := db.conn.QueryRowContext(ctx, db.q(`
		SELECT id, course_id, user_id, completed, completed_at
		FROM course_progress WHERE course_id = ? AND user_id = ?
	`), courseID, userID)

	p, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No progress yet
		}
		return nil, fmt.Errorf("failed to find progress for course %s, user %s: %w", courseID, userID, err)
	}
	return &p, nil
}

// InsertProgress stores a new progress row and returns it with its generated ID.
func (db *DB) InsertProgress(ctx context.Context, p domain.CourseProgress) (*domain.CourseProgress, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO course_progress (id, course_id, user_id, completed, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`), p.ID, p.CourseID, p.UserID, p.Completed, nullTime(p.CompletedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert progress for course %s, user %s: %w", p.CourseID, p.UserID, err)
	}
	if p.CompletedAt != nil {
		t := p.CompletedAt.UTC()
		p.CompletedAt = &t
	}
	return &p, nil
}

// UpdateProgress sets the completion state of an existing progress row.
// completedAt is stored as NULL when nil.
func (db *DB) UpdateProgress(ctx context.Context, id string, completed bool, completedAt *time.Time) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE course_progress
		SET completed = ?, completed_at = ?
		WHERE id = ?
	`), completed, nullTime(completedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update progress %s: %w", id, err)
	}
	return nil
}
