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

const courseColumns = `id, title, description, instructor, duration, level, thumbnail, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (domain.Course, error) {
	var c domain.Course
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Instructor,
		&c.Duration,
		&c.Level,
		&c.Thumbnail,
		&c.CreatedAt,
	)
	return c, err
}

// ListCourses returns every course, oldest first.
func (db *DB) ListCourses(ctx context.Context) ([]domain.Course, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+courseColumns+`
		FROM courses
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []domain.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course row: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// FindCourse retrieves a course by its ID. It returns nil, nil when no such
// course exists.
func (db *DB) FindCourse(ctx context.Context, id string) (*domain.Course, error) {
	row := db.conn.QueryRowContext(ctx, db.q(`
		SELECT `+courseColumns+`
		FROM courses WHERE id = ?
	`), id)

	c, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Course not found
		}
		return nil, fmt.Errorf("failed to find course %s: %w", id, err)
	}
	return &c, nil
}

// ListLessons returns the lessons of a course ordered by order number.
func (db *DB) ListLessons(ctx context.Context, courseID string) ([]domain.Lesson, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT id, course_id, title, description, duration, order_number
		FROM lessons WHERE course_id = ?
		ORDER BY order_number ASC
	`), courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons for course %s: %w", courseID, err)
	}
	defer rows.Close()

	var lessons []domain.Lesson
	for rows.Next() {
		var l domain.Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Description, &l.Duration, &l.OrderNumber); err != nil {
			return nil, fmt.Errorf("failed to scan lesson row for course %s: %w", courseID, err)
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// UpsertCourse stores a drafted course and replaces its lessons. Nothing is
// written when both the stored content hash and the owning source already
// match; a matching hash under a different source only moves ownership. The
// returned bool reports whether anything was written.
func (db *DB) UpsertCourse(ctx context.Context, draft domain.Draft, sourceID, hash string) (bool, error) {
	c := draft.Course
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin upsert for course %s: %w", c.ID, err)
	}
	defer tx.Rollback()

	var source sql.NullString
	if sourceID != "" {
		source = sql.NullString{String: sourceID, Valid: true}
	}

	var (
		existing      string
		existingOwner sql.NullString
	)
	err = tx.QueryRowContext(ctx, db.q(`SELECT content_hash, source_id FROM courses WHERE id = ?`), c.ID).Scan(&existing, &existingOwner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, db.q(`
			INSERT INTO courses (id, title, description, instructor, duration, level, thumbnail, content_hash, source_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), c.ID, c.Title, c.Description, c.Instructor, c.Duration, c.Level, c.Thumbnail, hash, source, createdAt)
		if err != nil {
			return false, fmt.Errorf("failed to insert course %s: %w", c.ID, err)
		}
	case err != nil:
		return false, fmt.Errorf("failed to read content hash for course %s: %w", c.ID, err)
	case existing == hash && existingOwner == source:
		return false, nil
	case existing == hash:
		_, err = tx.ExecContext(ctx, db.q(`UPDATE courses SET source_id = ? WHERE id = ?`), source, c.ID)
		if err != nil {
			return false, fmt.Errorf("failed to move course %s to source %s: %w", c.ID, sourceID, err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit course %s: %w", c.ID, err)
		}
		return true, nil
	default:
		_, err = tx.ExecContext(ctx, db.q(`
			UPDATE courses
			SET title = ?, description = ?, instructor = ?, duration = ?, level = ?, thumbnail = ?, content_hash = ?, source_id = ?
			WHERE id = ?
		`), c.Title, c.Description, c.Instructor, c.Duration, c.Level, c.Thumbnail, hash, source, c.ID)
		if err != nil {
			return false, fmt.Errorf("failed to update course %s: %w", c.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, db.q(`DELETE FROM lessons WHERE course_id = ?`), c.ID); err != nil {
		return false, fmt.Errorf("failed to clear lessons for course %s: %w", c.ID, err)
	}
	for _, l := range draft.Lessons {
		id := l.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, db.q(`
			INSERT INTO lessons (id, course_id, title, description, duration, order_number)
			VALUES (?, ?, ?, ?, ?, ?)
		`), id, c.ID, l.Title, l.Description, l.Duration, l.OrderNumber)
		if err != nil {
			return false, fmt.Errorf("failed to insert lesson %q for course %s: %w", l.Title, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit course %s: %w", c.ID, err)
	}
	return true, nil
}

// ListCourseIDsBySource returns the IDs of all courses last written by a source.
func (db *DB) ListCourseIDsBySource(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT id FROM courses WHERE source_id = ? ORDER BY id
	`), sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get courses for source ID %s: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan course ID for source ID %s: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
