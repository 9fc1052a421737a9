package domain

import (
	"strings"
	"time"
)

// Course is a catalog entry. Courses are created by the catalog sync and are
// read-only for the web surface.
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Instructor  string    `json:"instructor"`
	Duration    string    `json:"duration"`
	Level       string    `json:"level"`
	Thumbnail   string    `json:"thumbnail"`
	CreatedAt   time.Time `json:"created_at"`
}

// LevelTone maps the course level to the colour used for its badge.
// Unknown levels get the neutral tone.
func (c Course) LevelTone() string {
	switch strings.ToLower(c.Level) {
	case "beginner":
		return "emerald"
	case "intermediate":
		return "blue"
	case "advanced":
		return "orange"
	default:
		return "gray"
	}
}

// Lesson is a single entry in a course's lesson list.
// OrderNumber defines the display order within the course.
type Lesson struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	OrderNumber int    `json:"order_number"`
}

// CourseProgress tracks one user's completion state for one course.
// There is at most one row per (CourseID, UserID).
type CourseProgress struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	UserID      string     `json:"user_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Draft is a course as authored in a catalog source, before it is stored.
type Draft struct {
	Course  Course
	Lessons []Lesson
}
