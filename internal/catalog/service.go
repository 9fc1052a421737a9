// Package catalog implements the course list and course detail views and the
// completion toggle on top of a Store.
//
// Read failures are logged and degrade to an empty view. Write failures are
// logged by the caller; local state only ever reflects confirmed writes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/learnhub/internal/domain"
)

var (
	// ErrToggleInFlight is returned when a toggle for the same course and
	// user has not finished yet. No write is issued.
	ErrToggleInFlight = errors.New("completion toggle already in flight")
	// ErrCourseNotFound is returned when toggling a course that does not exist.
	ErrCourseNotFound = errors.New("course not found")
)

// Store is the data access the catalog needs. *storage.DB implements it.
type Store interface {
	ListCourses(ctx context.Context) ([]domain.Course, error)
	FindCourse(ctx context.Context, id string) (*domain.Course, error)
	ListLessons(ctx context.Context, courseID string) ([]domain.Lesson, error)
	ListProgressByUser(ctx context.Context, userID string) ([]domain.CourseProgress, error)
	FindProgress(ctx context.Context, courseID, userID string) (*domain.CourseProgress, error)
	InsertProgress(ctx context.Context, p domain.CourseProgress) (*domain.CourseProgress, error)
	UpdateProgress(ctx context.Context, id string, completed bool, completedAt *time.Time) error
}

// CourseCard is a course as shown in the list view.
type CourseCard struct {
	domain.Course
	Completed bool `json:"completed"`
}

// HomeView is the data behind the course list.
type HomeView struct {
	Courses []CourseCard `json:"courses"`
}

// DetailView is the data behind a course page. Course is nil when the course
// does not exist or could not be loaded.
type DetailView struct {
	Course   *domain.Course         `json:"course"`
	Lessons  []domain.Lesson        `json:"lessons"`
	Progress *domain.CourseProgress `json:"progress"`
}

// Completed reports whether the viewing user has completed the course.
func (v DetailView) Completed() bool {
	return v.Progress != nil && v.Progress.Completed
}

// Service serves catalog views for a single user at a time.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	inflight map[toggleKey]struct{}
}

type toggleKey struct {
	courseID string
	userID   string
}

// NewService creates a catalog service backed by store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		log:      logger.With("component", "catalog"),
		now:      time.Now,
		inflight: make(map[toggleKey]struct{}),
	}
}

// Home loads every course and marks the ones userID has completed.
func (s *Service) Home(ctx context.Context, userID string) HomeView {
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		s.log.Error("Error loading courses", "error", err)
		return HomeView{}
	}

	progress, err := s.store.ListProgressByUser(ctx, userID)
	if err != nil {
		s.log.Error("Error loading courses", "user_id", userID, "error", err)
		return HomeView{}
	}

	byCourse := make(map[string]domain.CourseProgress, len(progress))
	for _, p := range progress {
		byCourse[p.CourseID] = p
	}

	cards := make([]CourseCard, 0, len(courses))
	for _, c := range courses {
		cards = append(cards, CourseCard{
			Course:    c,
			Completed: byCourse[c.ID].Completed,
		})
	}
	return HomeView{Courses: cards}
}

// Detail loads a course, its lessons and the user's progress on it.
func (s *Service) Detail(ctx context.Context, courseID, userID string) DetailView {
	view, err := s.loadDetail(ctx, courseID, userID)
	if err != nil {
		s.log.Error("Error loading course details", "course_id", courseID, "user_id", userID, "error", err)
		return DetailView{}
	}
	return view
}

func (s *Service) loadDetail(ctx context.Context, courseID, userID string) (DetailView, error) {
	course, err := s.store.FindCourse(ctx, courseID)
	if err != nil {
		return DetailView{}, err
	}
	lessons, err := s.store.ListLessons(ctx, courseID)
	if err != nil {
		return DetailView{}, err
	}
	progress, err := s.store.FindProgress(ctx, courseID, userID)
	if err != nil {
		return DetailView{}, err
	}
	return DetailView{Course: course, Lessons: lessons, Progress: progress}, nil
}

// ToggleCompletion flips the user's completion state for a course:
// a completed row becomes incomplete, an incomplete row becomes completed,
// and a missing row is inserted as completed.
//
// The returned progress is the state after a successful write. When the write
// fails the prior state is returned together with the error.
func (s *Service) ToggleCompletion(ctx context.Context, courseID, userID string) (*domain.CourseProgress, error) {
	key := toggleKey{courseID: courseID, userID: userID}
	if !s.begin(key) {
		return nil, ErrToggleInFlight
	}
	defer s.end(key)

	course, err := s.store.FindCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course %s: %w", courseID, err)
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	current, err := s.store.FindProgress(ctx, courseID, userID)
	if err != nil {
		return nil, fmt.Errorf("load progress for course %s: %w", courseID, err)
	}

	if current != nil && current.Completed {
		if err := s.store.UpdateProgress(ctx, current.ID, false, nil); err != nil {
			return current, err
		}
		next := *current
		next.Completed = false
		next.CompletedAt = nil
		return &next, nil
	}

	now := s.now().UTC()
	if current != nil {
		if err := s.store.UpdateProgress(ctx, current.ID, true, &now); err != nil {
			return current, err
		}
		next := *current
		next.Completed = true
		next.CompletedAt = &now
		return &next, nil
	}

	inserted, err := s.store.InsertProgress(ctx, domain.CourseProgress{
		CourseID:    courseID,
		UserID:      userID,
		Completed:   true,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *Service) begin(key toggleKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) end(key toggleKey) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}
