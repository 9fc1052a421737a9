package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/learnhub/internal/catalog"
	"github.com/conorfennell/learnhub/internal/domain"
	"github.com/conorfennell/learnhub/internal/identity"
	"github.com/conorfennell/learnhub/internal/storage"
)

type testEnv struct {
	srv    *Server
	db     *storage.DB
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOrigins(t, nil)
}

func newTestEnvWithOrigins(t *testing.T, origins []string) *testEnv {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := identity.NewProvider([]byte("0123456789abcdef0123456789abcdef"), "learnhub", logger)
	srv, err := NewServer(catalog.NewService(db, logger), ids, origins, logger)
	if err != nil {
		t.Fatalf("NewServer() returned an unexpected error: %v", err)
	}
	return &testEnv{srv: srv, db: db}
}

func (e *testEnv) seed(t *testing.T, draft domain.Draft) {
	t.Helper()
	if _, err := e.db.UpsertCourse(context.Background(), draft, "", draft.Course.ID); err != nil {
		t.Fatalf("UpsertCourse() returned an unexpected error: %v", err)
	}
}

// do serves a request, carrying the session cookie between calls.
func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "learnhub" {
			e.cookie = c
		}
	}
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) toggle(t *testing.T, courseID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/courses/"+courseID+"/progress", nil)
	req.Header.Set("HX-Request", "true")
	return e.do(t, req)
}

func goCourse() domain.Draft {
	return domain.Draft{
		Course: domain.Course{
			ID:          "c1",
			Title:       "Go Basics",
			Description: "Learn Go",
			Instructor:  "Jane Doe",
			Duration:    "4 hours",
			Level:       "Beginner",
			Thumbnail:   "https://example.com/go.png",
			CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Lessons: []domain.Lesson{
			{Title: "Hello, world", Duration: "10 min", OrderNumber: 1},
			{Title: "Types", Duration: "20 min", OrderNumber: 2},
		},
	}
}

func TestHomeListsCourses(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, goCourse())
	env.seed(t, domain.Draft{Course: domain.Course{ID: "c2", Title: "SQL", Level: "expert", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}})

	rec := env.get(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"LearnHub", "Go Basics", "SQL", `href="/courses/c1"`, "tone-emerald", "tone-gray", "Start Learning"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected home page to contain %q", want)
		}
	}
	if strings.Contains(body, "Review Course") || strings.Contains(body, ">Completed<") {
		t.Error("Expected no course to be completed yet")
	}
	if strings.Index(body, "Go Basics") > strings.Index(body, "SQL") {
		t.Error("Expected courses in creation order")
	}
	if env.cookie == nil {
		t.Error("Expected a session cookie to be issued")
	}
}

func TestToggleScenario(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, goCourse())
	env.get(t, "/courses/c1")

	rec := env.toggle(t, "c1")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Mark as Incomplete") || !strings.Contains(body, "Congratulations!") {
		t.Errorf("Expected the completed state to be rendered, got:\n%s", body)
	}
	if strings.Contains(body, "<html") {
		t.Error("Expected only the course body fragment for an htmx request")
	}

	// The API exposes the stored row for the same session.
	var detail catalog.DetailView
	if err := json.NewDecoder(env.get(t, "/api/courses/c1").Body).Decode(&detail); err != nil {
		t.Fatalf("Failed to decode course detail: %v", err)
	}
	p := detail.Progress
	if p == nil || !p.Completed || p.CompletedAt == nil || p.CourseID != "c1" || !strings.HasPrefix(p.UserID, "user_") {
		t.Fatalf("Expected a completed progress row for the session user, but got %+v", p)
	}
	rows, err := env.db.ListProgressByUser(context.Background(), p.UserID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("Expected exactly one progress row, but got %d (%v)", len(rows), err)
	}

	home := env.get(t, "/").Body.String()
	if !strings.Contains(home, ">Completed<") || !strings.Contains(home, "Review Course") {
		t.Error("Expected the course card to show as completed")
	}

	rec = env.toggle(t, "c1")
	body = rec.Body.String()
	if !strings.Contains(body, "Mark as Complete") || strings.Contains(body, "Congratulations!") {
		t.Errorf("Expected the incomplete state after a second toggle, got:\n%s", body)
	}
	again, _ := env.db.ListProgressByUser(context.Background(), p.UserID)
	if len(again) != 1 || again[0].ID != p.ID || again[0].Completed || again[0].CompletedAt != nil {
		t.Errorf("Expected the same row to be updated to incomplete, but got %+v", again)
	}
}

func TestToggleWithoutHTMXRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, goCourse())

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/courses/c1/progress", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, but got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/courses/c1" {
		t.Errorf("Expected redirect to /courses/c1, but got %s", loc)
	}
}

func TestCourseWithoutLessons(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, domain.Draft{Course: domain.Course{ID: "empty", Title: "Nothing Yet", Level: "advanced"}})

	rec := env.get(t, "/courses/empty")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Nothing Yet") || !strings.Contains(body, "Course Lessons") {
		t.Error("Expected the course header and the lesson section")
	}
	if strings.Contains(body, `class="lesson"`) {
		t.Error("Expected no lesson rows")
	}
}

func TestCourseDetailListsLessons(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, goCourse())

	body := env.get(t, "/courses/c1").Body.String()
	first := strings.Index(body, "1. Hello, world")
	second := strings.Index(body, "2. Types")
	if first < 0 || second < 0 || first > second {
		t.Errorf("Expected numbered lessons in order, got:\n%s", body)
	}
	if !strings.Contains(body, "Mark as Complete") || !strings.Contains(body, "Instructor: Jane Doe") {
		t.Error("Expected course metadata and the completion button")
	}
}

func TestUnknownCourse(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/courses/ghost")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Course not found") {
		t.Errorf("Expected a not found page, got %d", rec.Code)
	}

	rec = env.toggle(t, "ghost")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when toggling an unknown course, but got %d", rec.Code)
	}
}

func TestStoreFailureShowsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, goCourse())
	env.db.Close()

	rec := env.get(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Go Basics") {
		t.Error("Expected no courses when the store cannot be read")
	}
}

func TestAPI(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, goCourse())

	rec := env.get(t, "/api/courses")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rec.Code)
	}
	var list catalog.HomeView
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode course list: %v", err)
	}
	if len(list.Courses) != 1 || list.Courses[0].ID != "c1" || list.Courses[0].Completed {
		t.Errorf("Unexpected course list: %+v", list)
	}

	for i, want := range []bool{true, false} {
		rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/courses/c1/progress", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("toggle %d: expected status 200, but got %d", i+1, rec.Code)
		}
		var p domain.CourseProgress
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatalf("toggle %d: failed to decode progress: %v", i+1, err)
		}
		if p.Completed != want {
			t.Errorf("toggle %d: expected completed=%v, but got %v", i+1, want, p.Completed)
		}
	}

	rec = env.get(t, "/api/courses/ghost")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown course, but got %d", rec.Code)
	}
	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/courses/ghost/progress", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when toggling an unknown course, but got %d", rec.Code)
	}
}

func TestAPICORS(t *testing.T) {
	testCases := []struct {
		name                string
		origins             []string
		expectedOrigin      string
		expectedCredentials string
	}{
		{name: "any origin without credentials", origins: nil, expectedOrigin: "*", expectedCredentials: ""},
		{name: "wildcard without credentials", origins: []string{"*"}, expectedOrigin: "*", expectedCredentials: ""},
		{name: "allow list with credentials", origins: []string{"https://app.example"}, expectedOrigin: "https://app.example", expectedCredentials: "true"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnvWithOrigins(t, tc.origins)
			req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
			req.Header.Set("Origin", "https://app.example")
			rec := env.do(t, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.expectedOrigin {
				t.Errorf("Expected Access-Control-Allow-Origin %q, but got %q", tc.expectedOrigin, got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tc.expectedCredentials {
				t.Errorf("Expected Access-Control-Allow-Credentials %q, but got %q", tc.expectedCredentials, got)
			}
		})
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/static/style.css")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ".card") {
		t.Errorf("Expected the stylesheet to be served, got %d", rec.Code)
	}
}
