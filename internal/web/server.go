package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/conorfennell/learnhub/internal/catalog"
	"github.com/conorfennell/learnhub/internal/identity"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Server holds the dependencies for the HTTP server.
type Server struct {
	catalog   *catalog.Service
	router    *http.ServeMux
	handler   http.Handler
	templates *template.Template
	origins   []string
	log       *slog.Logger
}

// NewServer creates and configures a new server. origins lists the origins
// allowed to call the JSON API; an empty list allows any origin.
func NewServer(svc *catalog.Service, ids *identity.Provider, origins []string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tpl, err := template.New("").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		catalog:   svc,
		router:    http.NewServeMux(),
		templates: tpl,
		origins:   origins,
		log:       logger.With("component", "web"),
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	s.handler = ids.Middleware(s.router)
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server. The selected course lives in
// the path: "/" is the course list, "/courses/{id}" a course.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	s.router.Handle("GET /static/", http.StripPrefix("/static/", fileServer))

	s.router.HandleFunc("GET /{$}", s.handleHome())
	s.router.HandleFunc("GET /courses/{id}", s.handleCourse())
	// HTMX target
	s.router.HandleFunc("POST /courses/{id}/progress", s.handleToggleProgress())

	s.router.Handle("/api/", s.apiRoutes())
	return nil
}

// render executes a template into a buffer first so a failing template never
// leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("Error rendering template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// handleHome renders the course grid.
func (s *Server) handleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		view := s.catalog.Home(ctx, identity.UserID(ctx))
		s.render(w, http.StatusOK, "home", view)
	}
}

// handleCourse renders a course page with its lessons and completion state.
func (s *Server) handleCourse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		view := s.catalog.Detail(ctx, r.PathValue("id"), identity.UserID(ctx))
		if view.Course == nil {
			s.render(w, http.StatusNotFound, "not_found", nil)
			return
		}
		s.render(w, http.StatusOK, "course", view)
	}
}

// handleToggleProgress flips the completion state and re-renders the course
// body. Failures are logged and the prior state is shown again.
func (s *Server) handleToggleProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		courseID := r.PathValue("id")
		userID := identity.UserID(ctx)

		_, err := s.catalog.ToggleCompletion(ctx, courseID, userID)
		switch {
		case errors.Is(err, catalog.ErrToggleInFlight):
			s.log.Debug("Ignoring toggle while another is in flight", "course_id", courseID, "user_id", userID)
		case errors.Is(err, catalog.ErrCourseNotFound):
			s.render(w, http.StatusNotFound, "not_found", nil)
			return
		case err != nil:
			s.log.Error("Error updating progress", "course_id", courseID, "user_id", userID, "error", err)
		}

		if r.Header.Get("HX-Request") != "true" {
			http.Redirect(w, r, "/courses/"+url.PathEscape(courseID), http.StatusSeeOther)
			return
		}

		view := s.catalog.Detail(ctx, courseID, userID)
		if view.Course == nil {
			s.render(w, http.StatusNotFound, "not_found", nil)
			return
		}
		s.render(w, http.StatusOK, "course_body", view)
	}
}
