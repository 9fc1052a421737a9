package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/conorfennell/learnhub/internal/catalog"
	"github.com/conorfennell/learnhub/internal/identity"
	"github.com/rs/cors"
)

// apiRoutes builds the JSON API. It shares the catalog service and identity
// with the HTML pages and is wrapped in CORS handling.
func (s *Server) apiRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/courses", s.handleAPICourses())
	mux.HandleFunc("GET /api/courses/{id}", s.handleAPICourse())
	mux.HandleFunc("POST /api/courses/{id}/progress", s.handleAPIToggleProgress())

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: credentialedOrigins(s.origins),
	})
	return c.Handler(mux)
}

// credentialedOrigins reports whether cross-origin requests may carry the
// session cookie: only for an explicit allow list without a wildcard.
func credentialedOrigins(origins []string) bool {
	if len(origins) == 0 {
		return false
	}
	return !slices.Contains(origins, "*")
}

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Error writing JSON response", "error", err)
	}
}

func (s *Server) handleAPICourses() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		view := s.catalog.Home(ctx, identity.UserID(ctx))
		if view.Courses == nil {
			view.Courses = []catalog.CourseCard{}
		}
		s.writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleAPICourse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		view := s.catalog.Detail(ctx, r.PathValue("id"), identity.UserID(ctx))
		if view.Course == nil {
			s.writeJSON(w, http.StatusNotFound, apiError{Error: "course not found"})
			return
		}
		s.writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleAPIToggleProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		courseID := r.PathValue("id")
		userID := identity.UserID(ctx)

		progress, err := s.catalog.ToggleCompletion(ctx, courseID, userID)
		switch {
		case errors.Is(err, catalog.ErrToggleInFlight):
			s.writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
		case errors.Is(err, catalog.ErrCourseNotFound):
			s.writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
		case err != nil:
			s.log.Error("Error updating progress", "course_id", courseID, "user_id", userID, "error", err)
			s.writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to update progress"})
		default:
			s.writeJSON(w, http.StatusOK, progress)
		}
	}
}
