// Package handler exposes the exam engine over a JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store         *store.Store
	exams         *exam.Service
	secureCookies bool
}

// New creates a new Handler.
func New(s *store.Store, svc *exam.Service, secureCookies bool) *Handler {
	return &Handler{store: s, exams: svc, secureCookies: secureCookies}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)

		r.Get("/api/exams", h.handleExamsGet)
		r.Post("/api/exams", h.handleExamsPost)
		r.Put("/api/exams", h.handleExamsPut)
		r.Delete("/api/exams", h.handleExamsDelete)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
			r.Get("/courses", h.handleListCourses)
			r.Post("/courses", h.handleCreateCourse)
			r.Post("/enrollments", h.handleEnroll)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.UserCount(); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// readBody reads a JSON request body and checks it is well-formed.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errBadRequest
	}
	if !gjson.ValidBytes(body) {
		return nil, errBadRequest
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &exam.ValidationError{Fields: map[string]string{typeErr.Field: "has the wrong type"}}
		}
		return errBadRequest
	}
	return nil
}

func invalidID(name string) error {
	return &exam.ValidationError{Fields: map[string]string{name: "must be a positive integer"}}
}

// queryID parses a required positive integer query parameter.
func queryID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidID(name)
	}
	return id, nil
}

// bodyID reads a required positive integer field from a JSON body.
func bodyID(body []byte, name string) (int64, error) {
	res := gjson.GetBytes(body, name)
	if res.Type != gjson.Number || res.Int() <= 0 || float64(res.Int()) != res.Num {
		return 0, invalidID(name)
	}
	return res.Int(), nil
}

// onBehalfOf resolves the student an operation acts for. A student_id other
// than the actor's own is only honored for admins.
func (h *Handler) onBehalfOf(actor *model.User, studentID int64) (model.User, error) {
	if studentID == 0 || studentID == actor.ID {
		return *actor, nil
	}
	if !actor.IsAdmin() {
		slog.Warn("student_id mismatch", "user_id", actor.ID, "student_id", studentID)
		return model.User{}, exam.ErrForbidden
	}
	u, err := h.store.GetUserByID(studentID)
	if err != nil {
		return model.User{}, err
	}
	if u == nil {
		return model.User{}, exam.ErrNotFound
	}
	return *u, nil
}
