package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// fieldErrors converts a flat ozzo-validation result into a ValidationError.
func fieldErrors(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for k, e := range errs {
		if e != nil {
			fields[k] = e.Error()
		}
	}
	return &exam.ValidationError{Fields: fields}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

func (req createUserRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&req.Password, validation.Required, validation.Length(6, 128)),
		validation.Field(&req.Role, validation.Required, validation.In(
			string(model.UserRoleStudent), string(model.UserRoleTeacher), string(model.UserRoleAdmin),
		)),
	)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createUserRequest
	if err := decode(body, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := req.Validate(); err != nil {
		writeError(w, r, fieldErrors(err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, err)
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         model.UserRole(req.Role),
		Active:       true,
	}
	u.ID, err = h.store.CreateUser(u)
	if isUniqueViolation(err) {
		writeError(w, r, &exam.ValidationError{Fields: map[string]string{"username": "is already taken"}})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, r, invalidID("user_id"))
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeError(w, r, err)
		return
	}
	u, err := h.store.GetUserByID(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type createCourseRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	TeacherID int64  `json:"teacher_id"`
}

func (req createCourseRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Code, validation.Required, validation.Length(1, 32)),
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.TeacherID, validation.Required, validation.Min(int64(1))),
	)
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.store.ListCourses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if courses == nil {
		courses = []model.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (h *Handler) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createCourseRequest
	if err := decode(body, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := req.Validate(); err != nil {
		writeError(w, r, fieldErrors(err))
		return
	}

	teacher, err := h.store.GetUserByID(req.TeacherID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if teacher == nil || teacher.Role != model.UserRoleTeacher {
		writeError(w, r, &exam.ValidationError{Fields: map[string]string{"teacher_id": "must reference a teacher"}})
		return
	}

	c := model.Course{Code: req.Code, Name: req.Name, TeacherID: req.TeacherID}
	c.ID, err = h.store.CreateCourse(r.Context(), c)
	if isUniqueViolation(err) {
		writeError(w, r, &exam.ValidationError{Fields: map[string]string{"code": "is already taken"}})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	courseID, err := bodyID(body, "course_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	studentID, err := bodyID(body, "student_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	student, err := h.store.GetUserByID(studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if student == nil || student.Role != model.UserRoleStudent {
		writeError(w, r, &exam.ValidationError{Fields: map[string]string{"student_id": "must reference a student"}})
		return
	}
	if _, err := h.store.GetCourse(r.Context(), courseID); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.store.Enroll(r.Context(), courseID, studentID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("enrolled student", "course_id", courseID, "student_id", studentID)
	writeJSON(w, http.StatusCreated, map[string]int64{"course_id": courseID, "student_id": studentID})
}
