package handler

import (
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// The /api/exams endpoint dispatches on an action discriminator, read from
// the query string for GET and from the JSON body for POST and PUT.

func (h *Handler) handleExamsGet(w http.ResponseWriter, r *http.Request) {
	actor := model.UserFromContext(r.Context())
	q := r.URL.Query()

	switch q.Get("action") {
	case "available":
		h.getAvailable(w, r, actor)
	case "start":
		h.getStart(w, r, actor)
	case "result":
		h.getResult(w, r, actor)
	case "statistics":
		examID, err := queryID(r, "exam_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		report, err := h.exams.Statistics(r.Context(), *actor, examID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case "list":
		var f exam.ExamFilter
		if raw := q.Get("course_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, r, invalidID("course_id"))
				return
			}
			f.CourseID = id
		}
		exams, err := h.exams.ListExams(r.Context(), *actor, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if exams == nil {
			exams = []model.Exam{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"exams": exams})
	case "detail":
		examID, err := queryID(r, "exam_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		detail, err := h.exams.GetExam(r.Context(), *actor, examID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case "suggest_grade":
		responseID, err := queryID(r, "response_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		sug, err := h.exams.SuggestGrade(r.Context(), *actor, responseID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sug)
	default:
		writeError(w, r, exam.ErrInvalidAction)
	}
}

// queryStudent parses the optional student_id parameter.
func queryStudent(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("student_id")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidID("student_id")
	}
	return id, nil
}

func (h *Handler) getAvailable(w http.ResponseWriter, r *http.Request, actor *model.User) {
	studentID, err := queryStudent(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	student, err := h.onBehalfOf(actor, studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.exams.AvailableExams(r.Context(), student)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []exam.ExamStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exams": list})
}

func (h *Handler) getStart(w http.ResponseWriter, r *http.Request, actor *model.User) {
	examID, err := queryID(r, "exam_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	studentID, err := queryStudent(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	student, err := h.onBehalfOf(actor, studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.exams.StartAttempt(r.Context(), student, examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request, actor *model.User) {
	examID, err := queryID(r, "exam_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	attemptID, err := queryID(r, "attempt_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.exams.Result(r.Context(), *actor, examID, attemptID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "html" {
		renderResultSheet(w, r, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExamsPost(w http.ResponseWriter, r *http.Request) {
	actor := model.UserFromContext(r.Context())
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch gjson.GetBytes(body, "action").String() {
	case "create":
		var in exam.ExamInput
		if err := decode(body, &in); err != nil {
			writeError(w, r, err)
			return
		}
		e, questions, err := h.exams.CreateExam(r.Context(), *actor, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if questions == nil {
			questions = []model.Question{}
		}
		writeJSON(w, http.StatusCreated, exam.ExamDetail{Exam: e, Questions: questions})
	case "submit":
		h.postSubmit(w, r, actor, body)
	case "add_question":
		examID, err := bodyID(body, "exam_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var in exam.QuestionInput
		if err := decode(body, &in); err != nil {
			writeError(w, r, err)
			return
		}
		q, err := h.exams.AddQuestion(r.Context(), *actor, examID, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	default:
		writeError(w, r, exam.ErrInvalidAction)
	}
}

type submitRequest struct {
	AttemptID int64                  `json:"attempt_id"`
	StudentID int64                  `json:"student_id"`
	Answers   []exam.SubmittedAnswer `json:"answers"`
}

func (h *Handler) postSubmit(w http.ResponseWriter, r *http.Request, actor *model.User, body []byte) {
	if _, err := bodyID(body, "attempt_id"); err != nil {
		writeError(w, r, err)
		return
	}
	var req submitRequest
	if err := decode(body, &req); err != nil {
		writeError(w, r, err)
		return
	}
	student, err := h.onBehalfOf(actor, req.StudentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.exams.SubmitAttempt(r.Context(), student, req.AttemptID, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type gradeRequest struct {
	ResponseID   int64    `json:"response_id"`
	PointsEarned *float64 `json:"points_earned"`
	Feedback     string   `json:"feedback"`
}

func (h *Handler) handleExamsPut(w http.ResponseWriter, r *http.Request) {
	actor := model.UserFromContext(r.Context())
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch gjson.GetBytes(body, "action").String() {
	case "toggle_publish":
		examID, err := bodyID(body, "exam_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		e, err := h.exams.TogglePublish(r.Context(), *actor, examID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case "update":
		examID, err := bodyID(body, "exam_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var p exam.ExamPatch
		if err := decode(body, &p); err != nil {
			writeError(w, r, err)
			return
		}
		e, err := h.exams.UpdateExam(r.Context(), *actor, examID, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case "grade_response":
		if _, err := bodyID(body, "response_id"); err != nil {
			writeError(w, r, err)
			return
		}
		var req gradeRequest
		if err := decode(body, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.PointsEarned == nil {
			writeError(w, r, &exam.ValidationError{Fields: map[string]string{"points_earned": "cannot be blank"}})
			return
		}
		resp, err := h.exams.GradeResponse(r.Context(), *actor, req.ResponseID, *req.PointsEarned, req.Feedback)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, r, exam.ErrInvalidAction)
	}
}

func (h *Handler) handleExamsDelete(w http.ResponseWriter, r *http.Request) {
	actor := model.UserFromContext(r.Context())
	q := r.URL.Query()

	var err error
	switch {
	case q.Has("question_id"):
		var id int64
		if id, err = queryID(r, "question_id"); err == nil {
			err = h.exams.DeleteQuestion(r.Context(), *actor, id)
		}
	case q.Has("exam_id"):
		var id int64
		if id, err = queryID(r, "exam_id"); err == nil {
			err = h.exams.DeleteExam(r.Context(), *actor, id)
		}
	default:
		err = exam.ErrInvalidAction
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
