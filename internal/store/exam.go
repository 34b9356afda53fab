package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

const examColumns = `id, course_id, created_by, title, description, exam_type, start_time, end_time,
	duration_minutes, total_points, passing_score, max_attempts, is_published,
	shuffle_questions, shuffle_options, show_correct_answers, deleted_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanExam(row scanner) (model.Exam, error) {
	var e model.Exam
	err := row.Scan(&e.ID, &e.CourseID, &e.CreatedBy, &e.Title, &e.Description, &e.ExamType,
		&e.StartTime, &e.EndTime, &e.DurationMinutes, &e.TotalPoints, &e.PassingScore, &e.MaxAttempts,
		&e.IsPublished, &e.ShuffleQuestions, &e.ShuffleOptions, &e.ShowCorrectAnswers,
		&e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func collectExams(rows *sql.Rows) ([]model.Exam, error) {
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetExam returns an exam by ID, including soft-deleted ones.
func (q queries) GetExam(ctx context.Context, id int64) (model.Exam, error) {
	e, err := scanExam(q.q.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	return e, notFound(err)
}

// InsertExam stores a new exam and returns its ID.
func (q queries) InsertExam(ctx context.Context, e model.Exam) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO exams (course_id, created_by, title, description, exam_type, start_time, end_time,
			duration_minutes, total_points, passing_score, max_attempts, is_published,
			shuffle_questions, shuffle_options, show_correct_answers, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CourseID, e.CreatedBy, e.Title, e.Description, e.ExamType, e.StartTime.UTC(), e.EndTime.UTC(),
		e.DurationMinutes, e.TotalPoints, e.PassingScore, e.MaxAttempts, e.IsPublished,
		e.ShuffleQuestions, e.ShuffleOptions, e.ShowCorrectAnswers, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		slog.Error("failed to create exam", "title", e.Title, "course_id", e.CourseID, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateExam overwrites the mutable fields of an exam.
func (q queries) UpdateExam(ctx context.Context, e model.Exam) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE exams SET title = ?, description = ?, exam_type = ?, start_time = ?, end_time = ?,
			duration_minutes = ?, total_points = ?, passing_score = ?, max_attempts = ?, is_published = ?,
			shuffle_questions = ?, shuffle_options = ?, show_correct_answers = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		e.Title, e.Description, e.ExamType, e.StartTime.UTC(), e.EndTime.UTC(),
		e.DurationMinutes, e.TotalPoints, e.PassingScore, e.MaxAttempts, e.IsPublished,
		e.ShuffleQuestions, e.ShuffleOptions, e.ShowCorrectAnswers, e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SoftDeleteExam hides an exam while keeping its attempts.
func (q queries) SoftDeleteExam(ctx context.Context, id int64, at time.Time) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE exams SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ListExams returns non-deleted exams matching f, newest first.
func (q queries) ListExams(ctx context.Context, f exam.ExamFilter) ([]model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE deleted_at IS NULL`
	var args []any
	if f.CourseID != 0 {
		query += ` AND course_id = ?`
		args = append(args, f.CourseID)
	}
	if f.TeacherID != 0 {
		query += ` AND course_id IN (SELECT id FROM courses WHERE teacher_id = ?)`
		args = append(args, f.TeacherID)
	}
	query += ` ORDER BY start_time DESC, id DESC`
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// ListStudentExams returns the published, non-deleted exams of the courses a
// student is enrolled in.
func (q queries) ListStudentExams(ctx context.Context, studentID int64) ([]model.Exam, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE deleted_at IS NULL AND is_published = 1
		   AND course_id IN (SELECT course_id FROM enrollments WHERE student_id = ?)
		 ORDER BY start_time, id`, studentID)
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

const questionColumns = `id, exam_id, question_text, question_type, options, correct_answer,
	points, order_index, explanation, image_url`

func scanQuestion(row scanner) (model.Question, error) {
	var (
		qn      model.Question
		options string
		answer  string
	)
	err := row.Scan(&qn.ID, &qn.ExamID, &qn.Text, &qn.Type, &options, &answer,
		&qn.Points, &qn.OrderIndex, &qn.Explanation, &qn.ImageURL)
	if err != nil {
		return qn, err
	}
	if err := json.Unmarshal([]byte(options), &qn.Options); err != nil {
		return qn, fmt.Errorf("question %d options: %w", qn.ID, err)
	}
	if len(qn.Options) == 0 {
		qn.Options = nil
	}
	if a, err := model.ParseAnswer(qn.Type, json.RawMessage(answer)); err == nil {
		qn.CorrectAnswer = a
	}
	return qn, nil
}

// GetQuestion returns a question by ID.
func (q queries) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	qn, err := scanQuestion(q.q.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM exam_questions WHERE id = ?`, id))
	return qn, notFound(err)
}

// InsertQuestion stores a question and returns its ID.
func (q queries) InsertQuestion(ctx context.Context, qn model.Question) (int64, error) {
	options := qn.Options
	if options == nil {
		options = []string{}
	}
	opts, err := json.Marshal(options)
	if err != nil {
		return 0, err
	}
	answer, err := model.EncodeAnswer(qn.CorrectAnswer)
	if err != nil {
		return 0, err
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO exam_questions (exam_id, question_text, question_type, options, correct_answer,
			points, order_index, explanation, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		qn.ExamID, qn.Text, qn.Type, string(opts), string(answer),
		qn.Points, qn.OrderIndex, qn.Explanation, qn.ImageURL,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// NextOrderIndex returns one past the highest order index of an exam, or 1.
func (q queries) NextOrderIndex(ctx context.Context, examID int64) (int, error) {
	var next int
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(order_index), 0) + 1 FROM exam_questions WHERE exam_id = ?`, examID,
	).Scan(&next)
	return next, err
}

// ListQuestions returns the questions of an exam in order.
func (q queries) ListQuestions(ctx context.Context, examID int64) ([]model.Question, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM exam_questions WHERE exam_id = ? ORDER BY order_index, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		qn, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, qn)
	}
	return questions, rows.Err()
}

// DeleteQuestion removes a question. Responses that reference it are kept.
func (q queries) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM exam_questions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// GetCourse returns a course by ID.
func (q queries) GetCourse(ctx context.Context, id int64) (model.Course, error) {
	var c model.Course
	err := q.q.QueryRowContext(ctx,
		`SELECT id, code, name, teacher_id FROM courses WHERE id = ?`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.TeacherID)
	return c, notFound(err)
}
