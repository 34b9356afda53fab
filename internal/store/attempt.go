package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

const attemptColumns = `id, exam_id, student_id, started_at, submitted_at, score, time_spent_minutes, late`

func scanAttempt(row scanner) (model.Attempt, error) {
	var a model.Attempt
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.SubmittedAt, &a.Score, &a.TimeSpentMinutes, &a.Late)
	return a, err
}

func (q queries) listAttempts(ctx context.Context, query string, args ...any) ([]model.Attempt, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetAttempt returns an attempt by ID.
func (q queries) GetAttempt(ctx context.Context, id int64) (model.Attempt, error) {
	a, err := scanAttempt(q.q.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM exam_attempts WHERE id = ?`, id))
	return a, notFound(err)
}

// InsertAttempt stores a new in-progress attempt.
func (q queries) InsertAttempt(ctx context.Context, a model.Attempt) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO exam_attempts (exam_id, student_id, started_at) VALUES (?, ?, ?)`,
		a.ExamID, a.StudentID, a.StartedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CompleteAttempt records the submission of an attempt. It only touches
// attempts that are still in progress, so a second submit reports
// exam.ErrAlreadySubmitted instead of overwriting the score.
func (q queries) CompleteAttempt(ctx context.Context, a model.Attempt) error {
	var submitted any
	if a.SubmittedAt != nil {
		submitted = a.SubmittedAt.UTC()
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE exam_attempts SET submitted_at = ?, score = ?, time_spent_minutes = ?, late = ?
		 WHERE id = ? AND submitted_at IS NULL`,
		submitted, a.Score, a.TimeSpentMinutes, a.Late, a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return exam.ErrAlreadySubmitted
	}
	return nil
}

// ListStudentAttempts returns every attempt, submitted or not, of one student
// on one exam, oldest first.
func (q queries) ListStudentAttempts(ctx context.Context, examID, studentID int64) ([]model.Attempt, error) {
	return q.listAttempts(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE exam_id = ? AND student_id = ? ORDER BY id`,
		examID, studentID)
}

// ListSubmittedAttempts returns the submitted attempts of an exam.
func (q queries) ListSubmittedAttempts(ctx context.Context, examID int64) ([]model.Attempt, error) {
	return q.listAttempts(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE exam_id = ? AND submitted_at IS NOT NULL ORDER BY id`,
		examID)
}

// RecomputeAttemptScore sets the attempt score to the sum of its responses.
func (q queries) RecomputeAttemptScore(ctx context.Context, attemptID int64) (float64, error) {
	var score float64
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_earned), 0) FROM exam_attempt_responses WHERE attempt_id = ?`, attemptID,
	).Scan(&score)
	if err != nil {
		return 0, err
	}
	res, err := q.q.ExecContext(ctx, `UPDATE exam_attempts SET score = ? WHERE id = ?`, score, attemptID)
	if err != nil {
		return 0, err
	}
	return score, mustAffect(res)
}

const responseColumns = `id, attempt_id, question_id, student_answer, is_correct, points_earned,
	feedback, graded_by, graded_at`

func scanResponse(row scanner) (model.Response, error) {
	var (
		r      model.Response
		answer string
	)
	err := row.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &answer, &r.IsCorrect, &r.PointsEarned,
		&r.Feedback, &r.GradedBy, &r.GradedAt)
	r.StudentAnswer = json.RawMessage(answer)
	return r, err
}

func (q queries) listResponses(ctx context.Context, query string, args ...any) ([]model.Response, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []model.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// GetResponse returns a response by ID.
func (q queries) GetResponse(ctx context.Context, id int64) (model.Response, error) {
	r, err := scanResponse(q.q.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM exam_attempt_responses WHERE id = ?`, id))
	return r, notFound(err)
}

// InsertResponse stores one graded answer.
func (q queries) InsertResponse(ctx context.Context, r model.Response) (int64, error) {
	answer := r.StudentAnswer
	if !json.Valid(answer) {
		encoded, err := json.Marshal(string(answer))
		if err != nil {
			return 0, err
		}
		answer = encoded
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO exam_attempt_responses (attempt_id, question_id, student_answer, is_correct, points_earned, feedback)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.AttemptID, r.QuestionID, string(answer), r.IsCorrect, r.PointsEarned, r.Feedback,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListResponses returns the responses of an attempt.
func (q queries) ListResponses(ctx context.Context, attemptID int64) ([]model.Response, error) {
	return q.listResponses(ctx,
		`SELECT `+responseColumns+` FROM exam_attempt_responses WHERE attempt_id = ? ORDER BY id`, attemptID)
}

// ListExamResponses returns the responses of every submitted attempt of an exam.
func (q queries) ListExamResponses(ctx context.Context, examID int64) ([]model.Response, error) {
	return q.listResponses(ctx,
		`SELECT r.id, r.attempt_id, r.question_id, r.student_answer, r.is_correct, r.points_earned,
			r.feedback, r.graded_by, r.graded_at
		 FROM exam_attempt_responses r
		 JOIN exam_attempts a ON a.id = r.attempt_id
		 WHERE a.exam_id = ? AND a.submitted_at IS NOT NULL
		 ORDER BY r.id`, examID)
}

// UpdateResponseGrade stores a manual grade.
func (q queries) UpdateResponseGrade(ctx context.Context, r model.Response) error {
	var gradedAt sql.NullTime
	if r.GradedAt != nil {
		gradedAt = sql.NullTime{Time: r.GradedAt.UTC(), Valid: true}
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE exam_attempt_responses SET points_earned = ?, is_correct = ?, feedback = ?, graded_by = ?, graded_at = ?
		 WHERE id = ?`,
		r.PointsEarned, r.IsCorrect, r.Feedback, r.GradedBy, gradedAt, r.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}
