package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/grading"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// StartResult is returned to the student when an attempt begins.
type StartResult struct {
	AttemptID     int64                     `json:"attempt_id"`
	ExamID        int64                     `json:"exam_id"`
	Title         string                    `json:"title"`
	StartedAt     time.Time                 `json:"started_at"`
	Deadline      time.Time                 `json:"deadline"`
	TimeRemaining time.Duration             `json:"-"`
	TotalPoints   float64                   `json:"total_points"`
	Questions     []model.PresentedQuestion `json:"questions"`
}

// MarshalJSON reports the remaining time in milliseconds.
func (r StartResult) MarshalJSON() ([]byte, error) {
	type plain StartResult
	return json.Marshal(struct {
		plain
		TimeRemaining int64 `json:"time_remaining"`
	}{plain(r), r.TimeRemaining.Milliseconds()})
}

// SubmittedAnswer is one answer in a submission. Answer is the raw,
// type-dependent payload.
type SubmittedAnswer struct {
	QuestionID int64           `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// SubmitResult summarizes a graded submission.
type SubmitResult struct {
	Attempt       model.Attempt `json:"attempt"`
	Score         float64       `json:"score"`
	TotalPoints   float64       `json:"total_points"`
	PassingScore  float64       `json:"passing_score"`
	Percentage    float64       `json:"percentage"`
	Passed        bool          `json:"is_passed"`
	Answered      int           `json:"answered"`
	PendingReview int           `json:"pending_review"`
}

// ExamStatus is one row of a student's exam listing.
type ExamStatus struct {
	Exam                model.Exam         `json:"exam"`
	Status              model.Availability `json:"status"`
	AttemptsUsed        int                `json:"attempts_used"`
	AttemptsRemaining   int                `json:"attempts_remaining"`
	BestScore           *float64           `json:"best_score,omitempty"`
	InProgressAttemptID *int64             `json:"in_progress_attempt_id,omitempty"`
}

// AvailableExams lists the published exams of the courses actor is enrolled in,
// each with its availability status and the student's best score.
func (s *Service) AvailableExams(ctx context.Context, actor model.User) ([]ExamStatus, error) {
	exams, err := s.repo.ListStudentExams(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list student exams: %w", err)
	}
	now := s.now()
	out := make([]ExamStatus, 0, len(exams))
	for _, e := range exams {
		attempts, err := s.repo.ListStudentAttempts(ctx, e.ID, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("list attempts for exam %d: %w", e.ID, err)
		}
		row := ExamStatus{
			Exam:              e,
			Status:            Availability(now, e, len(attempts)),
			AttemptsUsed:      len(attempts),
			AttemptsRemaining: max(e.MaxAttempts-len(attempts), 0),
		}
		for _, a := range attempts {
			if a.InProgress() {
				if !s.expired(a, e, now) {
					id := a.ID
					row.InProgressAttemptID = &id
				}
				continue
			}
			if a.Score != nil && (row.BestScore == nil || *a.Score > *row.BestScore) {
				best := *a.Score
				row.BestScore = &best
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// StartAttempt begins a new attempt for actor. The attempt-count check and the
// insert run in the same transaction, so concurrent starts cannot exceed
// maxAttempts.
func (s *Service) StartAttempt(ctx context.Context, actor model.User, examID int64) (*StartResult, error) {
	e, err := s.liveExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !e.IsPublished {
		return nil, ErrNotFound
	}
	enrolled, err := s.members.IsEnrolled(ctx, e.CourseID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrForbidden
	}

	now := s.now()
	attempt := model.Attempt{ExamID: examID, StudentID: actor.ID, StartedAt: now}
	var questions []model.Question
	err = s.repo.InTx(ctx, func(tx Tx) error {
		e, err = tx.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		prior, err := tx.ListStudentAttempts(ctx, examID, actor.ID)
		if err != nil {
			return err
		}
		if status := Availability(now, e, len(prior)); status != model.AvailabilityAvailable {
			return availabilityErr(status, e)
		}
		for _, a := range prior {
			if a.InProgress() && !s.expired(a, e, now) {
				return &InProgressError{AttemptID: a.ID}
			}
		}
		questions, err = tx.ListQuestions(ctx, examID)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return invalid("exam_id", "exam has no questions")
		}
		attempt.ID, err = tx.InsertAttempt(ctx, attempt)
		return err
	})
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(s.seed(), s.seed()))
	deadline := attempt.Deadline(e)
	slog.Info("attempt started", "attempt_id", attempt.ID, "exam_id", examID, "student_id", actor.ID)
	return &StartResult{
		AttemptID:     attempt.ID,
		ExamID:        e.ID,
		Title:         e.Title,
		StartedAt:     now,
		Deadline:      deadline,
		TimeRemaining: min(e.Duration(), e.EndTime.Sub(now)),
		TotalPoints:   e.TotalPoints,
		Questions:     Present(questions, e.ShuffleQuestions, e.ShuffleOptions, rng),
	}, nil
}

// SubmitAttempt grades and closes an attempt. Answers for questions that are
// not part of the exam are skipped; for a repeated question id only the first
// answer counts. Submissions past the deadline plus grace are accepted and
// flagged late. The response inserts and the score write share one
// transaction.
func (s *Service) SubmitAttempt(ctx context.Context, actor model.User, attemptID int64, answers []SubmittedAnswer) (*SubmitResult, error) {
	now := s.now()
	var (
		res  SubmitResult
		exam model.Exam
	)
	err := s.repo.InTx(ctx, func(tx Tx) error {
		a, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.StudentID != actor.ID {
			return ErrForbidden
		}
		if !a.InProgress() {
			return ErrAlreadySubmitted
		}
		exam, err = tx.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		questions, err := tx.ListQuestions(ctx, a.ExamID)
		if err != nil {
			return err
		}
		byID := make(map[int64]model.Question, len(questions))
		for _, q := range questions {
			byID[q.ID] = q
		}

		var score float64
		seen := make(map[int64]bool, len(answers))
		for _, ans := range answers {
			q, ok := byID[ans.QuestionID]
			if !ok {
				slog.Debug("skipping answer for unknown question", "attempt_id", a.ID, "question_id", ans.QuestionID)
				continue
			}
			if seen[q.ID] {
				continue
			}
			seen[q.ID] = true

			v, raw := evaluate(q, ans.Answer)
			if _, err := tx.InsertResponse(ctx, model.Response{
				AttemptID:     a.ID,
				QuestionID:    q.ID,
				StudentAnswer: raw,
				IsCorrect:     v.Correct,
				PointsEarned:  v.PointsEarned,
			}); err != nil {
				return fmt.Errorf("insert response for question %d: %w", q.ID, err)
			}
			score += v.PointsEarned
			res.Answered++
			if v.NeedsReview {
				res.PendingReview++
			}
		}

		a.SubmittedAt = &now
		a.Score = &score
		a.TimeSpentMinutes = int(math.Ceil(now.Sub(a.StartedAt).Minutes()))
		a.Late = s.expired(a, exam, now)
		if err := tx.CompleteAttempt(ctx, a); err != nil {
			return err
		}
		res.Attempt = a
		res.Score = score
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.TotalPoints = exam.TotalPoints
	res.PassingScore = exam.PassingScore
	res.Passed = res.Score >= exam.PassingScore
	res.Percentage = percentage(res.Score, exam.TotalPoints)
	if res.Attempt.Late {
		slog.Warn("late submission accepted", "attempt_id", attemptID, "time_spent_minutes", res.Attempt.TimeSpentMinutes)
	}
	slog.Info("attempt submitted", "attempt_id", attemptID, "exam_id", exam.ID, "score", res.Score, "answered", res.Answered)
	return &res, nil
}

// evaluate decodes and scores one raw answer. Payloads that do not decode for
// the question type are kept verbatim and score zero.
func evaluate(q model.Question, raw json.RawMessage) (grading.Verdict, json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	a, err := model.ParseAnswer(q.Type, raw)
	if err != nil {
		return grading.Verdict{NeedsReview: !q.Type.AutoGraded()}, raw
	}
	return grading.Evaluate(q, a), raw
}

func percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(score/total*10000) / 100
}
