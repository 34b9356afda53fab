package exam

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/stats"
)

// GradeResponse records a teacher's grade for an essay response and
// recomputes the attempt score from all of its responses. Regrading replaces
// the previous grade, so points are never counted twice.
func (s *Service) GradeResponse(ctx context.Context, actor model.User, responseID int64, points float64, feedback string) (model.Response, error) {
	r, q, err := s.responseContext(ctx, actor, responseID)
	if err != nil {
		return model.Response{}, err
	}
	if q.Type.AutoGraded() {
		return model.Response{}, invalid("response_id", "only essay responses can be graded manually")
	}
	if math.IsNaN(points) || points < 0 || points > q.Points {
		return model.Response{}, invalid("points", fmt.Sprintf("must be between 0 and %g", q.Points))
	}

	now := s.now()
	by := actor.ID
	r.PointsEarned = points
	r.IsCorrect = points > 0
	r.Feedback = feedback
	r.GradedBy = &by
	r.GradedAt = &now

	var score float64
	err = s.repo.InTx(ctx, func(tx Tx) error {
		if err := tx.UpdateResponseGrade(ctx, r); err != nil {
			return err
		}
		score, err = tx.RecomputeAttemptScore(ctx, r.AttemptID)
		return err
	})
	if err != nil {
		return model.Response{}, err
	}
	slog.Info("response graded", "response_id", r.ID, "attempt_id", r.AttemptID, "points", points, "attempt_score", score, "graded_by", actor.ID)
	return r, nil
}

// SuggestGrade asks the essay assistant for a proposed grade. The suggestion is
// clamped to the question's points and is not stored.
func (s *Service) SuggestGrade(ctx context.Context, actor model.User, responseID int64) (model.GradeSuggestion, error) {
	if s.assistant == nil {
		return model.GradeSuggestion{}, ErrUnavailable
	}
	r, q, err := s.responseContext(ctx, actor, responseID)
	if err != nil {
		return model.GradeSuggestion{}, err
	}
	if q.Type.AutoGraded() {
		return model.GradeSuggestion{}, invalid("response_id", "suggestions are only available for essays")
	}
	var text string
	if a, err := model.ParseAnswer(q.Type, r.StudentAnswer); err == nil {
		if essay, ok := a.(model.Essay); ok {
			text = essay.Text
		}
	}
	if text == "" {
		return model.GradeSuggestion{Feedback: "No answer was given."}, nil
	}

	sug, err := s.assistant.SuggestEssayGrade(ctx, q, text)
	if err != nil {
		return model.GradeSuggestion{}, fmt.Errorf("suggest grade for response %d: %w", responseID, err)
	}
	sug.Points = min(max(sug.Points, 0), q.Points)
	return sug, nil
}

// Statistics aggregates the submitted attempts of an exam. Owners only.
func (s *Service) Statistics(ctx context.Context, actor model.User, examID int64) (stats.Report, error) {
	e, err := s.liveExam(ctx, examID)
	if err != nil {
		return stats.Report{}, err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return stats.Report{}, err
	}
	return s.report(ctx, e)
}

func (s *Service) report(ctx context.Context, e model.Exam) (stats.Report, error) {
	questions, err := s.repo.ListQuestions(ctx, e.ID)
	if err != nil {
		return stats.Report{}, err
	}
	attempts, err := s.repo.ListSubmittedAttempts(ctx, e.ID)
	if err != nil {
		return stats.Report{}, err
	}
	responses, err := s.repo.ListExamResponses(ctx, e.ID)
	if err != nil {
		return stats.Report{}, err
	}
	return stats.Compute(e, questions, attempts, responses), nil
}

// Export is the full record of an exam's submitted work.
type Export struct {
	Exam      model.Exam       `json:"exam"`
	Questions []model.Question `json:"questions"`
	Report    stats.Report     `json:"statistics"`
	Attempts  []AttemptExport  `json:"attempts"`
}

// AttemptExport is one submitted attempt with its responses.
type AttemptExport struct {
	model.Attempt
	Responses []model.Response `json:"responses"`
}

// ExportExam collects the statistics and every submitted attempt of an exam.
// It bypasses ownership checks and is meant for operator tooling.
func (s *Service) ExportExam(ctx context.Context, examID int64) (*Export, error) {
	e, err := s.repo.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	rep, err := s.report(ctx, e)
	if err != nil {
		return nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListSubmittedAttempts(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := &Export{Exam: e, Questions: questions, Report: rep, Attempts: make([]AttemptExport, 0, len(attempts))}
	for _, a := range attempts {
		rs, err := s.repo.ListResponses(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("responses for attempt %d: %w", a.ID, err)
		}
		out.Attempts = append(out.Attempts, AttemptExport{Attempt: a, Responses: rs})
	}
	return out, nil
}
