package exam

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// ReviewItem is one question of a graded attempt as shown on the result page.
type ReviewItem struct {
	QuestionID    int64              `json:"question_id"`
	ResponseID    int64              `json:"response_id,omitempty"`
	Text          string             `json:"question_text"`
	Type          model.QuestionType `json:"question_type"`
	Options       []string           `json:"options,omitempty"`
	Points        float64            `json:"points"`
	Answered      bool               `json:"answered"`
	StudentAnswer json.RawMessage    `json:"student_answer,omitempty"`
	IsCorrect     bool               `json:"is_correct"`
	PointsEarned  float64            `json:"points_earned"`
	PendingReview bool               `json:"pending_review"`
	Feedback      string             `json:"feedback,omitempty"`
	CorrectAnswer any                `json:"correct_answer,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
}

// AttemptResult is the graded view of one attempt.
type AttemptResult struct {
	Attempt      model.Attempt `json:"attempt"`
	ExamID       int64         `json:"exam_id"`
	Title        string        `json:"title"`
	Submitted    bool          `json:"submitted"`
	Score        float64       `json:"score"`
	TotalPoints  float64       `json:"total_points"`
	PassingScore float64       `json:"passing_score"`
	Percentage   float64       `json:"percentage"`
	Passed       bool          `json:"is_passed"`
	Late         bool          `json:"late"`
	Items        []ReviewItem  `json:"items"`
}

// Result returns the graded review of an attempt. Only the attempt's student
// and the exam's owners may read it. Correct answers and explanations are
// included when the exam allows it, and always for owners. An attempt that has
// not been submitted yields Submitted=false and no items.
func (s *Service) Result(ctx context.Context, actor model.User, examID, attemptID int64) (*AttemptResult, error) {
	a, err := s.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.ExamID != examID {
		return nil, ErrNotFound
	}
	e, err := s.repo.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	owner, err := s.canManage(ctx, actor, e)
	if err != nil {
		return nil, err
	}
	if !owner && a.StudentID != actor.ID {
		return nil, ErrForbidden
	}
	if !owner && e.Deleted() {
		return nil, ErrNotFound
	}

	res := &AttemptResult{
		Attempt:      a,
		ExamID:       e.ID,
		Title:        e.Title,
		Submitted:    !a.InProgress(),
		TotalPoints:  e.TotalPoints,
		PassingScore: e.PassingScore,
		Late:         a.Late,
		Items:        []ReviewItem{},
	}
	if a.InProgress() {
		return res, nil
	}
	if a.Score != nil {
		res.Score = *a.Score
	}
	res.Percentage = percentage(res.Score, e.TotalPoints)
	res.Passed = res.Score >= e.PassingScore

	questions, err := s.repo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	responses, err := s.repo.ListResponses(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[int64]model.Response, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}
	reveal := owner || e.ShowCorrectAnswers
	for _, q := range questions {
		item := ReviewItem{
			QuestionID: q.ID,
			Text:       q.Text,
			Type:       q.Type,
			Options:    q.Options,
			Points:     q.Points,
		}
		if r, ok := byQuestion[q.ID]; ok {
			item.ResponseID = r.ID
			item.Answered = true
			item.StudentAnswer = r.StudentAnswer
			item.IsCorrect = r.IsCorrect
			item.PointsEarned = r.PointsEarned
			item.Feedback = r.Feedback
			item.PendingReview = !q.Type.AutoGraded() && r.GradedAt == nil
		}
		if reveal {
			item.CorrectAnswer = model.AnswerValue(q.CorrectAnswer)
			item.Explanation = q.Explanation
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// responseContext resolves the question behind a response and checks that actor
// manages its exam.
func (s *Service) responseContext(ctx context.Context, actor model.User, responseID int64) (model.Response, model.Question, error) {
	r, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return model.Response{}, model.Question{}, err
	}
	a, err := s.repo.GetAttempt(ctx, r.AttemptID)
	if err != nil {
		return model.Response{}, model.Question{}, err
	}
	e, err := s.liveExam(ctx, a.ExamID)
	if err != nil {
		return model.Response{}, model.Question{}, err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return model.Response{}, model.Question{}, err
	}
	q, err := s.repo.GetQuestion(ctx, r.QuestionID)
	if errors.Is(err, ErrNotFound) {
		return model.Response{}, model.Question{}, invalid("response_id", "question no longer exists")
	}
	if err != nil {
		return model.Response{}, model.Question{}, err
	}
	return r, q, nil
}
