package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// QuestionInput is the payload for one new question.
type QuestionInput struct {
	Text          string          `json:"question_text"`
	Type          string          `json:"question_type"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Points        *float64        `json:"points"`
	OrderIndex    int             `json:"order_index"`
	Explanation   string          `json:"explanation"`
	ImageURL      string          `json:"image_url"`
}

// Validate checks the payload before anything is written.
func (in QuestionInput) Validate() error {
	qt, known := model.ParseQuestionType(in.Type)
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required),
		validation.Field(&in.Type, validation.Required, validation.By(func(any) error {
			if !known {
				return errors.New("unknown question type")
			}
			return nil
		})),
		validation.Field(&in.Points, validation.NotNil, validation.Min(0.0)),
		validation.Field(&in.OrderIndex, validation.Min(0)),
		validation.Field(&in.Options,
			validation.When(known && qt.HasOptions(), validation.Required, validation.Length(2, 0)),
			validation.Each(validation.Required),
		),
		validation.Field(&in.CorrectAnswer,
			validation.When(known && qt.AutoGraded(), validation.Required, validation.By(func(any) error {
				if _, err := model.ParseAnswer(qt, in.CorrectAnswer); err != nil {
					return fmt.Errorf("invalid for %s: %v", qt, err)
				}
				return nil
			})),
			validation.When(known && qt.HasOptions(), validation.By(func(any) error {
				return answerInOptions(qt, in.CorrectAnswer, in.Options)
			})),
		),
	)
}

// answerInOptions rejects an answer key that names a value missing from options.
func answerInOptions(qt model.QuestionType, raw json.RawMessage, options []string) error {
	a, err := model.ParseAnswer(qt, raw)
	if err != nil {
		return nil
	}
	var values []string
	switch v := a.(type) {
	case model.Choice:
		values = []string{v.Value}
	case model.Selection:
		values = v.Values
	}
	for _, v := range values {
		if !slices.Contains(options, v) {
			return fmt.Errorf("%q is not one of the options", v)
		}
	}
	return nil
}

// question converts a validated payload.
func (in QuestionInput) question(examID int64) model.Question {
	qt, _ := model.ParseQuestionType(in.Type)
	q := model.Question{
		ExamID:      examID,
		Text:        strings.TrimSpace(in.Text),
		Type:        qt,
		Options:     in.Options,
		OrderIndex:  in.OrderIndex,
		Explanation: in.Explanation,
		ImageURL:    in.ImageURL,
	}
	if in.Points != nil {
		q.Points = *in.Points
	}
	if qt.AutoGraded() {
		q.CorrectAnswer, _ = model.ParseAnswer(qt, in.CorrectAnswer)
	}
	if !qt.HasOptions() && qt != model.QuestionTrueFalse {
		q.Options = nil
	}
	return q
}

// ExamInput is the payload for creating an exam with an optional question list.
type ExamInput struct {
	CourseID           int64           `json:"course_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	ExamType           string          `json:"exam_type"`
	StartTime          time.Time       `json:"start_time"`
	EndTime            time.Time       `json:"end_time"`
	DurationMinutes    int             `json:"duration_minutes"`
	TotalPoints        float64         `json:"total_points"`
	PassingScore       float64         `json:"passing_score"`
	MaxAttempts        int             `json:"max_attempts"`
	IsPublished        bool            `json:"is_published"`
	ShuffleQuestions   bool            `json:"shuffle_questions"`
	ShuffleOptions     bool            `json:"shuffle_options"`
	ShowCorrectAnswers bool            `json:"show_correct_answers"`
	Questions          []QuestionInput `json:"questions"`
}

// ExamPatch holds the fields of an update; nil fields are left unchanged.
type ExamPatch struct {
	Title              *string    `json:"title"`
	Description        *string    `json:"description"`
	ExamType           *string    `json:"exam_type"`
	StartTime          *time.Time `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`
	DurationMinutes    *int       `json:"duration_minutes"`
	TotalPoints        *float64   `json:"total_points"`
	PassingScore       *float64   `json:"passing_score"`
	MaxAttempts        *int       `json:"max_attempts"`
	ShuffleQuestions   *bool      `json:"shuffle_questions"`
	ShuffleOptions     *bool      `json:"shuffle_options"`
	ShowCorrectAnswers *bool      `json:"show_correct_answers"`
}

func (p ExamPatch) apply(e *model.Exam) {
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ExamType != nil {
		e.ExamType = model.ExamType(*p.ExamType)
	}
	if p.StartTime != nil {
		e.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		e.EndTime = *p.EndTime
	}
	if p.DurationMinutes != nil {
		e.DurationMinutes = *p.DurationMinutes
	}
	if p.TotalPoints != nil {
		e.TotalPoints = *p.TotalPoints
	}
	if p.PassingScore != nil {
		e.PassingScore = *p.PassingScore
	}
	if p.MaxAttempts != nil {
		e.MaxAttempts = *p.MaxAttempts
	}
	if p.ShuffleQuestions != nil {
		e.ShuffleQuestions = *p.ShuffleQuestions
	}
	if p.ShuffleOptions != nil {
		e.ShuffleOptions = *p.ShuffleOptions
	}
	if p.ShowCorrectAnswers != nil {
		e.ShowCorrectAnswers = *p.ShowCorrectAnswers
	}
}

// validateExam enforces the exam invariants: startTime < endTime,
// passingScore <= totalPoints, maxAttempts >= 1.
func validateExam(e *model.Exam, questions []QuestionInput) error {
	err := validation.ValidateStruct(e,
		validation.Field(&e.CourseID, validation.Required),
		validation.Field(&e.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&e.StartTime, validation.Required),
		validation.Field(&e.EndTime, validation.Required,
			validation.Min(e.StartTime).Exclusive().Error("must be after start_time")),
		validation.Field(&e.DurationMinutes, validation.Required, validation.Min(1)),
		validation.Field(&e.TotalPoints, validation.Min(0.0)),
		validation.Field(&e.PassingScore, validation.Min(0.0),
			validation.Max(e.TotalPoints).Error("must not exceed total_points")),
		validation.Field(&e.MaxAttempts, validation.Required, validation.Min(1)),
	)
	var errs validation.Errors
	if err != nil && !errors.As(err, &errs) {
		return err
	}
	if qerr := validation.Validate(questions); qerr != nil {
		if errs == nil {
			errs = validation.Errors{}
		}
		errs["questions"] = qerr
	}
	if len(errs) == 0 {
		return nil
	}
	return validationFailed(errs)
}

// assignOrder keeps explicit order indices and appends the rest after the
// highest one, so indices stay unique within the exam.
func assignOrder(qs []model.Question) error {
	next := 0
	seen := make(map[int]bool, len(qs))
	for i, q := range qs {
		if q.OrderIndex == 0 {
			continue
		}
		if seen[q.OrderIndex] {
			return invalid("questions."+strconv.Itoa(i)+".order_index", "duplicate order_index")
		}
		seen[q.OrderIndex] = true
		next = max(next, q.OrderIndex)
	}
	for i := range qs {
		if qs[i].OrderIndex == 0 {
			next++
			qs[i].OrderIndex = next
		}
	}
	return nil
}

// CreateExam creates an exam and its initial questions atomically.
func (s *Service) CreateExam(ctx context.Context, actor model.User, in ExamInput) (model.Exam, []model.Question, error) {
	e := model.Exam{
		CourseID:           in.CourseID,
		CreatedBy:          actor.ID,
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		ExamType:           model.ExamType(in.ExamType),
		StartTime:          in.StartTime,
		EndTime:            in.EndTime,
		DurationMinutes:    in.DurationMinutes,
		TotalPoints:        in.TotalPoints,
		PassingScore:       in.PassingScore,
		MaxAttempts:        in.MaxAttempts,
		IsPublished:        in.IsPublished,
		ShuffleQuestions:   in.ShuffleQuestions,
		ShuffleOptions:     in.ShuffleOptions,
		ShowCorrectAnswers: in.ShowCorrectAnswers,
	}
	if e.ExamType == "" {
		e.ExamType = model.ExamTypeExam
	}
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 1
	}
	if e.TotalPoints == 0 {
		for _, q := range in.Questions {
			if q.Points != nil {
				e.TotalPoints += *q.Points
			}
		}
	}
	if err := validateExam(&e, in.Questions); err != nil {
		return model.Exam{}, nil, err
	}

	questions := make([]model.Question, 0, len(in.Questions))
	for _, qi := range in.Questions {
		questions = append(questions, qi.question(0))
	}
	if err := assignOrder(questions); err != nil {
		return model.Exam{}, nil, err
	}

	course, err := s.repo.GetCourse(ctx, e.CourseID)
	if err != nil {
		return model.Exam{}, nil, err
	}
	if !actor.IsAdmin() && course.TeacherID != actor.ID {
		return model.Exam{}, nil, ErrForbidden
	}

	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	err = s.repo.InTx(ctx, func(tx Tx) error {
		id, err := tx.InsertExam(ctx, e)
		if err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}
		e.ID = id
		for i := range questions {
			questions[i].ExamID = id
			qid, err := tx.InsertQuestion(ctx, questions[i])
			if err != nil {
				return fmt.Errorf("insert question %d: %w", i, err)
			}
			questions[i].ID = qid
		}
		return nil
	})
	if err != nil {
		return model.Exam{}, nil, err
	}
	slog.Info("created exam", "exam_id", e.ID, "course_id", e.CourseID, "questions", len(questions), "user_id", actor.ID)
	return e, questions, nil
}

// UpdateExam applies a partial update and re-checks the exam invariants.
func (s *Service) UpdateExam(ctx context.Context, actor model.User, id int64, p ExamPatch) (model.Exam, error) {
	e, err := s.liveExam(ctx, id)
	if err != nil {
		return model.Exam{}, err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return model.Exam{}, err
	}
	p.apply(&e)
	if err := validateExam(&e, nil); err != nil {
		return model.Exam{}, err
	}
	e.UpdatedAt = s.now()
	if err := s.repo.UpdateExam(ctx, e); err != nil {
		return model.Exam{}, fmt.Errorf("update exam: %w", err)
	}
	slog.Info("updated exam", "exam_id", e.ID, "user_id", actor.ID)
	return e, nil
}

// TogglePublish flips the published flag and returns the new exam state.
func (s *Service) TogglePublish(ctx context.Context, actor model.User, id int64) (model.Exam, error) {
	e, err := s.liveExam(ctx, id)
	if err != nil {
		return model.Exam{}, err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return model.Exam{}, err
	}
	e.IsPublished = !e.IsPublished
	e.UpdatedAt = s.now()
	if err := s.repo.UpdateExam(ctx, e); err != nil {
		return model.Exam{}, fmt.Errorf("toggle publish: %w", err)
	}
	slog.Info("toggled exam publish state", "exam_id", e.ID, "published", e.IsPublished)
	return e, nil
}

// AddQuestion appends a question at max(orderIndex)+1. The index computation
// and the insert share one transaction.
func (s *Service) AddQuestion(ctx context.Context, actor model.User, examID int64, in QuestionInput) (model.Question, error) {
	if err := validationFailed(in.Validate()); err != nil {
		return model.Question{}, err
	}
	e, err := s.liveExam(ctx, examID)
	if err != nil {
		return model.Question{}, err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return model.Question{}, err
	}

	q := in.question(examID)
	err = s.repo.InTx(ctx, func(tx Tx) error {
		next, err := tx.NextOrderIndex(ctx, examID)
		if err != nil {
			return err
		}
		q.OrderIndex = next
		q.ID, err = tx.InsertQuestion(ctx, q)
		return err
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("add question: %w", err)
	}
	slog.Info("added question", "exam_id", examID, "question_id", q.ID, "order_index", q.OrderIndex)
	return q, nil
}

// DeleteQuestion removes a question. Responses already recorded for it are kept.
func (s *Service) DeleteQuestion(ctx context.Context, actor model.User, questionID int64) error {
	q, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	e, err := s.liveExam(ctx, q.ExamID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return err
	}
	if err := s.repo.DeleteQuestion(ctx, questionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	slog.Info("deleted question", "exam_id", e.ID, "question_id", questionID)
	return nil
}

// DeleteExam soft-deletes an exam. Attempts keep referencing it.
func (s *Service) DeleteExam(ctx context.Context, actor model.User, id int64) error {
	e, err := s.liveExam(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return err
	}
	if err := s.repo.SoftDeleteExam(ctx, id, s.now()); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	slog.Info("deleted exam", "exam_id", id, "user_id", actor.ID)
	return nil
}

// ListExams returns non-deleted exams. Teachers only see exams of their own courses.
func (s *Service) ListExams(ctx context.Context, actor model.User, f ExamFilter) ([]model.Exam, error) {
	switch {
	case actor.IsAdmin():
	case actor.Role == model.UserRoleTeacher:
		f.TeacherID = actor.ID
	default:
		return nil, ErrForbidden
	}
	return s.repo.ListExams(ctx, f)
}

// ExamDetail is the owner view of an exam, answer keys included.
type ExamDetail struct {
	Exam      model.Exam       `json:"exam"`
	Questions []model.Question `json:"questions"`
}

// GetExam returns the owner view of an exam.
func (s *Service) GetExam(ctx context.Context, actor model.User, id int64) (*ExamDetail, error) {
	e, err := s.liveExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, actor, e); err != nil {
		return nil, err
	}
	qs, err := s.repo.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return &ExamDetail{Exam: e, Questions: qs}, nil
}

// ImportQuestions appends a batch of questions to an exam in one transaction,
// continuing after the current highest order index. Used by the import command.
func (s *Service) ImportQuestions(ctx context.Context, examID int64, in []QuestionInput) ([]model.Question, error) {
	if err := validationFailed(validation.Validate(in)); err != nil {
		return nil, err
	}
	if _, err := s.liveExam(ctx, examID); err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(in))
	err := s.repo.InTx(ctx, func(tx Tx) error {
		next, err := tx.NextOrderIndex(ctx, examID)
		if err != nil {
			return err
		}
		for i, qi := range in {
			q := qi.question(examID)
			q.OrderIndex = next + i
			q.ID, err = tx.InsertQuestion(ctx, q)
			if err != nil {
				return fmt.Errorf("insert question %d: %w", i, err)
			}
			questions = append(questions, q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}
