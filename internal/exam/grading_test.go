package exam_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// submitted runs one full attempt for the fixture's student and returns the
// attempt ID together with the essay response.
func submitted(t *testing.T, f *fixture, e model.Exam, qs []model.Question) (int64, model.Response) {
	t.Helper()
	ctx := context.Background()
	start, err := f.svc.StartAttempt(ctx, f.student, e.ID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, f.student, start.AttemptID, perfectAnswers(qs)); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	responses, err := f.store.ListResponses(ctx, start.AttemptID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	essay := byText(qs, "Explain goroutines")
	for _, r := range responses {
		if r.QuestionID == essay.ID {
			return start.AttemptID, r
		}
	}
	t.Fatal("no essay response")
	return 0, model.Response{}
}

func TestGradeResponse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.publishedExam(t, nil)
	attemptID, essay := submitted(t, f, e, qs)

	graded, err := f.svc.GradeResponse(ctx, f.teacher, essay.ID, 2.5, "Solid answer")
	if err != nil {
		t.Fatalf("GradeResponse: %v", err)
	}
	if !graded.IsCorrect || graded.GradedBy == nil || *graded.GradedBy != f.teacher.ID {
		t.Errorf("unexpected graded response: %+v", graded)
	}
	a, _ := f.store.GetAttempt(ctx, attemptID)
	if *a.Score != 9.5 {
		t.Errorf("score = %v, want 9.5", *a.Score)
	}

	// Regrading replaces the previous grade.
	if _, err := f.svc.GradeResponse(ctx, f.teacher, essay.ID, 1, "Second look"); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	a, _ = f.store.GetAttempt(ctx, attemptID)
	if *a.Score != 8 {
		t.Errorf("score after regrade = %v, want 8", *a.Score)
	}

	if _, err := f.svc.GradeResponse(ctx, f.teacher, essay.ID, 0, "No credit"); err != nil {
		t.Fatalf("grade zero: %v", err)
	}
	r, _ := f.store.GetResponse(ctx, essay.ID)
	if r.IsCorrect || r.Feedback != "No credit" {
		t.Errorf("zero grade should be incorrect: %+v", r)
	}
}

func TestGradeResponseRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.publishedExam(t, nil)
	attemptID, essay := submitted(t, f, e, qs)
	other := f.user(t, "other", model.UserRoleTeacher)

	responses, _ := f.store.ListResponses(ctx, attemptID)
	var choice model.Response
	for _, r := range responses {
		if r.QuestionID == byText(qs, "2+2?").ID {
			choice = r
		}
	}

	tests := []struct {
		name   string
		actor  model.User
		id     int64
		points float64
		want   error
	}{
		{"above question points", f.teacher, essay.ID, 3.5, exam.ErrValidation},
		{"negative", f.teacher, essay.ID, -1, exam.ErrValidation},
		{"auto-graded question", f.teacher, choice.ID, 1, exam.ErrValidation},
		{"other teacher", other, essay.ID, 1, exam.ErrForbidden},
		{"student", f.student, essay.ID, 3, exam.ErrForbidden},
		{"missing response", f.teacher, 9999, 1, exam.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.GradeResponse(ctx, tt.actor, tt.id, tt.points, ""); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	a, _ := f.store.GetAttempt(ctx, attemptID)
	if *a.Score != 7 {
		t.Errorf("rejected grades changed the score to %v", *a.Score)
	}
	if _, err := f.svc.GradeResponse(ctx, f.admin, essay.ID, 3, ""); err != nil {
		t.Errorf("admin should be able to grade: %v", err)
	}
}

type fakeAssistant struct {
	sug    model.GradeSuggestion
	err    error
	answer string
}

func (a *fakeAssistant) SuggestEssayGrade(_ context.Context, _ model.Question, answer string) (model.GradeSuggestion, error) {
	a.answer = answer
	return a.sug, a.err
}

func TestSuggestGrade(t *testing.T) {
	ctx := context.Background()

	t.Run("unavailable without assistant", func(t *testing.T) {
		f := newFixture(t)
		e, qs := f.publishedExam(t, nil)
		_, essay := submitted(t, f, e, qs)
		if _, err := f.svc.SuggestGrade(ctx, f.teacher, essay.ID); !errors.Is(err, exam.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("clamps to question points", func(t *testing.T) {
		fa := &fakeAssistant{sug: model.GradeSuggestion{Points: 12, Feedback: "great"}}
		f := newFixture(t, exam.WithAssistant(fa))
		e, qs := f.publishedExam(t, nil)
		attemptID, essay := submitted(t, f, e, qs)

		sug, err := f.svc.SuggestGrade(ctx, f.teacher, essay.ID)
		if err != nil {
			t.Fatalf("SuggestGrade: %v", err)
		}
		if sug.Points != 3 || sug.Feedback != "great" {
			t.Errorf("suggestion = %+v, want 3 points", sug)
		}
		if fa.answer != "Lightweight threads managed by the runtime." {
			t.Errorf("assistant got answer %q", fa.answer)
		}
		a, _ := f.store.GetAttempt(ctx, attemptID)
		if *a.Score != 7 {
			t.Errorf("suggestion must not change the score, got %v", *a.Score)
		}
	})

	t.Run("assistant failure", func(t *testing.T) {
		fa := &fakeAssistant{err: errors.New("llm down")}
		f := newFixture(t, exam.WithAssistant(fa))
		e, qs := f.publishedExam(t, nil)
		_, essay := submitted(t, f, e, qs)
		if _, err := f.svc.SuggestGrade(ctx, f.teacher, essay.ID); err == nil {
			t.Error("expected error from failing assistant")
		}
	})
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.publishedExam(t, nil)

	empty, err := f.svc.Statistics(ctx, f.teacher, e.ID)
	if err != nil {
		t.Fatalf("Statistics with no attempts: %v", err)
	}
	if empty.Attempts != 0 || empty.PassRate != 0 || empty.AverageScore != 0 {
		t.Errorf("unexpected empty report: %+v", empty)
	}

	second := f.user(t, "second", model.UserRoleStudent)
	f.enroll(t, second)
	submitted(t, f, e, qs)
	start, err := f.svc.StartAttempt(ctx, second, e.ID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, second, start.AttemptID, []exam.SubmittedAnswer{
		{QuestionID: byText(qs, "2+2?").ID, Answer: raw("4")},
	}); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	// An in-progress attempt is ignored.
	if _, err := f.svc.StartAttempt(ctx, second, e.ID); err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	rep, err := f.svc.Statistics(ctx, f.teacher, e.ID)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if rep.Participants != 2 || rep.Attempts != 2 {
		t.Errorf("participants=%d attempts=%d, want 2 and 2", rep.Participants, rep.Attempts)
	}
	if rep.AverageScore != 4.5 || rep.MaxScore != 7 || rep.MinScore != 2 {
		t.Errorf("avg/max/min = %v/%v/%v, want 4.5/7/2", rep.AverageScore, rep.MaxScore, rep.MinScore)
	}
	if rep.PassedCount != 1 || rep.PassRate != 50 {
		t.Errorf("passed=%d rate=%v, want 1 and 50", rep.PassedCount, rep.PassRate)
	}
	if len(rep.Distribution) != 1 || rep.Distribution[0].Count != 2 {
		t.Errorf("unexpected distribution: %+v", rep.Distribution)
	}
	for _, q := range rep.Questions {
		if q.QuestionID == byText(qs, "2+2?").ID && (q.Total != 2 || q.SuccessRate != 100) {
			t.Errorf("2+2 stats = %+v, want 2/2", q)
		}
		if q.QuestionID == byText(qs, "Primes?").ID && (q.Total != 1 || q.Correct != 1) {
			t.Errorf("primes stats = %+v, want 1/1", q)
		}
	}

	if _, err := f.svc.Statistics(ctx, f.student, e.ID); !errors.Is(err, exam.ErrForbidden) {
		t.Errorf("expected ErrForbidden for student, got %v", err)
	}
}

func TestResultVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.publishedExam(t, nil)
	attemptID, _ := submitted(t, f, e, qs)
	other := f.user(t, "other", model.UserRoleStudent)

	res, err := f.svc.Result(ctx, f.student, e.ID, attemptID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !res.Submitted || res.Score != 7 || !res.Passed || res.Percentage != 70 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Items) != 5 {
		t.Fatalf("expected 5 review items, got %d", len(res.Items))
	}
	pending := 0
	for _, it := range res.Items {
		if it.CorrectAnswer != nil || it.Explanation != "" {
			t.Errorf("answer key leaked to student for question %d", it.QuestionID)
		}
		if it.PendingReview {
			pending++
		}
	}
	if pending != 1 {
		t.Errorf("pending items = %d, want 1", pending)
	}

	owner, err := f.svc.Result(ctx, f.teacher, e.ID, attemptID)
	if err != nil {
		t.Fatalf("Result as owner: %v", err)
	}
	for _, it := range owner.Items {
		if it.Type.AutoGraded() && it.CorrectAnswer == nil {
			t.Errorf("owner should see the key for question %d", it.QuestionID)
		}
	}

	if _, err := f.svc.Result(ctx, other, e.ID, attemptID); !errors.Is(err, exam.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Result(ctx, f.student, e.ID+1, attemptID); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("expected ErrNotFound for mismatched exam, got %v", err)
	}
}

func TestResultRevealsAnswersWhenAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.publishedExam(t, func(in *exam.ExamInput) { in.ShowCorrectAnswers = true })
	attemptID, _ := submitted(t, f, e, qs)

	res, err := f.svc.Result(ctx, f.student, e.ID, attemptID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	for _, it := range res.Items {
		if it.Text == "Capital of France" {
			if it.CorrectAnswer != "Paris" || it.Explanation != "It is Paris." {
				t.Errorf("expected key and explanation, got %+v", it)
			}
		}
	}
}

func TestResultInProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, _ := f.publishedExam(t, nil)
	start, err := f.svc.StartAttempt(ctx, f.student, e.ID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	res, err := f.svc.Result(ctx, f.student, e.ID, start.AttemptID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Submitted || len(res.Items) != 0 {
		t.Errorf("in-progress result should be empty: %+v", res)
	}
}

func TestExportExam(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, qs := f.publishedExam(t, nil)
	submitted(t, f, e, qs)
	f.now = f.now.Add(time.Minute)

	out, err := f.svc.ExportExam(ctx, e.ID)
	if err != nil {
		t.Fatalf("ExportExam: %v", err)
	}
	if len(out.Attempts) != 1 || len(out.Attempts[0].Responses) != 5 {
		t.Fatalf("unexpected export: %+v", out.Attempts)
	}
	if out.Report.Attempts != 1 || len(out.Questions) != 5 {
		t.Errorf("unexpected export report: %+v", out.Report)
	}
}
