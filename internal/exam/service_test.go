package exam_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/store"
)

var opens = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.Store
	svc     *exam.Service
	now     time.Time
	admin   model.User
	teacher model.User
	student model.User
	course  int64
}

// newFixture builds a service over a file-backed store with a teacher who owns
// one course and a student enrolled in it. The clock starts at opens.
func newFixture(t *testing.T, opts ...exam.Option) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "nexus.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s, now: opens}
	f.admin = f.user(t, "admin", model.UserRoleAdmin)
	f.teacher = f.user(t, "teacher", model.UserRoleTeacher)
	f.student = f.user(t, "student", model.UserRoleStudent)
	f.course, err = s.CreateCourse(context.Background(), model.Course{Code: "INF101", Name: "Intro", TeacherID: f.teacher.ID})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	f.enroll(t, f.student)

	opts = append([]exam.Option{
		exam.WithClock(func() time.Time { return f.now }),
		exam.WithSeed(func() uint64 { return 7 }),
	}, opts...)
	f.svc = exam.NewService(s, s, opts...)
	return f
}

func (f *fixture) user(t *testing.T, name string, role model.UserRole) model.User {
	t.Helper()
	id, err := f.store.CreateUser(model.User{Username: name, DisplayName: name, Role: role, Active: true})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return model.User{ID: id, Username: name, Role: role, Active: true}
}

func (f *fixture) enroll(t *testing.T, u model.User) {
	t.Helper()
	if err := f.store.Enroll(context.Background(), f.course, u.ID); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
}

func pts(v float64) *float64 { return &v }

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// standardQuestions is a 10-point set: 2 single choice, 3 multiple select,
// 1 true/false, 1 short answer and a 3-point essay.
func standardQuestions() []exam.QuestionInput {
	return []exam.QuestionInput{
		{Text: "2+2?", Type: "single_choice", Options: []string{"3", "4", "5"}, CorrectAnswer: raw("4"), Points: pts(2)},
		{Text: "Primes?", Type: "multiple_select", Options: []string{"1", "2", "3", "4"}, CorrectAnswer: raw([]int{2, 3}), Points: pts(3)},
		{Text: "Go is compiled", Type: "true_false", CorrectAnswer: raw(true), Points: pts(1)},
		{Text: "Capital of France", Type: "short_answer", CorrectAnswer: raw("Paris"), Points: pts(1), Explanation: "It is Paris."},
		{Text: "Explain goroutines", Type: "essay", Points: pts(3)},
	}
}

// publishedExam creates a published exam that is open for two hours with a
// 30 minute budget per attempt.
func (f *fixture) publishedExam(t *testing.T, edit func(*exam.ExamInput)) (model.Exam, []model.Question) {
	t.Helper()
	in := exam.ExamInput{
		CourseID:        f.course,
		Title:           "Midterm",
		ExamType:        "midterm",
		StartTime:       opens,
		EndTime:         opens.Add(2 * time.Hour),
		DurationMinutes: 30,
		PassingScore:    5,
		MaxAttempts:     2,
		IsPublished:     true,
		Questions:       standardQuestions(),
	}
	if edit != nil {
		edit(&in)
	}
	e, qs, err := f.svc.CreateExam(context.Background(), f.teacher, in)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	return e, qs
}

func byText(qs []model.Question, text string) model.Question {
	for _, q := range qs {
		if q.Text == text {
			return q
		}
	}
	panic("no question " + text)
}

// perfectAnswers answers every auto-graded question correctly and writes a
// short essay.
func perfectAnswers(qs []model.Question) []exam.SubmittedAnswer {
	return []exam.SubmittedAnswer{
		{QuestionID: byText(qs, "2+2?").ID, Answer: raw("4")},
		{QuestionID: byText(qs, "Primes?").ID, Answer: raw([]string{"3", "2"})},
		{QuestionID: byText(qs, "Go is compiled").ID, Answer: raw("true")},
		{QuestionID: byText(qs, "Capital of France").ID, Answer: raw("  paris ")},
		{QuestionID: byText(qs, "Explain goroutines").ID, Answer: raw("Lightweight threads managed by the runtime.")},
	}
}
