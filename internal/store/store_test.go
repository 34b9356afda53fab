package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, username string, role model.UserRole) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{Username: username, DisplayName: username, Role: role, Active: true})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return id
}

func createTestCourse(t *testing.T, s *Store, code string, teacherID int64) int64 {
	t.Helper()
	id, err := s.CreateCourse(context.Background(), model.Course{Code: code, Name: code, TeacherID: teacherID})
	if err != nil {
		t.Fatalf("CreateCourse(%s): %v", code, err)
	}
	return id
}

func insertTestExam(t *testing.T, s *Store, courseID, teacherID int64) int64 {
	t.Helper()
	id, err := s.InsertExam(context.Background(), model.Exam{
		CourseID:        courseID,
		CreatedBy:       teacherID,
		Title:           "Algebra",
		ExamType:        model.ExamTypeQuiz,
		StartTime:       t0,
		EndTime:         t0.Add(2 * time.Hour),
		DurationMinutes: 30,
		TotalPoints:     10,
		PassingScore:    5,
		MaxAttempts:     2,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	})
	if err != nil {
		t.Fatalf("InsertExam: %v", err)
	}
	return id
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id := createTestUser(t, s, "alice", model.UserRoleStudent)
	u, err := s.GetUserByID(id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u == nil || u.Username != "alice" || u.Role != model.UserRoleStudent || !u.Active {
		t.Fatalf("unexpected user: %+v", u)
	}

	missing, err := s.GetUserByUsername("nobody")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}

	if _, err := s.CreateUser(model.User{Username: "alice", Role: model.UserRoleStudent}); err == nil {
		t.Error("expected duplicate username to fail")
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByUsername("alice")
	if u.Active {
		t.Error("expected user to be inactive after toggle")
	}
	if err := s.ToggleUserActive(9999); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing user, got %v", err)
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "bob", model.UserRoleTeacher)

	token, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != uid {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Expired sessions are invisible and removed by cleanup.
	if _, err := s.db.Exec(`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"stale", uid, time.Now().Add(-2*time.Hour).UTC(), time.Now().Add(-time.Hour).UTC()); err != nil {
		t.Fatalf("insert stale session: %v", err)
	}
	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session removed, got %d", n)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, _ = s.GetAuthSession(token)
	if sess != nil {
		t.Error("expected nil session after delete")
	}
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	teacher := createTestUser(t, s, "teacher", model.UserRoleTeacher)
	other := createTestUser(t, s, "other", model.UserRoleTeacher)
	student := createTestUser(t, s, "student", model.UserRoleStudent)
	course := createTestCourse(t, s, "MATH101", teacher)

	if err := s.Enroll(ctx, course, student); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := s.Enroll(ctx, course, student); err != nil {
		t.Fatalf("Enroll twice: %v", err)
	}

	tests := []struct {
		name string
		fn   func() (bool, error)
		want bool
	}{
		{"enrolled student", func() (bool, error) { return s.IsEnrolled(ctx, course, student) }, true},
		{"teacher not enrolled", func() (bool, error) { return s.IsEnrolled(ctx, course, teacher) }, false},
		{"owner", func() (bool, error) { return s.OwnsCourse(ctx, course, teacher) }, true},
		{"other teacher", func() (bool, error) { return s.OwnsCourse(ctx, course, other) }, false},
		{"missing course", func() (bool, error) { return s.OwnsCourse(ctx, 9999, teacher) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	c, err := s.GetCourse(ctx, course)
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if c.Code != "MATH101" || c.TeacherID != teacher {
		t.Errorf("unexpected course: %+v", c)
	}
	if _, err := s.GetCourse(ctx, 9999); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExamCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	teacher := createTestUser(t, s, "teacher", model.UserRoleTeacher)
	student := createTestUser(t, s, "student", model.UserRoleStudent)
	course := createTestCourse(t, s, "MATH101", teacher)
	otherCourse := createTestCourse(t, s, "PHYS101", createTestUser(t, s, "t2", model.UserRoleTeacher))
	id := insertTestExam(t, s, course, teacher)
	insertTestExam(t, s, otherCourse, teacher)

	e, err := s.GetExam(ctx, id)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if e.Title != "Algebra" || e.ExamType != model.ExamTypeQuiz || e.MaxAttempts != 2 {
		t.Errorf("unexpected exam: %+v", e)
	}
	if !e.StartTime.Equal(t0) || !e.EndTime.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("window not preserved: %v - %v", e.StartTime, e.EndTime)
	}
	if e.Deleted() {
		t.Error("new exam should not be deleted")
	}

	e.Title = "Algebra II"
	e.IsPublished = true
	if err := s.UpdateExam(ctx, e); err != nil {
		t.Fatalf("UpdateExam: %v", err)
	}
	e, _ = s.GetExam(ctx, id)
	if e.Title != "Algebra II" || !e.IsPublished {
		t.Errorf("update not applied: %+v", e)
	}

	tests := []struct {
		name   string
		filter exam.ExamFilter
		want   int
	}{
		{"all", exam.ExamFilter{}, 2},
		{"by course", exam.ExamFilter{CourseID: course}, 1},
		{"by teacher", exam.ExamFilter{TeacherID: teacher}, 1},
		{"no match", exam.ExamFilter{CourseID: 9999}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exams, err := s.ListExams(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListExams: %v", err)
			}
			if len(exams) != tt.want {
				t.Errorf("expected %d exams, got %d", tt.want, len(exams))
			}
		})
	}

	if err := s.Enroll(ctx, course, student); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	visible, err := s.ListStudentExams(ctx, student)
	if err != nil {
		t.Fatalf("ListStudentExams: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != id {
		t.Errorf("expected the published exam only, got %+v", visible)
	}

	if err := s.SoftDeleteExam(ctx, id, t0.Add(time.Hour)); err != nil {
		t.Fatalf("SoftDeleteExam: %v", err)
	}
	if err := s.SoftDeleteExam(ctx, id, t0.Add(time.Hour)); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	e, err = s.GetExam(ctx, id)
	if err != nil {
		t.Fatalf("GetExam after delete: %v", err)
	}
	if !e.Deleted() {
		t.Error("expected exam to be soft-deleted")
	}
	visible, _ = s.ListStudentExams(ctx, student)
	if len(visible) != 0 {
		t.Errorf("deleted exam still visible: %+v", visible)
	}
	if _, err := s.GetExam(ctx, 9999); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQuestionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	teacher := createTestUser(t, s, "teacher", model.UserRoleTeacher)
	examID := insertTestExam(t, s, createTestCourse(t, s, "C1", teacher), teacher)

	if next, err := s.NextOrderIndex(ctx, examID); err != nil || next != 1 {
		t.Errorf("NextOrderIndex on empty exam = %d, %v; want 1", next, err)
	}

	in := []model.Question{
		{ExamID: examID, Text: "Pick primes", Type: model.QuestionMultipleSelect, Options: []string{"2", "3", "4"},
			CorrectAnswer: model.Selection{Values: []string{"2", "3"}}, Points: 4, OrderIndex: 1},
		{ExamID: examID, Text: "Capital of France", Type: model.QuestionShortAnswer,
			CorrectAnswer: model.Text{Value: "Paris"}, Points: 2, OrderIndex: 0, Explanation: "geography"},
		{ExamID: examID, Text: "Discuss", Type: model.QuestionEssay, Points: 4, OrderIndex: 2},
	}
	for _, q := range in {
		if _, err := s.InsertQuestion(ctx, q); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}

	dup := in[0]
	if _, err := s.InsertQuestion(ctx, dup); err == nil {
		t.Error("expected duplicate order index to fail")
	}

	next, err := s.NextOrderIndex(ctx, examID)
	if err != nil {
		t.Fatalf("NextOrderIndex: %v", err)
	}
	if next != 3 {
		t.Errorf("expected next order index 3, got %d", next)
	}

	qs, err := s.ListQuestions(ctx, examID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	if qs[0].Text != "Capital of France" || qs[0].Explanation != "geography" {
		t.Errorf("expected questions ordered by order index, got %q first", qs[0].Text)
	}
	sel, ok := qs[1].CorrectAnswer.(model.Selection)
	if !ok || len(sel.Values) != 2 || sel.Values[0] != "2" {
		t.Errorf("unexpected answer key: %#v", qs[1].CorrectAnswer)
	}
	if len(qs[1].Options) != 3 {
		t.Errorf("expected 3 options, got %v", qs[1].Options)
	}
	if qs[2].CorrectAnswer != nil || qs[2].Options != nil {
		t.Errorf("essay should have no key or options: %#v", qs[2])
	}

	if err := s.DeleteQuestion(ctx, qs[2].ID); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}
	if _, err := s.GetQuestion(ctx, qs[2].ID); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteQuestion(ctx, qs[2].ID); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	teacher := createTestUser(t, s, "teacher", model.UserRoleTeacher)
	student := createTestUser(t, s, "student", model.UserRoleStudent)
	examID := insertTestExam(t, s, createTestCourse(t, s, "C1", teacher), teacher)

	aid, err := s.InsertAttempt(ctx, model.Attempt{ExamID: examID, StudentID: student, StartedAt: t0})
	if err != nil {
		t.Fatalf("InsertAttempt: %v", err)
	}
	a, err := s.GetAttempt(ctx, aid)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if !a.InProgress() || a.Score != nil {
		t.Errorf("new attempt should be in progress without score: %+v", a)
	}

	for i, pts := range []float64{3, 0} {
		if _, err := s.InsertResponse(ctx, model.Response{
			AttemptID:     aid,
			QuestionID:    int64(i + 1),
			StudentAnswer: json.RawMessage(`"x"`),
			IsCorrect:     pts > 0,
			PointsEarned:  pts,
		}); err != nil {
			t.Fatalf("InsertResponse: %v", err)
		}
	}
	if _, err := s.InsertResponse(ctx, model.Response{AttemptID: aid, QuestionID: 1}); err == nil {
		t.Error("expected duplicate response to fail")
	}

	done := t0.Add(20 * time.Minute)
	score := 3.0
	a.SubmittedAt, a.Score, a.TimeSpentMinutes = &done, &score, 20
	if err := s.CompleteAttempt(ctx, a); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if err := s.CompleteAttempt(ctx, a); !errors.Is(err, exam.ErrAlreadySubmitted) {
		t.Errorf("expected ErrAlreadySubmitted, got %v", err)
	}

	got, _ := s.GetAttempt(ctx, aid)
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(done) || got.Score == nil || *got.Score != 3 {
		t.Errorf("submission not stored: %+v", got)
	}

	responses, err := s.ListResponses(ctx, aid)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(responses) != 2 || string(responses[0].StudentAnswer) != `"x"` {
		t.Fatalf("unexpected responses: %+v", responses)
	}

	by := teacher
	r := responses[1]
	r.PointsEarned, r.IsCorrect, r.Feedback, r.GradedBy, r.GradedAt = 4, true, "good", &by, &done
	if err := s.UpdateResponseGrade(ctx, r); err != nil {
		t.Fatalf("UpdateResponseGrade: %v", err)
	}
	total, err := s.RecomputeAttemptScore(ctx, aid)
	if err != nil {
		t.Fatalf("RecomputeAttemptScore: %v", err)
	}
	if total != 7 {
		t.Errorf("expected score 7, got %v", total)
	}
	graded, _ := s.GetResponse(ctx, r.ID)
	if graded.GradedBy == nil || *graded.GradedBy != teacher || graded.GradedAt == nil || graded.Feedback != "good" {
		t.Errorf("grade not stored: %+v", graded)
	}

	submitted, err := s.ListSubmittedAttempts(ctx, examID)
	if err != nil {
		t.Fatalf("ListSubmittedAttempts: %v", err)
	}
	if len(submitted) != 1 {
		t.Errorf("expected 1 submitted attempt, got %d", len(submitted))
	}
	all, _ := s.ListExamResponses(ctx, examID)
	if len(all) != 2 {
		t.Errorf("expected 2 exam responses, got %d", len(all))
	}

	roster, err := s.ExamRoster(ctx, examID)
	if err != nil {
		t.Fatalf("ExamRoster: %v", err)
	}
	if u, ok := roster[student]; !ok || u.Username != "student" || u.PasswordHash != "" {
		t.Errorf("unexpected roster: %+v", roster)
	}
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	teacher := createTestUser(t, s, "teacher", model.UserRoleTeacher)
	course := createTestCourse(t, s, "C1", teacher)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx exam.Tx) error {
		if _, err := tx.InsertExam(ctx, model.Exam{CourseID: course, CreatedBy: teacher, Title: "x",
			StartTime: t0, EndTime: t0.Add(time.Hour), DurationMinutes: 10, MaxAttempts: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	exams, _ := s.ListExams(ctx, exam.ExamFilter{})
	if len(exams) != 0 {
		t.Errorf("expected rollback, found %d exams", len(exams))
	}

	err = s.InTx(ctx, func(tx exam.Tx) error {
		_, err := tx.InsertExam(ctx, model.Exam{CourseID: course, CreatedBy: teacher, Title: "y",
			StartTime: t0, EndTime: t0.Add(time.Hour), DurationMinutes: 10, MaxAttempts: 1})
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	exams, _ = s.ListExams(ctx, exam.ExamFilter{})
	if len(exams) != 1 {
		t.Errorf("expected committed exam, found %d", len(exams))
	}
}

func TestImportRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.GetImport(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}

	if err := s.RecordImport(ctx, ImportRecord{Hash: "abc123", ExamID: 1, Filename: "q.json", Questions: 4}); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	rec, err = s.GetImport(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if rec == nil || rec.ExamID != 1 || rec.Questions != 4 || rec.Filename != "q.json" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if err := s.RecordImport(ctx, ImportRecord{Hash: "abc123", ExamID: 2, Filename: "q.json", Questions: 5}); err != nil {
		t.Fatalf("RecordImport update: %v", err)
	}
	rec, _ = s.GetImport(ctx, "abc123")
	if rec.ExamID != 2 || rec.Questions != 5 {
		t.Errorf("expected updated record, got %+v", rec)
	}
}
