package model

import (
	"context"
	"encoding/json"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool { return u.Role == UserRoleAdmin }

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Course is the unit exams are attached to. TeacherID owns the course.
type Course struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	TeacherID int64  `json:"teacher_id"`
}

// ExamType is an open enum; the listed values are the ones the UI knows about.
type ExamType string

const (
	ExamTypeExam    ExamType = "exam"
	ExamTypeQuiz    ExamType = "quiz"
	ExamTypeMidterm ExamType = "midterm"
	ExamTypeFinal   ExamType = "final"
)

// Exam is a gradable assessment attached to one course.
type Exam struct {
	ID                 int64      `json:"id"`
	CourseID           int64      `json:"course_id"`
	CreatedBy          int64      `json:"created_by"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	ExamType           ExamType   `json:"exam_type"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	DurationMinutes    int        `json:"duration_minutes"`
	TotalPoints        float64    `json:"total_points"`
	PassingScore       float64    `json:"passing_score"`
	MaxAttempts        int        `json:"max_attempts"`
	IsPublished        bool       `json:"is_published"`
	ShuffleQuestions   bool       `json:"shuffle_questions"`
	ShuffleOptions     bool       `json:"shuffle_options"`
	ShowCorrectAnswers bool       `json:"show_correct_answers"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Duration returns the per-attempt time budget.
func (e Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Deleted reports whether the exam has been soft-deleted.
func (e Exam) Deleted() bool { return e.DeletedAt != nil }

// Question is one item in an exam's question bank.
type Question struct {
	ID            int64        `json:"id"`
	ExamID        int64        `json:"exam_id"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"question_type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer Answer       `json:"-"`
	Points        float64      `json:"points"`
	OrderIndex    int          `json:"order_index"`
	Explanation   string       `json:"explanation,omitempty"`
	ImageURL      string       `json:"image_url,omitempty"`
}

// MarshalJSON includes the correct answer in its plain form. Only owner-facing
// views serialize a Question directly; students get PresentedQuestion.
func (q Question) MarshalJSON() ([]byte, error) {
	type plain Question
	return json.Marshal(struct {
		plain
		CorrectAnswer any `json:"correct_answer,omitempty"`
	}{plain(q), AnswerValue(q.CorrectAnswer)})
}

// PresentedQuestion is the student-facing form of a question for one attempt.
type PresentedQuestion struct {
	ID         int64        `json:"id"`
	Text       string       `json:"question_text"`
	Type       QuestionType `json:"question_type"`
	Options    []string     `json:"options,omitempty"`
	Points     float64      `json:"points"`
	Position   int          `json:"position"`
	OrderIndex int          `json:"order_index"`
	ImageURL   string       `json:"image_url,omitempty"`
}

// Attempt is one student's pass at an exam.
type Attempt struct {
	ID               int64      `json:"id"`
	ExamID           int64      `json:"exam_id"`
	StudentID        int64      `json:"student_id"`
	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	TimeSpentMinutes int        `json:"time_spent_minutes"`
	Late             bool       `json:"late"`
}

// InProgress reports whether the attempt has not been submitted yet.
func (a Attempt) InProgress() bool { return a.SubmittedAt == nil }

// Deadline is the tighter of the attempt's own budget and the exam's closing time.
func (a Attempt) Deadline(e Exam) time.Time {
	d := a.StartedAt.Add(e.Duration())
	if e.EndTime.Before(d) {
		return e.EndTime
	}
	return d
}

// Response is one answer within an attempt.
type Response struct {
	ID            int64           `json:"id"`
	AttemptID     int64           `json:"attempt_id"`
	QuestionID    int64           `json:"question_id"`
	StudentAnswer json.RawMessage `json:"student_answer"`
	IsCorrect     bool            `json:"is_correct"`
	PointsEarned  float64         `json:"points_earned"`
	Feedback      string          `json:"feedback,omitempty"`
	GradedBy      *int64          `json:"graded_by,omitempty"`
	GradedAt      *time.Time      `json:"graded_at,omitempty"`
}

// Availability is the computed, non-persisted status of an exam for one student.
type Availability string

const (
	AvailabilityUpcoming    Availability = "UPCOMING"
	AvailabilityAvailable   Availability = "AVAILABLE"
	AvailabilityMaxAttempts Availability = "MAX_ATTEMPTS"
	AvailabilityClosed      Availability = "CLOSED"
)

// GradeSuggestion is a proposed manual grade for an essay response.
type GradeSuggestion struct {
	Points   float64 `json:"points"`
	Feedback string  `json:"feedback"`
}
