// Package exam implements the timed assessment engine: the exam catalog,
// availability rules, attempt lifecycle, manual grading and statistics.
package exam

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// DefaultSubmitGrace is how far past the deadline a submission may arrive
// before it is flagged late.
const DefaultSubmitGrace = 2 * time.Minute

// ExamFilter narrows ListExams. Zero values mean no filtering.
type ExamFilter struct {
	CourseID  int64
	TeacherID int64
}

// Tx is the set of persistence operations the engine needs. The same methods
// are available inside and outside a transaction.
type Tx interface {
	GetExam(ctx context.Context, id int64) (model.Exam, error)
	InsertExam(ctx context.Context, e model.Exam) (int64, error)
	UpdateExam(ctx context.Context, e model.Exam) error
	SoftDeleteExam(ctx context.Context, id int64, at time.Time) error
	ListExams(ctx context.Context, f ExamFilter) ([]model.Exam, error)
	ListStudentExams(ctx context.Context, studentID int64) ([]model.Exam, error)

	GetQuestion(ctx context.Context, id int64) (model.Question, error)
	InsertQuestion(ctx context.Context, q model.Question) (int64, error)
	NextOrderIndex(ctx context.Context, examID int64) (int, error)
	ListQuestions(ctx context.Context, examID int64) ([]model.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error

	GetAttempt(ctx context.Context, id int64) (model.Attempt, error)
	InsertAttempt(ctx context.Context, a model.Attempt) (int64, error)
	CompleteAttempt(ctx context.Context, a model.Attempt) error
	ListStudentAttempts(ctx context.Context, examID, studentID int64) ([]model.Attempt, error)
	ListSubmittedAttempts(ctx context.Context, examID int64) ([]model.Attempt, error)
	RecomputeAttemptScore(ctx context.Context, attemptID int64) (float64, error)

	GetResponse(ctx context.Context, id int64) (model.Response, error)
	InsertResponse(ctx context.Context, r model.Response) (int64, error)
	ListResponses(ctx context.Context, attemptID int64) ([]model.Response, error)
	ListExamResponses(ctx context.Context, examID int64) ([]model.Response, error)
	UpdateResponseGrade(ctx context.Context, r model.Response) error

	GetCourse(ctx context.Context, id int64) (model.Course, error)
}

// Repository is the unit-of-work boundary. InTx runs fn in a single
// transaction that is rolled back if fn returns an error.
type Repository interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Membership answers the enrollment and ownership questions owned by the
// course subsystem.
type Membership interface {
	IsEnrolled(ctx context.Context, courseID, studentID int64) (bool, error)
	OwnsCourse(ctx context.Context, courseID, teacherID int64) (bool, error)
}

// EssayAssistant proposes a grade for an essay answer. Suggestions are never
// persisted by the engine.
type EssayAssistant interface {
	SuggestEssayGrade(ctx context.Context, q model.Question, answer string) (model.GradeSuggestion, error)
}

// Service is the exam engine. It is safe for concurrent use; all shared state
// lives in the repository.
type Service struct {
	repo      Repository
	members   Membership
	assistant EssayAssistant
	now       func() time.Time
	seed      func() uint64
	grace     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSeed overrides the source of per-attempt shuffle seeds.
func WithSeed(seed func() uint64) Option {
	return func(s *Service) { s.seed = seed }
}

// WithSubmitGrace sets the late-submission tolerance.
func WithSubmitGrace(d time.Duration) Option {
	return func(s *Service) { s.grace = d }
}

// WithAssistant enables essay grade suggestions.
func WithAssistant(a EssayAssistant) Option {
	return func(s *Service) { s.assistant = a }
}

// NewService creates an exam engine on top of repo and members.
func NewService(repo Repository, members Membership, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		members: members,
		now:     time.Now,
		seed:    rand.Uint64,
		grace:   DefaultSubmitGrace,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// canManage reports whether actor owns the course of e. Admins manage everything.
func (s *Service) canManage(ctx context.Context, actor model.User, e model.Exam) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	if actor.Role != model.UserRoleTeacher {
		return false, nil
	}
	return s.members.OwnsCourse(ctx, e.CourseID, actor.ID)
}

func (s *Service) requireOwner(ctx context.Context, actor model.User, e model.Exam) error {
	ok, err := s.canManage(ctx, actor, e)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("exam access denied", "exam_id", e.ID, "user_id", actor.ID)
		return ErrForbidden
	}
	return nil
}

// liveExam loads an exam and hides soft-deleted ones.
func (s *Service) liveExam(ctx context.Context, id int64) (model.Exam, error) {
	e, err := s.repo.GetExam(ctx, id)
	if err != nil {
		return model.Exam{}, err
	}
	if e.Deleted() {
		return model.Exam{}, ErrNotFound
	}
	return e, nil
}

// expired reports whether an unsubmitted attempt can no longer be submitted on
// time. Expired attempts are a terminal state: they count against maxAttempts
// but do not block a new start.
func (s *Service) expired(a model.Attempt, e model.Exam, now time.Time) bool {
	return now.After(a.Deadline(e).Add(s.grace))
}
