package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// CreateCourse inserts a course owned by c.TeacherID.
func (s *Store) CreateCourse(ctx context.Context, c model.Course) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO courses (code, name, teacher_id) VALUES (?, ?, ?)`,
		c.Code, c.Name, c.TeacherID,
	)
	if err != nil {
		slog.Error("failed to create course", "code", c.Code, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created course", "id", id, "code", c.Code, "teacher_id", c.TeacherID)
	return id, nil
}

// ListCourses returns all courses ordered by code.
func (s *Store) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, teacher_id FROM courses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.TeacherID); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// Enroll adds a student to a course. Enrolling twice is a no-op.
func (s *Store) Enroll(ctx context.Context, courseID, studentID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (course_id, student_id, enrolled_at) VALUES (?, ?, ?)
		 ON CONFLICT(course_id, student_id) DO NOTHING`,
		courseID, studentID, time.Now().UTC(),
	)
	return err
}

// IsEnrolled reports whether a student is enrolled in a course.
func (s *Store) IsEnrolled(ctx context.Context, courseID, studentID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = ? AND student_id = ?`, courseID, studentID,
	).Scan(&n)
	return n > 0, err
}

// OwnsCourse reports whether a teacher owns a course.
func (s *Store) OwnsCourse(ctx context.Context, courseID, teacherID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM courses WHERE id = ? AND teacher_id = ?`, courseID, teacherID,
	).Scan(&n)
	return n > 0, err
}
