package store

import (
	"context"
	"fmt"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// ExamRoster returns the students who submitted at least one attempt of an
// exam, keyed by user ID.
func (s *Store) ExamRoster(ctx context.Context, examID int64) (map[int64]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT u.id, u.username, u.display_name, u.password_hash, u.role, u.active, u.created_at
		 FROM users u
		 JOIN exam_attempts a ON a.student_id = u.id
		 WHERE a.exam_id = ? AND a.submitted_at IS NOT NULL`, examID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	roster := make(map[int64]model.User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		u.PasswordHash = ""
		roster[u.ID] = *u
	}
	return roster, rows.Err()
}
