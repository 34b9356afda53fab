package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ImportRecord describes a question file that was already imported.
type ImportRecord struct {
	Hash       string
	ExamID     int64
	Filename   string
	Questions  int
	ImportedAt time.Time
}

// GetImport returns the record for a file hash, or nil if the file was never
// imported.
func (s *Store) GetImport(ctx context.Context, hash string) (*ImportRecord, error) {
	var r ImportRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, exam_id, filename, questions, imported_at FROM imported_files WHERE hash = ?`, hash,
	).Scan(&r.Hash, &r.ExamID, &r.Filename, &r.Questions, &r.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordImport remembers that a file has been imported into an exam.
func (s *Store) RecordImport(ctx context.Context, r ImportRecord) error {
	if r.ImportedAt.IsZero() {
		r.ImportedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imported_files (hash, exam_id, filename, questions, imported_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET exam_id = ?, filename = ?, questions = ?, imported_at = ?`,
		r.Hash, r.ExamID, r.Filename, r.Questions, r.ImportedAt.UTC(),
		r.ExamID, r.Filename, r.Questions, r.ImportedAt.UTC(),
	)
	return err
}
