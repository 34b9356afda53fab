// Package store persists the exam engine's data in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"

	_ "modernc.org/sqlite"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the statements shared by the store and its transactions.
type queries struct {
	q dbtx
}

type Store struct {
	queries
	db *sql.DB
}

var (
	_ exam.Repository = (*Store)(nil)
	_ exam.Membership = (*Store)(nil)
)

// New opens the database at dbPath and creates the schema. Write transactions
// begin IMMEDIATE so that read-check-write sequences serialize; contenders wait
// up to the busy timeout.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	memory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{queries: queries{q: db}, db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx exam.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		teacher_id INTEGER NOT NULL,
		FOREIGN KEY (teacher_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		course_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		enrolled_at DATETIME NOT NULL,
		PRIMARY KEY (course_id, student_id),
		FOREIGN KEY (course_id) REFERENCES courses(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		created_by INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		exam_type TEXT NOT NULL DEFAULT 'exam',
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		duration_minutes INTEGER NOT NULL,
		total_points REAL NOT NULL DEFAULT 0,
		passing_score REAL NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 1,
		is_published INTEGER NOT NULL DEFAULT 0,
		shuffle_questions INTEGER NOT NULL DEFAULT 0,
		shuffle_options INTEGER NOT NULL DEFAULT 0,
		show_correct_answers INTEGER NOT NULL DEFAULT 0,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_answer TEXT NOT NULL DEFAULT 'null',
		points REAL NOT NULL DEFAULT 0,
		order_index INTEGER NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		UNIQUE (exam_id, order_index),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		score REAL,
		time_spent_minutes INTEGER NOT NULL DEFAULT 0,
		late INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);
	CREATE INDEX IF NOT EXISTS exam_attempts_by_student ON exam_attempts (exam_id, student_id);

	-- question_id has no foreign key: responses outlive deleted questions.
	CREATE TABLE IF NOT EXISTS exam_attempt_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		student_answer TEXT NOT NULL DEFAULT 'null',
		is_correct INTEGER NOT NULL DEFAULT 0,
		points_earned REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		graded_by INTEGER,
		graded_at DATETIME,
		UNIQUE (attempt_id, question_id),
		FOREIGN KEY (attempt_id) REFERENCES exam_attempts(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		hash TEXT PRIMARY KEY,
		exam_id INTEGER NOT NULL,
		filename TEXT NOT NULL,
		questions INTEGER NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// notFound maps sql.ErrNoRows to exam.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return exam.ErrNotFound
	}
	return err
}

// mustAffect returns exam.ErrNotFound when res touched no rows.
func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return exam.ErrNotFound
	}
	return nil
}
