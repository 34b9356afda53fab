package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/store"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Append questions from a JSON file to an exam",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "nexus.db", "SQLite database path")
	f.Int64("exam-id", 0, "Exam to append the questions to (required)")
	f.String("file", "", "JSON file with a question array or an object with a questions array (required)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exam-id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam statistics and submitted attempts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "nexus.db", "SQLite database path")
	f.Int64("exam-id", 0, "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	path := v.GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	prev, err := db.GetImport(ctx, hash)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if prev != nil {
		slog.Info("questions file already imported, skipping",
			"path", path, "exam_id", prev.ExamID, "imported_at", prev.ImportedAt)
		return nil
	}

	questions, err := parseQuestionFile(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	examID := v.GetInt64("exam-id")
	svc := exam.NewService(db, db)
	added, err := svc.ImportQuestions(ctx, examID, questions)
	if err != nil {
		return fmt.Errorf("import into exam %d: %w", examID, err)
	}

	err = db.RecordImport(ctx, store.ImportRecord{
		Hash:       hash,
		ExamID:     examID,
		Filename:   filepath.Base(path),
		Questions:  len(added),
		ImportedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "exam_id", examID, "count", len(added))
	return nil
}

// parseQuestionFile accepts either a bare array of questions or an object
// carrying them under "questions".
func parseQuestionFile(data []byte) ([]exam.QuestionInput, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	raw := data
	if list := gjson.GetBytes(data, "questions"); list.IsArray() {
		raw = []byte(list.Raw)
	} else if !gjson.ParseBytes(data).IsArray() {
		return nil, fmt.Errorf("expected a question array")
	}
	var questions []exam.QuestionInput
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions found")
	}
	return questions, nil
}

// examExport is the document written by the export command.
type examExport struct {
	ExportedAt time.Time            `json:"exported_at"`
	*exam.Export
	Students map[int64]model.User `json:"students"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	examID := v.GetInt64("exam-id")
	export, err := exam.NewService(db, db).ExportExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("export exam %d: %w", examID, err)
	}
	roster, err := db.ExamRoster(ctx, examID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	data, err := json.MarshalIndent(examExport{
		ExportedAt: time.Now().UTC(),
		Export:     export,
		Students:   roster,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported exam", "exam_id", examID, "attempts", len(export.Attempts))
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
