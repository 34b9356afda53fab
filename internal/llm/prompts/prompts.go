// Package prompts renders the essay grading prompts sent to the LLM.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes caps the answer length sent to the model.
const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant for majors.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant for electives.
	PromptLenient PromptVariant = "lenient"
)

var variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

var (
	loadOnce       sync.Once
	loadErr        error
	gradeTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// GradeData holds template data for essay grading prompts.
type GradeData struct {
	QuestionText string
	MaxPoints    float64
	Guidance     string
	Answer       string
}

func load() error {
	loadOnce.Do(func() {
		loadErr = parseTemplates(templateFS)
	})
	return loadErr
}

func parseTemplates(fsys fs.FS) error {
	parsed := make(map[PromptVariant]*template.Template, len(variants))
	for _, v := range variants {
		name := "templates/grade_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(string(v)).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		parsed[v] = tmpl
	}
	gradeTemplates = parsed
	return nil
}

// BuildGradePrompt renders the grading prompt for an essay answer using the
// given variant. The question's explanation is passed to the model as grading
// guidance.
func BuildGradePrompt(variant PromptVariant, q model.Question, answer string) (string, error) {
	if err := load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := gradeTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := GradeData{
		QuestionText: q.Text,
		MaxPoints:    q.Points,
		Guidance:     strings.TrimSpace(q.Explanation),
		Answer:       sanitizeAnswer(answer),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeAnswer strips tags that could break out of the answer block and
// truncates very long answers.
func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
