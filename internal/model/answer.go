package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionType selects how an answer is decoded and evaluated.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionMultipleSelect QuestionType = "multiple_select"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

var questionTypeAliases = map[string]QuestionType{
	"mcq":             QuestionSingleChoice,
	"single_choice":   QuestionSingleChoice,
	"true_false":      QuestionTrueFalse,
	"multiple_select": QuestionMultipleSelect,
	"multiple_choice": QuestionMultipleSelect,
	"short_answer":    QuestionShortAnswer,
	"essay":           QuestionEssay,
}

// ParseQuestionType normalizes a question type name, accepting the legacy aliases.
func ParseQuestionType(s string) (QuestionType, bool) {
	t, ok := questionTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// HasOptions reports whether questions of this type carry an options list.
func (t QuestionType) HasOptions() bool {
	return t == QuestionSingleChoice || t == QuestionMultipleSelect
}

// AutoGraded reports whether answers of this type are scored without review.
func (t QuestionType) AutoGraded() bool { return t != QuestionEssay }

// Answer is a type-dependent answer payload. The concrete variants are Choice,
// Selection, Text and Essay; the set is closed.
type Answer interface {
	// Payload returns the answer in its JSON-ready form.
	Payload() any
	answer()
}

// Choice is a single selected value (single choice and true/false).
type Choice struct{ Value string }

// Selection is a set of selected values (multiple select).
type Selection struct{ Values []string }

// Text is a short free-text answer.
type Text struct{ Value string }

// Essay is a long free-text answer, graded manually.
type Essay struct{ Text string }

func (c Choice) Payload() any { return c.Value }
func (s Selection) Payload() any { return s.Values }
func (t Text) Payload() any { return t.Value }
func (e Essay) Payload() any { return e.Text }

func (Choice) answer() {}
func (Selection) answer() {}
func (Text) answer() {}
func (Essay) answer() {}

// AnswerValue returns a.Payload(), or nil for a nil answer.
func AnswerValue(a Answer) any {
	if a == nil {
		return nil
	}
	return a.Payload()
}

// EncodeAnswer serializes an answer for storage.
func EncodeAnswer(a Answer) (json.RawMessage, error) {
	if a == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(a.Payload())
}

// ParseAnswer decodes a raw payload into the variant used by questions of type t.
// Scalars (string, number, bool) are normalized to their string form.
func ParseAnswer(t QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("empty answer")
	}
	switch t {
	case QuestionSingleChoice, QuestionTrueFalse:
		v, err := scalar(raw)
		if err != nil {
			return nil, err
		}
		return Choice{Value: v}, nil
	case QuestionMultipleSelect:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("multiple select answer must be an array: %w", err)
		}
		values := make([]string, 0, len(items))
		for _, it := range items {
			v, err := scalar(it)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return Selection{Values: values}, nil
	case QuestionShortAnswer:
		v, err := scalar(raw)
		if err != nil {
			return nil, err
		}
		return Text{Value: v}, nil
	case QuestionEssay:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("essay answer must be a string: %w", err)
		}
		return Essay{Text: s}, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}
}

func scalar(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("expected a scalar answer, got %s", raw)
	}
}
