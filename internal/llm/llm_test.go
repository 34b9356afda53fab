package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// fakeAPI serves a single canned chat completion and records the prompt.
func fakeAPI(t *testing.T, content string, status int) (*httptest.Server, *string) {
	t.Helper()
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) > 0 {
			prompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &prompt
}

var essay = model.Question{ID: 7, Text: "Explain goroutines", Type: model.QuestionEssay, Points: 5}

func TestSuggestEssayGrade(t *testing.T) {
	srv, prompt := fakeAPI(t, `{"score": 3.5, "feedback": " Good start. "}`, http.StatusOK)
	c := New(srv.URL, "key", "test-model", "strict")

	sug, err := c.SuggestEssayGrade(context.Background(), essay, "They are cheap threads.")
	if err != nil {
		t.Fatalf("SuggestEssayGrade: %v", err)
	}
	if sug.Points != 3.5 || sug.Feedback != "Good start." {
		t.Errorf("unexpected suggestion: %+v", sug)
	}
	if !strings.Contains(*prompt, "They are cheap threads.") || !strings.Contains(*prompt, "Grade strictly") {
		t.Errorf("prompt does not carry the answer and variant: %s", *prompt)
	}
}

func TestSuggestEssayGradeFencedJSON(t *testing.T) {
	srv, _ := fakeAPI(t, "```json\n{\"score\": 2, \"feedback\": \"ok\"}\n```", http.StatusOK)
	c := New(srv.URL, "key", "test-model", "")

	sug, err := c.SuggestEssayGrade(context.Background(), essay, "answer")
	if err != nil {
		t.Fatalf("SuggestEssayGrade: %v", err)
	}
	if sug.Points != 2 {
		t.Errorf("points = %v, want 2", sug.Points)
	}
	if c.variant != "standard" {
		t.Errorf("empty variant should fall back to standard, got %q", c.variant)
	}
}

func TestSuggestEssayGradeErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
	}{
		{"not json", "I think it deserves a 4", http.StatusOK},
		{"server error", "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeAPI(t, tt.content, tt.status)
			c := New(srv.URL, "key", "test-model", "standard")
			if _, err := c.SuggestEssayGrade(context.Background(), essay, "answer"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
