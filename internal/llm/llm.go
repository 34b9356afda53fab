// Package llm proposes essay grades using an OpenAI-compatible chat API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/llm/prompts"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// gradeResult is the JSON object the model is asked to return.
type gradeResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. An unknown variant falls back to the standard one.
func New(baseURL, apiKey, modelName, variant string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	v := prompts.PromptVariant(variant)
	if !prompts.IsValidVariant(variant) {
		v = prompts.PromptStandard
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: v,
	}
}

// SuggestEssayGrade asks the model for a score and feedback on an essay answer.
// The score is not clamped here; callers bound it to the question's points.
func (c *Client) SuggestEssayGrade(ctx context.Context, q model.Question, answer string) (model.GradeSuggestion, error) {
	systemPrompt, err := prompts.BuildGradePrompt(c.variant, q, answer)
	if err != nil {
		return model.GradeSuggestion{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Grade the answer above."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return model.GradeSuggestion{}, fmt.Errorf("LLM grading API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.GradeSuggestion{}, fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question_id", q.ID, "raw", raw)

	var result gradeResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &result); err != nil {
		return model.GradeSuggestion{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	return model.GradeSuggestion{Points: result.Score, Feedback: strings.TrimSpace(result.Feedback)}, nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
