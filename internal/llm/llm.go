// Package llm wraps the rubric-scoring model behind an OpenAI-compatible
// API, with score clamping and an optional determinism guard.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Xsert/french-fluency-forge-sub001/internal/llm/prompts"
	"github.com/Xsert/french-fluency-forge-sub001/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// RubricScore holds one scoring run's result: a bounded numeric score plus
// the evidence quotes and feedback that justify it.
type RubricScore struct {
	Score    float64  `json:"score"`
	Evidence []string `json:"evidence"`
	Feedback string   `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client for rubric scoring.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
}

// New creates a rubric-scoring client.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.Variant(variant),
	}, nil
}

// Ping verifies the endpoint is reachable and the model list is served.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// ScoreWithRubric scores a transcript against a prompt's rubric. The model
// is asked for JSON; the returned score is clamped to the rubric bounds
// regardless of what the upstream model claims.
func (c *Client) ScoreWithRubric(ctx context.Context, transcript string, p model.Prompt) (*RubricScore, error) {
	systemPrompt := prompts.BuildRubricPrompt(c.variant, p)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompts.WrapTranscript(transcript)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("rubric scoring API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("rubric scorer returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("rubric scorer response", "module", p.Module, "raw", raw)

	var result RubricScore
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse rubric response: %w (raw: %s)", err, raw)
	}

	min, max := p.RubricBounds()
	result.Score = Clamp(result.Score, min, max)

	return &result, nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
