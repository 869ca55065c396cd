// Package tiebreak wraps the Anthropic client in the narrow interface
// Stage B needs to break a near-tied top-2 score, per spec.md §4.4 step
// 7. Callers always have a deterministic fallback ready; this package
// never needs to be reliable, only fast or absent.
package tiebreak

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// CandidateSummary is the compact, structured view of one top-2
// candidate handed to the model — no raw tool internals, just the
// fields a rationale needs.
type CandidateSummary struct {
	ToolName   string
	Pattern    string
	Score      float64
	TopFeature string
}

// Request is the compact prompt payload: only the top-2 candidates.
type Request struct {
	First, Second CandidateSummary
	DecisionIntent string
}

// Result is the model's pick plus its stated rationale.
type Result struct {
	ChosenIndex int // 0 = First, 1 = Second
	Rationale   string
}

// Client breaks a tie between exactly two candidates.
type Client interface {
	Break(ctx context.Context, req Request) (Result, error)
}

// AnthropicClient is the production Client, backed by
// github.com/anthropics/anthropic-sdk-go.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient builds a client against apiKey, using model (falls
// back to Claude Haiku — tie-breaking is a cheap, low-latency call, not
// a reasoning-heavy one).
func NewAnthropicClient(apiKey string, model anthropic.Model) *AnthropicClient {
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

type tieBreakResponse struct {
	ChosenIndex int    `json:"chosen_index"`
	Rationale   string `json:"rationale"`
}

func (c *AnthropicClient) Break(ctx context.Context, req Request) (Result, error) {
	prompt := fmt.Sprintf(
		"Two tool candidates are statistically tied for intent %q.\n"+
			"Candidate 0: tool=%s pattern=%s score=%.4f top_feature=%s\n"+
			"Candidate 1: tool=%s pattern=%s score=%.4f top_feature=%s\n"+
			"Reply with JSON only: {\"chosen_index\": 0 or 1, \"rationale\": \"one sentence\"}.",
		req.DecisionIntent,
		req.First.ToolName, req.First.Pattern, req.First.Score, req.First.TopFeature,
		req.Second.ToolName, req.Second.Pattern, req.Second.Score, req.Second.TopFeature,
	)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("tiebreak: anthropic call failed: %w", err)
	}
	if len(msg.Content) == 0 {
		return Result{}, fmt.Errorf("tiebreak: empty response")
	}

	var parsed tieBreakResponse
	if err := json.Unmarshal([]byte(msg.Content[0].Text), &parsed); err != nil {
		return Result{}, fmt.Errorf("tiebreak: malformed response: %w", err)
	}
	if parsed.ChosenIndex != 0 && parsed.ChosenIndex != 1 {
		return Result{}, fmt.Errorf("tiebreak: chosen_index out of range: %d", parsed.ChosenIndex)
	}
	return Result{ChosenIndex: parsed.ChosenIndex, Rationale: parsed.Rationale}, nil
}

// WithTimeout enforces SELECTOR_LLM_TIMEOUT_MS around a Break call.
func WithTimeout(ctx context.Context, c Client, req Request, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Break(ctx, req)
}
