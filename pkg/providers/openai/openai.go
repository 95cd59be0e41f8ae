// Package openai provides a Completer implementation for the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/parleyhq/parley/pkg/modeladapter/usage"
)

const (
	completionsPath = "/v1/chat/completions"

	defaultMaxTokens = 4096
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the OpenAI Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter configured for the OpenAI API.
// The baseURL should be "https://api.openai.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.MaxTokens = defaultMaxTokens
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	return a
}

// Provider returns the provider identifier for this adapter.
func (a *Adapter) Provider() string { return "openai" }

// Complete sends a conversation to the OpenAI Chat Completions API and returns
// the normalized completion. Structured output is supported: an output format
// call option is forwarded as a response_format json_schema constraint.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, opts ...modeladapter.CallOption) (modeladapter.Completion, error) {
	co := modeladapter.NewCallOptions(opts...)

	req := a.buildRequest(c, co)

	var resp apiResponse
	if err := a.PostJSON(ctx, completionsPath, req, &resp); err != nil {
		return modeladapter.Completion{}, fmt.Errorf("openai: %w", err)
	}

	if len(resp.Choices) == 0 {
		return modeladapter.Completion{}, errors.New("openai: empty choices in response")
	}

	tc := usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	a.Usage.Add(tc)

	return modeladapter.Completion{
		Message: message.New(a.Name, role.Assistant, resp.Choices[0].Message.Content),
		Usage:   tc,
	}, nil
}

// --- request types ---

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- conversion helpers ---

// buildRequest assembles the request body as a map so that extra options,
// applied last, win over the named fields on a key collision.
func (a *Adapter) buildRequest(c *chat.Chat, co modeladapter.CallOptions) map[string]any {
	msgs := make([]apiMessage, 0, c.Len())

	c.Each(func(_ int, m message.Message) bool {
		switch m.Role {
		case role.System, role.User, role.Assistant:
			msgs = append(msgs, apiMessage{Role: m.Role.String(), Content: m.Content})
		default:
			a.Logger.Warn().
				Str("role", m.Role.String()).
				Str("sender", m.Sender).
				Msg("dropping message with unsupported role")
		}
		return true
	})

	req := map[string]any{
		"messages":    msgs,
		"model":       a.Name,
		"temperature": a.Temperature,
		"max_tokens":  a.MaxTokens,
	}

	if co.OutputFormat != nil {
		req["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "response",
				"schema": co.OutputFormat,
				"strict": true,
			},
		}
	}

	for k, v := range co.Extra {
		req[k] = v
	}

	return req
}
