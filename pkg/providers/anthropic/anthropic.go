// Package anthropic provides a Completer implementation for the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/parleyhq/parley/pkg/modeladapter/usage"
)

const (
	messagesPath = "/v1/messages"

	defaultMaxTokens = 4096
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Anthropic Messages API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter configured for the Anthropic API.
// The baseURL should be "https://api.anthropic.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{
		Key:    apiKey,
		Header: "x-api-key",
	}
	a.Name = model
	a.MaxTokens = defaultMaxTokens
	a.Headers = map[string]string{
		"anthropic-version": "2023-06-01",
	}
	a.HeaderParser = modeladapter.ParseAnthropicRateLimitHeaders

	return a
}

// Provider returns the provider identifier for this adapter.
func (a *Adapter) Provider() string { return "anthropic" }

// Complete sends a conversation to the Anthropic Messages API and returns the
// normalized completion. The Messages API has no schema-constrained output
// mode, so an output format call option fails with ErrOutputFormatUnsupported.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, opts ...modeladapter.CallOption) (modeladapter.Completion, error) {
	co := modeladapter.NewCallOptions(opts...)
	if co.OutputFormat != nil {
		return modeladapter.Completion{}, fmt.Errorf("anthropic: %w", modeladapter.ErrOutputFormatUnsupported)
	}

	req := a.buildRequest(c, co.Extra)

	var resp apiResponse
	if err := a.PostJSON(ctx, messagesPath, req, &resp); err != nil {
		return modeladapter.Completion{}, fmt.Errorf("anthropic: %w", err)
	}

	tc := usage.TokenCount{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	a.Usage.Add(tc)

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return modeladapter.Completion{}, errors.New("anthropic: no text content in response")
	}

	return modeladapter.Completion{
		Message: message.New(a.Name, role.Assistant, strings.Join(parts, "")),
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
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
	Usage      apiUsage     `json:"usage"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- conversion helpers ---

// buildRequest assembles the request body as a map so that extra options,
// applied last, win over the named fields on a key collision. The system
// prompt is lifted out of the message list into the top-level system field,
// as the Messages API requires.
func (a *Adapter) buildRequest(c *chat.Chat, extra map[string]any) map[string]any {
	var system []string
	msgs := make([]apiMessage, 0, c.Len())

	c.Each(func(_ int, m message.Message) bool {
		switch m.Role {
		case role.System:
			system = append(system, m.Content)
		case role.User, role.Assistant:
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

	if len(system) > 0 {
		req["system"] = strings.Join(system, "\n\n")
	}

	for k, v := range extra {
		req[k] = v
	}

	return req
}
