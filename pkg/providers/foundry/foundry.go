// Package foundry provides a Completer implementation for Azure AI Foundry
// model inference endpoints (the Azure AI Model Inference chat completions API).
package foundry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/parleyhq/parley/pkg/modeladapter/usage"
	"github.com/rs/zerolog"
)

const (
	completionsPath = "/chat/completions"
	apiVersion      = "2024-05-01-preview"

	// EndpointEnv and CredentialEnv are consulted when the corresponding
	// Config fields are empty.
	EndpointEnv   = "AZURE_INFERENCE_ENDPOINT"
	CredentialEnv = "AZURE_INFERENCE_CREDENTIAL"

	defaultMaxTokens = 1000
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Config configures a foundry Adapter. Model is required. Endpoint and APIKey
// fall back to $AZURE_INFERENCE_ENDPOINT and $AZURE_INFERENCE_CREDENTIAL when
// empty; missing either after the fallback is a construction error.
type Config struct {
	Model       string
	Endpoint    string
	APIKey      string
	Temperature float64 // Sent on every request; the zero value is deliberate.
	MaxTokens   int     // Defaults to 1000 when zero.
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Adapter implements modeladapter.Completer for Azure AI Foundry inference
// endpoints.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter for an Azure AI Foundry endpoint. Configuration is
// validated up front: no network activity happens until Complete is called.
func New(cfg Config) (*Adapter, error) {
	if cfg.Model == "" {
		return nil, errors.New("foundry: model is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv(EndpointEnv)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("foundry: endpoint is required (set Endpoint or $%s)", EndpointEnv)
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(CredentialEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("foundry: credential is required (set APIKey or $%s)", CredentialEnv)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	a := &Adapter{}
	a.BaseURL = strings.TrimSuffix(endpoint, "/")
	a.Auth = modeladapter.Auth{Key: key, Header: "api-key"}
	a.Name = cfg.Model
	a.Temperature = cfg.Temperature
	a.MaxTokens = maxTokens
	a.HTTPClient = cfg.HTTPClient
	a.Logger = cfg.Logger
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	return a, nil
}

// Provider returns the provider identifier for this adapter.
func (a *Adapter) Provider() string { return "azure_foundry" }

// Complete sends a conversation to the Foundry endpoint and returns the
// normalized completion. The endpoint cannot enforce structured output, so a
// call option requesting one fails with ErrOutputFormatUnsupported. Transport
// errors propagate as-is under the "foundry:" prefix.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, opts ...modeladapter.CallOption) (modeladapter.Completion, error) {
	co := modeladapter.NewCallOptions(opts...)
	if co.OutputFormat != nil {
		return modeladapter.Completion{}, fmt.Errorf("foundry: %w", modeladapter.ErrOutputFormatUnsupported)
	}

	req := a.buildRequest(c, co.Extra)

	var resp apiResponse
	if err := a.PostJSON(ctx, completionsPath+"?api-version="+apiVersion, req, &resp); err != nil {
		return modeladapter.Completion{}, fmt.Errorf("foundry: %w", err)
	}

	if len(resp.Choices) == 0 {
		return modeladapter.Completion{}, errors.New("foundry: empty choices in response")
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
func (a *Adapter) buildRequest(c *chat.Chat, extra map[string]any) map[string]any {
	msgs := make([]apiMessage, 0, c.Len())

	c.Each(func(_ int, m message.Message) bool {
		switch m.Role {
		case role.System, role.User, role.Assistant:
			msgs = append(msgs, apiMessage{Role: m.Role.String(), Content: m.Content})
		default:
			// The wire protocol only defines system/user/assistant.
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

	for k, v := range extra {
		req[k] = v
	}

	return req
}
