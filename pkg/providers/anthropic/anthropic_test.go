package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/parleyhq/parley/pkg/providers/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ modeladapter.Completer = (*anthropic.Adapter)(nil)

const respBody = `{
	"content": [{"type": "text", "text": "hello "}, {"type": "text", "text": "world"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 7, "output_tokens": 3}
}`

func newStub(t *testing.T) (*anthropic.Adapter, *http.Request, *map[string]any) {
	t.Helper()

	var capturedReq http.Request
	capturedBody := map[string]any{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedReq = *r
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &capturedBody)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)

	a := anthropic.New(srv.URL, "sk-ant", "claude-sonnet")
	a.HTTPClient = srv.Client()

	return a, &capturedReq, &capturedBody
}

func TestProvider(t *testing.T) {
	a := anthropic.New("https://api.anthropic.com", "sk-ant", "claude-sonnet")
	assert.Equal(t, "anthropic", a.Provider())
}

func TestComplete_RequestShape(t *testing.T) {
	a, capturedReq, capturedBody := newStub(t)

	c := chat.New(
		message.New("sys", role.System, "be brief"),
		message.New("alice", role.User, "hi"),
		message.New("model", role.Assistant, "hello"),
	)

	_, err := a.Complete(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", capturedReq.URL.Path)
	assert.Equal(t, "sk-ant", capturedReq.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", capturedReq.Header.Get("anthropic-version"))
	assert.Empty(t, capturedReq.Header.Get("Authorization"))

	body := *capturedBody

	// System prompt is lifted out of the message list.
	assert.Equal(t, "be brief", body["system"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
}

func TestComplete_MultipleSystemPromptsJoined(t *testing.T) {
	a, _, capturedBody := newStub(t)

	c := chat.New(
		message.New("sys", role.System, "one"),
		message.New("sys", role.System, "two"),
		message.New("alice", role.User, "hi"),
	)

	_, err := a.Complete(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, "one\n\ntwo", (*capturedBody)["system"])
}

func TestComplete_Response(t *testing.T) {
	a, _, _ := newStub(t)

	cpl, err := a.Complete(context.Background(), chat.New(message.New("alice", role.User, "hi")))
	require.NoError(t, err)

	// Text blocks are concatenated.
	assert.Equal(t, "hello world", cpl.Text())
	assert.Equal(t, 7, cpl.Usage.InputTokens)
	assert.Equal(t, 3, cpl.Usage.OutputTokens)
	assert.Equal(t, 10, cpl.Usage.Total())
}

func TestComplete_OutputFormatRejected(t *testing.T) {
	a, _, _ := newStub(t)

	_, err := a.Complete(context.Background(),
		chat.New(message.New("alice", role.User, "hi")),
		modeladapter.WithOutputFormat(json.RawMessage(`{"type":"object"}`)),
	)
	require.ErrorIs(t, err, modeladapter.ErrOutputFormatUnsupported)
}

func TestComplete_NoTextContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content": [], "usage": {"input_tokens": 1, "output_tokens": 0}}`))
	}))
	defer srv.Close()

	a := anthropic.New(srv.URL, "sk-ant", "claude-sonnet")
	a.HTTPClient = srv.Client()

	_, err := a.Complete(context.Background(), chat.New(message.New("alice", role.User, "hi")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}

func TestComplete_ErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "malformed"}`))
	}))
	defer srv.Close()

	a := anthropic.New(srv.URL, "sk-ant", "claude-sonnet")
	a.HTTPClient = srv.Client()

	_, err := a.Complete(context.Background(), chat.New(message.New("alice", role.User, "hi")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic:")
	assert.Contains(t, err.Error(), "unexpected status 400")
}
