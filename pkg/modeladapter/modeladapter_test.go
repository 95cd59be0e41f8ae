package modeladapter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/parleyhq/parley/pkg/modeladapter/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Completer interface tests ---

// Compile-time interface check: a mock satisfies Completer.
var _ modeladapter.Completer = (*mockCompleter)(nil)

type mockCompleter struct {
	cpl modeladapter.Completion
	err error
}

func (m *mockCompleter) Complete(_ context.Context, _ *chat.Chat, _ ...modeladapter.CallOption) (modeladapter.Completion, error) {
	return m.cpl, m.err
}

func TestCompleter_Success(t *testing.T) {
	p := &mockCompleter{cpl: modeladapter.Completion{
		Message: message.New("bot", role.Assistant, "hello back"),
		Usage:   usage.TokenCount{InputTokens: 3, OutputTokens: 2},
	}}

	c := chat.New(message.New("alice", role.User, "hello"))
	got, err := p.Complete(context.Background(), c)

	require.NoError(t, err)
	assert.Equal(t, role.Assistant, got.Message.Role)
	assert.Equal(t, "hello back", got.Text())
	assert.Equal(t, 5, got.Usage.Total())
}

func TestCompleter_Error(t *testing.T) {
	p := &mockCompleter{err: errors.New("api error")}

	c := chat.New(message.New("alice", role.User, "hello"))
	_, err := p.Complete(context.Background(), c)

	assert.EqualError(t, err, "api error")
}

// Compile-time interface check: ModelAdapter itself satisfies Completer.
var _ modeladapter.Completer = (*modeladapter.ModelAdapter)(nil)

// --- ModelAdapter struct (base) tests ---

func TestModelAdapter_StubComplete(t *testing.T) {
	var a modeladapter.ModelAdapter

	_, err := a.Complete(context.Background(), chat.New())
	assert.EqualError(t, err, "adapter: Complete not implemented")
}

func TestNew_ModelFields(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)
	a.Name = "gpt-4"
	a.Temperature = 0.7
	a.MaxTokens = 1024

	assert.Equal(t, "gpt-4", a.Name)
	assert.InDelta(t, 0.7, a.Temperature, 1e-9)
	assert.Equal(t, 1024, a.MaxTokens)
}

func TestClient_ConfiguredClientWins(t *testing.T) {
	custom := &http.Client{Timeout: time.Second}
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, custom)

	assert.Same(t, custom, a.Client())
}

func TestClient_DefaultMemoized(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)

	first := a.Client()
	require.NotNil(t, first)
	assert.Same(t, first, a.Client())
}

func TestClient_ConcurrentFirstUse(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)

	clients := make([]*http.Client, 16)
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clients[i] = a.Client()
		}()
	}
	wg.Wait()

	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
}

func TestNewRequest_BearerAuth(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{Key: "sk-test"}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/chat", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/chat", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
}

func TestNewRequest_CustomHeader(t *testing.T) {
	auth := modeladapter.Auth{Key: "sk-test", Header: "x-api-key"}
	a := modeladapter.New("https://api.example.com", auth, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/chat", nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNewRequest_CustomHeaderWithScheme(t *testing.T) {
	auth := modeladapter.Auth{Key: "sk-test", Header: "x-api-key", Scheme: "Token"}
	a := modeladapter.New("https://api.example.com", auth, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/chat", nil)
	require.NoError(t, err)
	assert.Equal(t, "Token sk-test", req.Header.Get("x-api-key"))
}

func TestNewRequest_NoAuth(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/chat", nil)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNewRequest_ExtraHeaders(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)
	a.Headers = map[string]string{"anthropic-version": "2023-06-01"}

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/chat", nil)
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

// --- PostJSON tests ---

func TestPostJSON_Success(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{Key: "sk-test"}, srv.Client())

	var dest struct {
		Answer string `json:"answer"`
	}
	err := a.PostJSON(context.Background(), "/v1/chat", map[string]any{"q": "hi"}, &dest)

	require.NoError(t, err)
	assert.Equal(t, "ok", dest.Answer)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestPostJSON_NilDest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ignored":true}`))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	err := a.PostJSON(context.Background(), "/v1/chat", map[string]any{}, nil)
	require.NoError(t, err)
}

func TestPostJSON_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad input"}`))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	err := a.PostJSON(context.Background(), "/v1/chat", map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "bad input")
}

func TestPostJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	err := a.PostJSON(context.Background(), "/v1/chat", map[string]any{}, nil)
	require.Error(t, err)

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 7*time.Second, rle.RetryAfter)
	assert.Equal(t, "slow down", rle.Body)
}

func TestPostJSON_StoresRateLimitInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("x-ratelimit-remaining-requests", "42")
		w.Header().Set("x-ratelimit-reset-requests", "30s")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	require.Nil(t, a.LastRateLimitInfo())

	err := a.PostJSON(context.Background(), "/v1/chat", map[string]any{}, nil)
	require.NoError(t, err)

	info := a.LastRateLimitInfo()
	require.NotNil(t, info)
	assert.Equal(t, 42, info.RemainingRequests)
}

// --- RateLimitError tests ---

func TestRateLimitError_Message(t *testing.T) {
	e := &modeladapter.RateLimitError{Body: "overloaded"}
	assert.Equal(t, "rate limited: overloaded", e.Error())

	e = &modeladapter.RateLimitError{RetryAfter: 5 * time.Second, Body: "overloaded"}
	assert.Equal(t, "rate limited (retry after 5s): overloaded", e.Error())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter(""))
	assert.Equal(t, 30*time.Second, modeladapter.ParseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("garbage"))

	// HTTP-date in the past yields zero.
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter(past))

	// HTTP-date in the future yields a positive duration.
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.Positive(t, modeladapter.ParseRetryAfter(future))
}

// --- DialWS tests ---

func TestDialWS_HandshakeAndHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{Key: "sk-test"}, srv.Client())

	conn, resp, err := a.DialWS(context.Background(), "/v1/realtime")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestDialWS_RefusedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	_, _, err := a.DialWS(context.Background(), "/v1/realtime")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial websocket")
}
