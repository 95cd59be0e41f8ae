package main

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/parleyhq/parley/pkg/modeladapter/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedCompleter struct {
	reply string
}

func (c cannedCompleter) Complete(_ context.Context, _ *chat.Chat, _ ...modeladapter.CallOption) (modeladapter.Completion, error) {
	return modeladapter.Completion{
		Message: message.New("model", role.Assistant, c.reply),
		Usage:   usage.TokenCount{InputTokens: 1, OutputTokens: 1},
	}, nil
}

// Drives a full submit/reply turn through stored value copies of the model,
// the way the bubbletea runtime does. The transcript must accumulate across
// those copies without panicking.
func TestApp_TranscriptAccumulatesAcrossUpdateCopies(t *testing.T) {
	conv := chat.New()
	var m tea.Model = newAppModel(context.Background(), cannedCompleter{reply: "hi there"}, "bot", conv)

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(inputSubmitMsg{text: "hello"})
	m, _ = m.Update(completionMsg{cpl: modeladapter.Completion{
		Message: message.New("model", role.Assistant, "hi there"),
	}})

	app, ok := m.(appModel)
	require.True(t, ok)

	view := app.View()
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "hi there")
	assert.Equal(t, stateIdle, app.state)

	// Both turns landed in the conversation.
	assert.Equal(t, 2, conv.Len())
	last, _ := conv.Last()
	assert.Equal(t, role.Assistant, last.Role)
}

// A second full turn must append to, not replace or corrupt, the transcript.
func TestApp_SecondTurnAppends(t *testing.T) {
	conv := chat.New()
	var m tea.Model = newAppModel(context.Background(), cannedCompleter{reply: "one"}, "bot", conv)

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(inputSubmitMsg{text: "first"})
	m, _ = m.Update(completionMsg{cpl: modeladapter.Completion{
		Message: message.New("model", role.Assistant, "one"),
	}})
	m, _ = m.Update(inputSubmitMsg{text: "second"})
	m, _ = m.Update(completionMsg{cpl: modeladapter.Completion{
		Message: message.New("model", role.Assistant, "two"),
	}})

	view := m.(appModel).View()
	for _, want := range []string{"first", "one", "second", "two"} {
		assert.Contains(t, view, want)
	}
}

func TestApp_CompletionErrorShownInTranscript(t *testing.T) {
	conv := chat.New()
	var m tea.Model = newAppModel(context.Background(), cannedCompleter{}, "bot", conv)

	m, _ = m.Update(inputSubmitMsg{text: "hello"})
	m, _ = m.Update(completionMsg{err: assert.AnError})

	app := m.(appModel)
	assert.Contains(t, app.View(), "error: "+assert.AnError.Error())
	assert.Equal(t, stateIdle, app.state)
	// The failed turn leaves only the user message behind.
	assert.Equal(t, 1, conv.Len())
}
