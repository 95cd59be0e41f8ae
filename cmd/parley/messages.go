package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/parleyhq/parley/pkg/modeladapter"
)

// inputSubmitMsg is emitted when the user submits the input box.
type inputSubmitMsg struct {
	text string
}

// completionMsg carries the result of an in-flight completion call.
type completionMsg struct {
	cpl modeladapter.Completion
	err error
}

// tickMsg drives the spinner animation.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
