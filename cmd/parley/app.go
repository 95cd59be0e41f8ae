package main

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/modeladapter"
)

// appState represents the application state machine.
type appState int

const (
	stateIdle appState = iota
	stateProcessing
)

// appModel is the root bubbletea model: a transcript, an input box, and a
// status bar around a single Completer.
type appModel struct {
	ctx          context.Context
	completer    modeladapter.Completer
	providerName string
	conversation *chat.Chat
	inputBox     inputModel
	statusBar    statusBarModel
	transcript   string // plain string: the model is copied by value on every Update
	state        appState
	cancelSend   context.CancelFunc // cancels the in-flight completion on Escape
	spinnerIdx   int
	thinking     string
	sendStart    time.Time
	width        int
	height       int
}

func newAppModel(ctx context.Context, completer modeladapter.Completer, providerName string, conversation *chat.Chat) appModel {
	return appModel{
		ctx:          ctx,
		completer:    completer,
		providerName: providerName,
		conversation: conversation,
		inputBox:     newInput(),
		statusBar:    newStatusBar(completer, conversation),
		state:        stateIdle,
	}
}

func (m appModel) Init() tea.Cmd {
	return nil
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.inputBox.setWidth(msg.Width)
		initMarkdownRenderer(msg.Width - 2)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.cancelSend != nil {
				m.cancelSend()
			}
			return m, tea.Quit
		case tea.KeyEscape:
			if m.state == stateProcessing && m.cancelSend != nil {
				m.cancelSend()
			}
			return m, nil
		}

	case inputSubmitMsg:
		return m.handleSubmit(msg.text)

	case completionMsg:
		return m.handleCompletion(msg)

	case tickMsg:
		if m.state == stateProcessing {
			m.spinnerIdx = (m.spinnerIdx + 1) % len(spinnerFrames)
			return m, tickCmd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.inputBox, cmd = m.inputBox.Update(msg)
	return m, cmd
}

func (m appModel) handleSubmit(text string) (tea.Model, tea.Cmd) {
	if m.state == stateProcessing {
		return m, nil
	}

	m.conversation.Append(message.New("you", role.User, text))

	m.transcript += userPrefixStyle.Render("You") + "\n"
	m.transcript += userBlockStyle.Render(text) + "\n\n"

	m.state = stateProcessing
	m.inputBox.enabled = false
	m.thinking = thinkingMessages[rand.IntN(len(thinkingMessages))]
	m.sendStart = time.Now()

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelSend = cancel

	return m, tea.Batch(m.sendCmd(ctx), tickCmd())
}

// sendCmd issues the completion call off the update loop.
func (m appModel) sendCmd(ctx context.Context) tea.Cmd {
	completer := m.completer
	conv := m.conversation

	return func() tea.Msg {
		cpl, err := completer.Complete(ctx, conv)
		return completionMsg{cpl: cpl, err: err}
	}
}

func (m appModel) handleCompletion(msg completionMsg) (tea.Model, tea.Cmd) {
	m.state = stateIdle
	m.inputBox.enabled = true
	m.statusBar.duration = time.Since(m.sendStart)
	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}

	if msg.err != nil {
		if m.ctx.Err() == nil {
			errLine := errorBlockStyle.Render(errorTextStyle.Render("error: " + msg.err.Error()))
			m.transcript += errLine + "\n\n"
		}
		return m, nil
	}

	m.conversation.Append(msg.cpl.Message)

	m.transcript += answerPrefixStyle.Render(m.providerName) + "\n"
	m.transcript += answerBlockStyle.Render(renderMarkdown(msg.cpl.Text())) + "\n\n"

	return m, nil
}

func (m appModel) View() string {
	var b strings.Builder

	b.WriteString(m.transcript)

	if m.state == stateProcessing {
		b.WriteString(spinnerStyle.Render(spinnerFrames[m.spinnerIdx]) + " " + dimStyle.Render(m.thinking) + "\n")
	}

	b.WriteString(m.inputBox.View() + "\n")

	if status := m.statusBar.View(); status != "" {
		b.WriteString(status + "\n")
	}

	return b.String()
}
