package main

import (
	"fmt"
	"time"

	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/modeladapter"
)

// statusBarModel shows token usage and timing information.
type statusBarModel struct {
	completer    modeladapter.Completer
	conversation *chat.Chat
	estimator    modeladapter.TokenEstimator
	duration     time.Duration
}

func newStatusBar(completer modeladapter.Completer, conversation *chat.Chat) statusBarModel {
	return statusBarModel{completer: completer, conversation: conversation}
}

// nextEstimate approximates the input tokens the next completion will send.
func (m statusBarModel) nextEstimate() int {
	if m.conversation == nil {
		return 0
	}
	return m.estimator.EstimateChat(m.conversation)
}

func (m statusBarModel) View() string {
	ur, ok := m.completer.(modeladapter.UsageReporter)
	if !ok {
		if m.duration > 0 {
			return statusStyle.Render(fmt.Sprintf(" [%s]", fmtDuration(m.duration)))
		}
		return ""
	}

	total := ur.UsageTracker().Total()
	last, hasLast := ur.UsageTracker().Last()
	maxTok := ur.ModelMaxTokens()

	var line string
	switch {
	case hasLast && m.duration > 0:
		line = fmt.Sprintf(" last: ↑%s ↓%s · total: ↑%s ↓%s · next ≈%s · limit: %s · %s",
			fmtTokens(last.InputTokens),
			fmtTokens(last.OutputTokens),
			fmtTokens(total.InputTokens),
			fmtTokens(total.OutputTokens),
			fmtTokens(m.nextEstimate()),
			fmtTokens(maxTok),
			fmtDuration(m.duration),
		)
	case total.InputTokens+total.OutputTokens > 0:
		line = fmt.Sprintf(" tokens: ↑%s ↓%s · next ≈%s · limit: %s",
			fmtTokens(total.InputTokens),
			fmtTokens(total.OutputTokens),
			fmtTokens(m.nextEstimate()),
			fmtTokens(maxTok),
		)
	default:
		return ""
	}

	return statusStyle.Render(line)
}
