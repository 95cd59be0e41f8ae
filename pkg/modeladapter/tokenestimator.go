package modeladapter

import (
	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
)

// perMessageOverhead is the estimated token overhead for each message (role,
// structure delimiters, etc.).
const perMessageOverhead = 4

// TokenEstimator estimates token counts for chat conversations. It uses a
// character-to-token heuristic (approximately 1 token per 4 characters for
// English text). The zero value is ready to use.
type TokenEstimator struct{}

// charsToTokens converts a character count to an estimated token count using the
// 1-token-per-4-characters heuristic.
func charsToTokens(chars int) int {
	return (chars + 3) / 4 // round up
}

// EstimateText estimates tokens for a plain text string.
func (e *TokenEstimator) EstimateText(text string) int {
	return charsToTokens(len(text))
}

// EstimateChat estimates the total input tokens for a chat conversation.
// Every message counts, system messages included, since the adapters forward
// each one (or, for anthropic, join them into the system field).
func (e *TokenEstimator) EstimateChat(c *chat.Chat) int {
	tokens := 0

	c.Each(func(_ int, m message.Message) bool {
		tokens += perMessageOverhead + charsToTokens(len(m.Content))
		return true
	})

	return tokens
}
