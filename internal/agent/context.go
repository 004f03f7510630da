package agent

import (
	"unicode/utf8"

	"github.com/haasonsaas/dbagent/pkg/models"
)

// TokensPerChar is the fixed heuristic this package uses everywhere: roughly
// 4 characters per token. It must be identical across every estimator in
// this module so tests are reproducible — never substitute a
// provider-specific tokenizer here.
const TokensPerChar = 0.25

// EstimateTokens estimates the token count of a string using the fixed
// char/4 heuristic (rune-count aware). Non-empty text always estimates to
// at least one token.
func EstimateTokens(s string) int {
	chars := utf8.RuneCountInString(s)
	if chars == 0 {
		return 0
	}
	tokens := int(float64(chars) * TokensPerChar)
	if tokens == 0 {
		return 1
	}
	return tokens
}

// ConversationContext is the append-only, role-tagged message log a loop
// uses to track a conversation's history. It is agent-exclusive; no
// external synchronization is required, since a loop processes one turn
// at a time.
type ConversationContext struct {
	messages          []models.Message
	maxMessages       int
	maxTokensEstimate int
}

// NewConversationContext constructs a context bounded by the given caps.
// A cap of 0 or less means "unbounded" for that dimension.
func NewConversationContext(maxMessages, maxTokensEstimate int) *ConversationContext {
	return &ConversationContext{
		maxMessages:       maxMessages,
		maxTokensEstimate: maxTokensEstimate,
	}
}

// Append adds msg to the end of the log, then prunes until both caps hold.
// Returns ContextTooLarge (fatal) if, after removing every non-system
// message, the token cap still fails.
func (c *ConversationContext) Append(msg models.Message) error {
	c.messages = append(c.messages, msg)
	return c.prune()
}

// Messages returns the full message sequence in append order. The returned
// slice is a copy; callers may not mutate the context through it.
func (c *ConversationContext) Messages() []models.Message {
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Recent returns the last n messages in append order (fewer if the log is
// shorter).
func (c *ConversationContext) Recent(n int) []models.Message {
	if n <= 0 || len(c.messages) == 0 {
		return nil
	}
	start := len(c.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.Message, len(c.messages)-start)
	copy(out, c.messages[start:])
	return out
}

// MessagesByRole returns every message with the given role, in append order.
func (c *ConversationContext) MessagesByRole(role models.Role) []models.Message {
	var out []models.Message
	for _, m := range c.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// Clear empties the log.
func (c *ConversationContext) Clear() {
	c.messages = nil
}

// EstimatedTokens sums EstimateTokens over the current log.
func (c *ConversationContext) EstimatedTokens() int {
	total := 0
	for _, m := range c.messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// prune removes the oldest non-system messages until len(messages) <=
// maxMessages and the token estimate <= maxTokensEstimate.
// System messages are never removed. Tie-breaks are insertion order: the
// single oldest remaining non-system message is dropped first.
func (c *ConversationContext) prune() error {
	for c.overMessageCap() {
		if !c.dropOldestNonSystem() {
			break
		}
	}
	for c.overTokenCap() {
		if !c.dropOldestNonSystem() {
			return NewAgentError(ErrContextTooLarge,
				"token cap exceeded after pruning every non-system message", nil)
		}
	}
	return nil
}

func (c *ConversationContext) overMessageCap() bool {
	return c.maxMessages > 0 && len(c.messages) > c.maxMessages
}

func (c *ConversationContext) overTokenCap() bool {
	return c.maxTokensEstimate > 0 && c.EstimatedTokens() > c.maxTokensEstimate
}

// dropOldestNonSystem removes the first non-system message in the log.
// Reports false if no non-system message remains to drop.
func (c *ConversationContext) dropOldestNonSystem() bool {
	for i, m := range c.messages {
		if m.Role != models.RoleSystem {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}
