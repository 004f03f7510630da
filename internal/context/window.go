// Package context catalogs known LLM context window sizes. It is
// independent of agent.ConversationContext's own fixed-heuristic token
// accounting; main uses it once at startup to warn when a configured
// token budget exceeds what the selected model actually supports, never to
// drive pruning decisions.
package context

import "strings"

// DefaultContextWindow is assumed for any model not in modelContextWindows.
const DefaultContextWindow = 128000

// modelContextWindows maps known model IDs (or id prefixes, for dated
// snapshot variants like "gpt-4o-2024-08-06") to their context window size
// in tokens.
var modelContextWindows = map[string]int{
	"claude-3-opus":     200000,
	"claude-3-sonnet":   200000,
	"claude-3-haiku":    200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,

	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-3.5-turbo":     16385,
	"gpt-3.5-turbo-16k": 16385,
	"o1":                200000,
	"o1-mini":           128000,
	"o3-mini":           200000,

	"anthropic.claude-3-sonnet": 200000,
	"anthropic.claude-3-haiku":  200000,
	"anthropic.claude-3-opus":   200000,
}

// ContextWindowFor returns modelID's known context window, matching the
// longest registered prefix so dated snapshot IDs (e.g.
// "gpt-4o-2024-08-06") still resolve against their base model. Falls back
// to DefaultContextWindow for an unrecognized model.
func ContextWindowFor(modelID string) int {
	if tokens, ok := modelContextWindows[modelID]; ok {
		return tokens
	}

	bestPrefix := ""
	bestTokens := 0
	for prefix, tokens := range modelContextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestTokens = tokens
		}
	}
	if bestPrefix != "" {
		return bestTokens
	}

	return DefaultContextWindow
}
