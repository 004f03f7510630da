package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/dbagent/pkg/models"
)

// Decision is the tagged-sum outcome of parsing one provider response (C3).
// Exactly one concrete variant is produced per response: Reasoning, ToolCall,
// or FinalAnswer.
type Decision interface {
	isDecision()
}

// Reasoning is an intermediate thought; the loop re-enters without acting.
type Reasoning struct {
	Thought string
}

func (Reasoning) isDecision() {}

// ToolCallDecision requests invocation of a registered tool.
type ToolCallDecision struct {
	Name      string
	Arguments json.RawMessage
	CallID    string
}

func (ToolCallDecision) isDecision() {}

// FinalAnswer terminates the turn with a user-facing response.
type FinalAnswer struct {
	Content string
}

func (FinalAnswer) isDecision() {}

// decisionEnvelope is the wire shape for rule (2) of ParseDecision: a JSON
// object with a `type` discriminator.
type decisionEnvelope struct {
	Type      string          `json:"type"`
	Thought   string          `json:"thought,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// ParseDecision normalizes a provider response into exactly one Decision,
// applying these ordered rules:
//  1. a structured tool-call field with a parseable JSON-object argument
//  2. else the textual content parsed as a JSON object with a `type`
//     discriminator and the required fields
//  3. else the raw content as FinalAnswer
//
// Malformed tool-call arguments (not a JSON object) yield InvalidToolCall,
// recoverable.
func ParseDecision(resp *CompletionResponse) (Decision, error) {
	if resp == nil {
		return nil, NewAgentError(ErrLlmEmpty, "nil completion response", nil)
	}

	// Rule 1: structured tool-call field.
	if resp.ToolCall != nil {
		return decisionFromToolCall(resp.ToolCall)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, NewAgentError(ErrLlmEmpty, "empty completion response", nil)
	}

	// Rule 2: textual content that parses as a discriminated JSON object.
	if strings.HasPrefix(content, "{") {
		var env decisionEnvelope
		if err := json.Unmarshal([]byte(content), &env); err == nil {
			switch env.Type {
			case "reasoning":
				return Reasoning{Thought: env.Thought}, nil
			case "tool_call":
				if !isJSONObject(env.Arguments) {
					return nil, NewAgentError(ErrInvalidToolCall, "tool_call arguments must be a JSON object", nil)
				}
				return ToolCallDecision{Name: env.Name, Arguments: env.Arguments, CallID: env.CallID}, nil
			case "final_answer":
				return FinalAnswer{Content: env.Content}, nil
			}
		}
	}

	// Rule 3: raw content as FinalAnswer.
	return FinalAnswer{Content: content}, nil
}

func decisionFromToolCall(tc *models.ToolCall) (Decision, error) {
	if !isJSONObject(tc.Arguments) {
		return nil, NewAgentError(ErrInvalidToolCall,
			fmt.Sprintf("arguments for tool %q must be a JSON object", tc.Name), nil)
	}
	return ToolCallDecision{Name: tc.Name, Arguments: tc.Arguments, CallID: tc.ID}, nil
}

// isJSONObject reports whether raw decodes to a JSON object (not an array
// or scalar). Empty/nil raw is treated as an empty object, matching
// tool calls with no parameters.
func isJSONObject(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	_, ok := v.(map[string]any)
	return ok
}
