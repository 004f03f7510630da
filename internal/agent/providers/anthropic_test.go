package providers

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/dbagent/internal/agent"
)

func TestNewAnthropicProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Error("expected an error when APIKey is empty")
	}
}

func TestNewAnthropicProvider_DefaultsModel(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.Model() != "claude-sonnet-4-20250514" {
		t.Errorf("Model() = %q", p.Model())
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestNewAnthropicProvider_RespectsExplicitModel(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-test", DefaultModel: "claude-3-opus-20240229"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.Model() != "claude-3-opus-20240229" {
		t.Errorf("Model() = %q", p.Model())
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	messages := []agent.CompletionMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
		{Role: "tool", Content: `{"rows":[]}`, ToolCallID: "call-1"},
	}
	result, err := convertAnthropicMessages(messages)
	if err != nil {
		t.Fatalf("convertAnthropicMessages: %v", err)
	}
	// The system message is carried separately (via params.System), not as a
	// MessageParam, so only the 3 non-system messages should remain.
	if len(result) != 3 {
		t.Errorf("len(result) = %d, want 3", len(result))
	}
}

func TestConvertAnthropicMessage_TextOnly(t *testing.T) {
	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "the answer is 42"},
		},
	}
	resp, err := convertAnthropicMessage(msg)
	if err != nil {
		t.Fatalf("convertAnthropicMessage: %v", err)
	}
	if resp.Content != "the answer is 42" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.ToolCall != nil {
		t.Error("expected no ToolCall for a text-only message")
	}
}
