package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/dbagent/pkg/models"
)

// scriptedProvider returns one CompletionResponse per call, from a fixed
// script; it panics if called more times than the script provides for.
type scriptedProvider struct {
	responses []*CompletionResponse
	errs      []error
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		panic("scriptedProvider: ran out of scripted responses")
	}
	return p.responses[i], p.errs[i]
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func newScriptedProvider(responses ...*CompletionResponse) *scriptedProvider {
	return &scriptedProvider{responses: responses, errs: make([]error, len(responses))}
}

func finalAnswerResponse(content string) *CompletionResponse {
	env := decisionEnvelope{Type: "final_answer", Content: content}
	b, _ := json.Marshal(env)
	return &CompletionResponse{Content: string(b)}
}

func reasoningResponse(thought string) *CompletionResponse {
	env := decisionEnvelope{Type: "reasoning", Thought: thought}
	b, _ := json.Marshal(env)
	return &CompletionResponse{Content: string(b)}
}

func toolCallResponse(name, callID, args string) *CompletionResponse {
	env := decisionEnvelope{Type: "tool_call", Name: name, CallID: callID, Arguments: json.RawMessage(args)}
	b, _ := json.Marshal(env)
	return &CompletionResponse{Content: string(b)}
}

func newTestLoop(provider LLMProvider, registry *ToolRegistry, config *LoopConfig) *AgenticLoop {
	executor := NewExecutor(registry, DefaultExecutorConfig())
	convCtx := NewConversationContext(50, 100000)
	return NewAgenticLoop(provider, registry, executor, convCtx, config, nil)
}

func TestAgenticLoop_RunFinalAnswer(t *testing.T) {
	provider := newScriptedProvider(finalAnswerResponse("the answer is 42"))
	registry := NewToolRegistry()
	loop := newTestLoop(provider, registry, nil)

	result, err := loop.Run(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFinalAnswer || result.Answer != "the answer is 42" {
		t.Errorf("result = %+v", result)
	}
	if loop.State() != StateCompleted {
		t.Errorf("State() = %v, want StateCompleted", loop.State())
	}
}

func TestAgenticLoop_RunRejectsEmptyQuery(t *testing.T) {
	provider := newScriptedProvider()
	loop := newTestLoop(provider, NewToolRegistry(), nil)
	if _, err := loop.Run(context.Background(), ""); err == nil {
		t.Error("expected an error for an empty query")
	}
}

func TestAgenticLoop_RunRejectsWhenNotIdle(t *testing.T) {
	provider := newScriptedProvider(finalAnswerResponse("ok"))
	loop := newTestLoop(provider, NewToolRegistry(), nil)
	if _, err := loop.Run(context.Background(), "first"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := loop.Run(context.Background(), "second"); err == nil {
		t.Error("expected an error calling Run while the loop is not Idle")
	}
}

func TestAgenticLoop_RunWithReasoningStep(t *testing.T) {
	provider := newScriptedProvider(
		reasoningResponse("let me think"),
		finalAnswerResponse("done thinking"),
	)
	loop := newTestLoop(provider, NewToolRegistry(), nil)

	result, err := loop.Run(context.Background(), "ponder this")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Answer != "done thinking" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if provider.calls != 2 {
		t.Errorf("provider.calls = %d, want 2", provider.calls)
	}
}

func TestAgenticLoop_RunDispatchesSafeToolCall(t *testing.T) {
	registry := NewToolRegistry()
	schema := json.RawMessage(`{"type":"object","required":["sql"],"properties":{"sql":{"type":"string"}}}`)
	_ = registry.Register(&stubTool{name: "execute_query", schema: schema, execute: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Success: true, Result: `{"rows":[]}`}, nil
	}})

	provider := newScriptedProvider(
		toolCallResponse("execute_query", "call-1", `{"sql":"SELECT 1"}`),
		finalAnswerResponse("no rows"),
	)
	loop := newTestLoop(provider, registry, nil)

	result, err := loop.Run(context.Background(), "any rows?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFinalAnswer || result.Answer != "no rows" {
		t.Errorf("result = %+v", result)
	}
}

func TestAgenticLoop_RunSelfHealsOnBlacklistedSQL(t *testing.T) {
	registry := NewToolRegistry()
	schema := json.RawMessage(`{"type":"object","required":["sql"],"properties":{"sql":{"type":"string"}}}`)
	calledExecute := false
	_ = registry.Register(&stubTool{name: "execute_query", schema: schema, execute: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
		calledExecute = true
		return &models.ToolResult{Success: true}, nil
	}})

	provider := newScriptedProvider(
		toolCallResponse("execute_query", "call-1", `{"sql":"DROP TABLE orders"}`),
		finalAnswerResponse("i cannot drop that table"),
	)
	loop := newTestLoop(provider, registry, nil)

	result, err := loop.Run(context.Background(), "drop the orders table")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Answer != "i cannot drop that table" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if calledExecute {
		t.Error("a blacklisted statement must never reach the tool's Execute")
	}
}

func TestAgenticLoop_RunSuspendsForConfirmationThenResumeApproved(t *testing.T) {
	registry := NewToolRegistry()
	schema := json.RawMessage(`{"type":"object","required":["sql"],"properties":{"sql":{"type":"string"}}}`)
	var executedSQL string
	_ = registry.Register(&stubTool{name: "execute_query", schema: schema, execute: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
		var in struct {
			SQL string `json:"sql"`
		}
		_ = json.Unmarshal(args, &in)
		executedSQL = in.SQL
		return &models.ToolResult{Success: true, Result: "1 row updated"}, nil
	}})

	provider := newScriptedProvider(
		toolCallResponse("execute_query", "call-1", `{"sql":"UPDATE orders SET status='shipped' WHERE id=1"}`),
		finalAnswerResponse("updated"),
	)
	loop := newTestLoop(provider, registry, nil)

	result, err := loop.Run(context.Background(), "ship order 1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeAwaitingConfirmation {
		t.Fatalf("Outcome = %v, want OutcomeAwaitingConfirmation", result.Outcome)
	}
	if loop.State() != StateAwaitingConfirmation {
		t.Errorf("State() = %v, want StateAwaitingConfirmation", loop.State())
	}
	pending := loop.Pending()
	if pending == nil {
		t.Fatal("expected a pending confirmation request")
	}

	if err := loop.ConfirmPendingTyped(pending.ExpectedMatch, pending.CreatedAt); err != nil {
		t.Fatalf("ConfirmPendingTyped: %v", err)
	}

	final, err := loop.Resume(context.Background(), true)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if final.Outcome != OutcomeFinalAnswer || final.Answer != "updated" {
		t.Errorf("final = %+v", final)
	}
	if executedSQL == "" {
		t.Error("the approved tool call should have dispatched to the underlying tool")
	}
}

func TestAgenticLoop_ResumeRejectedFoldsErrorAndContinues(t *testing.T) {
	registry := NewToolRegistry()
	schema := json.RawMessage(`{"type":"object","required":["sql"],"properties":{"sql":{"type":"string"}}}`)
	calledExecute := false
	_ = registry.Register(&stubTool{name: "execute_query", schema: schema, execute: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
		calledExecute = true
		return &models.ToolResult{Success: true}, nil
	}})

	provider := newScriptedProvider(
		toolCallResponse("execute_query", "call-1", `{"sql":"DELETE FROM orders WHERE id=1"}`),
		finalAnswerResponse("cancelled as requested"),
	)
	loop := newTestLoop(provider, registry, nil)

	result, err := loop.Run(context.Background(), "delete order 1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeAwaitingConfirmation {
		t.Fatalf("Outcome = %v, want OutcomeAwaitingConfirmation", result.Outcome)
	}

	final, err := loop.Resume(context.Background(), false)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if final.Answer != "cancelled as requested" {
		t.Errorf("Answer = %q", final.Answer)
	}
	if calledExecute {
		t.Error("a rejected confirmation must never dispatch the underlying tool")
	}
}

func TestAgenticLoop_ResumeWithNoPendingConfirmationErrors(t *testing.T) {
	loop := newTestLoop(newScriptedProvider(), NewToolRegistry(), nil)
	if _, err := loop.Resume(context.Background(), true); err == nil {
		t.Error("expected an error resuming a loop with no suspended call")
	}
}

func TestAgenticLoop_RunExceedsMaxIterations(t *testing.T) {
	responses := make([]*CompletionResponse, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, reasoningResponse("still thinking"))
	}
	provider := newScriptedProvider(responses...)
	config := &LoopConfig{MaxIterations: 3}
	loop := newTestLoop(provider, NewToolRegistry(), config)

	_, err := loop.Run(context.Background(), "never conclude")
	if err == nil {
		t.Fatal("expected ErrMaxIterationsExceeded")
	}
	kind, ok := KindOf(err)
	if !ok || kind != ErrMaxIterationsExceeded {
		t.Errorf("kind = %v, %v, want ErrMaxIterationsExceeded, true", kind, ok)
	}
}

func TestAgenticLoop_ReadOnlyConfigBlocksMutation(t *testing.T) {
	registry := NewToolRegistry()
	schema := json.RawMessage(`{"type":"object","required":["sql"],"properties":{"sql":{"type":"string"}}}`)
	calledExecute := false
	_ = registry.Register(&stubTool{name: "execute_query", schema: schema, execute: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
		calledExecute = true
		return &models.ToolResult{Success: true}, nil
	}})

	provider := newScriptedProvider(
		toolCallResponse("execute_query", "call-1", `{"sql":"UPDATE orders SET status='shipped'"}`),
		finalAnswerResponse("cannot mutate in read-only mode"),
	)
	config := &LoopConfig{MaxIterations: 10, ReadOnly: true}
	loop := newTestLoop(provider, registry, config)

	result, err := loop.Run(context.Background(), "ship all orders")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFinalAnswer {
		t.Errorf("Outcome = %v, want OutcomeFinalAnswer (self-healed, not suspended)", result.Outcome)
	}
	if calledExecute {
		t.Error("a read-only loop config must never dispatch a mutating statement")
	}
}
