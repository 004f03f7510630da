package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/haasonsaas/dbagent/pkg/models"
)

// ExecutorConfig bounds parallel tool dispatch concurrency and per-call
// timeout defaults.
type ExecutorConfig struct {
	// MaxConcurrency limits the number of simultaneously running tool calls.
	MaxConcurrency int

	// DefaultTimeout is applied to a call whose context carries no deadline.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns sane defaults.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency: 5,
		DefaultTimeout: 30 * time.Second,
	}
}

// Executor runs tool calls registered in a ToolRegistry, singly or in
// parallel, with semaphore-based concurrency limiting (C4/C5 concurrency
// model).
type Executor struct {
	registry *ToolRegistry
	config   *ExecutorConfig
	sem      chan struct{}
}

// NewExecutor builds an Executor over registry. If config is nil,
// DefaultExecutorConfig is used.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &Executor{
		registry: registry,
		config:   config,
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// Execute runs a single tool call under a deadline derived from ctx (or the
// executor's DefaultTimeout if ctx carries none).
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	callCtx, cancel := e.withDeadline(ctx)
	defer cancel()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-callCtx.Done():
		return models.ToolResult{
			CallID:   call.ID,
			ToolName: call.Name,
			Error:    "tool dispatch cancelled before a concurrency slot was available",
		}
	}

	return e.registry.Execute(callCtx, call)
}

// ExecuteParallel runs calls concurrently (bounded by MaxConcurrency) and
// returns results in the same order as the input, with no cross-call state
// sharing; any individual failure surfaces as a failed ToolResult without
// short-circuiting the batch.
func (e *Executor) ExecuteParallel(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]models.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (e *Executor) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.config.DefaultTimeout)
}

// ToMessages converts tool results into tool-role messages for appending to
// a ConversationContext, preserving the call_id correspondence so a
// provider can match each result back to its tool call.
func ToMessages(results []models.ToolResult) []models.Message {
	out := make([]models.Message, len(results))
	for i, r := range results {
		content := r.Result
		if !r.Success && r.Error != "" {
			errJSON, err := json.Marshal(struct {
				Error string `json:"error"`
			}{Error: r.Error})
			if err != nil {
				errJSON = []byte(`{"error":"tool failed"}`)
			}
			content = string(errJSON)
		}
		out[i] = models.Message{
			Role:       models.RoleTool,
			Content:    content,
			Timestamp:  time.Now(),
			ToolCallID: r.CallID,
		}
	}
	return out
}
