package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/dbagent/pkg/models"
)

// MaxToolNameLength bounds tool name length to prevent resource exhaustion
// from a misbehaving provider.
const MaxToolNameLength = 256

// MaxToolParamsSize bounds the serialized size of tool call arguments.
const MaxToolParamsSize = 10 << 20 // 10MB

// ToolRegistry maps tool names to capabilities (C4). Registration and
// lookup are thread-safe; the registry is built once at agent construction
// and not mutated mid-turn.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	schema map[string]*jsonschema.Schema
}

// NewToolRegistry constructs an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]Tool),
		schema: make(map[string]*jsonschema.Schema),
	}
}

// Register inserts a tool by its unique name. A duplicate registration
// replaces the previous tool.
func (r *ToolRegistry) Register(tool Tool) error {
	compiled, err := compileToolSchema(tool.Name(), tool.Schema())
	if err != nil {
		return NewAgentError(ErrInvalidToolCall,
			fmt.Sprintf("tool %q has an invalid argument schema", tool.Name()), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schema[tool.Name()] = compiled
	return nil
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schema, name)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the catalog of registered tools for building a
// CompletionRequest's tool array (C7).
func (r *ToolRegistry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for name, tool := range r.tools {
		defs = append(defs, ToolDefinition{
			Name:        name,
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	return defs
}

// Execute looks up a tool by name, validates arguments against its declared
// schema, and invokes it under a deadline derived from the context:
//   - missing tool   -> ToolNotFound (recoverable)
//   - schema failure -> InvalidArguments (recoverable)
//   - deadline expiry -> Timeout (recoverable)
//
// The returned ToolResult always carries DurationMS, win or lose.
func (r *ToolRegistry) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	start := time.Now()

	if len(call.Name) > MaxToolNameLength {
		return errorResult(call, "tool name exceeds maximum length", start)
	}
	if len(call.Arguments) > MaxToolParamsSize {
		return errorResult(call, "tool arguments exceed maximum size", start)
	}

	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	compiled := r.schema[call.Name]
	r.mu.RUnlock()

	if !ok {
		return errorResult(call, fmt.Sprintf("tool not found: %s", call.Name), start)
	}

	if compiled != nil {
		if err := validateArguments(compiled, call.Arguments); err != nil {
			return errorResult(call, fmt.Sprintf("invalid arguments: %v", err), start)
		}
	}

	result, err := runWithDeadline(ctx, tool, call)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		res := errorResult(call, err.Error(), start)
		res.DurationMS = duration
		return res
	}
	result.CallID = call.ID
	result.ToolName = call.Name
	result.DurationMS = duration
	return *result
}

// runWithDeadline invokes the tool in a separate goroutine so a panic or an
// ignored context cancellation in tool code cannot wedge the caller; if ctx
// is cancelled or its deadline passes first, a Timeout result is returned
// and the goroutine is abandoned rather than waited on.
func runWithDeadline(ctx context.Context, tool Tool, call models.ToolCall) (result *models.ToolResult, err error) {
	done := make(chan struct{})
	var res *models.ToolResult
	var runErr error

	go func() {
		defer func() {
			if p := recover(); p != nil {
				runErr = fmt.Errorf("tool panicked: %v", p)
			}
			close(done)
		}()
		res, runErr = tool.Execute(ctx, call.Arguments)
	}()

	select {
	case <-done:
		if runErr != nil {
			return nil, runErr
		}
		if res == nil {
			res = &models.ToolResult{Success: true}
		}
		return res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("tool execution timed out: %w", ctx.Err())
	}
}

func errorResult(call models.ToolCall, msg string, start time.Time) models.ToolResult {
	return models.ToolResult{
		CallID:     call.ID,
		ToolName:   call.Name,
		Success:    false,
		Error:      msg,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func compileToolSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

func validateArguments(schema *jsonschema.Schema, raw json.RawMessage) error {
	payload := raw
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}
