package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/dbagent/pkg/models"
)

// LLMProvider is the capability contract the core uses to talk to a large
// language model. The core never imports a vendor SDK directly; only
// implementations under internal/agent/providers do.
//
// Implementations must be safe for concurrent use.
type LLMProvider interface {
	// Complete sends a single completion request and returns the raw
	// provider response for the Decision parser (C3) to normalize.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name identifies the provider ("anthropic", "openai", "bedrock").
	Name() string

	// Model returns the model identifier this provider instance targets.
	Model() string
}

// CompletionRequest is built from the current ConversationContext and the
// tool catalog.
type CompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []CompletionMessage  `json:"messages"`
	Tools       []ToolSchema         `json:"tools,omitempty"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	ToolChoice  string               `json:"tool_choice,omitempty"`
	ResponseFmt string               `json:"response_format,omitempty"`
}

// CompletionMessage is one entry of CompletionRequest.Messages.
type CompletionMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolSchema describes one tool entry of CompletionRequest.Tools.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionResponse is the provider's reply: either a single textual
// completion or a single structured tool call request. The Decision parser
// (C3) consumes this to produce exactly one Decision.
type CompletionResponse struct {
	// Content is the textual completion, when the model did not request a
	// tool call.
	Content string

	// ToolCall is populated when the provider surfaces a structured
	// tool-call field (the first parsing rule in C3).
	ToolCall *models.ToolCall

	// InputTokens / OutputTokens are usage counts, when the provider reports
	// them; otherwise both are zero and callers fall back to the
	// char/4 estimate.
	InputTokens  int
	OutputTokens int
}

// Tool is a named capability invokable from a Decision's ToolCall,
// matching the built-in tool catalog shape.
type Tool interface {
	// Name returns the unique, stable tool identifier.
	Name() string

	// Description documents the tool for the LLM's tool catalog.
	Description() string

	// Schema returns the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. params is validated against Schema() by the
	// registry before Execute is called.
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// ToolDefinition is the catalog-introspection view of a registered Tool,
// used to build CompletionRequest.Tools.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// DBCapability is the abstract database executor the built-in tools bind
// to. The core never imports a SQL driver directly; only internal/dbpg
// implements this.
type DBCapability interface {
	ExecuteQuery(ctx context.Context, sql string) (*QueryResult, error)
	ExecuteQueryLimited(ctx context.Context, sql string, limit int) (*QueryResult, error)
	GetSchema(ctx context.Context, filter string) (*SchemaInfo, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
	DescribeTable(ctx context.Context, name string) (*TableInfo, error)
	ExplainQuery(ctx context.Context, sql string) (string, error)
	HealthCheck(ctx context.Context) error
}

// QueryResult is the result of a read query.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      [][]any          `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// SchemaInfo describes the tables and columns visible to the agent.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes one table's columns.
type TableInfo struct {
	Name    string       `json:"name"`
	Schema  string       `json:"schema"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}
