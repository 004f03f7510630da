// Package dbtools implements the built-in tool catalog over an
// agent.DBCapability: execute_query, get_schema, list_tables, describe_table,
// explain_query.
package dbtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// ExecuteQueryTool runs a read query via the DB capability.
type ExecuteQueryTool struct {
	db agent.DBCapability
}

// NewExecuteQueryTool builds the execute_query tool over db.
func NewExecuteQueryTool(db agent.DBCapability) *ExecuteQueryTool {
	return &ExecuteQueryTool{db: db}
}

func (t *ExecuteQueryTool) Name() string        { return "execute_query" }
func (t *ExecuteQueryTool) Description() string { return "Runs a read query against the database, returning columns, rows, and row count." }

func (t *ExecuteQueryTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type":        "string",
				"description": "The SQL query to run.",
			},
		},
		"required": []string{"sql"},
	})
}

func (t *ExecuteQueryTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	start := time.Now()
	var input struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("invalid parameters: %v", err), start), nil
	}
	if strings.TrimSpace(input.SQL) == "" {
		return errorResult("sql is required", start), nil
	}

	result, err := t.db.ExecuteQuery(ctx, input.SQL)
	if err != nil {
		return errorResult(err.Error(), start), nil
	}
	return successResult(result, start)
}
