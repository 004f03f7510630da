package dbtools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// ListTablesTool returns table names in a schema (default "public").
type ListTablesTool struct {
	db agent.DBCapability
}

// NewListTablesTool builds the list_tables tool over db.
func NewListTablesTool(db agent.DBCapability) *ListTablesTool {
	return &ListTablesTool{db: db}
}

func (t *ListTablesTool) Name() string        { return "list_tables" }
func (t *ListTablesTool) Description() string { return "Returns the list of table names in the given schema (default public)." }

func (t *ListTablesTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"schema": map[string]any{
				"type":        "string",
				"description": "Schema name (default public).",
			},
		},
	})
}

func (t *ListTablesTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	start := time.Now()
	var input struct {
		Schema string `json:"schema"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errorResult("invalid parameters: "+err.Error(), start), nil
		}
	}

	names, err := t.db.ListTables(ctx, input.Schema)
	if err != nil {
		return errorResult(err.Error(), start), nil
	}
	return successResult(names, start)
}
