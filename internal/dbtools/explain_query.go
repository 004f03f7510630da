package dbtools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// ExplainQueryTool returns the query plan for a read query.
type ExplainQueryTool struct {
	db agent.DBCapability
}

// NewExplainQueryTool builds the explain_query tool over db.
func NewExplainQueryTool(db agent.DBCapability) *ExplainQueryTool {
	return &ExplainQueryTool{db: db}
}

func (t *ExplainQueryTool) Name() string        { return "explain_query" }
func (t *ExplainQueryTool) Description() string { return "Returns the database's query plan for the given SQL." }

func (t *ExplainQueryTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type":        "string",
				"description": "The SQL query to explain.",
			},
		},
		"required": []string{"sql"},
	})
}

func (t *ExplainQueryTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	start := time.Now()
	var input struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult("invalid parameters: "+err.Error(), start), nil
	}
	if strings.TrimSpace(input.SQL) == "" {
		return errorResult("sql is required", start), nil
	}

	plan, err := t.db.ExplainQuery(ctx, input.SQL)
	if err != nil {
		return errorResult(err.Error(), start), nil
	}
	return successResult(map[string]string{"plan": plan}, start)
}
