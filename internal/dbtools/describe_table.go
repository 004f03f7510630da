package dbtools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// DescribeTableTool returns column metadata for one table.
type DescribeTableTool struct {
	db agent.DBCapability
}

// NewDescribeTableTool builds the describe_table tool over db.
func NewDescribeTableTool(db agent.DBCapability) *DescribeTableTool {
	return &DescribeTableTool{db: db}
}

func (t *DescribeTableTool) Name() string        { return "describe_table" }
func (t *DescribeTableTool) Description() string { return "Returns column metadata (name, type, nullability) for one table." }

func (t *DescribeTableTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tableName": map[string]any{
				"type":        "string",
				"description": "Name of the table to describe.",
			},
		},
		"required": []string{"tableName"},
	})
}

func (t *DescribeTableTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	start := time.Now()
	var input struct {
		TableName string `json:"tableName"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult("invalid parameters: "+err.Error(), start), nil
	}
	if strings.TrimSpace(input.TableName) == "" {
		return errorResult("tableName is required", start), nil
	}

	table, err := t.db.DescribeTable(ctx, input.TableName)
	if err != nil {
		return errorResult(err.Error(), start), nil
	}
	return successResult(table, start)
}
