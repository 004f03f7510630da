package dbtools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// GetSchemaTool returns tables and columns, optionally prefix-filtered.
type GetSchemaTool struct {
	db agent.DBCapability
}

// NewGetSchemaTool builds the get_schema tool over db.
func NewGetSchemaTool(db agent.DBCapability) *GetSchemaTool {
	return &GetSchemaTool{db: db}
}

func (t *GetSchemaTool) Name() string        { return "get_schema" }
func (t *GetSchemaTool) Description() string { return "Returns tables and columns, optionally filtered by table name prefix." }

func (t *GetSchemaTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tableFilter": map[string]any{
				"type":        "string",
				"description": "Optional table name prefix filter.",
			},
		},
	})
}

func (t *GetSchemaTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	start := time.Now()
	var input struct {
		TableFilter string `json:"tableFilter"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errorResult("invalid parameters: "+err.Error(), start), nil
		}
	}

	result, err := t.db.GetSchema(ctx, input.TableFilter)
	if err != nil {
		return errorResult(err.Error(), start), nil
	}
	return successResult(result, start)
}
