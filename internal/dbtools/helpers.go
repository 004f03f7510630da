package dbtools

import (
	"encoding/json"
	"time"

	"github.com/haasonsaas/dbagent/pkg/models"
)

func mustSchema(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func errorResult(message string, start time.Time) *models.ToolResult {
	return &models.ToolResult{
		Success:    false,
		Error:      message,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func successResult(payload any, start time.Time) (*models.ToolResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return errorResult("encode result: "+err.Error(), start), nil
	}
	return &models.ToolResult{
		Success:    true,
		Result:     string(encoded),
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}
