package dbtools

import (
	"github.com/haasonsaas/dbagent/internal/agent"
)

// RegisterAll registers the built-in tool catalog on registry, bound to db.
func RegisterAll(registry *agent.ToolRegistry, db agent.DBCapability) error {
	tools := []agent.Tool{
		NewExecuteQueryTool(db),
		NewGetSchemaTool(db),
		NewListTablesTool(db),
		NewDescribeTableTool(db),
		NewExplainQueryTool(db),
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
