package dbtools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/dbagent/internal/agent"
)

type fakeDB struct {
	executeQuery        func(ctx context.Context, sql string) (*agent.QueryResult, error)
	executeQueryLimited func(ctx context.Context, sql string, limit int) (*agent.QueryResult, error)
	getSchema           func(ctx context.Context, filter string) (*agent.SchemaInfo, error)
	listTables          func(ctx context.Context, schema string) ([]string, error)
	describeTable       func(ctx context.Context, name string) (*agent.TableInfo, error)
	explainQuery        func(ctx context.Context, sql string) (string, error)
	healthCheck         func(ctx context.Context) error
}

func (f *fakeDB) ExecuteQuery(ctx context.Context, sql string) (*agent.QueryResult, error) {
	return f.executeQuery(ctx, sql)
}

func (f *fakeDB) ExecuteQueryLimited(ctx context.Context, sql string, limit int) (*agent.QueryResult, error) {
	return f.executeQueryLimited(ctx, sql, limit)
}

func (f *fakeDB) GetSchema(ctx context.Context, filter string) (*agent.SchemaInfo, error) {
	return f.getSchema(ctx, filter)
}

func (f *fakeDB) ListTables(ctx context.Context, schema string) ([]string, error) {
	return f.listTables(ctx, schema)
}

func (f *fakeDB) DescribeTable(ctx context.Context, name string) (*agent.TableInfo, error) {
	return f.describeTable(ctx, name)
}

func (f *fakeDB) ExplainQuery(ctx context.Context, sql string) (string, error) {
	return f.explainQuery(ctx, sql)
}

func (f *fakeDB) HealthCheck(ctx context.Context) error {
	return f.healthCheck(ctx)
}

var _ agent.DBCapability = (*fakeDB)(nil)

func mustParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return b
}

var errBoom = errors.New("boom")

func unmarshalSchema(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}
