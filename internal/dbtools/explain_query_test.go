package dbtools

import (
	"context"
	"strings"
	"testing"
)

func TestExplainQueryTool_NameAndSchema(t *testing.T) {
	tool := NewExplainQueryTool(&fakeDB{})
	if tool.Name() != "explain_query" {
		t.Errorf("Name() = %q", tool.Name())
	}
}

func TestExplainQueryTool_Success(t *testing.T) {
	db := &fakeDB{
		explainQuery: func(ctx context.Context, sql string) (string, error) {
			return "Seq Scan on orders", nil
		},
	}
	tool := NewExplainQueryTool(db)
	result, err := tool.Execute(context.Background(), mustParams(t, map[string]string{"sql": "SELECT * FROM orders"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got error: %s", result.Error)
	}
	if !strings.Contains(result.Result, "Seq Scan") {
		t.Errorf("result.Result = %q, want it to embed the plan", result.Result)
	}
}

func TestExplainQueryTool_MissingSQL(t *testing.T) {
	tool := NewExplainQueryTool(&fakeDB{})
	result, err := tool.Execute(context.Background(), mustParams(t, map[string]string{"sql": "   "}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Error("expected failure for blank sql")
	}
}

func TestExplainQueryTool_DBError(t *testing.T) {
	db := &fakeDB{
		explainQuery: func(ctx context.Context, sql string) (string, error) {
			return "", errBoom
		},
	}
	tool := NewExplainQueryTool(db)
	result, err := tool.Execute(context.Background(), mustParams(t, map[string]string{"sql": "SELECT 1"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Error("expected failure when the db capability errors")
	}
}
