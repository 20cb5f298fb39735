package dbapi

import "context"

// Statement is one raw SQL statement for ExecuteBatch.
type Statement struct {
	SQL    string
	Params []any
}

// Execute is a thin passthrough to the execute RPC method, supplementing
// the Project/File/attribute CRUD above with raw parameterized SQL —
// present in the original client (client_operations.py's execute) but
// dropped from the distilled high-level API description.
func (a *API) Execute(ctx context.Context, sql string, params []any, transactionID string) (map[string]any, error) {
	result, err := a.call(ctx, "execute", map[string]any{
		"sql":            sql,
		"params":         params,
		"transaction_id": transactionID,
	})
	if err != nil {
		return nil, err
	}
	return asMap(result), nil
}

// ExecuteBatch runs statements atomically via the execute_batch RPC method.
func (a *API) ExecuteBatch(ctx context.Context, statements []Statement, transactionID string) ([]map[string]any, error) {
	stmts := make([]any, 0, len(statements))
	for _, s := range statements {
		stmts = append(stmts, map[string]any{"sql": s.SQL, "params": s.Params})
	}
	result, err := a.call(ctx, "execute_batch", map[string]any{
		"statements":     stmts,
		"transaction_id": transactionID,
	})
	if err != nil {
		return nil, err
	}
	raw := asSlice(asMap(result)["statements"])
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}
