package rpcmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRequestValidation(t *testing.T) {
	req, err := NewInsertRequestFromParams(map[string]any{
		"table_name": "files",
		"data":       map[string]any{"path": "a.go"},
	})
	require.NoError(t, err)
	require.NoError(t, req.Validate())
	assert.Equal(t, "insert", req.Method())

	_, err = NewInsertRequestFromParams(map[string]any{"table_name": "files"})
	assert.Error(t, err)

	empty := InsertRequest{TableName: "files", Data: map[string]any{}}
	assert.Error(t, empty.Validate())
}

func TestSelectRequestRejectsNegativeLimit(t *testing.T) {
	neg := -1
	req := SelectRequest{TableName: "files", Limit: &neg}
	assert.Error(t, req.Validate())
}

func TestDeleteRequestRequiresWhereClause(t *testing.T) {
	_, err := NewDeleteRequestFromParams(map[string]any{"table_name": "files"})
	assert.Error(t, err)

	req, err := NewDeleteRequestFromParams(map[string]any{
		"table_name": "files",
		"where":      map[string]any{"id": float64(1)},
	})
	require.NoError(t, err)
	require.NoError(t, req.Validate())
}

func TestExecuteBatchValidatesEachStatement(t *testing.T) {
	_, err := NewExecuteBatchRequestFromParams(map[string]any{
		"statements": []any{
			map[string]any{"sql": "select 1"},
			map[string]any{},
		},
	})
	assert.Error(t, err)

	req, err := NewExecuteBatchRequestFromParams(map[string]any{
		"statements": []any{
			map[string]any{"sql": "insert into files values (?)", "params": []any{"a.go"}},
		},
		"transaction_id": "tx-1",
	})
	require.NoError(t, err)
	require.NoError(t, req.Validate())
	assert.Equal(t, "tx-1", req.TransactionID)
}

func TestCreateTableRequestFromParams(t *testing.T) {
	req, err := NewCreateTableRequestFromParams(map[string]any{
		"schema": map[string]any{
			"name": "files",
			"columns": []any{
				map[string]any{"name": "id", "type": "INTEGER", "primary_key": true},
				map[string]any{"name": "path", "type": "TEXT", "nullable": false},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, req.Validate())
	assert.Equal(t, "files", req.Schema.Name)
	assert.Len(t, req.Schema.Columns, 2)
	assert.True(t, req.Schema.Columns[0].PrimaryKey)
}

func TestCreateTableRequestRejectsDuplicateColumns(t *testing.T) {
	req, err := NewCreateTableRequestFromParams(map[string]any{
		"schema": map[string]any{
			"name": "files",
			"columns": []any{
				map[string]any{"name": "id", "type": "INTEGER"},
				map[string]any{"name": "id", "type": "TEXT"},
			},
		},
	})
	require.NoError(t, err)
	assert.Error(t, req.Validate())
}

func TestIndexFileRequestValidation(t *testing.T) {
	req, err := NewIndexFileRequestFromParams(map[string]any{
		"project_id": "proj-1",
		"file_path":  "main.go",
	})
	require.NoError(t, err)
	require.NoError(t, req.Validate())

	_, err = NewIndexFileRequestFromParams(map[string]any{"project_id": "proj-1"})
	assert.Error(t, err)
}

func TestModifyASTRequestRequiresPatch(t *testing.T) {
	_, err := NewModifyASTRequestFromParams(map[string]any{
		"project_id": "proj-1",
		"file_path":  "main.go",
		"node_path":  "root.0",
	})
	assert.Error(t, err)

	req, err := NewModifyASTRequestFromParams(map[string]any{
		"project_id": "proj-1",
		"file_path":  "main.go",
		"node_path":  "root.0",
		"patch":      map[string]any{"kind": "rename"},
	})
	require.NoError(t, err)
	require.NoError(t, req.Validate())
}

func TestSyncSchemaRequiresAtLeastOneTable(t *testing.T) {
	params := map[string]any{"schema_definition": map[string]any{"tables": []any{}}}

	req, err := NewSyncSchemaRequestFromParams(params)
	require.NoError(t, err)
	assert.Error(t, req.Validate())
}

func TestSyncSchemaRequiresSchemaDefinition(t *testing.T) {
	_, err := NewSyncSchemaRequestFromParams(map[string]any{"tables": []any{}})
	assert.Error(t, err)
}
