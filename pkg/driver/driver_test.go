package driver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maverikod/code-analysis-db/pkg/rpcmodel"
)

func openTestDriver(t *testing.T) *SQLiteDriver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func mustCreateNotesTable(t *testing.T, d *SQLiteDriver) {
	t.Helper()
	schema := rpcmodel.TableSchema{
		Name: "notes",
		Columns: []rpcmodel.ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "title", Type: "TEXT"},
			{Name: "archived", Type: "INTEGER", Default: 0},
		},
	}
	res := d.CreateTable(context.Background(), rpcmodel.CreateTableRequest{Schema: schema})
	_, isErr := res.(rpcmodel.ErrorResult)
	require.False(t, isErr, "create table should succeed: %#v", res)
}

func TestCreateInsertSelect(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	mustCreateNotesTable(t, d)

	insertRes := d.Insert(ctx, rpcmodel.InsertRequest{TableName: "notes", Data: map[string]any{"title": "hello"}})
	success, ok := insertRes.(rpcmodel.SuccessResult)
	require.True(t, ok)
	require.Contains(t, success.Data, "id")

	selectRes := d.Select(ctx, rpcmodel.SelectRequest{TableName: "notes"})
	data, ok := selectRes.(rpcmodel.DataResult)
	require.True(t, ok)
	require.Len(t, data.Rows, 1)
	require.Equal(t, "hello", data.Rows[0]["title"])
}

func TestUpdateAndDeleteRequireWhere(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	mustCreateNotesTable(t, d)
	d.Insert(ctx, rpcmodel.InsertRequest{TableName: "notes", Data: map[string]any{"title": "a"}})

	updateRes := d.Update(ctx, rpcmodel.UpdateRequest{TableName: "notes", Where: map[string]any{"title": "a"}, Data: map[string]any{"archived": 1}})
	success, ok := updateRes.(rpcmodel.SuccessResult)
	require.True(t, ok)
	require.EqualValues(t, 1, success.Data["rows_affected"])

	deleteRes := d.Delete(ctx, rpcmodel.DeleteRequest{TableName: "notes", Where: map[string]any{"title": "a"}})
	success, ok = deleteRes.(rpcmodel.SuccessResult)
	require.True(t, ok)
	require.EqualValues(t, 1, success.Data["rows_affected"])
}

func TestInvalidIdentifierRejected(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	res := d.Select(ctx, rpcmodel.SelectRequest{TableName: "notes; DROP TABLE notes"})
	_, isErr := res.(rpcmodel.ErrorResult)
	require.True(t, isErr)
}

func TestTransactionCommitAndRollback(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	mustCreateNotesTable(t, d)

	beginRes := d.BeginTransaction(ctx, rpcmodel.BeginTransactionRequest{})
	success, ok := beginRes.(rpcmodel.SuccessResult)
	require.True(t, ok)
	txID, _ := success.Data["transaction_id"].(string)
	require.NotEmpty(t, txID)

	execRes := d.Execute(ctx, rpcmodel.ExecuteRequest{SQL: "INSERT INTO notes (title) VALUES (?)", Params: []any{"in-tx"}, TransactionID: txID})
	_, isErr := execRes.(rpcmodel.ErrorResult)
	require.False(t, isErr)

	commitRes := d.CommitTransaction(ctx, rpcmodel.CommitTransactionRequest{TransactionID: txID})
	_, isErr = commitRes.(rpcmodel.ErrorResult)
	require.False(t, isErr)

	selectRes := d.Select(ctx, rpcmodel.SelectRequest{TableName: "notes", Where: map[string]any{"title": "in-tx"}})
	data, ok := selectRes.(rpcmodel.DataResult)
	require.True(t, ok)
	require.Len(t, data.Rows, 1)

	// committed transaction id is no longer valid
	rollbackRes := d.RollbackTransaction(ctx, rpcmodel.RollbackTransactionRequest{TransactionID: txID})
	_, isErr = rollbackRes.(rpcmodel.ErrorResult)
	require.True(t, isErr)
}

func TestRollbackDiscardsChanges(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	mustCreateNotesTable(t, d)

	beginRes := d.BeginTransaction(ctx, rpcmodel.BeginTransactionRequest{})
	success := beginRes.(rpcmodel.SuccessResult)
	txID := success.Data["transaction_id"].(string)

	d.Execute(ctx, rpcmodel.ExecuteRequest{SQL: "INSERT INTO notes (title) VALUES (?)", Params: []any{"doomed"}, TransactionID: txID})
	d.RollbackTransaction(ctx, rpcmodel.RollbackTransactionRequest{TransactionID: txID})

	selectRes := d.Select(ctx, rpcmodel.SelectRequest{TableName: "notes", Where: map[string]any{"title": "doomed"}})
	data := selectRes.(rpcmodel.DataResult)
	require.Empty(t, data.Rows)
}

func TestGetTableInfoOnMissingTableReturnsEmpty(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	res := d.GetTableInfo(ctx, rpcmodel.GetTableInfoRequest{TableName: "ghost"})
	data, ok := res.(rpcmodel.DataResult)
	require.True(t, ok)
	require.Empty(t, data.Rows)
}

func TestSyncSchemaCreatesMissingTables(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()

	def := rpcmodel.SchemaDefinition{Tables: []rpcmodel.TableSchema{
		{Name: "projects", Columns: []rpcmodel.ColumnDef{
			{Name: "id", Type: "TEXT", PrimaryKey: true},
			{Name: "root_path", Type: "TEXT"},
		}},
	}}
	res := d.SyncSchema(ctx, rpcmodel.SyncSchemaRequest{Definition: def})
	success, ok := res.(rpcmodel.SuccessResult)
	require.True(t, ok)
	require.Contains(t, success.Data["created_tables"], "projects")

	res2 := d.SyncSchema(ctx, rpcmodel.SyncSchemaRequest{Definition: def})
	success2 := res2.(rpcmodel.SuccessResult)
	require.Contains(t, success2.Data["modified_tables"], "projects")
}

func TestExecuteBatchIsAtomicOnFailure(t *testing.T) {
	d := openTestDriver(t)
	ctx := context.Background()
	mustCreateNotesTable(t, d)

	res := d.ExecuteBatch(ctx, rpcmodel.ExecuteBatchRequest{Statements: []rpcmodel.ExecuteRequest{
		{SQL: "INSERT INTO notes (title) VALUES (?)", Params: []any{"first"}},
		{SQL: "INSERT INTO missing_table (title) VALUES (?)", Params: []any{"second"}},
	}})
	_, isErr := res.(rpcmodel.ErrorResult)
	require.True(t, isErr)

	selectRes := d.Select(ctx, rpcmodel.SelectRequest{TableName: "notes"})
	data := selectRes.(rpcmodel.DataResult)
	require.Empty(t, data.Rows, "failed batch must not leave partial writes")
}
