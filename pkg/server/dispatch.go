package server

import (
	"context"
	"fmt"

	"github.com/maverikod/code-analysis-db/pkg/driver"
	"github.com/maverikod/code-analysis-db/pkg/rpcmodel"
)

// handlerFunc decodes params into a typed request, validates it, and calls
// the matching driver method. It never panics on malformed params — decode
// and validation failures both become an ErrorResult.
type handlerFunc func(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result

// dispatchTable is the closed set of methods the server will route. It is
// built once at package init from the same rpcmodel constructors §4.2's
// typed requests expose, so adding a method to rpcmodel without adding it
// here is caught immediately by any test that round-trips every method.
var dispatchTable = map[string]handlerFunc{
	"create_table":         dispatchCreateTable,
	"drop_table":           dispatchDropTable,
	"insert":               dispatchInsert,
	"select":               dispatchSelect,
	"update":               dispatchUpdate,
	"delete":               dispatchDelete,
	"execute":              dispatchExecute,
	"execute_batch":        dispatchExecuteBatch,
	"begin_transaction":    dispatchBeginTransaction,
	"commit_transaction":   dispatchCommitTransaction,
	"rollback_transaction": dispatchRollbackTransaction,
	"get_table_info":       dispatchGetTableInfo,
	"sync_schema":          dispatchSyncSchema,
	"index_file":           dispatchIndexFile,
	"query_ast":            dispatchQueryAST,
	"query_cst":            dispatchQueryCST,
	"modify_ast":           dispatchModifyAST,
	"modify_cst":           dispatchModifyCST,
}

// validationError renders a params-decode or Validate() failure as the
// wire-stable error result the client expects, distinguishing malformed
// shape (invalid_request) from a well-shaped but semantically bad request
// is left to each handler below via the err argument's origin.
func validationError(code rpcmodel.ErrorCode, err error) rpcmodel.Result {
	return rpcmodel.NewError(code, err.Error(), nil)
}

func dispatchCreateTable(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewCreateTableRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.CreateTable(ctx, req)
}

func dispatchDropTable(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewDropTableRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.DropTable(ctx, req)
}

func dispatchInsert(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewInsertRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.Insert(ctx, req)
}

func dispatchSelect(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewSelectRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.Select(ctx, req)
}

func dispatchUpdate(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewUpdateRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.Update(ctx, req)
}

func dispatchDelete(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewDeleteRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.Delete(ctx, req)
}

func dispatchExecute(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewExecuteRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.Execute(ctx, req)
}

func dispatchExecuteBatch(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewExecuteBatchRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.ExecuteBatch(ctx, req)
}

func dispatchBeginTransaction(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewBeginTransactionRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	return d.BeginTransaction(ctx, req)
}

func dispatchCommitTransaction(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewCommitTransactionRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.CommitTransaction(ctx, req)
}

func dispatchRollbackTransaction(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewRollbackTransactionRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.RollbackTransaction(ctx, req)
}

func dispatchGetTableInfo(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewGetTableInfoRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.GetTableInfo(ctx, req)
}

func dispatchSyncSchema(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewSyncSchemaRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.SyncSchema(ctx, req)
}

func dispatchIndexFile(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewIndexFileRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.IndexFile(ctx, req)
}

func dispatchQueryAST(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewQueryASTRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.QueryAST(ctx, req)
}

func dispatchQueryCST(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewQueryCSTRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.QueryCST(ctx, req)
}

func dispatchModifyAST(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewModifyASTRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.ModifyAST(ctx, req)
}

func dispatchModifyCST(ctx context.Context, d driver.Driver, params map[string]any) rpcmodel.Result {
	req, err := rpcmodel.NewModifyCSTRequestFromParams(params)
	if err != nil {
		return validationError(rpcmodel.ErrCodeInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return validationError(rpcmodel.ErrCodeValidationError, err)
	}
	return d.ModifyCST(ctx, req)
}

// dispatch routes method to its handler, or returns invalid_request for any
// method outside the closed set in §4.6.
func dispatch(ctx context.Context, d driver.Driver, method string, params map[string]any) rpcmodel.Result {
	h, ok := dispatchTable[method]
	if !ok {
		return rpcmodel.NewError(rpcmodel.ErrCodeInvalidRequest, fmt.Sprintf("unknown method %q", method), nil)
	}
	return h(ctx, d, params)
}
