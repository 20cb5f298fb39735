package rpcmodel

import "fmt"

// Request is implemented by every typed RPC request. Method returns the wire
// method name so a dispatch table can be built from a slice of zero values;
// Validate enforces the same per-field rules the original driver applied
// before ever touching SQLite.
type Request interface {
	Method() string
	Validate() error
}

// CreateTableRequest backs the create_table method.
type CreateTableRequest struct {
	Schema TableSchema
}

func NewCreateTableRequestFromParams(params map[string]any) (CreateTableRequest, error) {
	schemaMap, err := mapField(params, "schema", true)
	if err != nil {
		return CreateTableRequest{}, err
	}
	schema, err := decodeTableSchema(schemaMap)
	if err != nil {
		return CreateTableRequest{}, err
	}
	return CreateTableRequest{Schema: schema}, nil
}

func (CreateTableRequest) Method() string { return "create_table" }

func (r CreateTableRequest) Validate() error { return r.Schema.Validate() }

// DropTableRequest backs the drop_table method.
type DropTableRequest struct {
	TableName  string
	IfExists   bool
}

func NewDropTableRequestFromParams(params map[string]any) (DropTableRequest, error) {
	name, err := stringField(params, "table_name")
	if err != nil {
		return DropTableRequest{}, err
	}
	return DropTableRequest{TableName: name, IfExists: boolField(params, "if_exists", true)}, nil
}

func (DropTableRequest) Method() string { return "drop_table" }

func (r DropTableRequest) Validate() error {
	if r.TableName == "" {
		return fmt.Errorf("rpcmodel: drop_table requires table_name")
	}
	return nil
}

// InsertRequest backs the insert method.
type InsertRequest struct {
	TableName string
	Data      map[string]any
}

func NewInsertRequestFromParams(params map[string]any) (InsertRequest, error) {
	name, err := stringField(params, "table_name")
	if err != nil {
		return InsertRequest{}, err
	}
	data, err := mapField(params, "data", true)
	if err != nil {
		return InsertRequest{}, err
	}
	return InsertRequest{TableName: name, Data: data}, nil
}

func (InsertRequest) Method() string { return "insert" }

func (r InsertRequest) Validate() error {
	if r.TableName == "" {
		return fmt.Errorf("rpcmodel: insert requires table_name")
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("rpcmodel: insert into %q requires non-empty data", r.TableName)
	}
	return nil
}

// SelectRequest backs the select method.
type SelectRequest struct {
	TableName string
	Columns   []string
	Where     map[string]any
	OrderBy   []string
	Limit     *int
	Offset    *int
}

func NewSelectRequestFromParams(params map[string]any) (SelectRequest, error) {
	name, err := stringField(params, "table_name")
	if err != nil {
		return SelectRequest{}, err
	}
	columns, err := stringSliceField(params, "columns")
	if err != nil {
		return SelectRequest{}, err
	}
	where, err := mapField(params, "where", false)
	if err != nil {
		return SelectRequest{}, err
	}
	orderBy, err := stringSliceField(params, "order_by")
	if err != nil {
		return SelectRequest{}, err
	}
	limit, err := intField(params, "limit")
	if err != nil {
		return SelectRequest{}, err
	}
	offset, err := intField(params, "offset")
	if err != nil {
		return SelectRequest{}, err
	}
	return SelectRequest{
		TableName: name,
		Columns:   columns,
		Where:     where,
		OrderBy:   orderBy,
		Limit:     limit,
		Offset:    offset,
	}, nil
}

func (SelectRequest) Method() string { return "select" }

func (r SelectRequest) Validate() error {
	if r.TableName == "" {
		return fmt.Errorf("rpcmodel: select requires table_name")
	}
	if r.Limit != nil && *r.Limit < 0 {
		return fmt.Errorf("rpcmodel: select limit must be >= 0")
	}
	if r.Offset != nil && *r.Offset < 0 {
		return fmt.Errorf("rpcmodel: select offset must be >= 0")
	}
	return nil
}

// UpdateRequest backs the update method.
type UpdateRequest struct {
	TableName string
	Where     map[string]any
	Data      map[string]any
}

func NewUpdateRequestFromParams(params map[string]any) (UpdateRequest, error) {
	name, err := stringField(params, "table_name")
	if err != nil {
		return UpdateRequest{}, err
	}
	where, err := mapField(params, "where", true)
	if err != nil {
		return UpdateRequest{}, err
	}
	data, err := mapField(params, "data", true)
	if err != nil {
		return UpdateRequest{}, err
	}
	return UpdateRequest{TableName: name, Where: where, Data: data}, nil
}

func (UpdateRequest) Method() string { return "update" }

func (r UpdateRequest) Validate() error {
	if r.TableName == "" {
		return fmt.Errorf("rpcmodel: update requires table_name")
	}
	if len(r.Where) == 0 {
		return fmt.Errorf("rpcmodel: update on %q requires a non-empty where clause", r.TableName)
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("rpcmodel: update on %q requires non-empty data", r.TableName)
	}
	return nil
}

// DeleteRequest backs the delete method.
type DeleteRequest struct {
	TableName string
	Where     map[string]any
}

func NewDeleteRequestFromParams(params map[string]any) (DeleteRequest, error) {
	name, err := stringField(params, "table_name")
	if err != nil {
		return DeleteRequest{}, err
	}
	where, err := mapField(params, "where", true)
	if err != nil {
		return DeleteRequest{}, err
	}
	return DeleteRequest{TableName: name, Where: where}, nil
}

func (DeleteRequest) Method() string { return "delete" }

func (r DeleteRequest) Validate() error {
	if r.TableName == "" {
		return fmt.Errorf("rpcmodel: delete requires table_name")
	}
	if len(r.Where) == 0 {
		return fmt.Errorf("rpcmodel: delete from %q requires a non-empty where clause, use truncate semantics explicitly via execute if a full wipe is intended", r.TableName)
	}
	return nil
}

// ExecuteRequest backs the execute method: one raw parameterized SQL
// statement, optionally scoped to an in-flight transaction.
type ExecuteRequest struct {
	SQL           string
	Params        []any
	TransactionID string
}

func NewExecuteRequestFromParams(params map[string]any) (ExecuteRequest, error) {
	sql, err := stringField(params, "sql")
	if err != nil {
		return ExecuteRequest{}, err
	}
	var sqlParams []any
	if raw, ok := params["params"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return ExecuteRequest{}, fmt.Errorf("rpcmodel: execute params must be an array")
		}
		sqlParams = list
	}
	return ExecuteRequest{
		SQL:           sql,
		Params:        sqlParams,
		TransactionID: optionalStringField(params, "transaction_id"),
	}, nil
}

func (ExecuteRequest) Method() string { return "execute" }

func (r ExecuteRequest) Validate() error {
	if r.SQL == "" {
		return fmt.Errorf("rpcmodel: execute requires sql")
	}
	return nil
}

// ExecuteBatchRequest backs execute_batch: a list of SQL statements applied
// atomically, either standalone or against an existing transaction.
type ExecuteBatchRequest struct {
	Statements    []ExecuteRequest
	TransactionID string
}

func NewExecuteBatchRequestFromParams(params map[string]any) (ExecuteBatchRequest, error) {
	raw, ok := params["statements"]
	if !ok {
		return ExecuteBatchRequest{}, fmt.Errorf("rpcmodel: execute_batch requires statements")
	}
	list, ok := raw.([]any)
	if !ok {
		return ExecuteBatchRequest{}, fmt.Errorf("rpcmodel: execute_batch statements must be an array")
	}
	stmts := make([]ExecuteRequest, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return ExecuteBatchRequest{}, fmt.Errorf("rpcmodel: execute_batch statement %d must be an object", i)
		}
		stmt, err := NewExecuteRequestFromParams(m)
		if err != nil {
			return ExecuteBatchRequest{}, fmt.Errorf("rpcmodel: execute_batch statement %d: %w", i, err)
		}
		stmts = append(stmts, stmt)
	}
	return ExecuteBatchRequest{
		Statements:    stmts,
		TransactionID: optionalStringField(params, "transaction_id"),
	}, nil
}

func (ExecuteBatchRequest) Method() string { return "execute_batch" }

func (r ExecuteBatchRequest) Validate() error {
	if len(r.Statements) == 0 {
		return fmt.Errorf("rpcmodel: execute_batch requires at least one statement")
	}
	for i, s := range r.Statements {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("rpcmodel: execute_batch statement %d: %w", i, err)
		}
	}
	return nil
}

// BeginTransactionRequest backs begin_transaction.
type BeginTransactionRequest struct{}

func NewBeginTransactionRequestFromParams(map[string]any) (BeginTransactionRequest, error) {
	return BeginTransactionRequest{}, nil
}

func (BeginTransactionRequest) Method() string   { return "begin_transaction" }
func (BeginTransactionRequest) Validate() error { return nil }

// CommitTransactionRequest backs commit_transaction.
type CommitTransactionRequest struct {
	TransactionID string
}

func NewCommitTransactionRequestFromParams(params map[string]any) (CommitTransactionRequest, error) {
	id, err := stringField(params, "transaction_id")
	if err != nil {
		return CommitTransactionRequest{}, err
	}
	return CommitTransactionRequest{TransactionID: id}, nil
}

func (CommitTransactionRequest) Method() string { return "commit_transaction" }
func (r CommitTransactionRequest) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("rpcmodel: commit_transaction requires transaction_id")
	}
	return nil
}

// RollbackTransactionRequest backs rollback_transaction.
type RollbackTransactionRequest struct {
	TransactionID string
}

func NewRollbackTransactionRequestFromParams(params map[string]any) (RollbackTransactionRequest, error) {
	id, err := stringField(params, "transaction_id")
	if err != nil {
		return RollbackTransactionRequest{}, err
	}
	return RollbackTransactionRequest{TransactionID: id}, nil
}

func (RollbackTransactionRequest) Method() string { return "rollback_transaction" }
func (r RollbackTransactionRequest) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("rpcmodel: rollback_transaction requires transaction_id")
	}
	return nil
}

// GetTableInfoRequest backs get_table_info.
type GetTableInfoRequest struct {
	TableName string
}

func NewGetTableInfoRequestFromParams(params map[string]any) (GetTableInfoRequest, error) {
	name, err := stringField(params, "table_name")
	if err != nil {
		return GetTableInfoRequest{}, err
	}
	return GetTableInfoRequest{TableName: name}, nil
}

func (GetTableInfoRequest) Method() string { return "get_table_info" }
func (r GetTableInfoRequest) Validate() error {
	if r.TableName == "" {
		return fmt.Errorf("rpcmodel: get_table_info requires table_name")
	}
	return nil
}

// SyncSchemaRequest backs sync_schema: reconciles the live database against
// a declarative schema. BackupDir and DryRun are decoded from params, but
// the driver's SyncSchema does not read them: no backup is taken and every
// call applies its changes.
type SyncSchemaRequest struct {
	Definition SchemaDefinition
	BackupDir  string
	DryRun     bool
}

func NewSyncSchemaRequestFromParams(params map[string]any) (SyncSchemaRequest, error) {
	defRaw, ok := params["schema_definition"]
	if !ok {
		return SyncSchemaRequest{}, fmt.Errorf("rpcmodel: sync_schema requires schema_definition")
	}
	def, ok := defRaw.(map[string]any)
	if !ok {
		return SyncSchemaRequest{}, fmt.Errorf("rpcmodel: sync_schema schema_definition must be an object")
	}
	raw, ok := def["tables"]
	if !ok {
		return SyncSchemaRequest{}, fmt.Errorf("rpcmodel: sync_schema schema_definition requires tables")
	}
	list, ok := raw.([]any)
	if !ok {
		return SyncSchemaRequest{}, fmt.Errorf("rpcmodel: sync_schema tables must be an array")
	}
	tables := make([]TableSchema, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return SyncSchemaRequest{}, fmt.Errorf("rpcmodel: sync_schema table %d must be an object", i)
		}
		schema, err := decodeTableSchema(m)
		if err != nil {
			return SyncSchemaRequest{}, fmt.Errorf("rpcmodel: sync_schema table %d: %w", i, err)
		}
		tables = append(tables, schema)
	}
	return SyncSchemaRequest{
		Definition: SchemaDefinition{Tables: tables},
		BackupDir:  optionalStringField(params, "backup_dir"),
		DryRun:     boolField(params, "dry_run", false),
	}, nil
}

func (SyncSchemaRequest) Method() string { return "sync_schema" }
func (r SyncSchemaRequest) Validate() error { return r.Definition.Validate() }

// IndexFileRequest backs index_file, the composite parse/AST/CST/content
// refresh operation driven by a taskflow DAG.
type IndexFileRequest struct {
	ProjectID string
	FilePath  string
	Content   string
}

func NewIndexFileRequestFromParams(params map[string]any) (IndexFileRequest, error) {
	projectID, err := stringField(params, "project_id")
	if err != nil {
		return IndexFileRequest{}, err
	}
	filePath, err := stringField(params, "file_path")
	if err != nil {
		return IndexFileRequest{}, err
	}
	return IndexFileRequest{
		ProjectID: projectID,
		FilePath:  filePath,
		Content:   optionalStringField(params, "content"),
	}, nil
}

func (IndexFileRequest) Method() string { return "index_file" }
func (r IndexFileRequest) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("rpcmodel: index_file requires project_id")
	}
	if r.FilePath == "" {
		return fmt.Errorf("rpcmodel: index_file requires file_path")
	}
	return nil
}

// QueryASTRequest and QueryCSTRequest back query_ast / query_cst: read the
// stored parse tree for a file, optionally scoped to a node path.
type QueryASTRequest struct {
	ProjectID string
	FilePath  string
	NodePath  string
}

func NewQueryASTRequestFromParams(params map[string]any) (QueryASTRequest, error) {
	projectID, err := stringField(params, "project_id")
	if err != nil {
		return QueryASTRequest{}, err
	}
	filePath, err := stringField(params, "file_path")
	if err != nil {
		return QueryASTRequest{}, err
	}
	return QueryASTRequest{ProjectID: projectID, FilePath: filePath, NodePath: optionalStringField(params, "node_path")}, nil
}

func (QueryASTRequest) Method() string { return "query_ast" }
func (r QueryASTRequest) Validate() error {
	if r.ProjectID == "" || r.FilePath == "" {
		return fmt.Errorf("rpcmodel: query_ast requires project_id and file_path")
	}
	return nil
}

type QueryCSTRequest struct {
	ProjectID string
	FilePath  string
	NodePath  string
}

func NewQueryCSTRequestFromParams(params map[string]any) (QueryCSTRequest, error) {
	projectID, err := stringField(params, "project_id")
	if err != nil {
		return QueryCSTRequest{}, err
	}
	filePath, err := stringField(params, "file_path")
	if err != nil {
		return QueryCSTRequest{}, err
	}
	return QueryCSTRequest{ProjectID: projectID, FilePath: filePath, NodePath: optionalStringField(params, "node_path")}, nil
}

func (QueryCSTRequest) Method() string { return "query_cst" }
func (r QueryCSTRequest) Validate() error {
	if r.ProjectID == "" || r.FilePath == "" {
		return fmt.Errorf("rpcmodel: query_cst requires project_id and file_path")
	}
	return nil
}

// ModifyASTRequest and ModifyCSTRequest back modify_ast / modify_cst:
// targeted, in-place edits to a stored parse tree without a full re-parse.
type ModifyASTRequest struct {
	ProjectID string
	FilePath  string
	NodePath  string
	Patch     map[string]any
}

func NewModifyASTRequestFromParams(params map[string]any) (ModifyASTRequest, error) {
	projectID, err := stringField(params, "project_id")
	if err != nil {
		return ModifyASTRequest{}, err
	}
	filePath, err := stringField(params, "file_path")
	if err != nil {
		return ModifyASTRequest{}, err
	}
	nodePath, err := stringField(params, "node_path")
	if err != nil {
		return ModifyASTRequest{}, err
	}
	patch, err := mapField(params, "patch", true)
	if err != nil {
		return ModifyASTRequest{}, err
	}
	return ModifyASTRequest{ProjectID: projectID, FilePath: filePath, NodePath: nodePath, Patch: patch}, nil
}

func (ModifyASTRequest) Method() string { return "modify_ast" }
func (r ModifyASTRequest) Validate() error {
	if r.ProjectID == "" || r.FilePath == "" || r.NodePath == "" {
		return fmt.Errorf("rpcmodel: modify_ast requires project_id, file_path and node_path")
	}
	if len(r.Patch) == 0 {
		return fmt.Errorf("rpcmodel: modify_ast requires a non-empty patch")
	}
	return nil
}

type ModifyCSTRequest struct {
	ProjectID string
	FilePath  string
	NodePath  string
	Patch     map[string]any
}

func NewModifyCSTRequestFromParams(params map[string]any) (ModifyCSTRequest, error) {
	projectID, err := stringField(params, "project_id")
	if err != nil {
		return ModifyCSTRequest{}, err
	}
	filePath, err := stringField(params, "file_path")
	if err != nil {
		return ModifyCSTRequest{}, err
	}
	nodePath, err := stringField(params, "node_path")
	if err != nil {
		return ModifyCSTRequest{}, err
	}
	patch, err := mapField(params, "patch", true)
	if err != nil {
		return ModifyCSTRequest{}, err
	}
	return ModifyCSTRequest{ProjectID: projectID, FilePath: filePath, NodePath: nodePath, Patch: patch}, nil
}

func (ModifyCSTRequest) Method() string { return "modify_cst" }
func (r ModifyCSTRequest) Validate() error {
	if r.ProjectID == "" || r.FilePath == "" || r.NodePath == "" {
		return fmt.Errorf("rpcmodel: modify_cst requires project_id, file_path and node_path")
	}
	if len(r.Patch) == 0 {
		return fmt.Errorf("rpcmodel: modify_cst requires a non-empty patch")
	}
	return nil
}

func decodeTableSchema(m map[string]any) (TableSchema, error) {
	name, err := stringField(m, "name")
	if err != nil {
		return TableSchema{}, err
	}
	rawColumns, ok := m["columns"]
	if !ok {
		return TableSchema{}, fmt.Errorf("rpcmodel: table schema %q missing columns", name)
	}
	columnList, ok := rawColumns.([]any)
	if !ok {
		return TableSchema{}, fmt.Errorf("rpcmodel: table schema %q columns must be an array", name)
	}
	columns := make([]ColumnDef, 0, len(columnList))
	for i, item := range columnList {
		cm, ok := item.(map[string]any)
		if !ok {
			return TableSchema{}, fmt.Errorf("rpcmodel: table schema %q column %d must be an object", name, i)
		}
		colName, err := stringField(cm, "name")
		if err != nil {
			return TableSchema{}, err
		}
		colType, err := stringField(cm, "type")
		if err != nil {
			return TableSchema{}, err
		}
		columns = append(columns, ColumnDef{
			Name:       colName,
			Type:       colType,
			Nullable:   boolField(cm, "nullable", true),
			PrimaryKey: boolField(cm, "primary_key", false),
			Unique:     boolField(cm, "unique", false),
			Default:    cm["default"],
		})
	}

	var constraints []Constraint
	if rawConstraints, ok := m["constraints"]; ok && rawConstraints != nil {
		constraintList, ok := rawConstraints.([]any)
		if !ok {
			return TableSchema{}, fmt.Errorf("rpcmodel: table schema %q constraints must be an array", name)
		}
		for _, item := range constraintList {
			cm, ok := item.(map[string]any)
			if !ok {
				return TableSchema{}, fmt.Errorf("rpcmodel: table schema %q constraint must be an object", name)
			}
			columns, err := stringSliceField(cm, "columns")
			if err != nil {
				return TableSchema{}, err
			}
			refColumns, err := stringSliceField(cm, "references_columns")
			if err != nil {
				return TableSchema{}, err
			}
			constraints = append(constraints, Constraint{
				Type:              optionalStringField(cm, "type"),
				Columns:           columns,
				ReferencesTable:   optionalStringField(cm, "references_table"),
				ReferencesColumns: refColumns,
				Expression:        optionalStringField(cm, "expression"),
			})
		}
	}

	return TableSchema{Name: name, Columns: columns, Constraints: constraints}, nil
}
