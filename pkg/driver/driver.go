// Package driver implements the SQLite storage engine the RPC server
// dispatches requests to. CRUD runs as raw, dynamically-built parameterized
// SQL against the shared *sql.DB GORM opened (table and column names come
// from the caller, so GORM's struct-mapped API doesn't fit); transactions
// get their own dedicated *sql.DB connection to the same file, mirroring
// the original driver's one-connection-per-transaction design.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maverikod/code-analysis-db/pkg/journal"
	"github.com/maverikod/code-analysis-db/pkg/logging"
	"github.com/maverikod/code-analysis-db/pkg/rpcmodel"
	"github.com/maverikod/code-analysis-db/pkg/sqliteopt"
)

// Driver is the interface the RPC server dispatches table/row/transaction
// operations to. A single Driver instance backs one open database file.
type Driver interface {
	CreateTable(ctx context.Context, req rpcmodel.CreateTableRequest) rpcmodel.Result
	DropTable(ctx context.Context, req rpcmodel.DropTableRequest) rpcmodel.Result
	Insert(ctx context.Context, req rpcmodel.InsertRequest) rpcmodel.Result
	Select(ctx context.Context, req rpcmodel.SelectRequest) rpcmodel.Result
	Update(ctx context.Context, req rpcmodel.UpdateRequest) rpcmodel.Result
	Delete(ctx context.Context, req rpcmodel.DeleteRequest) rpcmodel.Result
	Execute(ctx context.Context, req rpcmodel.ExecuteRequest) rpcmodel.Result
	ExecuteBatch(ctx context.Context, req rpcmodel.ExecuteBatchRequest) rpcmodel.Result
	BeginTransaction(ctx context.Context, req rpcmodel.BeginTransactionRequest) rpcmodel.Result
	CommitTransaction(ctx context.Context, req rpcmodel.CommitTransactionRequest) rpcmodel.Result
	RollbackTransaction(ctx context.Context, req rpcmodel.RollbackTransactionRequest) rpcmodel.Result
	GetTableInfo(ctx context.Context, req rpcmodel.GetTableInfoRequest) rpcmodel.Result
	SyncSchema(ctx context.Context, req rpcmodel.SyncSchemaRequest) rpcmodel.Result
	IndexFile(ctx context.Context, req rpcmodel.IndexFileRequest) rpcmodel.Result
	QueryAST(ctx context.Context, req rpcmodel.QueryASTRequest) rpcmodel.Result
	QueryCST(ctx context.Context, req rpcmodel.QueryCSTRequest) rpcmodel.Result
	ModifyAST(ctx context.Context, req rpcmodel.ModifyASTRequest) rpcmodel.Result
	ModifyCST(ctx context.Context, req rpcmodel.ModifyCSTRequest) rpcmodel.Result
	Close() error
}

// identifierPattern bounds what the driver will interpolate into SQL as a
// table or column name. Values can't be bound as SQL parameters, so this is
// the only defense against an attacker-controlled identifier.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

type txEntry struct {
	conn *sql.DB
	tx   *sql.Tx
}

// SQLiteDriver is the concrete Driver backing one SQLite file.
type SQLiteDriver struct {
	path    string
	gdb     *gorm.DB
	log     *logging.Logger
	journal *journal.Journal

	txMu sync.Mutex
	txs  map[string]*txEntry
}

// AttachJournal wires a query journal into the driver: every mutation run
// through Insert/Update/Delete/CreateTable/DropTable/Execute/ExecuteBatch
// is appended to it, success or failure, after the statement runs. A nil
// driver journal (the default) makes journaling a no-op.
func (d *SQLiteDriver) AttachJournal(j *journal.Journal) {
	d.journal = j
}

func (d *SQLiteDriver) journalWrite(sqlText string, params any, transactionID string, success bool, errText string) {
	if d.journal == nil {
		return
	}
	d.journal.Write(sqlText, params, transactionID, success, errText)
}

// Open opens (creating if needed) the SQLite file at path, applies the
// teacher's kernel/pragma tuning, and returns a ready-to-use SQLiteDriver.
func Open(path string) (*SQLiteDriver, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("driver: open %s: %w", path, err)
	}
	if err := sqliteopt.ConfigureOptimalSQLite(gdb, path); err != nil {
		return nil, fmt.Errorf("driver: configure %s: %w", path, err)
	}
	if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("driver: enable foreign_keys: %w", err)
	}

	return &SQLiteDriver{
		path: path,
		gdb:  gdb,
		log:  logging.Default().With("component", "driver"),
		txs:  make(map[string]*txEntry),
	}, nil
}

// Close releases the underlying connection pool and rolls back any
// transactions still open.
func (d *SQLiteDriver) Close() error {
	d.txMu.Lock()
	for id, entry := range d.txs {
		_ = entry.tx.Rollback()
		_ = entry.conn.Close()
		delete(d.txs, id)
	}
	d.txMu.Unlock()

	sqlDB, err := d.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every CRUD
// helper below run against either the shared pool or a pinned transaction
// connection without duplicating logic.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (d *SQLiteDriver) execerFor(transactionID string) (execer, error) {
	if transactionID == "" {
		sqlDB, err := d.gdb.DB()
		if err != nil {
			return nil, err
		}
		return sqlDB, nil
	}
	d.txMu.Lock()
	defer d.txMu.Unlock()
	entry, ok := d.txs[transactionID]
	if !ok {
		return nil, fmt.Errorf("transaction %q not found", transactionID)
	}
	return entry.tx, nil
}

// CreateTable builds and runs a CREATE TABLE IF NOT EXISTS from the request
// schema, translating column/constraint definitions the same way the
// original driver did.
func (d *SQLiteDriver) CreateTable(ctx context.Context, req rpcmodel.CreateTableRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	stmt, err := buildCreateTableSQL(req.Schema)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
		d.journalWrite(stmt, nil, "", false, err.Error())
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("create table %s: %v", req.Schema.Name, err), nil)
	}
	d.journalWrite(stmt, nil, "", true, "")
	return rpcmodel.NewSuccess(map[string]any{"table_name": req.Schema.Name, "created": true})
}

func buildCreateTableSQL(schema rpcmodel.TableSchema) (string, error) {
	if !validIdentifier(schema.Name) {
		return "", fmt.Errorf("invalid table name %q", schema.Name)
	}
	defs := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		if !validIdentifier(col.Name) {
			return "", fmt.Errorf("invalid column name %q", col.Name)
		}
		def := fmt.Sprintf("%s %s", col.Name, col.Type)
		if !col.Nullable {
			def += " NOT NULL"
		}
		if col.Default != nil {
			def += fmt.Sprintf(" DEFAULT %s", formatDefault(col.Default))
		}
		if col.PrimaryKey {
			def += " PRIMARY KEY"
		}
		if col.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	for _, c := range schema.Constraints {
		switch c.Type {
		case "primary_key":
			if len(c.Columns) > 0 {
				defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(c.Columns, ", ")))
			}
		case "foreign_key":
			if len(c.Columns) > 0 && c.ReferencesTable != "" && len(c.ReferencesColumns) > 0 {
				defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
					strings.Join(c.Columns, ", "), c.ReferencesTable, strings.Join(c.ReferencesColumns, ", ")))
			}
		case "unique":
			if len(c.Columns) > 0 {
				defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(c.Columns, ", ")))
			}
		case "check":
			if c.Expression != "" {
				defs = append(defs, fmt.Sprintf("CHECK (%s)", c.Expression))
			}
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", schema.Name, strings.Join(defs, ", ")), nil
}

func formatDefault(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(val, "'", "''"))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DropTable drops the table if it exists.
func (d *SQLiteDriver) DropTable(ctx context.Context, req rpcmodel.DropTableRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	if !validIdentifier(req.TableName) {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid table name %q", req.TableName), nil)
	}
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", req.TableName)
	if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
		d.journalWrite(stmt, nil, "", false, err.Error())
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	d.journalWrite(stmt, nil, "", true, "")
	return rpcmodel.NewSuccess(map[string]any{"table_name": req.TableName, "dropped": true})
}

// Insert runs a parameterized INSERT and returns the generated row id.
func (d *SQLiteDriver) Insert(ctx context.Context, req rpcmodel.InsertRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	if !validIdentifier(req.TableName) {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid table name %q", req.TableName), nil)
	}

	columns := sortedKeys(req.Data)
	for _, c := range columns {
		if !validIdentifier(c) {
			return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid column name %q", c), nil)
		}
	}
	values := make([]any, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	for _, c := range columns {
		values = append(values, req.Data[c])
		placeholders = append(placeholders, "?")
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", req.TableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	ex, err := d.execerFor("")
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	res, err := ex.ExecContext(ctx, stmt, values...)
	if err != nil {
		d.journalWrite(stmt, values, "", false, err.Error())
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("insert into %s: %v", req.TableName, err), nil)
	}
	d.journalWrite(stmt, values, "", true, "")
	id, _ := res.LastInsertId()
	return rpcmodel.NewSuccess(map[string]any{"id": id})
}

// Update runs a parameterized UPDATE scoped by req.Where.
func (d *SQLiteDriver) Update(ctx context.Context, req rpcmodel.UpdateRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	if !validIdentifier(req.TableName) {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid table name %q", req.TableName), nil)
	}

	setCols := sortedKeys(req.Data)
	whereCols := sortedKeys(req.Where)
	for _, c := range append(append([]string{}, setCols...), whereCols...) {
		if !validIdentifier(c) {
			return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid column name %q", c), nil)
		}
	}

	setClauses := make([]string, 0, len(setCols))
	args := make([]any, 0, len(setCols)+len(whereCols))
	for _, c := range setCols {
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", c))
		args = append(args, req.Data[c])
	}
	whereClauses := make([]string, 0, len(whereCols))
	for _, c := range whereCols {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = ?", c))
		args = append(args, req.Where[c])
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", req.TableName, strings.Join(setClauses, ", "), strings.Join(whereClauses, " AND "))
	ex, err := d.execerFor("")
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	res, err := ex.ExecContext(ctx, stmt, args...)
	if err != nil {
		d.journalWrite(stmt, args, "", false, err.Error())
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("update %s: %v", req.TableName, err), nil)
	}
	d.journalWrite(stmt, args, "", true, "")
	n, _ := res.RowsAffected()
	return rpcmodel.NewSuccess(map[string]any{"rows_affected": n})
}

// Delete runs a parameterized DELETE scoped by req.Where.
func (d *SQLiteDriver) Delete(ctx context.Context, req rpcmodel.DeleteRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	if !validIdentifier(req.TableName) {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid table name %q", req.TableName), nil)
	}
	whereCols := sortedKeys(req.Where)
	for _, c := range whereCols {
		if !validIdentifier(c) {
			return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid column name %q", c), nil)
		}
	}
	whereClauses := make([]string, 0, len(whereCols))
	args := make([]any, 0, len(whereCols))
	for _, c := range whereCols {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = ?", c))
		args = append(args, req.Where[c])
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", req.TableName, strings.Join(whereClauses, " AND "))

	ex, err := d.execerFor("")
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	res, err := ex.ExecContext(ctx, stmt, args...)
	if err != nil {
		d.journalWrite(stmt, args, "", false, err.Error())
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("delete from %s: %v", req.TableName, err), nil)
	}
	d.journalWrite(stmt, args, "", true, "")
	n, _ := res.RowsAffected()
	return rpcmodel.NewSuccess(map[string]any{"rows_affected": n})
}

// Select runs a parameterized SELECT and returns the matching rows.
func (d *SQLiteDriver) Select(ctx context.Context, req rpcmodel.SelectRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	if !validIdentifier(req.TableName) {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid table name %q", req.TableName), nil)
	}

	selectClause := "*"
	if len(req.Columns) > 0 {
		for _, c := range req.Columns {
			if !validIdentifier(c) {
				return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid column name %q", c), nil)
			}
		}
		selectClause = strings.Join(req.Columns, ", ")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", selectClause, req.TableName)
	args := make([]any, 0)
	if len(req.Where) > 0 {
		whereCols := sortedKeys(req.Where)
		clauses := make([]string, 0, len(whereCols))
		for _, c := range whereCols {
			if !validIdentifier(c) {
				return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid column name %q", c), nil)
			}
			clauses = append(clauses, fmt.Sprintf("%s = ?", c))
			args = append(args, req.Where[c])
		}
		stmt += " WHERE " + strings.Join(clauses, " AND ")
	}
	if len(req.OrderBy) > 0 {
		for _, c := range req.OrderBy {
			if !validIdentifier(strings.TrimSuffix(strings.TrimSuffix(c, " DESC"), " ASC")) && !validIdentifier(c) {
				return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid order_by column %q", c), nil)
			}
		}
		stmt += " ORDER BY " + strings.Join(req.OrderBy, ", ")
	}
	if req.Limit != nil {
		stmt += fmt.Sprintf(" LIMIT %d", *req.Limit)
		if req.Offset != nil {
			stmt += fmt.Sprintf(" OFFSET %d", *req.Offset)
		}
	} else if req.Offset != nil {
		stmt += fmt.Sprintf(" OFFSET %d", *req.Offset)
	}

	ex, err := d.execerFor("")
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	rows, err := ex.QueryContext(ctx, stmt, args...)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("select from %s: %v", req.TableName, err), nil)
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	return rpcmodel.NewData(data)
}

// Execute runs one raw parameterized SQL statement, optionally scoped to an
// in-flight transaction. SELECTs return their rows under "data"; writes
// return affected_rows/lastrowid.
func (d *SQLiteDriver) Execute(ctx context.Context, req rpcmodel.ExecuteRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	ex, err := d.execerFor(req.TransactionID)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}
	return d.runExecute(ctx, ex, req.SQL, req.Params, req.TransactionID)
}

// runExecute is shared by Execute and ExecuteBatch: SELECTs return their
// rows, everything else is treated as a mutation and journaled.
func (d *SQLiteDriver) runExecute(ctx context.Context, ex execer, sqlText string, params []any, transactionID string) rpcmodel.Result {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "SELECT") {
		rows, err := ex.QueryContext(ctx, sqlText, params...)
		if err != nil {
			return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
		}
		defer rows.Close()
		data, err := scanRows(rows)
		if err != nil {
			return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
		}
		return rpcmodel.NewSuccess(map[string]any{"affected_rows": 0, "data": data})
	}

	res, err := ex.ExecContext(ctx, sqlText, params...)
	if err != nil {
		d.journalWrite(sqlText, params, transactionID, false, err.Error())
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	d.journalWrite(sqlText, params, transactionID, true, "")
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return rpcmodel.NewSuccess(map[string]any{"affected_rows": affected, "lastrowid": lastID})
}

// ExecuteBatch runs every statement against the same connection (a pinned
// transaction when TransactionID is set, otherwise a fresh ad hoc
// transaction so the batch is still atomic as a unit).
func (d *SQLiteDriver) ExecuteBatch(ctx context.Context, req rpcmodel.ExecuteBatchRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}

	if req.TransactionID != "" {
		ex, err := d.execerFor(req.TransactionID)
		if err != nil {
			return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
		}
		results := make([]map[string]any, 0, len(req.Statements))
		for _, stmt := range req.Statements {
			r := d.runExecute(ctx, ex, stmt.SQL, stmt.Params, req.TransactionID)
			if errRes, isErr := r.(rpcmodel.ErrorResult); isErr {
				return errRes
			}
			results = append(results, r.(rpcmodel.SuccessResult).Data)
		}
		return rpcmodel.NewSuccess(map[string]any{"statements": results})
	}

	sqlDB, err := d.gdb.DB()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}
	results := make([]map[string]any, 0, len(req.Statements))
	for _, stmt := range req.Statements {
		r := d.runExecute(ctx, tx, stmt.SQL, stmt.Params, "")
		if errRes, isErr := r.(rpcmodel.ErrorResult); isErr {
			_ = tx.Rollback()
			return errRes
		}
		results = append(results, r.(rpcmodel.SuccessResult).Data)
	}
	if err := tx.Commit(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}
	return rpcmodel.NewSuccess(map[string]any{"statements": results})
}

// BeginTransaction opens a dedicated connection to the same database file
// and starts a transaction on it, returning an id the caller threads
// through subsequent execute/commit/rollback calls.
func (d *SQLiteDriver) BeginTransaction(ctx context.Context, req rpcmodel.BeginTransactionRequest) rpcmodel.Result {
	conn, err := sql.Open("sqlite3", d.path)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}

	id := uuid.NewString()
	d.txMu.Lock()
	d.txs[id] = &txEntry{conn: conn, tx: tx}
	d.txMu.Unlock()

	d.log.Debug("transaction opened", "transaction_id", id)
	return rpcmodel.NewSuccess(map[string]any{"transaction_id": id})
}

// CommitTransaction commits and releases the dedicated connection for
// req.TransactionID.
func (d *SQLiteDriver) CommitTransaction(ctx context.Context, req rpcmodel.CommitTransactionRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	d.txMu.Lock()
	entry, ok := d.txs[req.TransactionID]
	if ok {
		delete(d.txs, req.TransactionID)
	}
	d.txMu.Unlock()
	if !ok {
		return rpcmodel.NewError(rpcmodel.ErrCodeNotFound, fmt.Sprintf("transaction %q not found", req.TransactionID), nil)
	}

	err := entry.tx.Commit()
	_ = entry.conn.Close()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}
	return rpcmodel.NewSuccess(map[string]any{"transaction_id": req.TransactionID, "committed": true})
}

// RollbackTransaction rolls back and releases the dedicated connection for
// req.TransactionID.
func (d *SQLiteDriver) RollbackTransaction(ctx context.Context, req rpcmodel.RollbackTransactionRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	d.txMu.Lock()
	entry, ok := d.txs[req.TransactionID]
	if ok {
		delete(d.txs, req.TransactionID)
	}
	d.txMu.Unlock()
	if !ok {
		return rpcmodel.NewError(rpcmodel.ErrCodeNotFound, fmt.Sprintf("transaction %q not found", req.TransactionID), nil)
	}

	err := entry.tx.Rollback()
	_ = entry.conn.Close()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeTransactionError, err.Error(), nil)
	}
	return rpcmodel.NewSuccess(map[string]any{"transaction_id": req.TransactionID, "rolled_back": true})
}

// GetTableInfo reports column metadata via PRAGMA table_info. A table that
// doesn't exist yields an empty row set rather than NOT_FOUND — sync_schema
// relies on this to distinguish "doesn't exist yet" from a driver failure.
func (d *SQLiteDriver) GetTableInfo(ctx context.Context, req rpcmodel.GetTableInfoRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}
	if !validIdentifier(req.TableName) {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, fmt.Sprintf("invalid table name %q", req.TableName), nil)
	}
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	rows, err := sqlDB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", req.TableName))
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt any
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
		}
		out = append(out, map[string]any{
			"name":        name,
			"type":        ctype,
			"nullable":    notnull == 0,
			"default":     dflt,
			"primary_key": pk != 0,
		})
	}
	return rpcmodel.NewData(out)
}

// SyncSchema creates any table in the definition that doesn't already
// exist; tables that do exist are reported as modified without being
// altered, matching the original driver's conservative reconciliation.
func (d *SQLiteDriver) SyncSchema(ctx context.Context, req rpcmodel.SyncSchemaRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}

	var created, modified []string
	var errs []string
	for _, table := range req.Definition.Tables {
		info := d.GetTableInfo(ctx, rpcmodel.GetTableInfoRequest{TableName: table.Name})
		data, ok := info.(rpcmodel.DataResult)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: %v", table.Name, info))
			continue
		}
		if len(data.Rows) == 0 {
			res := d.CreateTable(ctx, rpcmodel.CreateTableRequest{Schema: table})
			if _, isErr := res.(rpcmodel.ErrorResult); isErr {
				errs = append(errs, fmt.Sprintf("%s: %v", table.Name, res))
				continue
			}
			created = append(created, table.Name)
		} else {
			modified = append(modified, table.Name)
		}
	}

	return rpcmodel.NewSuccess(map[string]any{
		"created_tables":  created,
		"modified_tables": modified,
		"errors":          errs,
	})
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scanRows converts a *sql.Rows cursor into JSON-friendly maps. []byte
// values (BLOB columns, vector attributes) come back from the driver
// unchanged; callers marshaling through pkg/wire get them sonic-encoded as
// base64 strings, exactly the representation the wire protocol documents
// for binary vector payloads.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
