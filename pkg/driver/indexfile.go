package driver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	gotaskflow "github.com/noneback/go-taskflow"

	"github.com/maverikod/code-analysis-db/pkg/rpcmodel"
)

// indexFileState is the state shared by the parse -> refresh_ast ->
// refresh_cst -> refresh_content chain, which IndexFile runs as a
// four-node go-taskflow graph, mirroring the
// teacher's fetch-then-store task pipeline: each stage is a closure that
// shares state with the next purely through captured variables, and a
// Precede edge enforces the order without the caller juggling channels.
type indexFileState struct {
	projectID string
	filePath  string
	rootPath  string
	content   []byte

	parseErr error
	parsed   ParseResult

	astErr error
	cstErr error

	contentErr error
}

// IndexFile resolves the project root, parses the file, and persists its
// AST/CST/entity/content rows in one pass, then clears needs_chunking.
// The whole chain runs over a *sql.DB opened for this call alone, separate
// from the shared pool. The stages are not wrapped in a transaction: each
// write commits on its own, so a failing later stage leaves the rows that
// earlier stages wrote in place.
func (d *SQLiteDriver) IndexFile(ctx context.Context, req rpcmodel.IndexFileRequest) rpcmodel.Result {
	if err := req.Validate(); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, err.Error(), nil)
	}

	conn, err := sql.Open("sqlite3", d.path)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "SELECT root_path FROM projects WHERE id = ?", req.ProjectID)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	var rootPath string
	found := false
	for rows.Next() {
		if err := rows.Scan(&rootPath); err != nil {
			rows.Close()
			return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
		}
		found = true
	}
	rows.Close()
	if !found || rootPath == "" {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("project not found or missing root_path: %s", req.ProjectID), nil)
	}

	absPath := req.FilePath
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(rootPath, absPath)
	}

	content := []byte(req.Content)
	if req.Content == "" {
		data, err := os.ReadFile(absPath)
		if err != nil {
			return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("read %s: %v", absPath, err), nil)
		}
		content = data
	}

	state := &indexFileState{
		projectID: req.ProjectID,
		filePath:  absPath,
		rootPath:  rootPath,
		content:   content,
	}

	executor := gotaskflow.NewExecutor(1)
	tf := gotaskflow.NewTaskFlow(fmt.Sprintf("index-file-%s", req.ProjectID))

	parseTask := tf.NewTask("parse", func() {
		state.parsed, state.parseErr = DefaultParser{}.Parse(state.filePath, state.content)
	})
	astTask := tf.NewTask("refresh_ast", func() {
		if state.parseErr != nil {
			return
		}
		state.astErr = d.writeTreeRow(ctx, conn, "ast_trees", state.projectID, state.filePath, state.parsed.AST)
	})
	cstTask := tf.NewTask("refresh_cst", func() {
		if state.parseErr != nil {
			return
		}
		state.cstErr = d.writeTreeRow(ctx, conn, "cst_trees", state.projectID, state.filePath, state.parsed.CST)
	})
	contentTask := tf.NewTask("refresh_content", func() {
		if state.parseErr != nil {
			return
		}
		state.contentErr = d.writeContentRow(ctx, conn, state.projectID, state.filePath, state.parsed.Content, state.parsed.Entities)
	})

	parseTask.Precede(astTask)
	astTask.Precede(cstTask)
	cstTask.Precede(contentTask)

	executor.Run(tf).Wait()

	if state.parseErr != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("parse failed: %v", state.parseErr), nil)
	}
	if state.astErr != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("refresh_ast failed: %v", state.astErr), nil)
	}
	if state.cstErr != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("refresh_cst failed: %v", state.cstErr), nil)
	}
	if state.contentErr != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("refresh_content failed: %v", state.contentErr), nil)
	}

	if _, err := conn.ExecContext(ctx, "UPDATE files SET needs_chunking = 0 WHERE path = ? AND project_id = ?", absPath, req.ProjectID); err != nil {
		d.log.Warn("failed to clear needs_chunking after index_file", "path", absPath, "error", err.Error())
	}

	return rpcmodel.NewSuccess(map[string]any{
		"file_path":      absPath,
		"project_id":     req.ProjectID,
		"entity_count":   len(state.parsed.Entities),
		"indexed_at_unx": time.Now().Unix(),
	})
}

func (d *SQLiteDriver) writeTreeRow(ctx context.Context, conn *sql.DB, table, projectID, filePath string, tree map[string]any) error {
	payload, err := sonic.Marshal(tree)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (project_id, file_path, tree_json, updated_at) VALUES (?, ?, ?, julianday('now')) "+
			"ON CONFLICT(project_id, file_path) DO UPDATE SET tree_json = excluded.tree_json, updated_at = excluded.updated_at",
		table)
	_, err = conn.ExecContext(ctx, stmt, projectID, filePath, string(payload))
	return err
}

func (d *SQLiteDriver) writeContentRow(ctx context.Context, conn *sql.DB, projectID, filePath, content string, entities []map[string]any) error {
	entitiesJSON, err := sonic.Marshal(entities)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx,
		"INSERT INTO code_content (project_id, file_path, content, entities_json, updated_at) VALUES (?, ?, ?, ?, julianday('now')) "+
			"ON CONFLICT(project_id, file_path) DO UPDATE SET content = excluded.content, entities_json = excluded.entities_json, updated_at = excluded.updated_at",
		projectID, filePath, content, string(entitiesJSON))
	return err
}

// QueryAST reads the stored AST tree for a file and returns the subtree at
// req.NodePath, or the whole tree when NodePath is empty.
func (d *SQLiteDriver) QueryAST(ctx context.Context, req rpcmodel.QueryASTRequest) rpcmodel.Result {
	return d.queryTree(ctx, "ast_trees", req.ProjectID, req.FilePath, req.NodePath, req.Validate())
}

// QueryCST reads the stored CST tree for a file and returns the subtree at
// req.NodePath, or the whole tree when NodePath is empty.
func (d *SQLiteDriver) QueryCST(ctx context.Context, req rpcmodel.QueryCSTRequest) rpcmodel.Result {
	return d.queryTree(ctx, "cst_trees", req.ProjectID, req.FilePath, req.NodePath, req.Validate())
}

func (d *SQLiteDriver) queryTree(ctx context.Context, table, projectID, filePath, nodePath string, validateErr error) rpcmodel.Result {
	if validateErr != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, validateErr.Error(), nil)
	}
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	var treeJSON string
	row := sqlDB.QueryRowContext(ctx, fmt.Sprintf("SELECT tree_json FROM %s WHERE project_id = ? AND file_path = ?", table), projectID, filePath)
	if err := row.Scan(&treeJSON); err != nil {
		if err == sql.ErrNoRows {
			return rpcmodel.NewError(rpcmodel.ErrCodeNotFound, fmt.Sprintf("no %s for %s/%s", table, projectID, filePath), nil)
		}
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}

	var tree map[string]any
	if err := sonic.Unmarshal([]byte(treeJSON), &tree); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("corrupt tree row: %v", err), nil)
	}

	node, err := navigateNodePath(tree, nodePath)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeNotFound, err.Error(), nil)
	}
	return rpcmodel.NewSuccess(map[string]any{"node": node})
}

// ModifyAST applies req.Patch to the node at req.NodePath within the
// stored AST tree and writes the tree back.
func (d *SQLiteDriver) ModifyAST(ctx context.Context, req rpcmodel.ModifyASTRequest) rpcmodel.Result {
	return d.modifyTree(ctx, "ast_trees", req.ProjectID, req.FilePath, req.NodePath, req.Patch, req.Validate())
}

// ModifyCST applies req.Patch to the node at req.NodePath within the
// stored CST tree and writes the tree back.
func (d *SQLiteDriver) ModifyCST(ctx context.Context, req rpcmodel.ModifyCSTRequest) rpcmodel.Result {
	return d.modifyTree(ctx, "cst_trees", req.ProjectID, req.FilePath, req.NodePath, req.Patch, req.Validate())
}

func (d *SQLiteDriver) modifyTree(ctx context.Context, table, projectID, filePath, nodePath string, patch map[string]any, validateErr error) rpcmodel.Result {
	if validateErr != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, validateErr.Error(), nil)
	}
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}

	var treeJSON string
	row := sqlDB.QueryRowContext(ctx, fmt.Sprintf("SELECT tree_json FROM %s WHERE project_id = ? AND file_path = ?", table), projectID, filePath)
	if err := row.Scan(&treeJSON); err != nil {
		if err == sql.ErrNoRows {
			return rpcmodel.NewError(rpcmodel.ErrCodeNotFound, fmt.Sprintf("no %s for %s/%s", table, projectID, filePath), nil)
		}
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	var tree map[string]any
	if err := sonic.Unmarshal([]byte(treeJSON), &tree); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, fmt.Sprintf("corrupt tree row: %v", err), nil)
	}

	node, err := navigateNodePath(tree, nodePath)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeNotFound, err.Error(), nil)
	}
	nodeMap, ok := node.(map[string]any)
	if !ok {
		return rpcmodel.NewError(rpcmodel.ErrCodeValidationError, "node at node_path is not an object", nil)
	}
	for k, v := range patch {
		nodeMap[k] = v
	}

	updated, err := sonic.Marshal(tree)
	if err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}
	if _, err := sqlDB.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET tree_json = ?, updated_at = julianday('now') WHERE project_id = ? AND file_path = ?", table),
		string(updated), projectID, filePath); err != nil {
		return rpcmodel.NewError(rpcmodel.ErrCodeDatabaseError, err.Error(), nil)
	}

	return rpcmodel.NewSuccess(map[string]any{"node": nodeMap})
}

// navigateNodePath walks a slash-separated path ("children/0/name") into a
// tree of map[string]any / []any values produced by json unmarshaling.
func navigateNodePath(tree map[string]any, nodePath string) (any, error) {
	var current any = tree
	if nodePath == "" {
		return current, nil
	}
	for _, segment := range strings.Split(strings.Trim(nodePath, "/"), "/") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("node_path segment %q not found", segment)
			}
			current = next
		case []any:
			idx, err := parseIndex(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("node_path segment %q is not a valid index", segment)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("node_path segment %q has no children", segment)
		}
	}
	return current, nil
}

func parseIndex(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty index")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not numeric")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
