package dbapi

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
)

// attribute tables are keyed by file_id, one row per file, distinct from
// pkg/driver's project_id+file_path-keyed ast_trees/cst_trees tables that
// back index_file — these back the high-level save_ast/get_ast family of
// calls spec.md §4.8 describes, which address a file by its numeric id.
const (
	astTable     = "file_ast"
	cstTable     = "file_cst"
	vectorsTable = "file_vectors"
)

func (a *API) requireFile(ctx context.Context, fileID int64, op string) error {
	f, err := a.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("dbapi: %s: file %d not found", op, fileID)
	}
	return nil
}

func (a *API) saveAttribute(ctx context.Context, table string, fileID int64, jsonColumn string, payload any) error {
	blob, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dbapi: marshal %s: %w", table, err)
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (file_id, %s, updated_at) VALUES (?, ?, julianday('now')) "+
			"ON CONFLICT(file_id) DO UPDATE SET %s = excluded.%s, updated_at = excluded.updated_at",
		table, jsonColumn, jsonColumn, jsonColumn,
	)
	_, err = a.call(ctx, "execute", map[string]any{
		"sql":    sql,
		"params": []any{fileID, string(blob)},
	})
	return err
}

func (a *API) getAttribute(ctx context.Context, table string, fileID int64, jsonColumn string, out any) (bool, error) {
	result, err := a.call(ctx, "select", map[string]any{
		"table_name": table,
		"columns":    []any{jsonColumn},
		"where":      map[string]any{"file_id": fileID},
		"limit":      1,
	})
	if err != nil {
		return false, err
	}
	rows := asRows(result)
	if len(rows) == 0 {
		return false, nil
	}
	raw := asString(rows[0][jsonColumn])
	if raw == "" {
		return false, nil
	}
	if err := sonic.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("dbapi: unmarshal %s: %w", table, err)
	}
	return true, nil
}

// SaveAST persists a file's abstract syntax tree. Returns an error if
// fileID doesn't name an existing file.
func (a *API) SaveAST(ctx context.Context, fileID int64, tree map[string]any) error {
	if err := a.requireFile(ctx, fileID, "save_ast"); err != nil {
		return err
	}
	return a.saveAttribute(ctx, astTable, fileID, "tree_json", tree)
}

// GetAST returns nil, nil if fileID has no stored AST.
func (a *API) GetAST(ctx context.Context, fileID int64) (map[string]any, error) {
	var tree map[string]any
	found, err := a.getAttribute(ctx, astTable, fileID, "tree_json", &tree)
	if err != nil || !found {
		return nil, err
	}
	return tree, nil
}

// SaveCST persists a file's concrete syntax tree.
func (a *API) SaveCST(ctx context.Context, fileID int64, tree map[string]any) error {
	if err := a.requireFile(ctx, fileID, "save_cst"); err != nil {
		return err
	}
	return a.saveAttribute(ctx, cstTable, fileID, "tree_json", tree)
}

// GetCST returns nil, nil if fileID has no stored CST.
func (a *API) GetCST(ctx context.Context, fileID int64) (map[string]any, error) {
	var tree map[string]any
	found, err := a.getAttribute(ctx, cstTable, fileID, "tree_json", &tree)
	if err != nil || !found {
		return nil, err
	}
	return tree, nil
}

// SaveVectors persists a file's embedding vectors.
func (a *API) SaveVectors(ctx context.Context, fileID int64, vectors [][]float64) error {
	if err := a.requireFile(ctx, fileID, "save_vectors"); err != nil {
		return err
	}
	return a.saveAttribute(ctx, vectorsTable, fileID, "vectors_json", vectors)
}

// GetVectors returns nil, nil if fileID has no stored vectors.
func (a *API) GetVectors(ctx context.Context, fileID int64) ([][]float64, error) {
	var vectors [][]float64
	found, err := a.getAttribute(ctx, vectorsTable, fileID, "vectors_json", &vectors)
	if err != nil || !found {
		return nil, err
	}
	return vectors, nil
}
