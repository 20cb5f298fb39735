package dbapi

import "context"

// File mirrors the `files` table: one source file tracked within a project.
type File struct {
	ID            int64
	ProjectID     string
	Path          string
	NeedsChunking bool
	Deleted       bool
	CreatedAt     float64
	UpdatedAt     float64
}

func fileFromRow(row map[string]any) File {
	return File{
		ID:            asInt64(row["id"]),
		ProjectID:     asString(row["project_id"]),
		Path:          asString(row["path"]),
		NeedsChunking: asBool(row["needs_chunking"]),
		Deleted:       asBool(row["deleted"]),
		CreatedAt:     asFloat64(row["created_at"]),
		UpdatedAt:     asFloat64(row["updated_at"]),
	}
}

// CreateFile inserts a new file row and fills in its autoincrement id.
func (a *API) CreateFile(ctx context.Context, f File) (File, error) {
	now := nowEpoch()
	f.CreatedAt = now
	f.UpdatedAt = now

	result, err := a.call(ctx, "insert", map[string]any{
		"table_name": "files",
		"data": map[string]any{
			"project_id":     f.ProjectID,
			"path":           f.Path,
			"needs_chunking": f.NeedsChunking,
			"deleted":        f.Deleted,
			"created_at":     f.CreatedAt,
			"updated_at":     f.UpdatedAt,
		},
	})
	if err != nil {
		return File{}, err
	}
	f.ID = asInt64(asMap(result)["id"])
	return f, nil
}

// GetFile returns nil, nil if no file with that id exists.
func (a *API) GetFile(ctx context.Context, id int64) (*File, error) {
	result, err := a.call(ctx, "select", map[string]any{
		"table_name": "files",
		"where":      map[string]any{"id": id},
		"limit":      1,
	})
	if err != nil {
		return nil, err
	}
	rows := asRows(result)
	if len(rows) == 0 {
		return nil, nil
	}
	f := fileFromRow(rows[0])
	return &f, nil
}

// UpdateFile overwrites path/needs_chunking/deleted and refreshes
// updated_at. Returns ErrNotFound if no row with f.ID exists.
func (a *API) UpdateFile(ctx context.Context, f File) (File, error) {
	f.UpdatedAt = nowEpoch()
	result, err := a.call(ctx, "update", map[string]any{
		"table_name": "files",
		"where":      map[string]any{"id": f.ID},
		"data": map[string]any{
			"path":           f.Path,
			"needs_chunking": f.NeedsChunking,
			"deleted":        f.Deleted,
			"updated_at":     f.UpdatedAt,
		},
	})
	if err != nil {
		return File{}, err
	}
	if asInt64(asMap(result)["rows_affected"]) == 0 {
		return File{}, ErrNotFound
	}
	return f, nil
}

// DeleteFile returns false iff no row with that id existed.
func (a *API) DeleteFile(ctx context.Context, id int64) (bool, error) {
	result, err := a.call(ctx, "delete", map[string]any{
		"table_name": "files",
		"where":      map[string]any{"id": id},
	})
	if err != nil {
		return false, err
	}
	return asInt64(asMap(result)["rows_affected"]) > 0, nil
}

// GetProjectFiles lists files belonging to projectID, excluding soft-deleted
// rows unless includeDeleted is set.
func (a *API) GetProjectFiles(ctx context.Context, projectID string, includeDeleted bool) ([]File, error) {
	where := map[string]any{"project_id": projectID}
	if !includeDeleted {
		where["deleted"] = false
	}
	result, err := a.call(ctx, "select", map[string]any{
		"table_name": "files",
		"where":      where,
	})
	if err != nil {
		return nil, err
	}
	rows := asRows(result)
	out := make([]File, 0, len(rows))
	for _, row := range rows {
		out = append(out, fileFromRow(row))
	}
	return out, nil
}
