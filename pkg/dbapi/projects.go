package dbapi

import "context"

// Project mirrors the `projects` table: one tracked codebase root.
type Project struct {
	ID        string
	Name      string
	RootPath  string
	CreatedAt float64
	UpdatedAt float64
}

func projectFromRow(row map[string]any) Project {
	return Project{
		ID:        asString(row["id"]),
		Name:      asString(row["name"]),
		RootPath:  asString(row["root_path"]),
		CreatedAt: asFloat64(row["created_at"]),
		UpdatedAt: asFloat64(row["updated_at"]),
	}
}

// CreateProject inserts a new project row, assigning an id (if absent) and
// server-side timestamps.
func (a *API) CreateProject(ctx context.Context, p Project) (Project, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	now := nowEpoch()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := a.call(ctx, "insert", map[string]any{
		"table_name": "projects",
		"data": map[string]any{
			"id":         p.ID,
			"name":       p.Name,
			"root_path":  p.RootPath,
			"created_at": p.CreatedAt,
			"updated_at": p.UpdatedAt,
		},
	})
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// GetProject returns nil, nil if no project with that id exists.
func (a *API) GetProject(ctx context.Context, id string) (*Project, error) {
	result, err := a.call(ctx, "select", map[string]any{
		"table_name": "projects",
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
	p := projectFromRow(rows[0])
	return &p, nil
}

// UpdateProject overwrites name/root_path and refreshes updated_at.
// Returns ErrNotFound if no row with p.ID exists.
func (a *API) UpdateProject(ctx context.Context, p Project) (Project, error) {
	p.UpdatedAt = nowEpoch()
	result, err := a.call(ctx, "update", map[string]any{
		"table_name": "projects",
		"where":      map[string]any{"id": p.ID},
		"data": map[string]any{
			"name":       p.Name,
			"root_path":  p.RootPath,
			"updated_at": p.UpdatedAt,
		},
	})
	if err != nil {
		return Project{}, err
	}
	if asInt64(asMap(result)["rows_affected"]) == 0 {
		return Project{}, ErrNotFound
	}
	return p, nil
}

// DeleteProject returns false iff no row with that id existed.
func (a *API) DeleteProject(ctx context.Context, id string) (bool, error) {
	result, err := a.call(ctx, "delete", map[string]any{
		"table_name": "projects",
		"where":      map[string]any{"id": id},
	})
	if err != nil {
		return false, err
	}
	return asInt64(asMap(result)["rows_affected"]) > 0, nil
}

// ListProjects returns every project row.
func (a *API) ListProjects(ctx context.Context) ([]Project, error) {
	result, err := a.call(ctx, "select", map[string]any{"table_name": "projects"})
	if err != nil {
		return nil, err
	}
	rows := asRows(result)
	out := make([]Project, 0, len(rows))
	for _, row := range rows {
		out = append(out, projectFromRow(row))
	}
	return out, nil
}
