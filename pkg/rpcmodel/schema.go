package rpcmodel

import "fmt"

// ColumnDef describes one column of a table schema, mirroring the column
// dict shape the original driver accepted under create_table/sync_schema.
type ColumnDef struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
	Unique     bool   `json:"unique"`
	Default    any    `json:"default,omitempty"`
}

// Constraint describes a table-level constraint: foreign key, unique group,
// or check expression.
type Constraint struct {
	Type              string   `json:"type"`
	Columns           []string `json:"columns,omitempty"`
	ReferencesTable   string   `json:"references_table,omitempty"`
	ReferencesColumns []string `json:"references_columns,omitempty"`
	Expression        string   `json:"expression,omitempty"`
}

// TableSchema is the declarative shape create_table and sync_schema both
// operate on.
type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []ColumnDef  `json:"columns"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Validate checks the schema has a name, at least one column, and that
// every column has a non-empty name and type.
func (s TableSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("rpcmodel: table schema missing name")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("rpcmodel: table schema %q has no columns", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("rpcmodel: table %q has a column with an empty name", s.Name)
		}
		if c.Type == "" {
			return fmt.Errorf("rpcmodel: table %q column %q has an empty type", s.Name, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("rpcmodel: table %q has duplicate column %q", s.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// SchemaDefinition is the full set of tables sync_schema reconciles the
// database against.
type SchemaDefinition struct {
	Tables []TableSchema `json:"tables"`
}

func (d SchemaDefinition) Validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("rpcmodel: schema definition has no tables")
	}
	for _, t := range d.Tables {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
