package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/npsettle/portquery/internal/errors"
)

// Column describes a single table column
type Column struct {
	Type        string `yaml:"type"        json:"type"`
	Description string `yaml:"description" json:"description"`
	Sensitive   bool   `yaml:"sensitive"   json:"sensitive,omitempty"`
}

// Table describes a table: its columns, primary key, and declared foreign keys
type Table struct {
	Description string            `yaml:"description"            json:"description"`
	Columns     map[string]Column `yaml:"columns"                json:"columns"`
	PrimaryKey  string            `yaml:"primary_key"            json:"primary_key"`
	ForeignKeys map[string]string `yaml:"foreign_keys,omitempty" json:"foreign_keys,omitempty"` // local column -> "table.column"
}

// Description is the full schema description, keyed by table name.
// Immutable once loaded; replaced wholesale on reload.
type Description map[string]Table

// ForeignKeyRef is a parsed "table.column" foreign-key target
type ForeignKeyRef struct {
	Table  string
	Column string
}

// ParseRef splits a "table.column" reference
func ParseRef(ref string) (ForeignKeyRef, error) {
	parts := strings.SplitN(ref, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ForeignKeyRef{}, fmt.Errorf("malformed foreign-key reference %q (want table.column)", ref)
	}

	return ForeignKeyRef{Table: parts[0], Column: parts[1]}, nil
}

// LoadFile reads a schema description from a YAML or JSON file.
// YAML is a superset of JSON, so one decoder covers both.
func LoadFile(path string) (Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSchemaLoadError(
			fmt.Sprintf("failed to read schema description %s", path), err)
	}

	return Parse(data)
}

// Parse decodes and validates a schema description document
func Parse(data []byte) (Description, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.NewSchemaLoadError("failed to parse schema description", err)
	}

	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, errors.New(errors.ErrTypeSchemaLoad, "schema description is empty")
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.New(errors.ErrTypeSchemaLoad,
			"schema description must be a mapping of table name to table definition")
	}

	desc := make(Description, len(doc.Content)/2)

	// Walk the mapping node directly so duplicate table names are caught
	// instead of silently overwriting each other.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode := doc.Content[i]
		valNode := doc.Content[i+1]

		name := strings.TrimSpace(keyNode.Value)
		if name == "" {
			return nil, errors.New(errors.ErrTypeSchemaLoad, "table name cannot be empty")
		}

		if _, dup := desc[name]; dup {
			return nil, errors.Newf(errors.ErrTypeSchemaLoad, "duplicate table name: %s", name)
		}

		var table Table
		if err := valNode.Decode(&table); err != nil {
			return nil, errors.NewSchemaLoadError(
				fmt.Sprintf("failed to decode table %s", name), err)
		}

		desc[name] = table
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}

	return desc, nil
}

// Validate checks the description for missing required keys and dangling
// foreign-key references
func (d Description) Validate() error {
	if len(d) == 0 {
		return errors.New(errors.ErrTypeSchemaLoad, "schema description declares no tables")
	}

	for _, name := range d.TableNames() {
		table := d[name]

		if table.Description == "" {
			return errors.Newf(errors.ErrTypeSchemaLoad,
				"table %s is missing required key 'description'", name)
		}

		if len(table.Columns) == 0 {
			return errors.Newf(errors.ErrTypeSchemaLoad,
				"table %s is missing required key 'columns'", name)
		}

		if table.PrimaryKey == "" {
			return errors.Newf(errors.ErrTypeSchemaLoad,
				"table %s is missing required key 'primary_key'", name)
		}

		if _, ok := table.Columns[table.PrimaryKey]; !ok {
			return errors.Newf(errors.ErrTypeSchemaLoad,
				"table %s primary key %s is not a declared column", name, table.PrimaryKey)
		}

		for localCol, ref := range table.ForeignKeys {
			if _, ok := table.Columns[localCol]; !ok {
				return errors.Newf(errors.ErrTypeSchemaLoad,
					"table %s foreign key on unknown column %s", name, localCol)
			}

			target, err := ParseRef(ref)
			if err != nil {
				return errors.NewSchemaLoadError(
					fmt.Sprintf("table %s foreign key %s", name, localCol), err)
			}

			targetTable, ok := d[target.Table]
			if !ok {
				return errors.Newf(errors.ErrTypeSchemaLoad,
					"table %s foreign key %s references unknown table %s",
					name, localCol, target.Table)
			}

			if _, ok := targetTable.Columns[target.Column]; !ok {
				return errors.Newf(errors.ErrTypeSchemaLoad,
					"table %s foreign key %s references unknown column %s.%s",
					name, localCol, target.Table, target.Column)
			}
		}
	}

	return nil
}

// TableNames returns the table names in sorted order
func (d Description) TableNames() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Fingerprint returns a stable hash of the description, used to key cached
// synthesized queries so a schema reload invalidates them.
func (d Description) Fingerprint() string {
	h := sha256.New()

	for _, name := range d.TableNames() {
		table := d[name]
		fmt.Fprintf(h, "%s|%s|pk=%s\n", name, table.Description, table.PrimaryKey)

		cols := make([]string, 0, len(table.Columns))
		for col := range table.Columns {
			cols = append(cols, col)
		}

		sort.Strings(cols)

		for _, col := range cols {
			c := table.Columns[col]
			fmt.Fprintf(h, "  %s:%s:%t\n", col, c.Type, c.Sensitive)
		}

		fks := make([]string, 0, len(table.ForeignKeys))
		for col := range table.ForeignKeys {
			fks = append(fks, col)
		}

		sort.Strings(fks)

		for _, col := range fks {
			fmt.Fprintf(h, "  fk %s->%s\n", col, table.ForeignKeys[col])
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// PromptText renders the description (or a subset of it) in the form fed to
// the language model. Table order is stable.
func (d Description) PromptText(tables []string) string {
	var sb strings.Builder

	include := map[string]bool{}
	for _, t := range tables {
		include[t] = true
	}

	for _, name := range d.TableNames() {
		if len(tables) > 0 && !include[name] {
			continue
		}

		table := d[name]
		fmt.Fprintf(&sb, "Table: %s -- %s\n", name, table.Description)
		sb.WriteString("Columns:\n")

		cols := make([]string, 0, len(table.Columns))
		for col := range table.Columns {
			cols = append(cols, col)
		}

		sort.Strings(cols)

		for _, col := range cols {
			c := table.Columns[col]
			fmt.Fprintf(&sb, "  - %s (%s)", col, c.Type)

			if c.Description != "" {
				fmt.Fprintf(&sb, " - %s", c.Description)
			}

			if c.Sensitive {
				sb.WriteString(" [sensitive]")
			}

			sb.WriteString("\n")
		}

		fmt.Fprintf(&sb, "Primary key: %s\n", table.PrimaryKey)

		if len(table.ForeignKeys) > 0 {
			sb.WriteString("Foreign keys:\n")

			fks := make([]string, 0, len(table.ForeignKeys))
			for col := range table.ForeignKeys {
				fks = append(fks, col)
			}

			sort.Strings(fks)

			for _, col := range fks {
				fmt.Fprintf(&sb, "  - %s.%s -> %s\n", name, col, table.ForeignKeys[col])
			}
		}

		sb.WriteString("\n")
	}

	return sb.String()
}
