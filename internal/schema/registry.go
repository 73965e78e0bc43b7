package schema

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Hop is a single foreign-key edge in a join path between two tables
type Hop struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// snapshot is an immutable view of a loaded description plus lookup indexes.
// Lookups fold case because SQL identifiers are case-insensitive.
type snapshot struct {
	desc        Description
	fingerprint string

	tables  map[string]string            // lowered name -> canonical name
	columns map[string]map[string]string // lowered table -> lowered column -> canonical column
	edges   map[string][]Hop             // canonical table -> FK edges in both directions
}

// Registry serves schema lookups from an atomically swapped snapshot, so
// in-flight validations always see one consistent schema and a reload takes
// effect for the next request without locking readers.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry validates the description and builds a registry around it
func NewRegistry(desc Description) (*Registry, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{}
	r.current.Store(buildSnapshot(desc))

	return r, nil
}

// Reload validates the new description and swaps it in. On error the
// previous snapshot stays active.
func (r *Registry) Reload(desc Description) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.current.Store(buildSnapshot(desc))

	return nil
}

func buildSnapshot(desc Description) *snapshot {
	s := &snapshot{
		desc:        desc,
		fingerprint: desc.Fingerprint(),
		tables:      make(map[string]string, len(desc)),
		columns:     make(map[string]map[string]string, len(desc)),
		edges:       make(map[string][]Hop, len(desc)),
	}

	for name, table := range desc {
		lowered := strings.ToLower(name)
		s.tables[lowered] = name

		cols := make(map[string]string, len(table.Columns))
		for col := range table.Columns {
			cols[strings.ToLower(col)] = col
		}

		s.columns[lowered] = cols
	}

	for name, table := range desc {
		for localCol, ref := range table.ForeignKeys {
			target, err := ParseRef(ref)
			if err != nil {
				continue // Validate already rejected malformed refs
			}

			s.edges[name] = append(s.edges[name], Hop{
				FromTable: name, FromColumn: localCol,
				ToTable: target.Table, ToColumn: target.Column,
			})
			s.edges[target.Table] = append(s.edges[target.Table], Hop{
				FromTable: target.Table, FromColumn: target.Column,
				ToTable: name, ToColumn: localCol,
			})
		}
	}

	for name := range s.edges {
		sort.Slice(s.edges[name], func(i, j int) bool {
			if s.edges[name][i].ToTable != s.edges[name][j].ToTable {
				return s.edges[name][i].ToTable < s.edges[name][j].ToTable
			}

			return s.edges[name][i].FromColumn < s.edges[name][j].FromColumn
		})
	}

	return s
}

// Snapshot returns the active description. Callers must not mutate it.
func (r *Registry) Snapshot() Description {
	return r.current.Load().desc
}

// Fingerprint identifies the active schema version
func (r *Registry) Fingerprint() string {
	return r.current.Load().fingerprint
}

// Tables lists the table names in the active schema, sorted
func (r *Registry) Tables() []string {
	return r.current.Load().desc.TableNames()
}

// TableExists reports whether the named table exists, case-insensitively
func (r *Registry) TableExists(name string) bool {
	_, ok := r.current.Load().tables[strings.ToLower(name)]

	return ok
}

// CanonicalTable resolves a possibly differently-cased table name
func (r *Registry) CanonicalTable(name string) (string, bool) {
	canonical, ok := r.current.Load().tables[strings.ToLower(name)]

	return canonical, ok
}

// ColumnExists reports whether table.column exists, case-insensitively
func (r *Registry) ColumnExists(table, column string) bool {
	_, _, ok := r.lookupColumn(table, column)

	return ok
}

// Column returns the column definition for table.column
func (r *Registry) Column(table, column string) (Column, bool) {
	s := r.current.Load()

	canonicalTable, canonicalCol, ok := r.lookupColumn(table, column)
	if !ok {
		return Column{}, false
	}

	return s.desc[canonicalTable].Columns[canonicalCol], true
}

func (r *Registry) lookupColumn(table, column string) (string, string, bool) {
	s := r.current.Load()

	canonicalTable, ok := s.tables[strings.ToLower(table)]
	if !ok {
		return "", "", false
	}

	canonicalCol, ok := s.columns[strings.ToLower(table)][strings.ToLower(column)]
	if !ok {
		return "", "", false
	}

	return canonicalTable, canonicalCol, true
}

// SensitiveColumns lists the columns of a table flagged sensitive, sorted
func (r *Registry) SensitiveColumns(table string) []string {
	s := r.current.Load()

	canonical, ok := s.tables[strings.ToLower(table)]
	if !ok {
		return nil
	}

	var out []string

	for col, c := range s.desc[canonical].Columns {
		if c.Sensitive {
			out = append(out, col)
		}
	}

	sort.Strings(out)

	return out
}

// ForeignKeyBetween reports whether a declared foreign key links the two
// column references, in either direction.
func (r *Registry) ForeignKeyBetween(tableA, columnA, tableB, columnB string) bool {
	s := r.current.Load()

	canonicalA, ok := s.tables[strings.ToLower(tableA)]
	if !ok {
		return false
	}

	for _, hop := range s.edges[canonicalA] {
		if strings.EqualFold(hop.FromColumn, columnA) &&
			strings.EqualFold(hop.ToTable, tableB) &&
			strings.EqualFold(hop.ToColumn, columnB) {
			return true
		}
	}

	return false
}

// RelatedTables lists tables reachable from the given table via one
// foreign-key hop, sorted and deduplicated.
func (r *Registry) RelatedTables(table string) []string {
	s := r.current.Load()

	canonical, ok := s.tables[strings.ToLower(table)]
	if !ok {
		return nil
	}

	seen := map[string]bool{}

	var out []string

	for _, hop := range s.edges[canonical] {
		if !seen[hop.ToTable] {
			seen[hop.ToTable] = true
			out = append(out, hop.ToTable)
		}
	}

	sort.Strings(out)

	return out
}

// ForeignKeyPath finds the shortest chain of foreign-key hops connecting two
// tables, walking edges in both directions. Returns false when the tables
// are unrelated. A table is trivially connected to itself by an empty path.
func (r *Registry) ForeignKeyPath(from, to string) ([]Hop, bool) {
	s := r.current.Load()

	start, ok := s.tables[strings.ToLower(from)]
	if !ok {
		return nil, false
	}

	goal, ok := s.tables[strings.ToLower(to)]
	if !ok {
		return nil, false
	}

	if start == goal {
		return []Hop{}, true
	}

	type node struct {
		table string
		path  []Hop
	}

	visited := map[string]bool{start: true}
	queue := []node{{table: start}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, hop := range s.edges[cur.table] {
			if visited[hop.ToTable] {
				continue
			}

			path := make([]Hop, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, hop)

			if hop.ToTable == goal {
				return path, true
			}

			visited[hop.ToTable] = true
			queue = append(queue, node{table: hop.ToTable, path: path})
		}
	}

	return nil, false
}
