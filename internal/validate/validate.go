// Package validate statically checks candidate SQL against the schema
// registry before anything reaches a database. Queries are never executed
// here; the checks work on the query text alone.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/npsettle/portquery/internal/schema"
)

// Result is the validation outcome: either the query is accepted as-is, or
// it is rejected with a reason phrased so it can be fed back to the
// synthesizer as correction feedback.
type Result struct {
	Accepted  bool
	Query     string // the accepted query text
	Reason    string // rejection reason, empty when accepted
	Offending string // offending reference (table, table.column, or predicate)
}

// Accepted wraps a query that passed all checks
func Accepted(query string) Result {
	return Result{Accepted: true, Query: query}
}

// Rejected builds a rejection with the offending reference attached
func Rejected(reason, offending string) Result {
	return Result{Reason: reason, Offending: offending}
}

// Feedback renders the rejection as a correction instruction
func (r Result) Feedback() string {
	if r.Accepted {
		return ""
	}

	if r.Offending != "" {
		return fmt.Sprintf("%s (offending reference: %s)", r.Reason, r.Offending)
	}

	return r.Reason
}

// Validator checks candidate queries against the active schema snapshot
type Validator struct {
	registry *schema.Registry
}

// New creates a validator bound to the given registry
func New(registry *schema.Registry) *Validator {
	return &Validator{registry: registry}
}

// Write and DDL keywords that disqualify a query outright. EXEC and EXECUTE
// are listed separately because word-boundary matching treats them as
// distinct tokens.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "MERGE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
	"ATTACH", "PRAGMA", "COPY",
}

var writeKeywordPattern = regexp.MustCompile(
	`(?i)\b(` + strings.Join(writeKeywords, "|") + `)\b`)

var (
	stringLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)
	lineCommentPattern   = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// FROM/JOIN targets with an optional alias
	tableRefPattern = regexp.MustCompile(
		`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_]\w*)(?:\s+(?:AS\s+)?([A-Za-z_]\w*))?`)

	// CTE definitions: WITH name AS ( ... ), other AS ( ... )
	ctePattern = regexp.MustCompile(`(?i)\b([A-Za-z_]\w*)\s+AS\s*\(`)

	qualifiedRefPattern = regexp.MustCompile(`\b([A-Za-z_]\w*)\.([A-Za-z_]\w*)`)

	// ON-clause equi-join predicates between two qualified columns
	joinPredicatePattern = regexp.MustCompile(
		`\b([A-Za-z_]\w*)\.([A-Za-z_]\w*)\s*=\s*([A-Za-z_]\w*)\.([A-Za-z_]\w*)`)

	onClausePattern = regexp.MustCompile(
		`(?is)\bON\b(.*?)(?:\b(?:LEFT|RIGHT|INNER|OUTER|FULL|CROSS|JOIN|WHERE|GROUP|ORDER|LIMIT|HAVING|WINDOW|UNION)\b|$)`)

	// JOIN targets with the CROSS modifier and optional alias captured, used
	// to tie each joined table to the predicates that follow it
	joinTargetPattern = regexp.MustCompile(
		`(?i)\b(CROSS\s+)?JOIN\s+([A-Za-z_]\w*)(?:\s+(?:AS\s+)?([A-Za-z_]\w*))?`)

	joinBoundaryPattern = regexp.MustCompile(
		`(?i)\b(?:LEFT|RIGHT|INNER|OUTER|FULL|CROSS|JOIN|WHERE|GROUP|ORDER|LIMIT|HAVING|WINDOW|QUALIFY|UNION)\b`)

	// USING (col) immediately after a join target; the USING keyword may
	// already have been consumed as a false alias, leaving a bare paren
	usingClausePattern = regexp.MustCompile(`(?i)^\s*(?:USING\s*)?\(\s*([A-Za-z_]\w*)\s*\)`)
)

// reserved words that must not be mistaken for table aliases
var reservedAlias = map[string]bool{
	"on": true, "where": true, "group": true, "order": true, "limit": true,
	"having": true, "join": true, "left": true, "right": true, "inner": true,
	"outer": true, "full": true, "cross": true, "using": true, "union": true,
	"select": true, "as": true, "with": true, "window": true, "qualify": true,
}

// Check runs all static checks on the candidate SQL
func (v *Validator) Check(candidate string) Result {
	query := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(candidate), ";"))
	if query == "" {
		return Rejected("query is empty", "")
	}

	stripped := stripLiterals(query)

	if !startsWithRead(stripped) {
		return Rejected("only SELECT or WITH queries are allowed", firstWord(stripped))
	}

	if m := writeKeywordPattern.FindString(stripped); m != "" {
		return Rejected(
			fmt.Sprintf("write or DDL keyword %s is not allowed in a read-only query",
				strings.ToUpper(m)), strings.ToUpper(m))
	}

	cteNames := collectCTENames(stripped)
	aliases, unknownTable := v.collectTableRefs(stripped, cteNames)

	if unknownTable != "" {
		return Rejected(fmt.Sprintf("unknown table %s", unknownTable), unknownTable)
	}

	if res := v.checkColumnRefs(stripped, aliases, cteNames); !res.Accepted {
		return res
	}

	if res := v.checkJoinPredicates(stripped, aliases, cteNames); !res.Accepted {
		return res
	}

	if res := v.checkJoinStructure(stripped, aliases); !res.Accepted {
		return res
	}

	return Accepted(query)
}

// stripLiterals blanks string literals and comments so their contents never
// trip keyword or identifier checks
func stripLiterals(query string) string {
	out := blockCommentPattern.ReplaceAllString(query, " ")
	out = lineCommentPattern.ReplaceAllString(out, " ")
	out = stringLiteralPattern.ReplaceAllString(out, "''")

	return out
}

func startsWithRead(stripped string) bool {
	first := strings.ToUpper(firstWord(stripped))

	return first == "SELECT" || first == "WITH"
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}

func collectCTENames(stripped string) map[string]bool {
	names := map[string]bool{}

	for _, m := range ctePattern.FindAllStringSubmatch(stripped, -1) {
		names[strings.ToLower(m[1])] = true
	}

	return names
}

// collectTableRefs resolves FROM/JOIN targets. It returns an alias map
// (lowered alias or table name -> canonical table) and the first unknown
// table encountered.
func (v *Validator) collectTableRefs(stripped string, cteNames map[string]bool) (map[string]string, string) {
	aliases := map[string]string{}

	for _, m := range tableRefPattern.FindAllStringSubmatch(stripped, -1) {
		name := m[1]
		lowered := strings.ToLower(name)

		if cteNames[lowered] {
			aliases[lowered] = "" // CTE: known but not schema-checked

			if alias := cleanAlias(m[2]); alias != "" {
				aliases[alias] = ""
			}

			continue
		}

		canonical, ok := v.registry.CanonicalTable(name)
		if !ok {
			return nil, name
		}

		aliases[lowered] = canonical

		if alias := cleanAlias(m[2]); alias != "" {
			aliases[alias] = canonical
		}
	}

	return aliases, ""
}

func cleanAlias(raw string) string {
	alias := strings.ToLower(strings.TrimSpace(raw))
	if alias == "" || reservedAlias[alias] {
		return ""
	}

	return alias
}

// checkColumnRefs verifies every qualified column reference against the
// schema. Unqualified columns cannot be attributed to a table without a full
// parser and are left to the database to reject.
func (v *Validator) checkColumnRefs(stripped string, aliases map[string]string, cteNames map[string]bool) Result {
	for _, m := range qualifiedRefPattern.FindAllStringSubmatch(stripped, -1) {
		qualifier, column := m[1], m[2]
		loweredQualifier := strings.ToLower(qualifier)

		table, known := aliases[loweredQualifier]
		if !known {
			if cteNames[loweredQualifier] {
				continue
			}

			return Rejected(
				fmt.Sprintf("unknown table or alias %s", qualifier),
				fmt.Sprintf("%s.%s", qualifier, column))
		}

		if table == "" {
			// CTE columns are not described by the schema
			continue
		}

		if !v.registry.ColumnExists(table, column) {
			return Rejected(
				fmt.Sprintf("unknown column %s on table %s", column, table),
				fmt.Sprintf("%s.%s", table, column))
		}
	}

	return Result{Accepted: true}
}

// checkJoinPredicates requires every ON-clause equi-join between two schema
// tables to follow a declared foreign key, in either direction.
func (v *Validator) checkJoinPredicates(stripped string, aliases map[string]string, cteNames map[string]bool) Result {
	for _, clause := range onClausePattern.FindAllStringSubmatch(stripped, -1) {
		for _, m := range joinPredicatePattern.FindAllStringSubmatch(clause[1], -1) {
			leftTable := aliases[strings.ToLower(m[1])]
			rightTable := aliases[strings.ToLower(m[3])]

			// CTE participants cannot be checked against declared keys
			if leftTable == "" || rightTable == "" {
				continue
			}

			if leftTable == rightTable {
				continue // self-join on the same table
			}

			if !v.registry.ForeignKeyBetween(leftTable, m[2], rightTable, m[4]) &&
				!v.registry.ForeignKeyBetween(rightTable, m[4], leftTable, m[2]) {
				predicate := fmt.Sprintf("%s.%s = %s.%s", m[1], m[2], m[3], m[4])

				return Rejected(
					fmt.Sprintf("join between %s and %s does not follow a declared foreign key",
						leftTable, rightTable), predicate)
			}
		}
	}

	return Result{Accepted: true}
}

// checkJoinStructure requires every joined schema table to actually be tied
// to the rest of the query by an equi-join predicate. The per-predicate check
// above vets the predicates that exist; this one rejects joins that carry
// none, such as CROSS JOIN or ON clauses like 1 = 1.
func (v *Validator) checkJoinStructure(stripped string, aliases map[string]string) Result {
	for _, m := range joinTargetPattern.FindAllStringSubmatchIndex(stripped, -1) {
		name := stripped[m[4]:m[5]]
		table := aliases[strings.ToLower(name)]

		if table == "" {
			continue // CTE, vetted as a whole where it is defined
		}

		if m[2] != -1 {
			return Rejected(
				fmt.Sprintf("CROSS JOIN against table %s is not allowed; join through a declared foreign key",
					table), name)
		}

		qualifiers := map[string]bool{strings.ToLower(name): true}
		if m[6] != -1 {
			if alias := cleanAlias(stripped[m[6]:m[7]]); alias != "" {
				qualifiers[alias] = true
			}
		}

		segment := joinSegment(stripped, m[1])

		if v.usingLinked(segment, table, aliases) {
			continue
		}

		if !joinLinked(segment, qualifiers, aliases) {
			return Rejected(
				fmt.Sprintf("join on table %s has no equality predicate linking it to another table",
					table), name)
		}
	}

	return Result{Accepted: true}
}

// joinSegment returns the text between a join target and the next join or
// clause keyword, which is where that join's predicates live
func joinSegment(stripped string, start int) string {
	rest := stripped[start:]
	if loc := joinBoundaryPattern.FindStringIndex(rest); loc != nil {
		return rest[:loc[0]]
	}

	return rest
}

// joinLinked reports whether the segment contains an equi-join predicate with
// the joined table on exactly one side and a known table or CTE on the other
func joinLinked(segment string, qualifiers map[string]bool, aliases map[string]string) bool {
	for _, m := range joinPredicatePattern.FindAllStringSubmatch(segment, -1) {
		left := strings.ToLower(m[1])
		right := strings.ToLower(m[3])

		if qualifiers[left] == qualifiers[right] {
			continue // neither side, or a table compared to itself
		}

		other := right
		if qualifiers[right] {
			other = left
		}

		if _, known := aliases[other]; known {
			return true
		}
	}

	return false
}

// usingLinked accepts USING (col) when col is a declared foreign-key column
// between the joined table and another table in the query
func (v *Validator) usingLinked(segment, table string, aliases map[string]string) bool {
	m := usingClausePattern.FindStringSubmatch(segment)
	if m == nil {
		return false
	}

	column := m[1]

	for _, other := range aliases {
		if other == "" || other == table {
			continue
		}

		if v.registry.ForeignKeyBetween(table, column, other, column) ||
			v.registry.ForeignKeyBetween(other, column, table, column) {
			return true
		}
	}

	return false
}
