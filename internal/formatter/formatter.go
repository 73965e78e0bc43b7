// Package formatter renders query results for display: fixed-size pages,
// masked values for columns the schema flags sensitive, and tabular output.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/npsettle/portquery/internal/config"
	"github.com/npsettle/portquery/internal/schema"
)

// Page is one display page of a result set
type Page struct {
	Columns    []string
	Rows       [][]string
	PageNumber int // 1-based
	PageCount  int
	TotalRows  int
	Truncated  bool // result was cut off by the executor row cap
}

// Formatter paginates and renders result rows
type Formatter struct {
	registry *schema.Registry
	pageSize int
	maskPII  bool
}

// New creates a formatter from display configuration
func New(registry *schema.Registry, cfg config.FormatterConfig) *Formatter {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return &Formatter{
		registry: registry,
		pageSize: pageSize,
		maskPII:  cfg.MaskPII,
	}
}

// Paginate converts raw rows into one display page. Page numbers are
// 1-based; out-of-range pages clamp to the nearest valid page. Sensitive
// columns are masked here so no caller ever sees raw values.
func (f *Formatter) Paginate(columns []string, rows [][]any, pageNumber int, truncated bool) Page {
	total := len(rows)

	pageCount := (total + f.pageSize - 1) / f.pageSize
	if pageCount == 0 {
		pageCount = 1
	}

	if pageNumber < 1 {
		pageNumber = 1
	}

	if pageNumber > pageCount {
		pageNumber = pageCount
	}

	start := (pageNumber - 1) * f.pageSize

	end := start + f.pageSize
	if end > total {
		end = total
	}

	masked := f.sensitiveColumns(columns)

	out := make([][]string, 0, end-start)

	for _, row := range rows[start:end] {
		rendered := make([]string, len(columns))

		for i := range columns {
			var value any
			if i < len(row) {
				value = row[i]
			}

			rendered[i] = formatValue(value)

			if masked[i] {
				rendered[i] = MaskValue(rendered[i])
			}
		}

		out = append(out, rendered)
	}

	return Page{
		Columns:    columns,
		Rows:       out,
		PageNumber: pageNumber,
		PageCount:  pageCount,
		TotalRows:  total,
		Truncated:  truncated,
	}
}

// sensitiveColumns flags result columns whose name matches a column the
// schema marks sensitive on any table. Result sets lose their table
// qualifiers, so matching is by column name.
func (f *Formatter) sensitiveColumns(columns []string) []bool {
	if !f.maskPII || f.registry == nil {
		return make([]bool, len(columns))
	}

	sensitive := map[string]bool{}

	for _, tbl := range f.registry.Tables() {
		for _, col := range f.registry.SensitiveColumns(tbl) {
			sensitive[strings.ToLower(col)] = true
		}
	}

	flags := make([]bool, len(columns))
	for i, col := range columns {
		flags[i] = sensitive[strings.ToLower(col)]
	}

	return flags
}

// MaskValue hides the middle of a sensitive value, keeping the first three
// and last four characters: 010-1234-5678 becomes 010****5678.
func MaskValue(value string) string {
	runes := []rune(value)
	if len(runes) < 8 {
		return "****"
	}

	return string(runes[:3]) + "****" + string(runes[len(runes)-4:])
}

// Render draws the page as a bordered table with a footer line
func (f *Formatter) Render(p Page) string {
	var sb strings.Builder

	t := table.NewWriter()
	t.SetOutputMirror(&sb)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(p.Columns))
	for i, col := range p.Columns {
		header[i] = col
	}

	t.AppendHeader(header)

	for _, row := range p.Rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}

		t.AppendRow(r)
	}

	t.Render()

	fmt.Fprintf(&sb, "Page %d/%d (%d rows", p.PageNumber, p.PageCount, p.TotalRows)

	if p.Truncated {
		sb.WriteString(", truncated by row cap")
	}

	sb.WriteString(")\n")

	return sb.String()
}

// RenderRecords draws the page one record per block, column: value per
// line. Easier to read than the table form for wide rows.
func (f *Formatter) RenderRecords(p Page) string {
	var sb strings.Builder

	width := 0
	for _, col := range p.Columns {
		if len(col) > width {
			width = len(col)
		}
	}

	for i, row := range p.Rows {
		fmt.Fprintf(&sb, "-- record %d --\n", (p.PageNumber-1)*f.pageSize+i+1)

		for j, col := range p.Columns {
			value := ""
			if j < len(row) {
				value = row[j]
			}

			fmt.Fprintf(&sb, "%-*s  %s\n", width, col, value)
		}
	}

	fmt.Fprintf(&sb, "Page %d/%d (%d rows", p.PageNumber, p.PageCount, p.TotalRows)

	if p.Truncated {
		sb.WriteString(", truncated by row cap")
	}

	sb.WriteString(")\n")

	return sb.String()
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	default:
		return fmt.Sprintf("%v", v)
	}
}
