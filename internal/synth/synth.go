// Package synth turns a classified question into a candidate SQL query by
// prompting a language model with a schema-grounded request. The candidate
// is not trusted: callers pass it through the validator before use.
package synth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/npsettle/portquery/internal/errors"
	"github.com/npsettle/portquery/internal/intent"
	"github.com/npsettle/portquery/internal/llm"
	"github.com/npsettle/portquery/internal/logging"
	"github.com/npsettle/portquery/internal/schema"
)

// CandidateQuery is a synthesized query awaiting validation
type CandidateQuery struct {
	SQL         string
	Explanation string
	Confidence  float64
	Reasoning   string
}

// Synthesizer builds prompts and drives the generation backend
type Synthesizer struct {
	registry *schema.Registry
	service  llm.Service
	logger   *logging.Logger
}

// New creates a synthesizer
func New(registry *schema.Registry, service llm.Service, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		if logging.GetLogger() == nil {
			logging.SetupFallbackLogger()
		}

		logger = logging.GetLogger()
	}

	return &Synthesizer{registry: registry, service: service, logger: logger}
}

// Synthesize generates one candidate query for the intent. A non-empty
// feedback string carries a prior validation rejection and is appended to
// the prompt as a correction instruction. Earlier questions from the same
// session may be passed as history to ground follow-ups.
func (s *Synthesizer) Synthesize(ctx context.Context, in intent.Intent, feedback string, history ...string) (*CandidateQuery, error) {
	if in.Kind == intent.KindUnknown {
		return nil, errors.New(errors.ErrTypeIntent,
			"cannot synthesize a query for an unclassified question")
	}

	prompt := s.BuildPrompt(in, feedback, history...)

	resp, err := s.service.GenerateQuery(ctx, llm.Request{Prompt: prompt, Intent: in})
	if err != nil {
		// the backend may run its own timeout context, in which case the
		// deadline surfaces through the error rather than our ctx
		if ctx.Err() == context.DeadlineExceeded || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(err, errors.ErrTypeTimeout, "query generation timed out")
		}

		return nil, errors.Wrap(err, errors.ErrTypeSynthesis, "query generation failed")
	}

	sql := StripMarkdownSQL(resp.SQL)
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New(errors.ErrTypeSynthesis, "generation returned an empty query")
	}

	candidate := &CandidateQuery{
		SQL:         sql,
		Explanation: resp.Explanation,
		Confidence:  resp.Confidence,
		Reasoning:   resp.Reasoning,
	}

	if candidate.Explanation == "" {
		candidate.Explanation = SummarizeQuery(sql)
	}

	s.logger.WithField("confidence", candidate.Confidence).
		Debugf("synthesized candidate query: %s", oneLine(candidate.SQL))

	return candidate, nil
}

// BuildPrompt renders the schema-grounded generation prompt. Only tables
// related to the intent (plus foreign-key intermediates needed to join them)
// are included, keeping the prompt bounded on wide schemas.
func (s *Synthesizer) BuildPrompt(in intent.Intent, feedback string, history ...string) string {
	tables := s.promptTables(in)
	schemaText := s.registry.Snapshot().PromptText(tables)

	var sb strings.Builder

	sb.WriteString(`You are an expert at converting natural language questions about mobile number-porting settlements into DuckDB SQL queries.

Respond with a JSON object containing the following fields:
- sql: the generated DuckDB SQL query
- explanation: a clear explanation of what the query does
- confidence: a float between 0.0 and 1.0
- reasoning: your reasoning process for generating this query

Rules:
1. Use proper DuckDB SQL syntax
2. Generate a single SELECT (or WITH) statement; never write or alter data
3. Only reference tables and columns listed in the schema below
4. Join tables only along the declared foreign keys
5. Prefer LIMIT clauses for potentially large result sets
6. Amounts are in KRW; port_type values are PORT_IN and PORT_OUT
`)

	sb.WriteString("\nDatabase Schema:\n")
	sb.WriteString(schemaText)

	if hints := entityHints(in.Entities); hints != "" {
		sb.WriteString("\nExtracted entities:\n")
		sb.WriteString(hints)
	}

	if len(history) > 0 {
		sb.WriteString("\nEarlier questions in this session, oldest first:\n")

		for _, q := range history {
			sb.WriteString("- ")
			sb.WriteString(oneLine(q))
			sb.WriteString("\n")
		}
	}

	if feedback != "" {
		sb.WriteString("\nYour previous attempt was rejected by the query validator: ")
		sb.WriteString(feedback)
		sb.WriteString("\nGenerate a corrected query that fixes this problem.\n")
	}

	fmt.Fprintf(&sb, "\nUser Question: %s\n", in.Question)

	return sb.String()
}

// promptTables expands the intent's tables with any foreign-key
// intermediates needed to join them
func (s *Synthesizer) promptTables(in intent.Intent) []string {
	tables := in.Tables()
	include := map[string]bool{}

	for _, t := range tables {
		include[t] = true
	}

	for i := 0; i < len(tables); i++ {
		for j := i + 1; j < len(tables); j++ {
			path, ok := s.registry.ForeignKeyPath(tables[i], tables[j])
			if !ok {
				continue
			}

			for _, hop := range path {
				if !include[hop.ToTable] {
					include[hop.ToTable] = true
					tables = append(tables, hop.ToTable)
				}
			}
		}
	}

	return tables
}

func entityHints(e intent.Entities) string {
	var lines []string

	if len(e.PhoneNumbers) > 0 {
		lines = append(lines, "- phone numbers: "+strings.Join(e.PhoneNumbers, ", "))
	}

	if len(e.Operators) > 0 {
		lines = append(lines, "- operators: "+strings.Join(e.Operators, ", "))
	}

	for _, m := range e.Months {
		lines = append(lines, fmt.Sprintf("- month: %04d-%02d", m.Year, m.Month))
	}

	if e.RecentMonths > 0 {
		lines = append(lines, fmt.Sprintf("- period: most recent %d months", e.RecentMonths))
	}

	if e.PortType != "" {
		lines = append(lines, "- port type: "+e.PortType)
	}

	if e.AmountMin > 0 {
		lines = append(lines, fmt.Sprintf("- minimum amount: %d KRW", e.AmountMin))
	}

	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}

// StripMarkdownSQL removes markdown code fences that models wrap around SQL
// despite being asked for JSON
func StripMarkdownSQL(sql string) string {
	out := strings.TrimSpace(sql)

	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```sql")
		out = strings.TrimPrefix(out, "```SQL")
		out = strings.TrimPrefix(out, "```")

		if idx := strings.LastIndex(out, "```"); idx >= 0 {
			out = out[:idx]
		}
	}

	return strings.TrimSpace(out)
}

// SummarizeQuery derives a human-readable description of a query for when
// the model supplies no explanation
func SummarizeQuery(sql string) string {
	upper := strings.ToUpper(sql)

	var parts []string

	switch {
	case strings.Contains(upper, "SUM(") || strings.Contains(upper, "COUNT(") ||
		strings.Contains(upper, "AVG("):
		parts = append(parts, "Aggregates settlement data")
	default:
		parts = append(parts, "Retrieves settlement records")
	}

	if strings.Contains(upper, "GROUP BY") {
		parts = append(parts, "grouped by the listed columns")
	}

	if strings.Contains(upper, "JOIN") {
		parts = append(parts, "joining related tables")
	}

	if strings.Contains(upper, "WHERE") {
		parts = append(parts, "with the requested filters")
	}

	return strings.Join(parts, ", ")
}

func oneLine(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
